package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/bank"
	"github.com/domuslabs/domus/internal/store"
)

// LinkHandler manages the bank-linking token lifecycle.
type LinkHandler struct {
	store      *store.Store
	client     *bank.Client
	simulation bool
	log        zerolog.Logger
}

func NewLinkHandler(st *store.Store, client *bank.Client, simulation bool, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{store: st, client: client, simulation: simulation, log: log}
}

// CreateLinkToken handles POST /create_link_token
func (h *LinkHandler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	if h.simulation {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"link_token": bank.FakeLinkToken,
		})
		return
	}

	linkToken, err := h.client.CreateLinkToken(r.Context(), userID, "Domus")
	if err != nil {
		writeBankError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"link_token": linkToken})
}

// ExchangeToken handles POST /exchange_token
func (h *LinkHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req struct {
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PublicToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "public_token is required")
		return
	}

	accessToken, itemID := bank.FakeAccessToken, bank.FakeItemID
	if !h.simulation && req.PublicToken != bank.FakePublicToken {
		var err error
		accessToken, itemID, err = h.client.ExchangePublicToken(r.Context(), req.PublicToken)
		if err != nil {
			writeBankError(w, h.log, err)
			return
		}
	}

	if err := h.store.SaveToken(r.Context(), userID, accessToken, itemID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to store access token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store access token")
		return
	}

	h.log.Info().Str("user_id", userID).Str("item_id", itemID).Msg("Bank account linked")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"item_id": itemID,
		"message": "Bank account linked successfully",
	})
}

// SandboxInit handles POST /sandbox/init. It creates a sandbox item end to
// end so the frontend flow can be skipped during development.
func (h *LinkHandler) SandboxInit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req struct {
		InstitutionID string `json:"institution_id"`
	}
	// An empty body is fine, the default institution is used.
	_ = json.NewDecoder(r.Body).Decode(&req)

	accessToken, itemID := bank.FakeAccessToken, bank.FakeItemID
	if !h.simulation {
		publicToken, err := h.client.SandboxPublicToken(r.Context(), req.InstitutionID)
		if err != nil {
			writeBankError(w, h.log, err)
			return
		}
		accessToken, itemID, err = h.client.ExchangePublicToken(r.Context(), publicToken)
		if err != nil {
			writeBankError(w, h.log, err)
			return
		}
	}

	if err := h.store.SaveToken(r.Context(), userID, accessToken, itemID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to store access token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store access token")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"item_id": itemID,
		"message": "Sandbox account linked",
	})
}

// Reset handles POST /reset. It forgets the stored link so the user can
// start over.
func (h *LinkHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	if err := h.store.DeleteToken(r.Context(), userID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to delete access token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to reset account link")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Account link removed",
	})
}
