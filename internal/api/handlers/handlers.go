// Package handlers implements the HTTP endpoints. Each handler struct owns
// one slice of the API and resolves the caller from the X-User-Id header.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/bank"
	"github.com/domuslabs/domus/internal/domain"
	"github.com/domuslabs/domus/internal/store"
)

const (
	defaultPeriodDays = 30
	maxPeriodDays     = 730
)

// Bank resolves transactions and accounts for a user, picking the real
// aggregator client or the simulator depending on the stored token and the
// server mode.
type Bank struct {
	store      *store.Store
	client     *bank.Client
	sim        *bank.Simulator
	simulation bool
}

func NewBank(st *store.Store, client *bank.Client, sim *bank.Simulator, simulation bool) *Bank {
	return &Bank{store: st, client: client, sim: sim, simulation: simulation}
}

// ErrNotLinked is returned when a user has no stored access token.
var ErrNotLinked = errors.New("no bank account linked")

// token loads the user's access token. In simulation mode an unlinked user
// falls through to the fake token so every endpoint works without a link
// step.
func (b *Bank) token(ctx context.Context, userID string) (string, error) {
	accessToken, _, err := b.store.LoadToken(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		if b.simulation {
			return bank.FakeAccessToken, nil
		}
		return "", ErrNotLinked
	}
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

// source picks the transaction source for a token. Sentinel tokens always go
// to the simulator so a linked sandbox user never hits the aggregator.
func (b *Bank) source(accessToken string) bank.Source {
	if b.simulation || accessToken == bank.FakeAccessToken {
		return b.sim
	}
	return b.client
}

// Transactions fetches the user's transactions for the period.
func (b *Bank) Transactions(ctx context.Context, userID string, days int) ([]domain.Transaction, error) {
	accessToken, err := b.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.source(accessToken).Transactions(ctx, accessToken, days)
}

// Accounts fetches the user's linked accounts.
func (b *Bank) Accounts(ctx context.Context, userID string) ([]domain.Account, error) {
	accessToken, err := b.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.source(accessToken).Accounts(ctx, accessToken)
}

// writeBankError maps resolver failures onto HTTP responses. Aggregator
// errors carry their own status; a missing link is the caller's fault.
func writeBankError(w http.ResponseWriter, log zerolog.Logger, err error) {
	if errors.Is(err, ErrNotLinked) {
		middleware.WriteError(w, http.StatusBadRequest, "No bank account linked. Call /exchange_token first.")
		return
	}

	var apiErr *bank.APIError
	if errors.As(err, &apiErr) {
		if apiErr.RequiresRelink() {
			middleware.WriteError(w, http.StatusUnauthorized, "Bank connection expired. Please re-link your account.")
			return
		}
		log.Error().Err(apiErr).Str("error_code", apiErr.ErrorCode).Msg("Aggregator request failed")
		middleware.WriteError(w, apiErr.HTTPStatus(), apiErr.ErrorMessage)
		return
	}

	log.Error().Err(err).Msg("Failed to fetch bank data")
	middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch bank data")
}

// intParam parses a query parameter as an int within [min, max]. Absent or
// empty means the default; anything unparseable or out of range is an error.
func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return v, nil
}

// intBody validates an optional integer from a JSON body the same way
// intParam treats a query parameter. nil means the default.
func intBody(v *int, name string, def, min, max int) (int, error) {
	if v == nil {
		return def, nil
	}
	if *v < min || *v > max {
		return 0, fmt.Errorf("%s must be between %d and %d", name, min, max)
	}
	return *v, nil
}

// floatParam parses a query parameter as a float within (0, max].
func floatParam(r *http.Request, name string, def, max float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if v <= 0 || v > max {
		return 0, fmt.Errorf("%s must be greater than 0 and at most %g", name, max)
	}
	return v, nil
}
