package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/domuslabs/domus/internal/api/middleware"
	"github.com/domuslabs/domus/internal/jobs"
	"github.com/domuslabs/domus/internal/store"
)

// AlertsHandler exposes persisted spending alerts and the background sweep
// that produces them.
type AlertsHandler struct {
	store     *store.Store
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	log       zerolog.Logger
}

func NewAlertsHandler(st *store.Store, publisher jobs.Publisher, jobStore jobs.JobStore, log zerolog.Logger) *AlertsHandler {
	return &AlertsHandler{store: st, publisher: publisher, jobStore: jobStore, log: log}
}

// List handles GET /alerts
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	limit, err := intParam(r, "limit", 20, 1, 100)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.store.Alerts(r.Context(), userID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load alerts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load alerts")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Sweep handles POST /alerts/sweep. The work runs in the background; the
// response carries a job ID the caller can poll.
func (h *AlertsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	days, err := intParam(r, "days", defaultPeriodDays, 1, maxPeriodDays)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.SweepJob{UserID: userID, PeriodDays: days}
	if err := h.publisher.PublishSweep(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue sweep")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Could not start alert sweep")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("user_id", userID).Int("days", days).Msg("Alert sweep enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

// SweepStatus handles GET /alerts/sweep/{id}
func (h *AlertsHandler) SweepStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}
