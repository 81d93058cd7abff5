package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kelsos/realms-tvl/internal/logger"
	"github.com/kelsos/realms-tvl/internal/models"
	"github.com/kelsos/realms-tvl/internal/runlock"
	"github.com/kelsos/realms-tvl/internal/storage"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 500
)

const (
	msgUnavailable     = "TVL data not available"
	msgFetchFailed     = "Error fetching TVL"
	msgTriggerFailed   = "Error initiating TVL update"
	msgUpdateFailed    = "Error updating TVL"
	msgRunInProgress   = "TVL update already in progress"
	msgRunNotFound     = "Run not found"
	msgInvalidLimit    = "limit must be a positive integer"
	msgUpdateInitiated = "TVL update initiated"
)

type valuationResponse struct {
	OrganizationID string          `json:"organizationId,omitempty"`
	TotalValueUSD  decimal.Decimal `json:"totalValueUsd"`
	LastUpdated    time.Time       `json:"lastUpdated"`
}

type triggerResponse struct {
	Message string       `json:"message"`
	RunID   models.RunID `json:"runId"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			logger.Warn("Health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) latestFleet(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.LatestFleet(r.Context())
	if err != nil {
		h.readFailed(w, "fleet", err)
		return
	}
	writeJSON(w, http.StatusOK, valuationResponse{TotalValueUSD: v.TotalValueUSD, LastUpdated: v.ComputedAt})
}

func (h *Handler) fleetHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	history, err := h.service.FleetHistory(r.Context(), limit)
	if err != nil {
		h.readFailed(w, "fleet history", err)
		return
	}

	out := make([]valuationResponse, len(history))
	for i, v := range history {
		out[i] = valuationResponse{TotalValueUSD: v.TotalValueUSD, LastUpdated: v.ComputedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) triggerFleet(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.TriggerFleet(r.Context())
	if err != nil {
		h.triggerFailed(w, "fleet", msgTriggerFailed, err)
		return
	}
	writeJSON(w, http.StatusAccepted, triggerResponse{Message: msgUpdateInitiated, RunID: id})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	run := h.service.Run(models.RunID(chi.URLParam(r, "id")))
	if run.Status == models.RunStatusNotFound {
		writeError(w, http.StatusNotFound, msgRunNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) organizations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Organizations())
}

func (h *Handler) latestOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.service.LatestOrganization(r.Context(), id)
	if err != nil {
		h.readFailed(w, "organization "+id, err)
		return
	}
	writeJSON(w, http.StatusOK, organizationResponse(v))
}

func (h *Handler) organizationHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := historyLimit(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	history, err := h.service.OrganizationHistory(r.Context(), id, limit)
	if err != nil {
		h.readFailed(w, "organization history "+id, err)
		return
	}

	out := make([]valuationResponse, len(history))
	for i, v := range history {
		out[i] = organizationResponse(v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) triggerOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := h.service.TriggerOrganization(r.Context(), id)
	if err != nil {
		h.triggerFailed(w, "organization "+id, msgUpdateFailed, err)
		return
	}
	writeJSON(w, http.StatusOK, organizationResponse(v))
}

func organizationResponse(v models.OrganizationValuation) valuationResponse {
	return valuationResponse{OrganizationID: v.OrganizationID, TotalValueUSD: v.TotalValueUSD, LastUpdated: v.ComputedAt}
}

// readFailed maps a read error. Missing data is not an error for callers.
func (h *Handler) readFailed(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgUnavailable)
		return
	}
	logger.Error("Error fetching %s TVL: %v", what, err)
	writeError(w, http.StatusInternalServerError, msgFetchFailed)
}

// triggerFailed maps a trigger error without leaking its detail.
func (h *Handler) triggerFailed(w http.ResponseWriter, what, message string, err error) {
	if errors.Is(err, runlock.ErrRunInProgress) {
		writeError(w, http.StatusConflict, msgRunInProgress)
		return
	}
	logger.Error("Error updating %s TVL: %v", what, err)
	writeError(w, http.StatusInternalServerError, message)
}

func historyLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, msgInvalidLimit)
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}
