// Package handlers provides HTTP handlers for submitting MC-VQE runs and
// reading their results.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/aiem"
	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/aristath/mcvqe/internal/modules/runs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies; site files are small.
const maxBodyBytes = 4 << 20

// Handler handles MC-VQE HTTP requests
type Handler struct {
	service *runs.Service
	bus     *events.Bus
	log     zerolog.Logger
}

// NewHandler creates a new MC-VQE handler. bus may be nil, which disables
// the progress stream.
func NewHandler(service *runs.Service, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		bus:     bus,
		log:     log.With().Str("handler", "mcvqe").Logger(),
	}
}

// RunRequest is the body of POST /runs and POST /evaluate. Sites may be
// given inline in Options or as SitesText in the data-file format.
type RunRequest struct {
	Options    mcvqe.Options `json:"options"`
	SitesText  string        `json:"sites_text,omitempty"`
	Settings   runs.Settings `json:"settings"`
	Parameters []float64     `json:"parameters,omitempty"`
}

func (h *Handler) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*RunRequest, error) {
	req := &RunRequest{Options: mcvqe.DefaultOptions()}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if req.SitesText != "" {
		sites, err := chromophore.Load(strings.NewReader(req.SitesText), req.Options.NChromophores)
		if err != nil {
			return nil, err
		}
		req.Options.Sites = sites
	}
	return req, nil
}

// HandleSubmitRun handles POST /api/mcvqe/runs
func (h *Handler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRunRequest(w, r)
	if err != nil {
		h.log.Warn().Err(err).Msg("Rejected run request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.service.Submit(req.Options, req.Settings)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"id":     id,
			"status": runs.StatusPending,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListRuns handles GET /api/mcvqe/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	status := runs.Status(r.URL.Query().Get("status"))

	list, err := h.service.Repository().List(status, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": list,
		"metadata": map[string]interface{}{
			"count":     len(list),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetRun handles GET /api/mcvqe/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.service.Repository().Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if run.Result != nil {
		for k, v := range run.Result.Metadata() {
			metadata[k] = v
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     run,
		"metadata": metadata,
	})
}

// HandleCancelRun handles DELETE /api/mcvqe/runs/{id}
func (h *Handler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.service.Cancel(id) {
		http.Error(w, "Run is not active", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvaluate handles POST /api/mcvqe/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRunRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	result, err := h.service.Evaluate(ctx, req.Options, req.Settings, req.Parameters)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metadata := result.Metadata()
	metadata["timestamp"] = time.Now().Format(time.RFC3339)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     result,
		"metadata": metadata,
	})
}

// writeError maps domain errors onto status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, runs.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mcvqe.ErrInvalidOptions),
		errors.Is(err, chromophore.ErrMissingData),
		errors.Is(err, chromophore.ErrMalformedData),
		errors.Is(err, aiem.ErrDegenerateGeometry),
		errors.Is(err, aiem.ErrNonFinite):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, mcvqe.ErrBackend):
		h.log.Error().Err(err).Msg("Backend failure")
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.log.Error().Err(err).Msg("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
