package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

// Enqueuer submits a regeneration request for durable execution and
// returns its run ID.
type Enqueuer interface {
	RunAsync(ctx context.Context, req variant.RegenerateRequest) (string, error)
}

// StatusFinder reports the current state of a previously enqueued run.
type StatusFinder interface {
	GetRunStatus(ctx context.Context, runID string) (*dbosruntime.RunStatus, bool, error)
}

// SeenRecorder tracks how many times an asset has been submitted for
// regeneration. Optional; a nil recorder reports zero.
type SeenRecorder interface {
	Record(ctx context.Context, assetID string) (int, error)
}

// AsyncHandler serves the asynchronous regeneration endpoints.
type AsyncHandler struct {
	enqueuer Enqueuer
	status   StatusFinder
	dedupe   SeenRecorder
	logger   zerolog.Logger
}

// NewAsyncHandler creates a handler. dedupe may be nil when no ledger
// database is configured.
func NewAsyncHandler(enqueuer Enqueuer, status StatusFinder, dedupe SeenRecorder, logger zerolog.Logger) *AsyncHandler {
	return &AsyncHandler{
		enqueuer: enqueuer,
		status:   status,
		dedupe:   dedupe,
		logger:   logger.With().Str("component", "handlers").Logger(),
	}
}

// Routes mounts the handler's endpoints on a chi router.
func (h *AsyncHandler) Routes(r chi.Router) {
	r.Post("/v1/regenerate", h.HandleRegenerateAsync)
	r.Get("/v1/runs/{runID}", h.HandleStatus)
}

// HandleRegenerateAsync handles POST /v1/regenerate. The workflow is
// enqueued and the response returns immediately with 202 Accepted.
func (h *AsyncHandler) HandleRegenerateAsync(w http.ResponseWriter, r *http.Request) {
	var req variant.RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	if req.AssetID == "" {
		http.Error(w, "asset_id is required", http.StatusBadRequest)
		return
	}
	if len(req.Specs) == 0 {
		http.Error(w, "at least one variant spec is required", http.StatusBadRequest)
		return
	}
	if req.Job == "" {
		req.Job = variant.JobRegenerate
	}
	for i := range req.Specs {
		req.Specs[i] = req.Specs[i].Normalize()
	}

	seenCount := 0
	if h.dedupe != nil {
		count, err := h.dedupe.Record(r.Context(), req.AssetID)
		if err != nil {
			// The ledger is advisory; a failed write never blocks the run.
			h.logger.Warn().Err(err).Str("asset_id", req.AssetID).Msg("dedupe ledger write failed")
		} else {
			seenCount = count
		}
	}

	runID, err := h.enqueuer.RunAsync(r.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Str("asset_id", req.AssetID).Msg("enqueue failed")
		http.Error(w, fmt.Sprintf("failed to enqueue workflow: %v", err), http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("asset_id", req.AssetID).
		Str("run_id", runID).
		Int("specs", len(req.Specs)).
		Int("seen_count", seenCount).
		Msg("regeneration enqueued")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(variant.RegenerateResponse{
		RunID:           runID,
		DedupeSeenCount: seenCount,
	})
}

// HandleStatus handles GET /v1/runs/{runID}.
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, found, err := h.status.GetRunStatus(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("status lookup failed")
		http.Error(w, "failed to look up run", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
