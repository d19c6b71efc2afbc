package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/store"
)

// getBatch handles GET /v1/batches/{batch_id}. Batch runs are recorded by
// the batch CLI; the server reads them from the shared store.
func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "batch repository unavailable")
		return
	}
	id, err := parseBatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	run, err := s.batches.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.logger.Error("get batch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": toBatchDTO(run)})
}

// getBatchTiers handles GET /v1/batches/{batch_id}/tiers.
func (s *Server) getBatchTiers(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "batch repository unavailable")
		return
	}
	id, err := parseBatchID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	counts, err := s.batches.TierCounts(ctx, id)
	if err != nil {
		s.logger.Error("list tier counts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tier counts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id": id.String(),
		"tiers":    toTierDTOs(counts),
	})
}

func parseBatchID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "batch_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("batch_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid batch_id")
	}
	return id, nil
}

type batchDTO struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Total      int64      `json:"total"`
	Completed  int64      `json:"completed"`
	Failed     int64      `json:"failed"`
	Error      *string    `json:"error,omitempty"`
}

func toBatchDTO(run store.BatchRun) batchDTO {
	return batchDTO{
		ID:         run.ID.String(),
		Source:     run.Source,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Total:      run.Total,
		Completed:  run.Completed,
		Failed:     run.Failed,
		Error:      run.ErrorMessage,
	}
}

type tierDTO struct {
	Tier  string `json:"tier"`
	Count int64  `json:"count"`
}

func toTierDTOs(in []store.TierCount) []tierDTO {
	out := make([]tierDTO, 0, len(in))
	for _, tc := range in {
		out = append(out, tierDTO{Tier: tc.Tier, Count: tc.Count})
	}
	return out
}
