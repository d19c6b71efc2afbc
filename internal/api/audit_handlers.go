package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/queue"
	"github.com/leadfoundry/siteauditor/internal/store"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
	readTimeout       = 3 * time.Second
	enqueueTimeout    = 5 * time.Second
)

type auditRequest struct {
	URL         string `json:"url"`
	CompanyName string `json:"company_name"`
	Notes       string `json:"notes"`
}

// submitAudit handles POST /v1/audits. It writes a PENDING row, queues the
// job, and replies 202 with the audit ID. A full queue yields 503 so callers
// can back off and retry.
func (s *Server) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	normalized, lerr := audit.NormalizeURL(req.URL)
	if lerr != nil {
		writeError(w, http.StatusBadRequest, lerr.Reason())
		return
	}

	id, err := s.ids.NewRawID()
	if err != nil {
		s.logger.Error("generate audit id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate audit id")
		return
	}
	auditReq := audit.Request{
		URL:         normalized,
		CompanyName: req.CompanyName,
		Notes:       req.Notes,
	}
	now := s.clock.Now()
	if err := s.audits.SaveResult(r.Context(), store.NewPendingRecord(id, auditReq, now)); err != nil {
		s.logger.Error("create audit record failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create audit")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	job := queue.Job{ID: id, Request: auditReq, EnqueuedAt: now}
	if err := s.disp.Enqueue(queueCtx, job); err != nil {
		s.failUnqueued(r.Context(), id)
		switch {
		case errors.Is(err, queue.ErrFull):
			writeError(w, http.StatusServiceUnavailable, "audit queue is full")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusRequestTimeout, "audit queue timed out")
		default:
			s.logger.Error("enqueue audit failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to queue audit")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"audit_id": id.String()})
}

// failUnqueued marks the intake row FAILED so a rejected submit does not
// leave a PENDING audit no worker will ever pick up.
func (s *Server) failUnqueued(ctx context.Context, id uuid.UUID) {
	reason := "audit was not queued"
	if err := s.audits.UpdateStatus(ctx, id, audit.StateFailed, &reason, s.clock.Now()); err != nil {
		s.logger.Warn("mark unqueued audit failed", zap.String("audit_id", id.String()), zap.Error(err))
	}
}

// getAudit handles GET /v1/audits/{audit_id}. It returns the full record
// including the category breakdown, 404 when the audit does not exist.
func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseAuditID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	rec, err := s.audits.GetResult(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "audit not found")
			return
		}
		s.logger.Error("get audit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load audit")
		return
	}
	detail, err := rec.DecodeDetail()
	if err != nil {
		s.logger.Error("decode audit detail failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to decode audit detail")
		return
	}
	dto := toAuditDTO(rec)
	dto.Detail = &detail
	writeJSON(w, http.StatusOK, map[string]any{"audit": dto})
}

// listAudits handles GET /v1/audits?limit=&offset=. Summaries only; the
// detail payload is served by the single-audit endpoint.
func (s *Server) listAudits(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	recs, err := s.audits.ListRecent(ctx, limit, offset)
	if err != nil {
		s.logger.Error("list audits failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list audits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": toAuditDTOs(recs)})
}

func parseAuditID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "audit_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("audit_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid audit_id")
	}
	return id, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type auditDTO struct {
	ID          string             `json:"id"`
	URL         string             `json:"url"`
	FinalURL    string             `json:"final_url,omitempty"`
	CompanyName string             `json:"company_name,omitempty"`
	State       string             `json:"state"`
	Score       float64            `json:"score"`
	Percentage  float64            `json:"percentage"`
	Tier        string             `json:"tier,omitempty"`
	Grade       string             `json:"grade,omitempty"`
	LoadTimeMs  int64              `json:"load_time_ms"`
	Rendered    bool               `json:"rendered"`
	ReportPath  string             `json:"report_path,omitempty"`
	FailReason  *string            `json:"fail_reason,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Detail      *store.AuditDetail `json:"detail,omitempty"`
}

func toAuditDTOs(in []store.AuditRecord) []auditDTO {
	out := make([]auditDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toAuditDTO(rec))
	}
	return out
}

func toAuditDTO(rec store.AuditRecord) auditDTO {
	return auditDTO{
		ID:          rec.ID.String(),
		URL:         rec.URL,
		FinalURL:    rec.FinalURL,
		CompanyName: rec.CompanyName,
		State:       string(rec.State),
		Score:       rec.Score,
		Percentage:  rec.Percentage,
		Tier:        string(rec.Tier),
		Grade:       rec.Grade,
		LoadTimeMs:  rec.LoadTime.Milliseconds(),
		Rendered:    rec.Rendered,
		ReportPath:  rec.ReportPath,
		FailReason:  rec.FailReason,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}
