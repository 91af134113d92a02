package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/store"
)

// ingestResponse is the sync/async ingestion response envelope.
type ingestResponse struct {
	Success          bool               `json:"success"`
	Duplicate        bool               `json:"duplicate,omitempty"`
	Accepted         bool               `json:"accepted,omitempty"`
	RawID            string             `json:"raw_id,omitempty"`
	ProcessedCount   int                `json:"processed_count"`
	FailedCount      int                `json:"failed_count"`
	SilentFailures   int                `json:"silent_failures"`
	LossPercentage   float64            `json:"loss_percentage"`
	Status           string             `json:"status"`
	Errors           []apperr.ItemError `json:"errors,omitempty"`
	ProcessingTimeMs int64              `json:"processing_time_ms"`
}

// handleIngest implements POST /api/v1/ingest: read the body, hand it to
// the ingest handler, and translate the outcome into the response
// envelope. Authentication has already run in the authenticate middleware.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	limited := http.MaxBytesReader(w, r.Body, s.handler.MaxPayloadBytes()+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, apperr.CodePayloadTooLarge, "payload exceeds the configured size ceiling")
		return
	}

	start := time.Now()
	outcome, err := s.handler.Ingest(r.Context(), identity.UserID, body)
	if err != nil {
		code := apperr.CodeOf(err)
		writeError(w, statusForCode(code), code, err.Error())
		return
	}
	s.metrics.IngestDuration(time.Since(start))

	if outcome.Duplicate {
		writeJSON(w, http.StatusOK, ingestResponse{Success: true, Duplicate: true, RawID: outcome.RawID.String()})
		return
	}
	if outcome.Async {
		writeJSON(w, http.StatusAccepted, ingestResponse{
			Success: true, Accepted: true, RawID: outcome.RawID.String(),
			ProcessedCount: 0, Status: string(outcome.Status),
		})
		return
	}

	s.metrics.IngestCompleted(string(outcome.Status), outcome.ProcessedCount, outcome.FailedCount, outcome.SilentFailures)
	writeJSON(w, http.StatusOK, ingestResponse{
		Success:          outcome.Status == "processed",
		RawID:            outcome.RawID.String(),
		ProcessedCount:   outcome.ProcessedCount,
		FailedCount:      outcome.FailedCount,
		SilentFailures:   outcome.SilentFailures,
		LossPercentage:   outcome.LossPercentage,
		Status:           string(outcome.Status),
		Errors:           outcome.Errors,
		ProcessingTimeMs: outcome.ProcessingTimeMs,
	})
}

// handleHealth serves GET /health: liveness plus lightweight diagnostics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// handleLive serves GET /health/live: process-is-up only, no dependency
// checks, so a liveness probe never fails because the database is slow.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady serves GET /health/ready: liveness plus a store round trip,
// so a readiness probe can tell "process is up" apart from "process can
// actually serve requests."
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleStatus serves GET /api/v1/status: full diagnostics for the caller's
// own identity.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startedAt).String(),
		"identity": mustIdentity(r),
	})
}

// handleReprocess serves POST /api/v1/admin/reprocess/{id}, replaying a
// stored raw ingestion through parsing, validation, and the batch
// processor without a new body.
func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperr.CodeParseError, "raw ingestion id must be a UUID")
		return
	}

	outcome, err := s.handler.Reprocess(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, apperr.CodeInternalError, "no raw ingestion with that id")
			return
		}
		code := apperr.CodeOf(err)
		writeError(w, statusForCode(code), code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success:          outcome.Status == "processed",
		RawID:            outcome.RawID.String(),
		ProcessedCount:   outcome.ProcessedCount,
		FailedCount:      outcome.FailedCount,
		SilentFailures:   outcome.SilentFailures,
		LossPercentage:   outcome.LossPercentage,
		Status:           string(outcome.Status),
		Errors:           outcome.Errors,
		ProcessingTimeMs: outcome.ProcessingTimeMs,
	})
}

// handleListAttention serves GET /api/v1/admin/raw-ingestions, listing
// ingestions whose terminal status means some intended rows never made it
// to storage.
func (s *Server) handleListAttention(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListNeedingAttention(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apperr.CodeInternalError, "listing raw ingestions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"raw_ingestions": rows})
}

func mustIdentity(r *http.Request) map[string]any {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		return nil
	}
	return map[string]any{"user_id": identity.UserID, "key_id": identity.KeyID}
}
