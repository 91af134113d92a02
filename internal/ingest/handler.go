// Package ingest orchestrates one payload through the full pipeline:
// duplicate detection, persistence of the raw row, parsing, validation,
// batch writing, and status bookkeeping. It knows nothing about HTTP —
// internal/httpapi binds this to chi routes.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/batch"
	"github.com/claude/ingestd/internal/model"
	"github.com/claude/ingestd/internal/parse"
	"github.com/claude/ingestd/internal/statusbook"
	"github.com/claude/ingestd/internal/store"
	"github.com/claude/ingestd/internal/validate"
)

// Store is the persistence surface Handler needs from internal/store,
// narrowed to an interface so tests can substitute a fake.
type Store interface {
	InsertPending(ctx context.Context, userID int, payloadHash string, payloadBody []byte) (uuid.UUID, error)
	FindDuplicate(ctx context.Context, userID int, payloadHash string, window time.Duration) (uuid.UUID, bool, error)
	Finalize(ctx context.Context, id uuid.UUID, decision statusbook.Decision) error
	GetByID(ctx context.Context, id uuid.UUID) (store.RawIngestion, error)
	MarkReprocessed(ctx context.Context, id uuid.UUID) error
}

// Config bounds the handler's behavior; every field maps directly to a
// recognized configuration option.
type Config struct {
	MaxPayloadBytes       int64
	AsyncThresholdMetrics int
	DuplicateWindow       time.Duration
	StoreTimeout          time.Duration
	Batch                 batch.Config

	LossPercentageThreshold           float64
	SilentFailureParamLimitThreshold int
}

// Handler orchestrates the full ingestion sequence for one payload.
type Handler struct {
	store  Store
	writer batch.Writer
	cfg    Config
	log    *slog.Logger
	clock  func() time.Time
}

// New builds a Handler. writer is the batch.Writer the batch processor
// writes variant rows through — in production, *store.DB.
func New(store Store, writer batch.Writer, cfg Config, log *slog.Logger) *Handler {
	return &Handler{store: store, writer: writer, cfg: cfg, log: log, clock: time.Now}
}

// MaxPayloadBytes exposes the configured payload ceiling so internal/httpapi
// can bound its body read with http.MaxBytesReader before handing bytes to
// Ingest, instead of duplicating the limit in two places.
func (h *Handler) MaxPayloadBytes() int64 {
	return h.cfg.MaxPayloadBytes
}

// Outcome is what internal/httpapi renders into an HTTP response: either a
// duplicate short-circuit, an async acceptance, or a completed synchronous
// result, never more than one of the three.
type Outcome struct {
	Duplicate bool
	Async     bool
	RawID     uuid.UUID

	ProcessedCount   int
	FailedCount      int
	SilentFailures   int
	LossPercentage   float64
	Status           statusbook.Status
	Errors           []apperr.ItemError
	ProcessingTimeMs int64
}

// Ingest runs the size check, duplicate detection, parsing, validation,
// and batch-write sequence for one payload. The caller (internal/httpapi)
// has already authenticated the request before calling this — Handler has
// no opinion on credentials, only on the authenticated userID it's handed.
func (h *Handler) Ingest(ctx context.Context, userID int, body []byte) (Outcome, error) {
	// Payload size ceiling.
	if int64(len(body)) > h.cfg.MaxPayloadBytes {
		return Outcome{}, apperr.New(apperr.CodePayloadTooLarge,
			fmt.Sprintf("payload of %d bytes exceeds the %d byte ceiling", len(body), h.cfg.MaxPayloadBytes))
	}

	// Step 3: hash, reject empty without creating a raw row.
	if len(body) == 0 {
		return Outcome{}, apperr.New(apperr.CodeEmptyPayload, "payload body is empty")
	}
	var probe struct {
		Data *struct {
			Metrics  []json.RawMessage `json:"metrics"`
			Workouts []json.RawMessage `json:"workouts"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &probe) == nil && probe.Data != nil &&
		len(probe.Data.Metrics) == 0 && len(probe.Data.Workouts) == 0 {
		return Outcome{}, apperr.New(apperr.CodeEmptyPayload, "payload contains no metrics or workouts")
	}
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])

	// Step 4: duplicate detection within the configured window.
	dupCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	dupID, isDup, err := h.store.FindDuplicate(dupCtx, userID, hash, h.cfg.DuplicateWindow)
	cancel()
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeStoreTransient, "checking for duplicate payload", err)
	}
	if isDup {
		return Outcome{Duplicate: true, RawID: dupID}, nil
	}

	// Step 5: persist pending raw row.
	insertCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	rawID, err := h.store.InsertPending(insertCtx, userID, hash, body)
	cancel()
	if err != nil {
		return Outcome{}, apperr.Wrap(apperr.CodeStoreTransient, "persisting raw ingestion", err)
	}

	// Step 6: parse. Total parse failure finalizes the row as error.
	start := h.clock()
	parsed, err := parse.Parse(body, userID, start)
	if err != nil {
		h.finalizeParseFailure(ctx, rawID, err)
		return Outcome{}, apperr.Wrap(apperr.CodeParseError, "parsing payload", err)
	}

	metrics, itemErrors, rejected := validateAll(parsed)

	// Step 7: dispatch sync or async.
	if len(metrics) > h.cfg.AsyncThresholdMetrics {
		go h.processAndFinalize(context.Background(), rawID, metrics, itemErrors, rejected, start)
		return Outcome{
			Async:          true,
			RawID:          rawID,
			ProcessedCount: 0,
			Status:         "queued",
		}, nil
	}

	outcome := h.processAndFinalize(ctx, rawID, metrics, itemErrors, rejected, start)
	outcome.RawID = rawID
	return outcome, nil
}

// validateAll applies validate.Metric to every parsed metric, splitting the
// input into metrics clean enough to batch-write and the accumulated
// itemized errors (parse-time and validate-time) for the response. rejected
// counts every sample that never made it into clean — a parse-time item
// error or a metric with at least one validation violation — so callers can
// feed it into the batch accounting alongside write failures: a sample
// rejected here is just as failed as one rejected by the store.
func validateAll(parsed parse.Result) (clean []model.Metric, itemErrors []apperr.ItemError, rejected int) {
	clean = make([]model.Metric, 0, len(parsed.Metrics))
	itemErrors = append([]apperr.ItemError{}, parsed.Errors...)
	rejected = len(parsed.Errors)
	for i, m := range parsed.Metrics {
		violations := validate.Metric(m)
		if len(violations) == 0 {
			clean = append(clean, m)
			continue
		}
		rejected++
		for _, v := range violations {
			itemErrors = append(itemErrors, apperr.NewItemError(string(m.Variant()), i, v.Rule, v.Message))
		}
	}
	return clean, itemErrors, rejected
}

// processAndFinalize runs the batch processor and status bookkeeping, then
// finalizes the raw row. It is the single call site shared by both the
// synchronous and asynchronous dispatch paths so they can never diverge in
// how the final status is computed. rejected is the count of samples that
// were already rejected by parsing or validation before reaching the batch
// processor; it is folded into Input and Failed so those samples cannot
// vanish from the accounting the way res.Failed alone (store-level write
// failures only) would let them.
func (h *Handler) processAndFinalize(ctx context.Context, rawID uuid.UUID, metrics []model.Metric, itemErrors []apperr.ItemError, rejected int, start time.Time) Outcome {
	res := batch.Process(ctx, h.writer, h.cfg.Batch, metrics)
	res.ItemErrors = append(itemErrors, res.ItemErrors...)

	decision := statusbook.Decide(statusbook.Counts{
		Input:                             len(metrics) + rejected,
		Written:                           res.Written,
		Failed:                            res.Failed + rejected,
		DeduplicatedAway:                  res.DeduplicatedAway,
		HasParameterLimitError:            hasParameterLimitError(res.ItemErrors),
		LossPercentageThreshold:           h.cfg.LossPercentageThreshold,
		SilentFailureParamLimitThreshold:  h.cfg.SilentFailureParamLimitThreshold,
	})
	decision.Metadata["processing_time_ms"] = time.Since(start).Milliseconds()

	if decision.Status == statusbook.StatusError || decision.Status == statusbook.StatusPartialSuccess {
		h.log.Error("ingestion finalized with residue",
			"raw_id", rawID, "status", decision.Status,
			"expected", decision.Metadata["expected"], "written", decision.Metadata["written"],
			"failed", decision.Metadata["failed"], "silent", decision.Metadata["silent"],
			"loss_pct", decision.Metadata["loss_pct"])
	}

	finalizeCtx, cancel := context.WithTimeout(context.Background(), h.cfg.StoreTimeout)
	defer cancel()
	if err := h.store.Finalize(finalizeCtx, rawID, decision); err != nil {
		h.log.Error("failed to finalize raw ingestion status", "raw_id", rawID, "error", err)
	}

	return Outcome{
		ProcessedCount:   res.Written,
		FailedCount:      res.Failed + rejected,
		SilentFailures:   intMeta(decision.Metadata, "silent"),
		LossPercentage:   floatMeta(decision.Metadata, "loss_pct"),
		Status:           decision.Status,
		Errors:           res.ItemErrors,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

// finalizeParseFailure records a total parse failure directly, skipping the
// batch processor entirely since there is nothing parsed to write.
func (h *Handler) finalizeParseFailure(ctx context.Context, rawID uuid.UUID, cause error) {
	decision := statusbook.Decision{
		Status: statusbook.StatusError,
		Metadata: map[string]any{
			"expected": 0, "written": 0, "failed": 0, "silent": 0,
			"error": cause.Error(),
		},
	}
	h.log.Error("ingestion finalized: total parse failure", "raw_id", rawID, "error", cause)
	finalizeCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	defer cancel()
	if err := h.store.Finalize(finalizeCtx, rawID, decision); err != nil {
		h.log.Error("failed to finalize raw ingestion after parse failure", "raw_id", rawID, "error", err)
	}
}

func hasParameterLimitError(errs []apperr.ItemError) bool {
	for _, e := range errs {
		if e.Rule == string(apperr.CodeParameterLimitExceeded) {
			return true
		}
	}
	return false
}

func intMeta(meta map[string]any, key string) int {
	if n, ok := meta[key].(int); ok {
		return n
	}
	return 0
}

func floatMeta(meta map[string]any, key string) float64 {
	if f, ok := meta[key].(float64); ok {
		return f
	}
	return 0
}

// Reprocess replays a previously persisted raw ingestion through parsing,
// validation, and the batch processor again, without requiring the client
// to re-POST the body. It never touches payload_hash, so duplicate
// detection against future submissions of the same bytes is unaffected.
func (h *Handler) Reprocess(ctx context.Context, rawID uuid.UUID) (Outcome, error) {
	getCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	row, err := h.store.GetByID(getCtx, rawID)
	cancel()
	if err != nil {
		return Outcome{}, err
	}

	markCtx, cancel := context.WithTimeout(ctx, h.cfg.StoreTimeout)
	err = h.store.MarkReprocessed(markCtx, rawID)
	cancel()
	if err != nil {
		return Outcome{}, err
	}

	start := h.clock()
	parsed, err := parse.Parse(row.PayloadBody, row.UserID, start)
	if err != nil {
		h.finalizeParseFailure(ctx, rawID, err)
		return Outcome{}, apperr.Wrap(apperr.CodeParseError, "reparsing stored payload", err)
	}
	metrics, itemErrors, rejected := validateAll(parsed)

	outcome := h.processAndFinalize(ctx, rawID, metrics, itemErrors, rejected, start)
	outcome.RawID = rawID
	return outcome, nil
}
