package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/batch"
	"github.com/claude/ingestd/internal/model"
	"github.com/claude/ingestd/internal/statusbook"
	"github.com/claude/ingestd/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*store.RawIngestion
	duplicates map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[uuid.UUID]*store.RawIngestion{}, duplicates: map[string]uuid.UUID{}}
}

func (f *fakeStore) InsertPending(ctx context.Context, userID int, payloadHash string, payloadBody []byte) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.rows[id] = &store.RawIngestion{ID: id, UserID: userID, PayloadHash: payloadHash, PayloadBody: payloadBody, Status: "pending"}
	f.duplicates[payloadHash] = id
	return id, nil
}

func (f *fakeStore) FindDuplicate(ctx context.Context, userID int, payloadHash string, window time.Duration) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.duplicates[payloadHash]
	return id, ok, nil
}

func (f *fakeStore) Finalize(ctx context.Context, id uuid.UUID, decision statusbook.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	row.Status = string(decision.Status)
	row.ProcessingMeta = decision.Metadata
	return nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (store.RawIngestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return store.RawIngestion{}, store.ErrNotFound
	}
	return *row, nil
}

func (f *fakeStore) MarkReprocessed(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	row.ReprocessCount++
	row.Status = "pending"
	return nil
}

type fakeWriter struct {
	mu    sync.Mutex
	calls int
}

func (w *fakeWriter) WriteChunk(ctx context.Context, variant model.Variant, rows []model.Metric) (int, error) {
	w.mu.Lock()
	w.calls++
	w.mu.Unlock()
	return len(rows), nil
}

func testHandler(t *testing.T, st Store, w batch.Writer) *Handler {
	t.Helper()
	cfg := Config{
		MaxPayloadBytes:       1024 * 1024,
		AsyncThresholdMetrics: 1000,
		DuplicateWindow:       time.Hour,
		StoreTimeout:          time.Second,
		Batch:                 batch.Config{DefaultChunkCap: 1000, DefaultParamsRow: 8, MaxConcurrency: 4},
		LossPercentageThreshold:          1.0,
		SilentFailureParamLimitThreshold: 50,
	}
	log := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return New(st, w, cfg, log)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

const oneHeartRatePayload = `{"data":{"metrics":[{"name":"heart_rate","data":[{"date":"2025-09-15T12:00:00Z","Avg":72}]}]}}`

func TestIngestEmptyPayloadRejectedWithoutRawRow(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})

	_, err := h.Ingest(context.Background(), 1, []byte{})
	if apperr.CodeOf(err) != apperr.CodeEmptyPayload {
		t.Fatalf("expected empty_payload, got %v", err)
	}
	if len(st.rows) != 0 {
		t.Fatalf("expected no raw row created for an empty payload, got %d", len(st.rows))
	}
}

func TestIngestPayloadTooLargeRejected(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})
	h.cfg.MaxPayloadBytes = 4

	_, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if apperr.CodeOf(err) != apperr.CodePayloadTooLarge {
		t.Fatalf("expected payload_too_large, got %v", err)
	}
}

func TestIngestSingleHeartRateProcessesSynchronously(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})

	outcome, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Duplicate || outcome.Async {
		t.Fatalf("expected a synchronous, non-duplicate outcome, got %+v", outcome)
	}
	if outcome.ProcessedCount != 1 {
		t.Errorf("expected processed_count=1, got %d", outcome.ProcessedCount)
	}
	if outcome.Status != statusbook.StatusProcessed {
		t.Errorf("expected status=processed, got %s", outcome.Status)
	}
	row := st.rows[outcome.RawID]
	if row.Status != string(statusbook.StatusProcessed) {
		t.Errorf("expected raw row finalized as processed, got %s", row.Status)
	}
}

func TestIngestDuplicateResubmissionWithinWindow(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})

	first, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if err != nil {
		t.Fatalf("unexpected error on first ingest: %v", err)
	}

	second, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if err != nil {
		t.Fatalf("unexpected error on duplicate ingest: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected the second identical submission to be flagged a duplicate")
	}
	if second.RawID != first.RawID {
		t.Errorf("expected the duplicate to point at the original raw id")
	}
	if len(st.rows) != 1 {
		t.Errorf("expected no new raw row for a duplicate submission, got %d rows", len(st.rows))
	}
}

func TestIngestLargeMetricCountDispatchesAsync(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})
	h.cfg.AsyncThresholdMetrics = 0

	outcome, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Async {
		t.Fatalf("expected an async outcome once the threshold is exceeded")
	}
	if outcome.ProcessedCount != 0 {
		t.Errorf("async acceptance must not claim any rows processed yet, got %d", outcome.ProcessedCount)
	}
	if outcome.Status != "queued" {
		t.Errorf("expected status=queued, got %s", outcome.Status)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st.mu.Lock()
		status := st.rows[outcome.RawID].Status
		st.mu.Unlock()
		if status != "pending" {
			if status != string(statusbook.StatusProcessed) {
				t.Fatalf("expected the async worker to finalize as processed, got %s", status)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("async finalize did not complete in time")
}

// With a chunk cap correctly sized under the bound-parameter ceiling, a
// large Activity batch must chunk across multiple writes and still account
// for every row — the ingest-level half of the parameter-limit scenario
// whose config-level half lives in internal/config/config_test.go.
func TestIngestLargeActivityBatchWritesEveryRowAcrossChunks(t *testing.T) {
	st := newFakeStore()
	w := &fakeWriter{}
	h := testHandler(t, st, w)
	h.cfg.AsyncThresholdMetrics = 1_000_000
	h.cfg.Batch.ChunkCaps = map[model.Variant]int{model.VariantActivity: 1450}

	const n = 50000
	base := time.Date(1880, 1, 1, 0, 0, 0, 0, time.UTC)
	var b strings.Builder
	b.WriteString(`{"data":{"metrics":[{"name":"step_count","data":[`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		day := base.AddDate(0, 0, i)
		fmt.Fprintf(&b, `{"date":%q,"qty":100}`, day.Format(time.RFC3339))
	}
	b.WriteString(`]}]}}`)

	outcome, err := h.Ingest(context.Background(), 1, []byte(b.String()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.ProcessedCount != n {
		t.Errorf("expected processed_count=%d, got %d", n, outcome.ProcessedCount)
	}
	if outcome.FailedCount != 0 {
		t.Errorf("expected failed_count=0, got %d", outcome.FailedCount)
	}
	if outcome.Status != statusbook.StatusProcessed {
		t.Errorf("expected status=processed, got %s", outcome.Status)
	}
	if w.calls < 2 {
		t.Errorf("expected the chunk cap to split %d rows across multiple writer calls, got %d", n, w.calls)
	}
}

func TestReprocessReplaysStoredBody(t *testing.T) {
	st := newFakeStore()
	h := testHandler(t, st, &fakeWriter{})

	first, err := h.Ingest(context.Background(), 1, []byte(oneHeartRatePayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := h.Reprocess(context.Background(), first.RawID)
	if err != nil {
		t.Fatalf("unexpected reprocess error: %v", err)
	}
	if outcome.ProcessedCount != 1 {
		t.Errorf("expected the reprocessed payload to write 1 row again, got %d", outcome.ProcessedCount)
	}
	if st.rows[first.RawID].ReprocessCount != 1 {
		t.Errorf("expected reprocess_count to be bumped to 1, got %d", st.rows[first.RawID].ReprocessCount)
	}
}
