package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/ingestd/internal/statusbook"
)

// RawIngestion is the durable record of one inbound payload: the unparsed
// body's hash for duplicate detection, a terminal status once processing
// finishes, and the accounting metadata behind that status. This row is the
// durable handle the ingestion API hands back to the caller — it exists
// before parsing starts so an async ingestion has something to point at
// immediately.
type RawIngestion struct {
	ID             uuid.UUID
	UserID         int
	ReceivedAt     time.Time
	PayloadHash    string
	PayloadBody    []byte
	Status         string
	ProcessingMeta map[string]any
	ReprocessCount int
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("raw ingestion not found")

// InsertPending records a newly-received payload as pending, before it has
// been parsed or written anywhere else. The body itself is retained
// alongside its hash so the admin reprocess-by-id endpoint can replay a row
// without the client re-sending it. Returns the generated ID the caller
// uses as the durable handle for async responses.
func (db *DB) InsertPending(ctx context.Context, userID int, payloadHash string, payloadBody []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO raw_ingestions (id, user_id, received_at, payload_hash, payload_body, status)
		 VALUES ($1, $2, now(), $3, $4, 'pending')`,
		id, userID, payloadHash, payloadBody)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting pending raw ingestion: %w", err)
	}
	return id, nil
}

// FindDuplicate looks for an existing ingestion from the same user with the
// same payload hash received within window. Returns (id, true, nil) on a
// hit, (uuid.Nil, false, nil) on a clean miss.
func (db *DB) FindDuplicate(ctx context.Context, userID int, payloadHash string, window time.Duration) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := db.Pool.QueryRow(ctx,
		`SELECT id FROM raw_ingestions
		 WHERE user_id = $1 AND payload_hash = $2 AND received_at >= $3
		 ORDER BY received_at DESC LIMIT 1`,
		userID, payloadHash, time.Now().Add(-window)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("looking up duplicate raw ingestion: %w", err)
	}
	return id, true, nil
}

// Finalize writes the terminal status.Decision computed by statusbook for
// this ingestion. processing_metadata is stored as-is for later inspection
// by the admin reprocessing endpoints.
func (db *DB) Finalize(ctx context.Context, id uuid.UUID, decision statusbook.Decision) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE raw_ingestions SET status = $1, processing_metadata = $2, processed_at = now() WHERE id = $3`,
		string(decision.Status), decision.Metadata, id)
	if err != nil {
		return fmt.Errorf("finalizing raw ingestion %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches one raw ingestion's current record.
func (db *DB) GetByID(ctx context.Context, id uuid.UUID) (RawIngestion, error) {
	var r RawIngestion
	err := db.Pool.QueryRow(ctx,
		`SELECT id, user_id, received_at, payload_hash, payload_body, status,
		        COALESCE(processing_metadata, '{}'::jsonb), reprocess_count
		 FROM raw_ingestions WHERE id = $1`, id).
		Scan(&r.ID, &r.UserID, &r.ReceivedAt, &r.PayloadHash, &r.PayloadBody, &r.Status, &r.ProcessingMeta, &r.ReprocessCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return RawIngestion{}, ErrNotFound
	}
	if err != nil {
		return RawIngestion{}, fmt.Errorf("fetching raw ingestion %s: %w", id, err)
	}
	return r, nil
}

// MarkReprocessed bumps reprocess_count, resets status to pending and
// clears processed_at, used by the admin reprocess-by-id endpoint. It never
// touches payload_hash: the original body is what gets reprocessed, not a
// new one.
func (db *DB) MarkReprocessed(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE raw_ingestions SET status = 'pending', processed_at = NULL, reprocess_count = reprocess_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking raw ingestion %s reprocessed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNeedingAttention returns ingestions whose terminal status is
// statusbook.StatusPartialSuccess or statusbook.StatusError — the two
// outcomes that mean some fraction of the payload never made it to
// storage. A "pending"/"processing" row is still in flight, not yet
// actionable, and "processed" needs no operator attention at all.
func (db *DB) ListNeedingAttention(ctx context.Context, limit int) ([]RawIngestion, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, user_id, received_at, payload_hash, status,
		        COALESCE(processing_metadata, '{}'::jsonb), reprocess_count
		 FROM raw_ingestions
		 WHERE status IN ($1, $2)
		 ORDER BY received_at DESC LIMIT $3`,
		string(statusbook.StatusPartialSuccess), string(statusbook.StatusError), limit)
	if err != nil {
		return nil, fmt.Errorf("listing raw ingestions needing attention: %w", err)
	}
	defer rows.Close()

	var out []RawIngestion
	for rows.Next() {
		var r RawIngestion
		if err := rows.Scan(&r.ID, &r.UserID, &r.ReceivedAt, &r.PayloadHash, &r.Status, &r.ProcessingMeta, &r.ReprocessCount); err != nil {
			return nil, fmt.Errorf("scanning raw ingestion: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
