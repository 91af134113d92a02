// Package batch turns a flat slice of parsed model.Metric values into
// written rows: group by variant, drop in-batch duplicates, chunk each
// variant's rows to stay under Postgres's bound-parameter ceiling, write
// the chunks concurrently with bounded fan-out, retry transient failures
// with backoff, and produce an accounting that must always balance.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/model"
)

// maxBoundParameters is Postgres's hard ceiling on parameters in one
// statement. Every variant's chunk size must be derived from this, never
// hard-coded independently per table.
const maxBoundParameters = 65535

// safetyMargin leaves headroom below the ceiling for the one or two extra
// bound parameters a WHERE/ON CONFLICT clause occasionally adds.
const safetyMargin = 8

// Writer persists one variant's rows and reports how many were actually
// written (duplicates against existing rows are silently absorbed by
// ON CONFLICT DO NOTHING and must be reflected in the returned count, not
// treated as an error).
type Writer interface {
	WriteChunk(ctx context.Context, variant model.Variant, rows []model.Metric) (written int, err error)
}

// Config bounds chunk sizes, concurrency, and retry behavior. ChunkCaps is
// keyed by variant; a variant missing from the map falls back to
// DefaultChunkCap.
type Config struct {
	ChunkCaps        map[model.Variant]int
	DefaultChunkCap  int
	ParamsPerRow     map[model.Variant]int
	DefaultParamsRow int
	MaxConcurrency   int64
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
}

// ParamsPerRowFor returns how many bound parameters one row of this variant
// costs, used to derive the Postgres-ceiling-respecting chunk cap.
func (c Config) ParamsPerRowFor(v model.Variant) int {
	if n, ok := c.ParamsPerRow[v]; ok && n > 0 {
		return n
	}
	if c.DefaultParamsRow > 0 {
		return c.DefaultParamsRow
	}
	return 8
}

// ChunkCapFor derives the effective chunk size for a variant: the smaller
// of its configured cap and what the bound-parameter ceiling allows, minus
// a safety margin. Every caller must go through this rather than hard-code
// a chunk size.
func (c Config) ChunkCapFor(v model.Variant) int {
	configured := c.DefaultChunkCap
	if n, ok := c.ChunkCaps[v]; ok && n > 0 {
		configured = n
	}
	paramLimit := maxBoundParameters/c.ParamsPerRowFor(v) - safetyMargin
	if paramLimit < 1 {
		paramLimit = 1
	}
	if configured <= 0 || configured > paramLimit {
		return paramLimit
	}
	return configured
}

// DefaultParamsPerRow gives the bound-parameter width of each variant's
// insert row, mirroring the column lists in internal/store's variantSpecs.
// internal/store/variants_test.go cross-checks that the two never drift
// apart. config.Load uses this to validate configured chunk caps at boot.
func DefaultParamsPerRow() map[model.Variant]int {
	return map[model.Variant]int{
		model.VariantHeartRate:          8,
		model.VariantBloodPressure:      6,
		model.VariantSleep:              6,
		model.VariantActivity:           14,
		model.VariantWorkout:            9,
		model.VariantBodyMeasurement:    11,
		model.VariantEnvironmental:      7,
		model.VariantAudioExposure:      6,
		model.VariantRespiratory:        5,
		model.VariantBloodGlucose:       5,
		model.VariantMetabolic:          6,
		model.VariantNutrition:          6,
		model.VariantMindfulness:        4,
		model.VariantMentalHealth:       7,
		model.VariantSymptom:            5,
		model.VariantHygiene:            5,
		model.VariantSafetyEvent:        4,
		model.VariantTemperature:        5,
		model.VariantMobility:           6,
		model.VariantReproductiveHealth: 5,
	}
}

// ValidateChunkCaps aborts boot when any configured chunk cap exceeds what
// the 65,535 bound-parameter ceiling allows for that variant's row width.
// ChunkCapFor silently clamps at request time, which is the right behavior
// for an unconfigured default, but a cap the operator explicitly set above
// the ceiling is a configuration_invalid startup error, not something to
// quietly downsize.
func ValidateChunkCaps(cfg Config) error {
	for v, configured := range cfg.ChunkCaps {
		if configured <= 0 {
			continue
		}
		paramLimit := maxBoundParameters/cfg.ParamsPerRowFor(v) - safetyMargin
		if configured > paramLimit {
			return fmt.Errorf("configuration_invalid: chunk cap %d for variant %s exceeds the derived ceiling of %d (65535/%d - %d margin)",
				configured, v, paramLimit, cfg.ParamsPerRowFor(v), safetyMargin)
		}
	}
	return nil
}

// Result is the accounting for one batch run. The identity
// Written + Failed + DeduplicatedAway == Input must always hold; tests in
// this package assert it directly.
type Result struct {
	Input            int
	Written          int
	Failed           int
	DeduplicatedAway int
	ItemErrors       []apperr.ItemError
}

// Process groups, dedups, chunks, and writes metrics through w, honoring
// ctx cancellation across the whole pipeline.
func Process(ctx context.Context, w Writer, cfg Config, metrics []model.Metric) Result {
	res := Result{Input: len(metrics)}
	if len(metrics) == 0 {
		return res
	}

	grouped := groupByVariant(metrics)
	deduped := make(map[model.Variant][]model.Metric, len(grouped))
	for v, rows := range grouped {
		kept, dropped := dedup(rows)
		deduped[v] = kept
		res.DeduplicatedAway += dropped
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	sem := semaphore.NewWeighted(maxConcurrency)

	type chunkOutcome struct {
		written int
		failed  int
		errs    []apperr.ItemError
	}
	outcomes := make(chan chunkOutcome)
	pending := 0

	for v, rows := range deduped {
		cap := cfg.ChunkCapFor(v)
		for _, chunk := range splitIntoChunks(rows, cap) {
			pending++
			go func(variant model.Variant, chunk []model.Metric) {
				if err := sem.Acquire(ctx, 1); err != nil {
					outcomes <- chunkOutcome{
						failed: len(chunk),
						errs:   []apperr.ItemError{apperr.NewItemError(string(variant), 0, "cancelled", err.Error())},
					}
					return
				}
				defer sem.Release(1)

				written, err := writeWithRetry(ctx, w, cfg, variant, chunk)
				if err != nil {
					outcomes <- chunkOutcome{
						written: written,
						failed:  len(chunk) - written,
						errs:    []apperr.ItemError{apperr.NewItemError(string(variant), 0, string(apperr.CodeOf(err)), err.Error())},
					}
					return
				}
				outcomes <- chunkOutcome{written: written}
			}(v, chunk)
		}
	}

	for i := 0; i < pending; i++ {
		o := <-outcomes
		res.Written += o.written
		res.Failed += o.failed
		res.ItemErrors = append(res.ItemErrors, o.errs...)
	}

	return res
}

// groupByVariant partitions metrics by their concrete variant, as reported
// by each metric's Variant method. TestGroupByVariantIsExhaustive walks
// model.AllVariants() to make sure every variant is grouped.
func groupByVariant(metrics []model.Metric) map[model.Variant][]model.Metric {
	out := make(map[model.Variant][]model.Metric)
	for _, m := range metrics {
		out[m.Variant()] = append(out[m.Variant()], m)
	}
	return out
}

// dedup keeps the last occurrence of each DedupKey within the batch
// (last-write-wins) and returns how many rows were dropped as in-batch
// duplicates. This runs before the store's ON CONFLICT DO NOTHING, which
// remains the second, durable line of defense against duplicates across
// batches.
func dedup(rows []model.Metric) (kept []model.Metric, dropped int) {
	latest := make(map[string]int, len(rows))
	order := make([]string, 0, len(rows))
	for i, m := range rows {
		key := m.DedupKey()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = i
	}
	kept = make([]model.Metric, 0, len(order))
	for _, key := range order {
		kept = append(kept, rows[latest[key]])
	}
	dropped = len(rows) - len(kept)
	return kept, dropped
}

func splitIntoChunks(rows []model.Metric, cap int) [][]model.Metric {
	if cap <= 0 {
		cap = len(rows)
	}
	var out [][]model.Metric
	for i := 0; i < len(rows); i += cap {
		end := i + cap
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

// writeWithRetry retries transient store errors with exponential backoff
// and jitter, bounded at cfg.MaxAttempts. parameter_limit_exceeded is
// classified non-retryable: retrying a chunk that's already too big for
// Postgres's ceiling would fail identically every time.
func writeWithRetry(ctx context.Context, w Writer, cfg Config, variant model.Variant, chunk []model.Metric) (int, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		written, err := w.WriteChunk(ctx, variant, chunk)
		if err == nil {
			return written, nil
		}
		lastErr = err

		if apperr.CodeOf(err) == apperr.CodeParameterLimitExceeded {
			return written, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return written, err
		}
		if attempt == maxAttempts-1 {
			break
		}

		backoff := time.Duration(math.Min(float64(maxBackoff), float64(initial)*math.Pow(2, float64(attempt))))
		jittered := time.Duration(rand.Int63n(int64(backoff) + 1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
	return 0, fmt.Errorf("writing %s chunk after %d attempts: %w", variant, maxAttempts, lastErr)
}
