package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/model"
)

type fakeWriter struct {
	mu       sync.Mutex
	calls    int
	failN    int // fail the first failN calls with a transient error
	permFail bool
}

func (f *fakeWriter) WriteChunk(ctx context.Context, variant model.Variant, rows []model.Metric) (int, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.permFail {
		return 0, apperr.New(apperr.CodeParameterLimitExceeded, "too many rows")
	}
	if call <= f.failN {
		return 0, apperr.New(apperr.CodeStoreTransient, "connection reset")
	}
	return len(rows), nil
}

func heartRates(userID, n int) []model.Metric {
	out := make([]model.Metric, 0, n)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, model.HeartRate{
			Sample: model.Sample{UserID: userID, RecordedAt: base.Add(time.Duration(i) * time.Minute)},
			BPM:    float64(60 + i%20),
		})
	}
	return out
}

func TestProcessAccountingIdentityHolds(t *testing.T) {
	metrics := heartRates(1, 50)
	w := &fakeWriter{}
	cfg := Config{DefaultChunkCap: 1000, DefaultParamsRow: 4, MaxConcurrency: 4}

	res := Process(context.Background(), w, cfg, metrics)

	if got := res.Written + res.Failed + res.DeduplicatedAway; got != res.Input {
		t.Fatalf("accounting identity broken: written(%d)+failed(%d)+deduped(%d) != input(%d)",
			res.Written, res.Failed, res.DeduplicatedAway, res.Input)
	}
	if res.Written != 50 {
		t.Errorf("expected all 50 rows written, got %d", res.Written)
	}
}

func TestProcessDedupsWithinBatch(t *testing.T) {
	ts := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	metrics := []model.Metric{
		model.HeartRate{Sample: model.Sample{UserID: 1, RecordedAt: ts}, BPM: 60},
		model.HeartRate{Sample: model.Sample{UserID: 1, RecordedAt: ts}, BPM: 65}, // same dedup key, wins
	}
	w := &fakeWriter{}
	cfg := Config{DefaultChunkCap: 1000, DefaultParamsRow: 4}

	res := Process(context.Background(), w, cfg, metrics)

	if res.DeduplicatedAway != 1 {
		t.Fatalf("expected 1 in-batch duplicate dropped, got %d", res.DeduplicatedAway)
	}
	if res.Written != 1 {
		t.Fatalf("expected 1 row written, got %d", res.Written)
	}
}

func TestChunkCapForRespectsParameterCeiling(t *testing.T) {
	cfg := Config{
		ChunkCaps:        map[model.Variant]int{model.VariantWorkout: 100000},
		ParamsPerRow:     map[model.Variant]int{model.VariantWorkout: 8},
		DefaultParamsRow: 4,
	}
	cap := cfg.ChunkCapFor(model.VariantWorkout)
	if cap*8 > maxBoundParameters {
		t.Fatalf("chunk cap %d exceeds the bound-parameter ceiling for 8 params/row", cap)
	}
	if cap >= 100000 {
		t.Fatalf("expected the ceiling to override the oversized configured cap, got %d", cap)
	}
}

func TestWriteWithRetryRetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failN: 2}
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	written, err := writeWithRetry(context.Background(), w, cfg, model.VariantHeartRate, heartRates(1, 3))
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if written != 3 {
		t.Errorf("expected 3 rows written, got %d", written)
	}
}

func TestWriteWithRetryDoesNotRetryParameterLimitExceeded(t *testing.T) {
	w := &fakeWriter{permFail: true}
	cfg := Config{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	_, err := writeWithRetry(context.Background(), w, cfg, model.VariantHeartRate, heartRates(1, 3))
	if err == nil {
		t.Fatal("expected an error")
	}
	if apperr.CodeOf(err) != apperr.CodeParameterLimitExceeded {
		t.Fatalf("expected parameter_limit_exceeded, got %s", apperr.CodeOf(err))
	}
	if w.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", w.calls)
	}
}

func TestGroupByVariantIsExhaustive(t *testing.T) {
	for _, v := range model.AllVariants() {
		m := zeroValueFor(v)
		grouped := groupByVariant([]model.Metric{m})
		if _, ok := grouped[v]; !ok {
			t.Fatalf("groupByVariant produced no bucket for variant %s", v)
		}
	}
}

func zeroValueFor(v model.Variant) model.Metric {
	now := time.Now()
	switch v {
	case model.VariantHeartRate:
		return model.HeartRate{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantBloodPressure:
		return model.BloodPressure{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantSleep:
		return model.Sleep{IntervalSample: model.IntervalSample{UserID: 1, Start: now, End: now.Add(time.Hour)}}
	case model.VariantActivity:
		return model.Activity{Sample: model.Sample{UserID: 1, RecordedAt: now}, Date: now}
	case model.VariantWorkout:
		return model.Workout{IntervalSample: model.IntervalSample{UserID: 1, Start: now, End: now.Add(time.Hour)}}
	case model.VariantBodyMeasurement:
		return model.BodyMeasurement{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantEnvironmental:
		return model.Environmental{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantAudioExposure:
		return model.AudioExposure{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantRespiratory:
		return model.Respiratory{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantBloodGlucose:
		return model.BloodGlucose{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantMetabolic:
		return model.Metabolic{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantNutrition:
		return model.Nutrition{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantMindfulness:
		return model.Mindfulness{IntervalSample: model.IntervalSample{UserID: 1, Start: now, End: now.Add(time.Hour)}}
	case model.VariantMentalHealth:
		return model.MentalHealth{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantSymptom:
		return model.Symptom{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantHygiene:
		return model.Hygiene{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantSafetyEvent:
		return model.SafetyEvent{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantTemperature:
		return model.Temperature{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantMobility:
		return model.Mobility{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	case model.VariantReproductiveHealth:
		return model.ReproductiveHealth{Sample: model.Sample{UserID: 1, RecordedAt: now}}
	default:
		return nil
	}
}
