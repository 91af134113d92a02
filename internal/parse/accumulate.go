package parse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude/ingestd/internal/model"
)

// activityAccumulator merges the many independent per-field counters
// HealthKit reports (steps, distance, energy, ...) into one Activity row
// per user per day, keyed the same way model.Activity.DedupKey groups them.
type activityAccumulator struct {
	rows map[string]*model.Activity
}

func newActivityAccumulator() *activityAccumulator {
	return &activityAccumulator{rows: make(map[string]*model.Activity)}
}

func (a *activityAccumulator) add(userID int, raw json.RawMessage, field string, now time.Time) error {
	var pt iosQtyPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return fmt.Errorf("decoding activity point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.Date, now)
	if err != nil {
		return err
	}
	day := recordedAt.UTC().Truncate(24 * time.Hour)
	key := fmt.Sprintf("%d|%s", userID, day.Format("2006-01-02"))

	row, ok := a.rows[key]
	if !ok {
		row = &model.Activity{
			Sample: model.Sample{UserID: userID, RecordedAt: day, Source: pt.Source},
			Date:   day,
		}
		a.rows[key] = row
	}

	switch field {
	case "steps":
		row.Steps += pt.Qty
	case "distance_walking":
		row.DistanceWalking += pt.Qty
	case "distance_cycling":
		row.DistanceCycling += pt.Qty
	case "distance_swimming":
		row.DistanceSwimming += pt.Qty
	case "distance_wheelchair":
		row.DistanceWheelchair += pt.Qty
	case "flights":
		row.Flights += pt.Qty
	case "active_energy":
		row.ActiveEnergy += pt.Qty
	case "basal_energy":
		row.BasalEnergy += pt.Qty
	case "exercise_minutes":
		row.ExerciseMinutes += pt.Qty
	case "stand_minutes":
		row.StandMinutes += pt.Qty
	case "move_minutes":
		row.MoveMinutes += pt.Qty
	default:
		return fmt.Errorf("unrecognized activity field %q", field)
	}
	return nil
}

func (a *activityAccumulator) finish() []model.Metric {
	out := make([]model.Metric, 0, len(a.rows))
	for _, row := range a.rows {
		out = append(out, *row)
	}
	return out
}

// sleepAccumulator merges HealthKit's per-stage sleep segments into one
// Sleep row per night, or accepts a source's pre-aggregated nightly total
// directly. Each segment is keyed by the UTC calendar date of its own
// start, so segments of one night that start on both sides of midnight UTC
// end up in two Sleep rows.
type sleepAccumulator struct {
	rows map[string]*model.Sleep
}

func newSleepAccumulator() *sleepAccumulator {
	return &sleepAccumulator{rows: make(map[string]*model.Sleep)}
}

func (s *sleepAccumulator) addStage(userID int, raw json.RawMessage, now time.Time) error {
	var pt iosSleepStagePoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return fmt.Errorf("decoding sleep stage point: %w", err)
	}
	start, err := ParseTimestamp(pt.StartDate, now)
	if err != nil {
		return fmt.Errorf("sleep stage start: %w", err)
	}
	end, err := ParseTimestamp(pt.EndDate, now)
	if err != nil {
		return fmt.Errorf("sleep stage end: %w", err)
	}

	key := fmt.Sprintf("%d|%s", userID, start.UTC().Format("2006-01-02"))
	row, ok := s.rows[key]
	if !ok {
		row = &model.Sleep{IntervalSample: model.IntervalSample{UserID: userID, Start: start, End: end, Source: pt.Source}}
		s.rows[key] = row
	}
	if start.Before(row.Start) {
		row.Start = start
	}
	if end.After(row.End) {
		row.End = end
	}
	row.Stages = append(row.Stages, model.SleepStageDuration{Stage: pt.Value, Duration: end.Sub(start)})
	return nil
}

func (s *sleepAccumulator) addAggregate(userID int, raw json.RawMessage, now time.Time) error {
	var pt iosSleepAggregatePoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return fmt.Errorf("decoding sleep aggregate point: %w", err)
	}
	start, err := ParseTimestamp(pt.SleepStart, now)
	if err != nil {
		return fmt.Errorf("sleep aggregate start: %w", err)
	}
	end, err := ParseTimestamp(pt.SleepEnd, now)
	if err != nil {
		return fmt.Errorf("sleep aggregate end: %w", err)
	}
	asleep := time.Duration(pt.Asleep * float64(time.Hour))

	key := fmt.Sprintf("%d|%s", userID, start.UTC().Format("2006-01-02"))
	s.rows[key] = &model.Sleep{
		IntervalSample:  model.IntervalSample{UserID: userID, Start: start, End: end, Source: pt.Source},
		AggregateAsleep: &asleep,
	}
	return nil
}

func (s *sleepAccumulator) finish() []model.Metric {
	out := make([]model.Metric, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, *row)
	}
	return out
}
