// Package parse turns an inbound ingestion payload — either the iOS Auto
// Health Export app's native shape or ingestd's own canonical shape — into
// a slice of model.Metric values plus one apperr.ItemError per rejected
// sample. A single malformed sample never fails the whole payload.
package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/model"
)

// Result is everything the parser produced from one payload.
type Result struct {
	Metrics []model.Metric
	Errors  []apperr.ItemError
}

// Parse detects the payload shape and dispatches to the matching decoder.
// now is injected so clock-skew rejection and tests are deterministic.
func Parse(body []byte, userID int, now time.Time) (Result, error) {
	if detectIOSShape(body) {
		return parseIOS(body, userID, now), nil
	}
	if detectCanonicalShape(body) {
		return parseCanonical(body, userID, now), nil
	}
	return Result{}, apperr.New(apperr.CodeParseError, "payload matches neither the iOS export shape nor the canonical shape")
}

func detectIOSShape(body []byte) bool {
	return bytes.Contains(body, []byte(`"data"`)) && (bytes.Contains(body, []byte(`"metrics"`)) || bytes.Contains(body, []byte(`"workouts"`)))
}

func detectCanonicalShape(body []byte) bool {
	return bytes.Contains(body, []byte(`"metrics"`)) && bytes.Contains(body, []byte(`"variant"`))
}

func parseIOS(body []byte, userID int, now time.Time) Result {
	var payload IOSPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{Errors: []apperr.ItemError{
			apperr.NewItemError("", 0, "parse_error", err.Error()),
		}}
	}

	res := Result{}
	activity := newActivityAccumulator()
	sleep := newSleepAccumulator()

	for _, series := range payload.Data.Metrics {
		entry, ok := LookupIdentifier(series.Name)
		if !ok {
			for idx := range series.Data {
				res.Errors = append(res.Errors, apperr.NewItemError(series.Name, idx, "unknown_metric_type",
					fmt.Sprintf("identifier %q is not recognized", series.Name)))
			}
			continue
		}

		for idx, raw := range series.Data {
			if err := convertIOSPoint(entry, userID, series.Name, raw, now, &res, activity, sleep); err != nil {
				res.Errors = append(res.Errors, apperr.NewItemError(series.Name, idx, "parse_error", err.Error()))
			}
		}
	}

	res.Metrics = append(res.Metrics, activity.finish()...)
	res.Metrics = append(res.Metrics, sleep.finish()...)

	for idx, w := range payload.Data.Workouts {
		metric, err := buildWorkout(userID, w, now)
		if err != nil {
			res.Errors = append(res.Errors, apperr.NewItemError("workout", idx, "parse_error", err.Error()))
			continue
		}
		res.Metrics = append(res.Metrics, metric)
	}

	return res
}

// convertIOSPoint decodes one raw data point per its shape. Activity and
// sleep-stage points are folded into their accumulators instead of directly
// appended to res.Metrics, since HealthKit reports each as a fragment of a
// larger per-day or per-night record.
func convertIOSPoint(entry identifierEntry, userID int, name string, raw json.RawMessage, now time.Time, res *Result, activity *activityAccumulator, sleep *sleepAccumulator) error {
	switch entry.shape {
	case shapeQty:
		if entry.variant == model.VariantActivity {
			return activity.add(userID, raw, entry.field, now)
		}
		m, err := buildSimpleMetric(entry, userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	case shapeMinAvgMax:
		m, err := buildHeartRate(userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	case shapeBloodPressure:
		m, err := buildBloodPressure(userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	case shapeSleepStage:
		return sleep.addStage(userID, raw, now)
	case shapeSleepAggregate:
		return sleep.addAggregate(userID, raw, now)
	case shapeInterval:
		m, err := buildMindfulness(userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	case shapeStateOfMind:
		m, err := buildStateOfMind(userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	case shapeEvent:
		m, err := buildEvent(entry, userID, "", raw, now)
		if err != nil {
			return err
		}
		res.Metrics = append(res.Metrics, m)
		return nil
	default:
		return fmt.Errorf("identifier %q resolved to an unhandled shape", name)
	}
}

func buildWorkout(userID int, w IOSWorkout, now time.Time) (model.Metric, error) {
	start, err := ParseTimestamp(w.Start, now)
	if err != nil {
		return nil, fmt.Errorf("workout start: %w", err)
	}
	end, err := ParseTimestamp(w.End, now)
	if err != nil {
		return nil, fmt.Errorf("workout end: %w", err)
	}

	out := model.Workout{
		IntervalSample: model.IntervalSample{UserID: userID, Start: start, End: end},
		ID:             w.ID,
		Type:           w.Name,
	}
	if w.TotalEnergy != nil {
		out.TotalEnergy = w.TotalEnergy.Qty
	}
	if w.Distance != nil {
		out.TotalDistance = w.Distance.Qty
	}
	if w.AvgHeartRate != nil {
		hr := w.AvgHeartRate.Qty
		out.AverageHeartRate = &hr
	}

	for i, p := range w.Route {
		ts, err := ParseTimestamp(p.Timestamp, now)
		if err != nil {
			return nil, fmt.Errorf("route point %d: %w", i, err)
		}
		out.Route = append(out.Route, model.RoutePoint{
			Latitude: p.Latitude, Longitude: p.Longitude, Altitude: p.Altitude, Timestamp: ts,
		})
	}

	return out, nil
}

func parseCanonical(body []byte, userID int, now time.Time) Result {
	var payload CanonicalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{Errors: []apperr.ItemError{
			apperr.NewItemError("", 0, "parse_error", err.Error()),
		}}
	}

	res := Result{}
	for idx, m := range payload.Metrics {
		metric, err := convertCanonical(userID, m, now)
		if err != nil {
			res.Errors = append(res.Errors, apperr.NewItemError(m.Variant, idx, "parse_error", err.Error()))
			continue
		}
		if metric == nil {
			res.Errors = append(res.Errors, apperr.NewItemError(m.Variant, idx, "unknown_metric_type",
				fmt.Sprintf("variant %q is not recognized", m.Variant)))
			continue
		}
		res.Metrics = append(res.Metrics, metric)
	}
	return res
}

// convertCanonical decodes a pre-typed metric whose Fields blob already
// matches the target struct's JSON tags. Returns (nil, nil) for a variant
// name not in the closed set, which the caller classifies as unknown.
func convertCanonical(userID int, m CanonicalMetric, now time.Time) (model.Metric, error) {
	variant := model.Variant(m.Variant)
	known := false
	for _, v := range model.AllVariants() {
		if v == variant {
			known = true
			break
		}
	}
	if !known {
		return nil, nil
	}

	switch variant {
	case model.VariantSleep, model.VariantMindfulness, model.VariantWorkout:
		start, err := ParseTimestamp(m.IntervalStart, now)
		if err != nil {
			return nil, fmt.Errorf("interval_start: %w", err)
		}
		end, err := ParseTimestamp(m.IntervalEnd, now)
		if err != nil {
			return nil, fmt.Errorf("interval_end: %w", err)
		}
		base := model.IntervalSample{UserID: userID, Start: start, End: end, Source: m.Source}
		return decodeIntervalFields(variant, base, m.Fields)
	default:
		recordedAt, err := ParseTimestamp(m.RecordedAt, now)
		if err != nil {
			return nil, fmt.Errorf("recorded_at: %w", err)
		}
		base := model.Sample{UserID: userID, RecordedAt: recordedAt, Source: m.Source}
		return decodeInstantFields(variant, base, m.Fields)
	}
}

func decodeIntervalFields(variant model.Variant, base model.IntervalSample, fields json.RawMessage) (model.Metric, error) {
	switch variant {
	case model.VariantMindfulness:
		return model.Mindfulness{IntervalSample: base}, nil
	case model.VariantSleep:
		var body struct {
			Stages          []model.SleepStageDuration `json:"stages,omitempty"`
			AggregateAsleep *time.Duration              `json:"aggregate_asleep,omitempty"`
		}
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		return model.Sleep{IntervalSample: base, Stages: body.Stages, AggregateAsleep: body.AggregateAsleep}, nil
	case model.VariantWorkout:
		var body struct {
			ID               string             `json:"id"`
			Type             string             `json:"type"`
			TotalEnergy      float64            `json:"total_energy"`
			TotalDistance    float64            `json:"total_distance"`
			AverageHeartRate *float64           `json:"average_heart_rate,omitempty"`
			Route            []model.RoutePoint `json:"route,omitempty"`
		}
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		return model.Workout{
			IntervalSample: base, ID: body.ID, Type: body.Type, TotalEnergy: body.TotalEnergy,
			TotalDistance: body.TotalDistance, AverageHeartRate: body.AverageHeartRate, Route: body.Route,
		}, nil
	default:
		return nil, fmt.Errorf("variant %s is not interval-shaped", variant)
	}
}

func decodeInstantFields(variant model.Variant, base model.Sample, fields json.RawMessage) (model.Metric, error) {
	switch variant {
	case model.VariantHeartRate:
		var body struct {
			BPM     float64  `json:"bpm"`
			Context string   `json:"context"`
			HRV     *float64 `json:"hrv,omitempty"`
			VO2Max  *float64 `json:"vo2_max,omitempty"`
			AFibPct *float64 `json:"afib_pct,omitempty"`
		}
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		return model.HeartRate{Sample: base, BPM: body.BPM, Context: body.Context, HRV: body.HRV, VO2Max: body.VO2Max, AFibPct: body.AFibPct}, nil
	case model.VariantBloodPressure:
		var body struct {
			Systolic  float64  `json:"systolic"`
			Diastolic float64  `json:"diastolic"`
			Pulse     *float64 `json:"pulse,omitempty"`
		}
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		return model.BloodPressure{Sample: base, Systolic: body.Systolic, Diastolic: body.Diastolic, Pulse: body.Pulse}, nil
	case model.VariantActivity:
		var body model.Activity
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		body.Date = base.RecordedAt
		return body, nil
	case model.VariantBodyMeasurement:
		var body model.BodyMeasurement
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantEnvironmental:
		var body model.Environmental
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantAudioExposure:
		var body model.AudioExposure
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantRespiratory:
		var body model.Respiratory
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantBloodGlucose:
		var body model.BloodGlucose
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantMetabolic:
		var body model.Metabolic
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantNutrition:
		var body model.Nutrition
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantMentalHealth:
		var body model.MentalHealth
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantSymptom:
		var body model.Symptom
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantHygiene:
		var body model.Hygiene
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantSafetyEvent:
		var body model.SafetyEvent
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantTemperature:
		var body model.Temperature
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantMobility:
		var body model.Mobility
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	case model.VariantReproductiveHealth:
		var body model.ReproductiveHealth
		if err := json.Unmarshal(fields, &body); err != nil {
			return nil, err
		}
		body.Sample = base
		return body, nil
	default:
		return nil, fmt.Errorf("variant %s is not instant-shaped", variant)
	}
}
