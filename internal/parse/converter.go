package parse

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude/ingestd/internal/model"
)

// buildSimpleMetric constructs the variants whose iOS data point is a plain
// {"date","qty","source"} sample and whose model struct has exactly one
// meaningful numeric field, selected by entry.field. Activity and Sleep are
// handled separately by parser.go's accumulators since HealthKit reports
// them as several independent per-field or per-stage samples.
func buildSimpleMetric(entry identifierEntry, userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosQtyPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding qty point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.Date, now)
	if err != nil {
		return nil, err
	}
	source := firstNonEmpty(pt.Source, defaultSource)
	sample := model.Sample{UserID: userID, RecordedAt: recordedAt, Source: source}

	switch entry.variant {
	case model.VariantEnvironmental:
		m := model.Environmental{Sample: sample}
		switch entry.field {
		case "uv_index":
			m.UVIndex = &pt.Qty
		default:
			m.AmbientTempC = &pt.Qty
		}
		return m, nil
	case model.VariantAudioExposure:
		return model.AudioExposure{Sample: sample, Kind: audioKind(entry.field), DB: pt.Qty}, nil
	case model.VariantRespiratory:
		m := model.Respiratory{Sample: sample}
		if entry.field == "oxygen_saturation" {
			m.OxygenSaturation = &pt.Qty
		} else {
			m.RespiratoryRate = &pt.Qty
		}
		return m, nil
	case model.VariantBloodGlucose:
		return model.BloodGlucose{Sample: sample, MgPerDL: pt.Qty}, nil
	case model.VariantMetabolic:
		return model.Metabolic{Sample: sample, Kind: entry.field, Value: pt.Qty}, nil
	case model.VariantNutrition:
		nutrient := entry.field
		if nutrient == "" {
			nutrient = "unknown"
		}
		return model.Nutrition{Sample: sample, Nutrient: nutrient, Amount: pt.Qty}, nil
	case model.VariantTemperature:
		return model.Temperature{Sample: sample, Celsius: pt.Qty, Context: entry.field}, nil
	case model.VariantMobility:
		return model.Mobility{Sample: sample, MetricType: entry.field, Value: pt.Qty}, nil
	case model.VariantBodyMeasurement:
		return buildBodyMeasurement(sample, entry.field, pt.Qty), nil
	default:
		return nil, fmt.Errorf("identifier maps to variant %s with no simple-metric builder", entry.variant)
	}
}

func buildBodyMeasurement(sample model.Sample, field string, qty float64) model.Metric {
	m := model.BodyMeasurement{Sample: sample}
	switch field {
	case "weight_kg":
		m.WeightKg = &qty
	case "height_cm":
		m.HeightCm = &qty
	case "bmi":
		m.BMI = &qty
	case "body_fat_pct":
		m.BodyFatPct = &qty
	case "lean_mass_kg":
		m.LeanMassKg = &qty
	case "waist_cm":
		m.WaistCm = &qty
	default:
		m.WeightKg = &qty
	}
	return m
}

func audioKind(field string) string {
	if field == "headphone_db" {
		return "headphone"
	}
	return "environmental"
}

func buildHeartRate(userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosMinAvgMaxPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding heart rate point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.Date, now)
	if err != nil {
		return nil, err
	}
	return model.HeartRate{
		Sample: model.Sample{UserID: userID, RecordedAt: recordedAt, Source: firstNonEmpty(pt.Source, defaultSource)},
		BPM:    pt.Avg,
	}, nil
}

func buildBloodPressure(userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosBloodPressurePoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding blood pressure point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.Date, now)
	if err != nil {
		return nil, err
	}
	return model.BloodPressure{
		Sample:    model.Sample{UserID: userID, RecordedAt: recordedAt, Source: firstNonEmpty(pt.Source, defaultSource)},
		Systolic:  pt.Systolic,
		Diastolic: pt.Diastolic,
		Pulse:     pt.Pulse,
	}, nil
}

func buildMindfulness(userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosIntervalPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding interval point: %w", err)
	}
	start, err := ParseTimestamp(pt.StartDate, now)
	if err != nil {
		return nil, err
	}
	end, err := ParseTimestamp(pt.EndDate, now)
	if err != nil {
		return nil, err
	}
	return model.Mindfulness{IntervalSample: model.IntervalSample{
		UserID: userID, Start: start, End: end, Source: firstNonEmpty(pt.Source, defaultSource),
	}}, nil
}

func buildStateOfMind(userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosStateOfMindPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding state-of-mind point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.End, now)
	if err != nil {
		return nil, err
	}
	return model.MentalHealth{
		Sample:                model.Sample{UserID: userID, RecordedAt: recordedAt, Source: firstNonEmpty(pt.Source, defaultSource)},
		Kind:                  pt.Kind,
		Valence:               pt.Valence,
		ValenceClassification: pt.ValenceClassification,
	}, nil
}

func buildEvent(entry identifierEntry, userID int, defaultSource string, raw json.RawMessage, now time.Time) (model.Metric, error) {
	var pt iosEventPoint
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("decoding event point: %w", err)
	}
	recordedAt, err := ParseTimestamp(pt.Date, now)
	if err != nil {
		return nil, err
	}
	eventType := firstNonEmpty(pt.EventType, entry.field)
	sample := model.Sample{UserID: userID, RecordedAt: recordedAt, Source: firstNonEmpty(pt.Source, defaultSource)}

	switch entry.variant {
	case model.VariantSymptom:
		return model.Symptom{Sample: sample, EventType: eventType, Severity: pt.Severity}, nil
	case model.VariantHygiene:
		return model.Hygiene{Sample: sample, EventType: eventType}, nil
	case model.VariantSafetyEvent:
		return model.SafetyEvent{Sample: sample, EventType: eventType}, nil
	case model.VariantReproductiveHealth:
		return model.ReproductiveHealth{Sample: sample, Category: eventType, Value: pt.Severity}, nil
	default:
		return nil, fmt.Errorf("identifier maps to variant %s with no event builder", entry.variant)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
