package validate

import (
	"testing"
	"time"

	"github.com/claude/ingestd/internal/model"
)

// zeroValueFor builds a minimally-populated instance of each variant so
// Metric's type switch can be exercised without panicking on nil maps/slices.
// This is not a correctness test of the rules themselves — it exists purely
// to prove every entry in model.AllVariants() has a matching case.
func zeroValueFor(v model.Variant) model.Metric {
	now := time.Now()
	sample := model.Sample{UserID: 1, RecordedAt: now}
	interval := model.IntervalSample{UserID: 1, Start: now, End: now.Add(time.Hour)}

	switch v {
	case model.VariantHeartRate:
		return model.HeartRate{Sample: sample, BPM: 60}
	case model.VariantBloodPressure:
		return model.BloodPressure{Sample: sample, Systolic: 120, Diastolic: 80}
	case model.VariantSleep:
		return model.Sleep{IntervalSample: interval}
	case model.VariantActivity:
		return model.Activity{Sample: sample, Date: now}
	case model.VariantWorkout:
		return model.Workout{IntervalSample: interval}
	case model.VariantBodyMeasurement:
		return model.BodyMeasurement{Sample: sample}
	case model.VariantEnvironmental:
		return model.Environmental{Sample: sample}
	case model.VariantAudioExposure:
		return model.AudioExposure{Sample: sample, Kind: "environmental"}
	case model.VariantRespiratory:
		return model.Respiratory{Sample: sample}
	case model.VariantBloodGlucose:
		return model.BloodGlucose{Sample: sample, MgPerDL: 90}
	case model.VariantMetabolic:
		return model.Metabolic{Sample: sample, Kind: "alcohol"}
	case model.VariantNutrition:
		return model.Nutrition{Sample: sample, Nutrient: "calories"}
	case model.VariantMindfulness:
		return model.Mindfulness{IntervalSample: interval}
	case model.VariantMentalHealth:
		return model.MentalHealth{Sample: sample, Kind: "momentary"}
	case model.VariantSymptom:
		return model.Symptom{Sample: sample, EventType: "headache"}
	case model.VariantHygiene:
		return model.Hygiene{Sample: sample, EventType: "handwashing"}
	case model.VariantSafetyEvent:
		return model.SafetyEvent{Sample: sample, EventType: "fall"}
	case model.VariantTemperature:
		return model.Temperature{Sample: sample, Celsius: 37}
	case model.VariantMobility:
		return model.Mobility{Sample: sample, MetricType: "walking_speed"}
	case model.VariantReproductiveHealth:
		return model.ReproductiveHealth{Sample: sample, Category: "menstrual_flow"}
	default:
		return nil
	}
}

func TestMetricIsExhaustiveOverAllVariants(t *testing.T) {
	for _, v := range model.AllVariants() {
		m := zeroValueFor(v)
		if m == nil {
			t.Fatalf("zeroValueFor is missing a case for variant %s", v)
		}
		violations := Metric(m)
		for _, viol := range violations {
			if viol.Rule == "unhandled_variant" {
				t.Fatalf("Metric has no validator case for variant %s: %s", v, viol.Message)
			}
		}
	}
}

func TestBloodPressureCrossFieldCheck(t *testing.T) {
	bad := model.BloodPressure{
		Sample:    model.Sample{UserID: 1, RecordedAt: time.Now()},
		Systolic:  80,
		Diastolic: 120,
	}
	violations := Metric(bad)
	found := false
	for _, v := range violations {
		if v.Rule == "cross_field" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a cross_field violation when systolic <= diastolic, got %+v", violations)
	}
}

func TestSleepIntervalOrder(t *testing.T) {
	now := time.Now()
	bad := model.Sleep{IntervalSample: model.IntervalSample{UserID: 1, Start: now, End: now.Add(-time.Hour)}}
	violations := Metric(bad)
	if len(violations) == 0 {
		t.Fatal("expected an interval_order violation for an end before start")
	}
}
