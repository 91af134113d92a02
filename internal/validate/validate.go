// Package validate applies per-variant semantic rules to parsed metrics —
// range checks, cross-field checks, and string hygiene — beyond what the
// parser's shape decoding already guarantees. A metric that parses cleanly
// can still be nonsense (a systolic reading below diastolic, a workout
// ending before it starts) and this package is where that gets caught.
package validate

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/claude/ingestd/internal/model"
)

// Violation is one broken rule, named the way apperr.ItemError expects.
type Violation struct {
	Rule    string
	Message string
}

// Metric dispatches to the per-variant rule set over a closed type switch.
// Unlike identifier lookup, an unknown variant is not an expected input: a
// model.Metric only ever arrives already resolved to one of the constants
// in model.AllVariants(), and exhaustive_test.go checks that every one has
// a branch below, so the default arm's unhandled_variant never fires for them.
func Metric(m model.Metric) []Violation {
	switch v := m.(type) {
	case model.HeartRate:
		return heartRate(v)
	case model.BloodPressure:
		return bloodPressure(v)
	case model.Sleep:
		return sleep(v)
	case model.Activity:
		return activity(v)
	case model.Workout:
		return workout(v)
	case model.BodyMeasurement:
		return bodyMeasurement(v)
	case model.Environmental:
		return environmental(v)
	case model.AudioExposure:
		return audioExposure(v)
	case model.Respiratory:
		return respiratory(v)
	case model.BloodGlucose:
		return bloodGlucose(v)
	case model.Metabolic:
		return metabolic(v)
	case model.Nutrition:
		return nutrition(v)
	case model.Mindfulness:
		return mindfulness(v)
	case model.MentalHealth:
		return mentalHealth(v)
	case model.Symptom:
		return eventHygiene(v.EventType, v.Sample.RecordedAt)
	case model.Hygiene:
		return eventHygiene(v.EventType, v.Sample.RecordedAt)
	case model.SafetyEvent:
		return eventHygiene(v.EventType, v.Sample.RecordedAt)
	case model.Temperature:
		return temperature(v)
	case model.Mobility:
		return mobility(v)
	case model.ReproductiveHealth:
		return reproductiveHealth(v)
	default:
		return []Violation{{Rule: "unhandled_variant", Message: fmt.Sprintf("no validator registered for %T", m)}}
	}
}

func rule(rule, format string, args ...any) Violation {
	return Violation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func inRange(v, lo, hi float64) bool { return v >= lo && v <= hi }

func cleanString(s string) bool {
	if len(s) > 256 {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' {
			return false
		}
	}
	return true
}

func heartRate(m model.HeartRate) []Violation {
	var out []Violation
	if !inRange(m.BPM, 15, 300) {
		out = append(out, rule("range", "heart rate %.1f bpm is outside the plausible range [15, 300]", m.BPM))
	}
	if m.HRV != nil && *m.HRV < 0 {
		out = append(out, rule("range", "HRV cannot be negative"))
	}
	if m.VO2Max != nil && !inRange(*m.VO2Max, 5, 90) {
		out = append(out, rule("range", "VO2Max %.1f is outside the plausible range [5, 90]", *m.VO2Max))
	}
	if m.AFibPct != nil && !inRange(*m.AFibPct, 0, 100) {
		out = append(out, rule("range", "AFib burden percentage must be within [0, 100]"))
	}
	return out
}

func bloodPressure(m model.BloodPressure) []Violation {
	var out []Violation
	if !inRange(m.Systolic, 40, 250) {
		out = append(out, rule("range", "systolic %.1f mmHg is outside the plausible range [40, 250]", m.Systolic))
	}
	if !inRange(m.Diastolic, 20, 200) {
		out = append(out, rule("range", "diastolic %.1f mmHg is outside the plausible range [20, 200]", m.Diastolic))
	}
	if m.Systolic <= m.Diastolic {
		out = append(out, rule("cross_field", "systolic (%.1f) must be greater than diastolic (%.1f)", m.Systolic, m.Diastolic))
	}
	return out
}

func sleep(m model.Sleep) []Violation {
	var out []Violation
	if !m.End.After(m.Start) {
		out = append(out, rule("interval_order", "sleep session end must be after start"))
	}
	if m.End.Sub(m.Start) > 24*time.Hour {
		out = append(out, rule("range", "sleep session longer than 24h"))
	}
	for _, stage := range m.Stages {
		if !validSleepStage(stage.Stage) {
			out = append(out, rule("enumeration", "unrecognized sleep stage %q", stage.Stage))
		}
	}
	return out
}

func validSleepStage(s string) bool {
	switch s {
	case "awake", "rem", "core", "deep", "in_bed", "asleep_unspecified":
		return true
	default:
		return false
	}
}

func activity(m model.Activity) []Violation {
	var out []Violation
	for name, v := range map[string]float64{
		"steps": m.Steps, "distance_walking": m.DistanceWalking, "distance_cycling": m.DistanceCycling,
		"distance_swimming": m.DistanceSwimming, "distance_wheelchair": m.DistanceWheelchair,
		"flights": m.Flights, "active_energy": m.ActiveEnergy, "basal_energy": m.BasalEnergy,
		"exercise_minutes": m.ExerciseMinutes, "stand_minutes": m.StandMinutes, "move_minutes": m.MoveMinutes,
	} {
		if v < 0 {
			out = append(out, rule("range", "activity counter %s cannot be negative (got %.2f)", name, v))
		}
	}
	if m.StandMinutes > 24*60 || m.MoveMinutes > 24*60 || m.ExerciseMinutes > 24*60 {
		out = append(out, rule("range", "a per-day minute counter cannot exceed 1440 minutes"))
	}
	if m.Steps > 200000 {
		out = append(out, rule("range", "steps %.0f exceed the 200,000 per-day ceiling", m.Steps))
	}
	for name, v := range map[string]float64{
		"distance_walking": m.DistanceWalking, "distance_cycling": m.DistanceCycling,
		"distance_swimming": m.DistanceSwimming, "distance_wheelchair": m.DistanceWheelchair,
	} {
		if v > 300 {
			out = append(out, rule("range", "activity counter %s %.2f km exceeds the 300 km per-day ceiling", name, v))
		}
	}
	if m.ActiveEnergy > 20000 || m.BasalEnergy > 20000 {
		out = append(out, rule("range", "a per-day energy counter cannot exceed 20,000 kcal"))
	}
	return out
}

func workout(m model.Workout) []Violation {
	var out []Violation
	if !m.End.After(m.Start) {
		out = append(out, rule("interval_order", "workout end must be after start"))
	}
	if m.TotalEnergy < 0 || m.TotalDistance < 0 {
		out = append(out, rule("range", "workout energy and distance cannot be negative"))
	}
	if m.AverageHeartRate != nil && !inRange(*m.AverageHeartRate, 20, 300) {
		out = append(out, rule("range", "workout average heart rate is outside the plausible range"))
	}
	last := m.Start
	for i, p := range m.Route {
		if p.Timestamp.Before(last) || p.Timestamp.After(m.End) {
			out = append(out, rule("route_order", "route point %d is out of chronological order or outside the workout interval", i))
			break
		}
		last = p.Timestamp
	}
	return out
}

func bodyMeasurement(m model.BodyMeasurement) []Violation {
	var out []Violation
	checkOptional := func(name string, v *float64, lo, hi float64) {
		if v != nil && !inRange(*v, lo, hi) {
			out = append(out, rule("range", "%s value %.2f is outside the plausible range [%.1f, %.1f]", name, *v, lo, hi))
		}
	}
	checkOptional("weight_kg", m.WeightKg, 1, 500)
	checkOptional("height_cm", m.HeightCm, 20, 300)
	checkOptional("bmi", m.BMI, 5, 150)
	checkOptional("body_fat_pct", m.BodyFatPct, 1, 60)
	checkOptional("waist_cm", m.WaistCm, 20, 300)
	return out
}

func environmental(m model.Environmental) []Violation {
	var out []Violation
	if m.UVIndex != nil && !inRange(*m.UVIndex, 0, 20) {
		out = append(out, rule("range", "UV index outside plausible range [0, 20]"))
	}
	if m.HumidityPct != nil && !inRange(*m.HumidityPct, 0, 100) {
		out = append(out, rule("range", "humidity percentage outside [0, 100]"))
	}
	return out
}

func audioExposure(m model.AudioExposure) []Violation {
	var out []Violation
	if m.Kind != "environmental" && m.Kind != "headphone" {
		out = append(out, rule("enumeration", "unrecognized audio exposure kind %q", m.Kind))
	}
	if !inRange(m.DB, 0, 180) {
		out = append(out, rule("range", "sound level %.1f dB is outside the plausible range [0, 180]", m.DB))
	}
	return out
}

func respiratory(m model.Respiratory) []Violation {
	var out []Violation
	if m.RespiratoryRate != nil && !inRange(*m.RespiratoryRate, 4, 80) {
		out = append(out, rule("range", "respiratory rate outside plausible range [4, 80]"))
	}
	if m.OxygenSaturation != nil && !inRange(*m.OxygenSaturation, 50, 100) {
		out = append(out, rule("range", "oxygen saturation outside plausible range [50, 100]"))
	}
	return out
}

func bloodGlucose(m model.BloodGlucose) []Violation {
	var out []Violation
	if !inRange(m.MgPerDL, 20, 700) {
		out = append(out, rule("range", "blood glucose %.1f mg/dL is outside the plausible range [20, 700]", m.MgPerDL))
	}
	return out
}

func metabolic(m model.Metabolic) []Violation {
	var out []Violation
	if m.Kind != "alcohol" && m.Kind != "insulin_delivery" {
		out = append(out, rule("enumeration", "unrecognized metabolic kind %q", m.Kind))
	}
	if m.Value < 0 {
		out = append(out, rule("range", "metabolic value cannot be negative"))
	}
	return out
}

func nutrition(m model.Nutrition) []Violation {
	var out []Violation
	if strings.TrimSpace(m.Nutrient) == "" {
		out = append(out, rule("required_field", "nutrient name is required"))
	}
	if m.Amount < 0 {
		out = append(out, rule("range", "nutrient amount cannot be negative"))
	}
	return out
}

func mindfulness(m model.Mindfulness) []Violation {
	if !m.End.After(m.Start) {
		return []Violation{rule("interval_order", "mindfulness session end must be after start")}
	}
	return nil
}

func mentalHealth(m model.MentalHealth) []Violation {
	var out []Violation
	if m.Kind != "momentary" && m.Kind != "daily" {
		out = append(out, rule("enumeration", "unrecognized state-of-mind kind %q", m.Kind))
	}
	if !inRange(m.Valence, -1, 1) {
		out = append(out, rule("range", "valence %.3f must be within [-1, 1]", m.Valence))
	}
	return out
}

func eventHygiene(eventType string, recordedAt time.Time) []Violation {
	var out []Violation
	if strings.TrimSpace(eventType) == "" {
		out = append(out, rule("required_field", "event_type is required"))
	}
	if !cleanString(eventType) {
		out = append(out, rule("string_hygiene", "event_type contains control characters or exceeds 256 bytes"))
	}
	if recordedAt.IsZero() {
		out = append(out, rule("required_field", "recorded_at is required"))
	}
	return out
}

func temperature(m model.Temperature) []Violation {
	var out []Violation
	if !inRange(m.Celsius, 25, 45) {
		out = append(out, rule("range", "temperature %.1f°C is outside the plausible range [25, 45]", m.Celsius))
	}
	return out
}

func mobility(m model.Mobility) []Violation {
	var out []Violation
	if m.Value < 0 {
		out = append(out, rule("range", "mobility metric %s cannot be negative", m.MetricType))
	}
	if m.MetricType == "walking_asymmetry_pct" && !inRange(m.Value, 0, 100) {
		out = append(out, rule("range", "walking asymmetry percentage must be within [0, 100]"))
	}
	return out
}

func reproductiveHealth(m model.ReproductiveHealth) []Violation {
	if strings.TrimSpace(m.Category) == "" {
		return []Violation{rule("required_field", "category is required")}
	}
	return nil
}
