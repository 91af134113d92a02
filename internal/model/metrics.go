package model

import (
	"fmt"
	"time"
)

// Sample is the common envelope every variant embeds: who recorded it, when,
// and which device/app reported it. Session-shaped variants use Interval
// instead of RecordedAt (see IntervalSample).
type Sample struct {
	UserID     int
	RecordedAt time.Time
	Source     string
}

func (s Sample) sealed() {}

// Owner returns the owning user ID, satisfying Metric for embedders.
func (s Sample) Owner() int { return s.UserID }

// IntervalSample is the common envelope for session-shaped variants (sleep,
// mindfulness, workouts): a half-open [Start, End) instead of one instant.
type IntervalSample struct {
	UserID int
	Start  time.Time
	End    time.Time
	Source string
}

func (s IntervalSample) sealed()      {}
func (s IntervalSample) Owner() int   { return s.UserID }

// HeartRate is a single beats-per-minute reading, optionally carrying
// heart-rate-variability, cardio fitness (VO2Max), or AFib burden alongside.
type HeartRate struct {
	Sample
	BPM      float64
	Context  string // e.g. "resting", "walking", "workout"
	HRV      *float64
	VO2Max   *float64
	AFibPct  *float64
}

func (m HeartRate) Variant() Variant { return VariantHeartRate }
func (m HeartRate) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// BloodPressure is a single systolic/diastolic reading.
type BloodPressure struct {
	Sample
	Systolic  float64
	Diastolic float64
	Pulse     *float64
}

func (m BloodPressure) Variant() Variant { return VariantBloodPressure }
func (m BloodPressure) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// SleepStageDuration is one named stage's share of a sleep session, used
// when the source reports stage breakdowns rather than one aggregate total.
type SleepStageDuration struct {
	Stage    string
	Duration time.Duration
}

// Sleep is one sleep session, reported either as named stage breakdowns or
// as a single aggregate asleep duration.
type Sleep struct {
	IntervalSample
	Stages          []SleepStageDuration
	AggregateAsleep *time.Duration
}

func (m Sleep) Variant() Variant { return VariantSleep }
func (m Sleep) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID,
		m.Start.UTC().Format(time.RFC3339Nano), m.End.UTC().Format(time.RFC3339Nano))
}

// Activity is one day's worth of counters. The dedup key uses Date's UTC
// calendar day, since a day only has one activity row per user.
type Activity struct {
	Sample
	Date               time.Time
	Steps              float64
	DistanceWalking    float64
	DistanceCycling    float64
	DistanceSwimming   float64
	DistanceWheelchair float64
	Flights            float64
	ActiveEnergy       float64
	BasalEnergy        float64
	ExerciseMinutes    float64
	StandMinutes       float64
	MoveMinutes        float64
}

func (m Activity) Variant() Variant { return VariantActivity }
func (m Activity) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.Date.UTC().Format("2006-01-02"))
}

// RoutePoint is one GPS fix along a workout's route.
type RoutePoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Timestamp time.Time
}

// Workout is one exercise session, with an optional ordered GPS route.
type Workout struct {
	IntervalSample
	ID               string
	Type             string
	TotalEnergy      float64
	TotalDistance    float64
	AverageHeartRate *float64
	Route            []RoutePoint
}

func (m Workout) Variant() Variant { return VariantWorkout }
func (m Workout) DedupKey() string {
	if m.ID != "" {
		return fmt.Sprintf("%d|%s", m.UserID, m.ID)
	}
	return fmt.Sprintf("%d|%s|%s", m.UserID,
		m.Start.UTC().Format(time.RFC3339Nano), m.End.UTC().Format(time.RFC3339Nano))
}

// BodyMeasurement is a body-composition snapshot.
type BodyMeasurement struct {
	Sample
	WeightKg        *float64
	HeightCm        *float64
	BMI             *float64
	BodyFatPct      *float64
	LeanMassKg      *float64
	WaistCm         *float64
	HipCm           *float64
	BasalBodyTempC  *float64
}

func (m BodyMeasurement) Variant() Variant { return VariantBodyMeasurement }
func (m BodyMeasurement) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Environmental is one time-stamped ambient reading.
type Environmental struct {
	Sample
	UVIndex       *float64
	PressureKPa   *float64
	HumidityPct   *float64
	AmbientTempC  *float64
}

func (m Environmental) Variant() Variant { return VariantEnvironmental }
func (m Environmental) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// AudioExposure is one environmental or headphone sound-level reading.
type AudioExposure struct {
	Sample
	Kind     string // "environmental" | "headphone"
	DB       float64
	Duration time.Duration
}

func (m AudioExposure) Variant() Variant { return VariantAudioExposure }
func (m AudioExposure) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.Kind, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Respiratory is a breathing-rate or blood-oxygen reading.
type Respiratory struct {
	Sample
	RespiratoryRate  *float64
	OxygenSaturation *float64
}

func (m Respiratory) Variant() Variant { return VariantRespiratory }
func (m Respiratory) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// BloodGlucose is a single glucose reading in mg/dL.
type BloodGlucose struct {
	Sample
	MgPerDL      float64
	MealContext  string
}

func (m BloodGlucose) Variant() Variant { return VariantBloodGlucose }
func (m BloodGlucose) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Metabolic covers alcohol consumption and insulin delivery events.
type Metabolic struct {
	Sample
	Kind  string // "alcohol" | "insulin_delivery"
	Value float64
	Unit  string
}

func (m Metabolic) Variant() Variant { return VariantMetabolic }
func (m Metabolic) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.Kind, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Nutrition is a single logged nutrient amount (calories, macro, or micro).
type Nutrition struct {
	Sample
	Nutrient string
	Amount   float64
	Unit     string
}

func (m Nutrition) Variant() Variant { return VariantNutrition }
func (m Nutrition) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.Nutrient, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Mindfulness is one meditation/breathing session interval.
type Mindfulness struct {
	IntervalSample
}

func (m Mindfulness) Variant() Variant { return VariantMindfulness }
func (m Mindfulness) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID,
		m.Start.UTC().Format(time.RFC3339Nano), m.End.UTC().Format(time.RFC3339Nano))
}

// MentalHealth is a momentary or daily state-of-mind log.
type MentalHealth struct {
	Sample
	Kind                   string // "momentary" | "daily"
	Valence                float64
	ValenceClassification  string
	Labels                 []string
}

func (m MentalHealth) Variant() Variant { return VariantMentalHealth }
func (m MentalHealth) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Symptom is a logged symptom occurrence; EventType discriminates the dedup
// key since a user can log two different symptoms at the same instant.
type Symptom struct {
	Sample
	EventType string
	Severity  string
}

func (m Symptom) Variant() Variant { return VariantSymptom }
func (m Symptom) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.EventType, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Hygiene is a logged hygiene event (handwashing, toothbrushing).
type Hygiene struct {
	Sample
	EventType string
	Duration  time.Duration
}

func (m Hygiene) Variant() Variant { return VariantHygiene }
func (m Hygiene) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.EventType, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// SafetyEvent is a fall or emergency-SOS event.
type SafetyEvent struct {
	Sample
	EventType string
}

func (m SafetyEvent) Variant() Variant { return VariantSafetyEvent }
func (m SafetyEvent) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.EventType, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Temperature is a single-point temperature reading (basal, skin, wrist —
// distinct from BodyMeasurement's composition snapshot fields).
type Temperature struct {
	Sample
	Celsius float64
	Context string
}

func (m Temperature) Variant() Variant { return VariantTemperature }
func (m Temperature) DedupKey() string {
	return fmt.Sprintf("%d|%s", m.UserID, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// Mobility is a gait metric (walking speed, step length, asymmetry, stair
// ascent/descent speed). MetricType discriminates the dedup key.
type Mobility struct {
	Sample
	MetricType string
	Value      float64
	Unit       string
}

func (m Mobility) Variant() Variant { return VariantMobility }
func (m Mobility) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.MetricType, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}

// ReproductiveHealth is a logged cycle-tracking data point.
type ReproductiveHealth struct {
	Sample
	Category string // "menstrual_flow" | "ovulation_test" | "basal_body_temp" | ...
	Value    string
}

func (m ReproductiveHealth) Variant() Variant { return VariantReproductiveHealth }
func (m ReproductiveHealth) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", m.UserID, m.Category, m.RecordedAt.UTC().Format(time.RFC3339Nano))
}
