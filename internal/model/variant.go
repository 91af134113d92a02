// Package model defines the typed HealthKit metric variants ingested by the
// pipeline: a closed tagged union, not an open-ended map. Every new variant
// must be added to AllVariants, and every switch over Variant in the
// batch/store/validate packages is checked for completeness by a table test
// that walks AllVariants().
package model

// Variant identifies one concrete metric type in the tagged union.
type Variant string

const (
	VariantHeartRate          Variant = "heart_rate"
	VariantBloodPressure      Variant = "blood_pressure"
	VariantSleep              Variant = "sleep"
	VariantActivity           Variant = "activity"
	VariantWorkout            Variant = "workout"
	VariantBodyMeasurement    Variant = "body_measurement"
	VariantEnvironmental      Variant = "environmental"
	VariantAudioExposure      Variant = "audio_exposure"
	VariantRespiratory        Variant = "respiratory"
	VariantBloodGlucose       Variant = "blood_glucose"
	VariantMetabolic          Variant = "metabolic"
	VariantNutrition          Variant = "nutrition"
	VariantMindfulness        Variant = "mindfulness"
	VariantMentalHealth       Variant = "mental_health"
	VariantSymptom            Variant = "symptom"
	VariantHygiene            Variant = "hygiene"
	VariantSafetyEvent        Variant = "safety_event"
	VariantTemperature        Variant = "temperature"
	VariantMobility           Variant = "mobility"
	VariantReproductiveHealth Variant = "reproductive_health"
)

// AllVariants lists every variant in the closed union. Anything iterating
// variants (grouping, chunk-cap lookup, dedup-key computation, store
// dispatch) should range over this slice rather than re-enumerate the
// constants, so adding a variant here is enough to surface every place that
// still needs a case.
func AllVariants() []Variant {
	return []Variant{
		VariantHeartRate,
		VariantBloodPressure,
		VariantSleep,
		VariantActivity,
		VariantWorkout,
		VariantBodyMeasurement,
		VariantEnvironmental,
		VariantAudioExposure,
		VariantRespiratory,
		VariantBloodGlucose,
		VariantMetabolic,
		VariantNutrition,
		VariantMindfulness,
		VariantMentalHealth,
		VariantSymptom,
		VariantHygiene,
		VariantSafetyEvent,
		VariantTemperature,
		VariantMobility,
		VariantReproductiveHealth,
	}
}

// Metric is implemented by every concrete variant type. The unexported
// method closes the interface to this package: no outside package can add a
// new variant without going through model, which keeps AllVariants() the
// single source of truth.
type Metric interface {
	Variant() Variant
	Owner() int
	DedupKey() string
	sealed()
}
