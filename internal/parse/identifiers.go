package parse

import "github.com/claude/ingestd/internal/model"

// identifierEntry binds one HealthKit (or Auto Export-native) identifier
// string to the variant it produces and the data-point shape it is encoded
// in. The table is intentionally exhaustive over every supported metric
// family; unknown identifiers fall through to classification
// unknown_metric_type rather than a default arm.
var identifierTable = map[string]identifierEntry{
	"HKQuantityTypeIdentifierHeartRate": {model.VariantHeartRate, shapeMinAvgMax, ""},
	"heart_rate":                        {model.VariantHeartRate, shapeMinAvgMax, ""},

	"HKCorrelationTypeIdentifierBloodPressure": {model.VariantBloodPressure, shapeBloodPressure, ""},
	"blood_pressure":                           {model.VariantBloodPressure, shapeBloodPressure, ""},

	"HKCategoryTypeIdentifierSleepAnalysis_stage": {model.VariantSleep, shapeSleepStage, ""},
	"sleep_stage":                                 {model.VariantSleep, shapeSleepStage, ""},
	"HKCategoryTypeIdentifierSleepAnalysis":       {model.VariantSleep, shapeSleepAggregate, ""},
	"sleep_analysis":                              {model.VariantSleep, shapeSleepAggregate, ""},

	"HKQuantityTypeIdentifierStepCount":                {model.VariantActivity, shapeQty, "steps"},
	"step_count":                                       {model.VariantActivity, shapeQty, "steps"},
	"HKQuantityTypeIdentifierDistanceWalkingRunning":   {model.VariantActivity, shapeQty, "distance_walking"},
	"walking_running_distance":                         {model.VariantActivity, shapeQty, "distance_walking"},
	"HKQuantityTypeIdentifierDistanceCycling":          {model.VariantActivity, shapeQty, "distance_cycling"},
	"cycling_distance":                                 {model.VariantActivity, shapeQty, "distance_cycling"},
	"HKQuantityTypeIdentifierDistanceSwimming":         {model.VariantActivity, shapeQty, "distance_swimming"},
	"swimming_distance":                                {model.VariantActivity, shapeQty, "distance_swimming"},
	"HKQuantityTypeIdentifierDistanceWheelchair":       {model.VariantActivity, shapeQty, "distance_wheelchair"},
	"HKQuantityTypeIdentifierFlightsClimbed":           {model.VariantActivity, shapeQty, "flights"},
	"flights_climbed":                                  {model.VariantActivity, shapeQty, "flights"},
	"HKQuantityTypeIdentifierActiveEnergyBurned":       {model.VariantActivity, shapeQty, "active_energy"},
	"active_energy":                                    {model.VariantActivity, shapeQty, "active_energy"},
	"HKQuantityTypeIdentifierBasalEnergyBurned":        {model.VariantActivity, shapeQty, "basal_energy"},
	"basal_energy":                                     {model.VariantActivity, shapeQty, "basal_energy"},
	"HKQuantityTypeIdentifierAppleExerciseTime":        {model.VariantActivity, shapeQty, "exercise_minutes"},
	"apple_exercise_time":                              {model.VariantActivity, shapeQty, "exercise_minutes"},
	"HKQuantityTypeIdentifierAppleStandTime":           {model.VariantActivity, shapeQty, "stand_minutes"},
	"apple_stand_time":                                 {model.VariantActivity, shapeQty, "stand_minutes"},
	"HKQuantityTypeIdentifierAppleMoveTime":            {model.VariantActivity, shapeQty, "move_minutes"},

	"HKQuantityTypeIdentifierBodyMass":         {model.VariantBodyMeasurement, shapeQty, "weight_kg"},
	"weight_body_mass":                         {model.VariantBodyMeasurement, shapeQty, "weight_kg"},
	"HKQuantityTypeIdentifierHeight":           {model.VariantBodyMeasurement, shapeQty, "height_cm"},
	"height":                                   {model.VariantBodyMeasurement, shapeQty, "height_cm"},
	"HKQuantityTypeIdentifierBodyMassIndex":    {model.VariantBodyMeasurement, shapeQty, "bmi"},
	"HKQuantityTypeIdentifierBodyFatPercentage": {model.VariantBodyMeasurement, shapeQty, "body_fat_pct"},
	"body_fat_percentage":                       {model.VariantBodyMeasurement, shapeQty, "body_fat_pct"},
	"HKQuantityTypeIdentifierLeanBodyMass":      {model.VariantBodyMeasurement, shapeQty, "lean_mass_kg"},
	"HKQuantityTypeIdentifierWaistCircumference": {model.VariantBodyMeasurement, shapeQty, "waist_cm"},

	"HKQuantityTypeIdentifierUVExposure":         {model.VariantEnvironmental, shapeQty, "uv_index"},
	"HKQuantityTypeIdentifierEnvironmentalAudioExposure": {model.VariantAudioExposure, shapeQty, "environmental_db"},
	"environmental_audio_exposure":                       {model.VariantAudioExposure, shapeQty, "environmental_db"},
	"HKQuantityTypeIdentifierHeadphoneAudioExposure":     {model.VariantAudioExposure, shapeQty, "headphone_db"},
	"headphone_audio_exposure":                           {model.VariantAudioExposure, shapeQty, "headphone_db"},

	"HKQuantityTypeIdentifierRespiratoryRate":       {model.VariantRespiratory, shapeQty, "respiratory_rate"},
	"respiratory_rate":                              {model.VariantRespiratory, shapeQty, "respiratory_rate"},
	"HKQuantityTypeIdentifierOxygenSaturation":      {model.VariantRespiratory, shapeQty, "oxygen_saturation"},
	"blood_oxygen_saturation":                        {model.VariantRespiratory, shapeQty, "oxygen_saturation"},

	"HKQuantityTypeIdentifierBloodGlucose": {model.VariantBloodGlucose, shapeQty, ""},
	"blood_glucose":                        {model.VariantBloodGlucose, shapeQty, ""},

	"HKQuantityTypeIdentifierNumberOfAlcoholicBeverages": {model.VariantMetabolic, shapeQty, "alcohol"},
	"HKQuantityTypeIdentifierInsulinDelivery":            {model.VariantMetabolic, shapeQty, "insulin_delivery"},

	"HKQuantityTypeIdentifierDietaryEnergyConsumed":    {model.VariantNutrition, shapeQty, "calories"},
	"dietary_energy":                                   {model.VariantNutrition, shapeQty, "calories"},
	"HKQuantityTypeIdentifierDietaryProtein":           {model.VariantNutrition, shapeQty, "protein_g"},
	"HKQuantityTypeIdentifierDietaryCarbohydrates":     {model.VariantNutrition, shapeQty, "carbohydrates_g"},
	"HKQuantityTypeIdentifierDietaryFatTotal":          {model.VariantNutrition, shapeQty, "fat_g"},
	"HKQuantityTypeIdentifierDietaryWater":             {model.VariantNutrition, shapeQty, "water_ml"},

	"HKCategoryTypeIdentifierMindfulSession": {model.VariantMindfulness, shapeInterval, ""},
	"mindful_session":                        {model.VariantMindfulness, shapeInterval, ""},

	"HKStateOfMind": {model.VariantMentalHealth, shapeStateOfMind, ""},
	"state_of_mind": {model.VariantMentalHealth, shapeStateOfMind, ""},

	"HKCategoryTypeIdentifierSymptom": {model.VariantSymptom, shapeEvent, ""},
	"symptom":                         {model.VariantSymptom, shapeEvent, ""},

	"HKCategoryTypeIdentifierHandwashing":   {model.VariantHygiene, shapeEvent, ""},
	"HKCategoryTypeIdentifierToothbrushing": {model.VariantHygiene, shapeEvent, ""},
	"hygiene_event":                         {model.VariantHygiene, shapeEvent, ""},

	"HKCategoryTypeIdentifierAppleWalkingSteadinessEvent": {model.VariantSafetyEvent, shapeEvent, "fall"},
	"HKCategoryTypeIdentifierFall":                        {model.VariantSafetyEvent, shapeEvent, "fall"},
	"safety_event":                                        {model.VariantSafetyEvent, shapeEvent, ""},

	"HKQuantityTypeIdentifierBodyTemperature": {model.VariantTemperature, shapeQty, ""},
	"body_temperature":                        {model.VariantTemperature, shapeQty, ""},
	"HKQuantityTypeIdentifierBasalBodyTemperature": {model.VariantTemperature, shapeQty, "basal"},

	"HKQuantityTypeIdentifierWalkingSpeed":        {model.VariantMobility, shapeQty, "walking_speed"},
	"HKQuantityTypeIdentifierWalkingStepLength":   {model.VariantMobility, shapeQty, "step_length"},
	"HKQuantityTypeIdentifierWalkingAsymmetryPercentage": {model.VariantMobility, shapeQty, "walking_asymmetry_pct"},
	"HKQuantityTypeIdentifierStairAscentSpeed":    {model.VariantMobility, shapeQty, "stair_ascent_speed"},
	"HKQuantityTypeIdentifierStairDescentSpeed":   {model.VariantMobility, shapeQty, "stair_descent_speed"},

	"HKCategoryTypeIdentifierMenstrualFlow":   {model.VariantReproductiveHealth, shapeEvent, "menstrual_flow"},
	"HKCategoryTypeIdentifierOvulationTestResult": {model.VariantReproductiveHealth, shapeEvent, "ovulation_test"},
}

type identifierEntry struct {
	variant model.Variant
	shape   sampleShape
	field   string // variant-specific field/nutrient/event-type discriminator, when fixed by the identifier
}

// LookupIdentifier resolves a HealthKit or Auto-Export-native identifier
// string to its variant entry. Returns false for anything not in the fixed
// table — the caller must classify that as unknown_metric_type and must
// not guess a variant for it.
func LookupIdentifier(name string) (identifierEntry, bool) {
	e, ok := identifierTable[name]
	return e, ok
}
