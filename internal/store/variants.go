package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/model"
)

// variantSpec binds one model.Variant to its table, column order, and how
// to pull a row's bound-parameter values out of the concrete metric value.
// conflictColumns mirrors the variant's DedupKey() so the database's
// ON CONFLICT DO NOTHING is a second, durable line of defense behind the
// batch package's in-memory dedup pass.
type variantSpec struct {
	table           string
	columns         []string
	conflictColumns []string
	argsFor         func(m model.Metric) []any
}

var variantSpecs = map[model.Variant]variantSpec{
	model.VariantHeartRate: {
		table: "heart_rate", columns: []string{"user_id", "recorded_at", "source", "bpm", "context", "hrv", "vo2_max", "afib_pct"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.HeartRate)
			return []any{v.UserID, v.RecordedAt, v.Source, v.BPM, v.Context, v.HRV, v.VO2Max, v.AFibPct}
		},
	},
	model.VariantBloodPressure: {
		table: "blood_pressure", columns: []string{"user_id", "recorded_at", "source", "systolic", "diastolic", "pulse"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.BloodPressure)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Systolic, v.Diastolic, v.Pulse}
		},
	},
	model.VariantSleep: {
		table: "sleep", columns: []string{"user_id", "interval_start", "interval_end", "source", "stages", "aggregate_asleep_seconds"},
		conflictColumns: []string{"user_id", "interval_start", "interval_end"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Sleep)
			var asleepSeconds *float64
			if v.AggregateAsleep != nil {
				s := v.AggregateAsleep.Seconds()
				asleepSeconds = &s
			}
			return []any{v.UserID, v.Start, v.End, v.Source, encodeSleepStages(v.Stages), asleepSeconds}
		},
	},
	model.VariantActivity: {
		table: "activity", columns: []string{
			"user_id", "date", "source", "steps", "distance_walking", "distance_cycling", "distance_swimming",
			"distance_wheelchair", "flights", "active_energy", "basal_energy", "exercise_minutes", "stand_minutes", "move_minutes",
		},
		conflictColumns: []string{"user_id", "date"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Activity)
			return []any{
				v.UserID, v.Date, v.Source, v.Steps, v.DistanceWalking, v.DistanceCycling, v.DistanceSwimming,
				v.DistanceWheelchair, v.Flights, v.ActiveEnergy, v.BasalEnergy, v.ExerciseMinutes, v.StandMinutes, v.MoveMinutes,
			}
		},
	},
	model.VariantWorkout: {
		table: "workouts", columns: []string{
			"id", "user_id", "interval_start", "interval_end", "source", "workout_type", "total_energy", "total_distance", "average_heart_rate",
		},
		conflictColumns: []string{"id"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Workout)
			id := v.ID
			if id == "" {
				id = v.DedupKey()
			}
			return []any{id, v.UserID, v.Start, v.End, v.Source, v.Type, v.TotalEnergy, v.TotalDistance, v.AverageHeartRate}
		},
	},
	model.VariantBodyMeasurement: {
		table: "body_measurements", columns: []string{
			"user_id", "recorded_at", "source", "weight_kg", "height_cm", "bmi", "body_fat_pct", "lean_mass_kg", "waist_cm", "hip_cm", "basal_body_temp_c",
		},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.BodyMeasurement)
			return []any{v.UserID, v.RecordedAt, v.Source, v.WeightKg, v.HeightCm, v.BMI, v.BodyFatPct, v.LeanMassKg, v.WaistCm, v.HipCm, v.BasalBodyTempC}
		},
	},
	model.VariantEnvironmental: {
		table: "environmental", columns: []string{"user_id", "recorded_at", "source", "uv_index", "pressure_kpa", "humidity_pct", "ambient_temp_c"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Environmental)
			return []any{v.UserID, v.RecordedAt, v.Source, v.UVIndex, v.PressureKPa, v.HumidityPct, v.AmbientTempC}
		},
	},
	model.VariantAudioExposure: {
		table: "audio_exposure", columns: []string{"user_id", "recorded_at", "source", "kind", "db", "duration_seconds"},
		conflictColumns: []string{"user_id", "kind", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.AudioExposure)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Kind, v.DB, v.Duration.Seconds()}
		},
	},
	model.VariantRespiratory: {
		table: "respiratory", columns: []string{"user_id", "recorded_at", "source", "respiratory_rate", "oxygen_saturation"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Respiratory)
			return []any{v.UserID, v.RecordedAt, v.Source, v.RespiratoryRate, v.OxygenSaturation}
		},
	},
	model.VariantBloodGlucose: {
		table: "blood_glucose", columns: []string{"user_id", "recorded_at", "source", "mg_per_dl", "meal_context"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.BloodGlucose)
			return []any{v.UserID, v.RecordedAt, v.Source, v.MgPerDL, v.MealContext}
		},
	},
	model.VariantMetabolic: {
		table: "metabolic", columns: []string{"user_id", "recorded_at", "source", "kind", "value", "unit"},
		conflictColumns: []string{"user_id", "kind", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Metabolic)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Kind, v.Value, v.Unit}
		},
	},
	model.VariantNutrition: {
		table: "nutrition", columns: []string{"user_id", "recorded_at", "source", "nutrient", "amount", "unit"},
		conflictColumns: []string{"user_id", "nutrient", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Nutrition)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Nutrient, v.Amount, v.Unit}
		},
	},
	model.VariantMindfulness: {
		table: "mindfulness", columns: []string{"user_id", "interval_start", "interval_end", "source"},
		conflictColumns: []string{"user_id", "interval_start", "interval_end"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Mindfulness)
			return []any{v.UserID, v.Start, v.End, v.Source}
		},
	},
	model.VariantMentalHealth: {
		table: "mental_health", columns: []string{"user_id", "recorded_at", "source", "kind", "valence", "valence_classification", "labels"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.MentalHealth)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Kind, v.Valence, v.ValenceClassification, v.Labels}
		},
	},
	model.VariantSymptom: {
		table: "symptoms", columns: []string{"user_id", "recorded_at", "source", "event_type", "severity"},
		conflictColumns: []string{"user_id", "event_type", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Symptom)
			return []any{v.UserID, v.RecordedAt, v.Source, v.EventType, v.Severity}
		},
	},
	model.VariantHygiene: {
		table: "hygiene_events", columns: []string{"user_id", "recorded_at", "source", "event_type", "duration_seconds"},
		conflictColumns: []string{"user_id", "event_type", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Hygiene)
			return []any{v.UserID, v.RecordedAt, v.Source, v.EventType, v.Duration.Seconds()}
		},
	},
	model.VariantSafetyEvent: {
		table: "safety_events", columns: []string{"user_id", "recorded_at", "source", "event_type"},
		conflictColumns: []string{"user_id", "event_type", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.SafetyEvent)
			return []any{v.UserID, v.RecordedAt, v.Source, v.EventType}
		},
	},
	model.VariantTemperature: {
		table: "temperature", columns: []string{"user_id", "recorded_at", "source", "celsius", "context"},
		conflictColumns: []string{"user_id", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Temperature)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Celsius, v.Context}
		},
	},
	model.VariantMobility: {
		table: "mobility", columns: []string{"user_id", "recorded_at", "source", "metric_type", "value", "unit"},
		conflictColumns: []string{"user_id", "metric_type", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.Mobility)
			return []any{v.UserID, v.RecordedAt, v.Source, v.MetricType, v.Value, v.Unit}
		},
	},
	model.VariantReproductiveHealth: {
		table: "reproductive_health", columns: []string{"user_id", "recorded_at", "source", "category", "value"},
		conflictColumns: []string{"user_id", "category", "recorded_at"},
		argsFor: func(m model.Metric) []any {
			v := m.(model.ReproductiveHealth)
			return []any{v.UserID, v.RecordedAt, v.Source, v.Category, v.Value}
		},
	},
}

func encodeSleepStages(stages []model.SleepStageDuration) string {
	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		parts = append(parts, fmt.Sprintf("%s:%d", s.Stage, int64(s.Duration.Seconds())))
	}
	return strings.Join(parts, ",")
}

// WriteChunk implements batch.Writer: one parameterized, multi-row INSERT
// per call, driven by variantSpecs instead of one bespoke method per table.
func (db *DB) WriteChunk(ctx context.Context, variant model.Variant, rows []model.Metric) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	spec, ok := variantSpecs[variant]
	if !ok {
		return 0, apperr.New(apperr.CodeInternalError, fmt.Sprintf("no store mapping registered for variant %s", variant))
	}

	width := len(spec.columns)
	if width*len(rows) > 65535 {
		return 0, apperr.New(apperr.CodeParameterLimitExceeded,
			fmt.Sprintf("chunk of %d rows x %d columns exceeds the bound-parameter ceiling", len(rows), width))
	}

	args := make([]any, 0, width*len(rows))
	valueGroups := make([]string, 0, len(rows))
	for i, row := range rows {
		base := i * width
		placeholders := make([]string, width)
		for j := 0; j < width; j++ {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueGroups = append(valueGroups, "("+strings.Join(placeholders, ",")+")")
		args = append(args, spec.argsFor(row)...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s) DO NOTHING",
		spec.table, strings.Join(spec.columns, ","), strings.Join(valueGroups, ","), strings.Join(spec.conflictColumns, ","))

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStoreTransient, fmt.Sprintf("inserting %s rows", variant), err)
	}
	written := int(tag.RowsAffected())

	if variant == model.VariantWorkout {
		if err := db.writeWorkoutRoutes(ctx, rows); err != nil {
			return written, apperr.Wrap(apperr.CodeStoreTransient, "inserting workout route points", err)
		}
	}
	return written, nil
}

// writeWorkoutRoutes persists each workout's ordered route points into the
// workout_route_points child table, keyed by (workout_id, seq). A workout
// with zero route points is valid and simply writes nothing. Route sizes
// are small relative to the variant-row bound-parameter ceiling so each
// workout's points are inserted in one statement rather than chunked like
// the main variant writes.
func (db *DB) writeWorkoutRoutes(ctx context.Context, rows []model.Metric) error {
	for _, row := range rows {
		w := row.(model.Workout)
		if len(w.Route) == 0 {
			continue
		}
		id := w.ID
		if id == "" {
			id = w.DedupKey()
		}
		args := make([]any, 0, len(w.Route)*6)
		valueGroups := make([]string, 0, len(w.Route))
		for i, p := range w.Route {
			base := i * 6
			valueGroups = append(valueGroups, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6))
			args = append(args, id, i, p.Timestamp, p.Latitude, p.Longitude, p.Altitude)
		}
		query := fmt.Sprintf(
			`INSERT INTO workout_route_points (workout_id, seq, recorded_at, latitude, longitude, altitude)
			 VALUES %s ON CONFLICT (workout_id, seq) DO NOTHING`,
			strings.Join(valueGroups, ","))
		if _, err := db.Pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting route points for workout %s: %w", id, err)
		}
	}
	return nil
}
