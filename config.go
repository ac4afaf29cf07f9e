package cvxkerb

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MissionConfig is the full description of a landing mission: where the
// vehicle starts, what it flies with, where it must land and how the guidance
// loop is tuned. It is read from a TOML file.
type MissionConfig struct {
	Name string

	// Vehicle.
	Position []float64
	Velocity []float64
	DryMass  float64
	FuelMass float64
	Engine   Engine

	// Environment.
	Gravity     float64
	PadAltitude float64

	// Guidance.
	Target         LandingTarget
	TickPeriod     time.Duration
	Horizon        HorizonParameters
	GlideSteepness float64
	Deadband       float64
	Ascent         []AscentStep
	MaxTicks       int

	// Export.
	Export ExportConfig
}

// LoadMissionConfig reads a mission from the given TOML file. Keys not present
// fall back to the stock defaults.
func LoadMissionConfig(path string) (MissionConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setMissionDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return MissionConfig{}, fmt.Errorf("could not read %s: %s", path, err)
	}

	horizon := DefaultHorizonParameters()
	horizon.Steps = v.GetInt("guidance.horizon_steps")
	horizon.StepDuration = v.GetFloat64("guidance.step_duration")
	horizon.FuelFactor = v.GetFloat64("guidance.fuel_factor")
	horizon.Gravity = v.GetFloat64("environment.gravity")
	horizon.Weights.Height = v.GetFloat64("guidance.weight_height")
	horizon.Weights.Lateral = v.GetFloat64("guidance.weight_lateral")
	horizon.Weights.Glide = v.GetFloat64("guidance.weight_glide")

	var ascent []AscentStep
	if err := v.UnmarshalKey("ascent", &ascent); err != nil {
		return MissionConfig{}, fmt.Errorf("invalid ascent script in %s: %s", path, err)
	}

	conf := MissionConfig{
		Name:     v.GetString("mission.name"),
		Position: floats3(v, "vehicle.position"),
		Velocity: floats3(v, "vehicle.velocity"),
		DryMass:  v.GetFloat64("vehicle.dry_mass"),
		FuelMass: v.GetFloat64("vehicle.fuel_mass"),
		Engine:   NewGenericEngine(v.GetFloat64("vehicle.max_thrust"), v.GetFloat64("vehicle.isp")),

		Gravity:     v.GetFloat64("environment.gravity"),
		PadAltitude: v.GetFloat64("environment.pad_altitude"),

		Target:         LandingTarget{Position: floats3(v, "guidance.target")},
		TickPeriod:     v.GetDuration("guidance.tick_period"),
		Horizon:        horizon,
		GlideSteepness: v.GetFloat64("guidance.glide_steepness"),
		Deadband:       v.GetFloat64("guidance.deadband"),
		Ascent:         ascent,
		MaxTicks:       v.GetInt("guidance.max_ticks"),

		Export: ExportConfig{
			Filename:  v.GetString("mission.name"),
			AsCSV:     v.GetBool("export.csv"),
			Timestamp: v.GetBool("export.timestamp"),
			OutputDir: v.GetString("export.output_path"),
		},
	}
	if conf.DryMass <= 0 {
		return MissionConfig{}, fmt.Errorf("vehicle.dry_mass must be positive in %s", path)
	}
	return conf, nil
}

// setMissionDefaults registers the stock values for every optional key.
func setMissionDefaults(v *viper.Viper) {
	stock := DefaultHorizonParameters()
	v.SetDefault("mission.name", "landing")
	v.SetDefault("vehicle.position", []float64{0, 0, 0})
	v.SetDefault("vehicle.velocity", []float64{0, 0, 0})
	v.SetDefault("vehicle.fuel_mass", 0.0)
	v.SetDefault("environment.gravity", stock.Gravity)
	v.SetDefault("environment.pad_altitude", 0.0)
	v.SetDefault("guidance.target", []float64{0, 0, 0})
	v.SetDefault("guidance.horizon_steps", stock.Steps)
	v.SetDefault("guidance.step_duration", stock.StepDuration)
	v.SetDefault("guidance.fuel_factor", stock.FuelFactor)
	v.SetDefault("guidance.weight_height", stock.Weights.Height)
	v.SetDefault("guidance.weight_lateral", stock.Weights.Lateral)
	v.SetDefault("guidance.weight_glide", stock.Weights.Glide)
	v.SetDefault("guidance.glide_steepness", DefaultGlideSteepness)
	v.SetDefault("guidance.deadband", DefaultDeadband)
	v.SetDefault("guidance.tick_period", time.Duration(0))
	v.SetDefault("guidance.max_ticks", 0)
	v.SetDefault("export.csv", false)
	v.SetDefault("export.timestamp", false)
	v.SetDefault("export.output_path", ".")
}

// floats3 reads a three-component vector, copying to avoid viper aliasing.
func floats3(v *viper.Viper, key string) []float64 {
	vals := v.Get(key)
	switch t := vals.(type) {
	case []float64:
		return append([]float64(nil), t...)
	case []interface{}:
		out := make([]float64, len(t))
		for i, raw := range t {
			switch x := raw.(type) {
			case float64:
				out[i] = x
			case int:
				out[i] = float64(x)
			case int64:
				out[i] = float64(x)
			}
		}
		return out
	}
	return []float64{0, 0, 0}
}
