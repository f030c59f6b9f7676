package slam

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given and the
// base that a config file is layered on top of
func DefaultConfig() *Config {
	return &Config{
		Particles: 100,
		Grid: GridConfig{
			Width:             400,
			Height:            400,
			Scale:             5,
			LogOddsOccupied:   0.85,
			LogOddsFree:       -0.4,
			LogOddsMin:        -5,
			LogOddsMax:        5,
			OccupiedThreshold: 0.5,
		},
		Odometry: OdometryConfig{
			TickDistance: 1,
			YawScale:     math.Pi / 180,
			BearingScale: math.Pi / 180,
			RangeScale:   1,
		},
		Motion: MotionConfig{
			TranslationGain:  0.1,
			TranslationFloor: 1,
			RotationGain:     0.1,
			RotationFloor:    0.01,
		},
		Measurement: MeasurementConfig{
			Sigma: 2,
		},
		Serial: PortOptions{
			BaudRate: DefaultBaudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
		},
		MQTT: MQTTConfig{
			PublishPrefix: "roverslam",
			ClientID:      "roverslam",
		},
		Render: RenderConfig{
			Upscale:       2,
			Annotate:      true,
			SimplifyError: 2,
		},
	}
}

// LoadConfig loads the configuration from a YAML file. Keys missing from the
// file keep their DefaultConfig values; MQTT settings may be overridden from
// the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides MQTT settings from MQTT_* environment variables
func (c *Config) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MQTT_BROKER", &c.MQTT.Broker},
		{"MQTT_CLIENT_ID", &c.MQTT.ClientID},
		{"MQTT_USERNAME", &c.MQTT.Username},
		{"MQTT_PASSWORD", &c.MQTT.Password},
		{"MQTT_PUBLISH_PREFIX", &c.MQTT.PublishPrefix},
		{"MQTT_STOP_TOPIC", &c.MQTT.StopTopic},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
}

// Validate checks that the configuration describes a usable filter
func (c *Config) Validate() error {
	if c.Particles <= 0 {
		return fmt.Errorf("particles must be positive, got %d", c.Particles)
	}

	g := c.Grid
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid.width and grid.height must be positive, got %dx%d", g.Width, g.Height)
	}
	if !(g.Scale > 0) || math.IsInf(g.Scale, 0) {
		return fmt.Errorf("grid.scale must be positive, got %v", g.Scale)
	}
	if g.LogOddsMin > 0 || g.LogOddsMax < 0 || g.LogOddsMin >= g.LogOddsMax {
		return fmt.Errorf("grid log-odds range [%v, %v] must contain 0", g.LogOddsMin, g.LogOddsMax)
	}
	if g.LogOddsOccupied <= 0 {
		return errors.New("grid.logOddsOccupied must be positive")
	}
	if g.LogOddsFree >= 0 {
		return errors.New("grid.logOddsFree must be negative")
	}
	if g.OccupiedThreshold <= 0 || g.OccupiedThreshold >= g.LogOddsMax {
		return fmt.Errorf("grid.occupiedThreshold must be in (0, %v), got %v", g.LogOddsMax, g.OccupiedThreshold)
	}
	if g.MaxRange < 0 {
		return fmt.Errorf("grid.maxRange must not be negative, got %v", g.MaxRange)
	}

	if c.Odometry.TickDistance <= 0 || c.Odometry.RangeScale <= 0 {
		return errors.New("odometry.tickDistance and odometry.rangeScale must be positive")
	}
	if c.Odometry.YawScale == 0 || c.Odometry.BearingScale == 0 {
		return errors.New("odometry.yawScale and odometry.bearingScale must be non-zero")
	}

	m := c.Motion
	if m.TranslationGain < 0 || m.TranslationFloor < 0 || m.RotationGain < 0 || m.RotationFloor < 0 {
		return errors.New("motion noise parameters must not be negative")
	}
	if !(c.Measurement.Sigma > 0) {
		return fmt.Errorf("measurement.sigma must be positive, got %v", c.Measurement.Sigma)
	}

	if _, err := c.Serial.Normalize(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	if c.Render.Upscale < 0 || c.Render.Every < 0 {
		return errors.New("render.upscale and render.every must not be negative")
	}
	return nil
}
