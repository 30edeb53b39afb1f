// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"passthru/internal/engine"
	"passthru/internal/log"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PASSTHRU_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`                                            // Enable debug logging.
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"` // Logging level when debug is off.
	Audio     AudioConfig     `yaml:"audio"`                                            // Device selection and stream format.
	Engine    EngineConfig    `yaml:"engine"`                                           // Processing parameters.
	Control   ControlConfig   `yaml:"control"`                                          // Control loop timing.
	Transport TransportConfig `yaml:"transport"`                                        // Telemetry outputs.
}

// AudioConfig selects endpoints and the requested stream format.
type AudioConfig struct {
	InputDevice     string  `yaml:"input_device"`                                         // Endpoint name or ID; empty follows the system default.
	OutputDevice    string  `yaml:"output_device"`                                        // Endpoint name or ID; empty follows the system default.
	SampleRate      float64 `yaml:"sample_rate" validate:"omitempty,gte=8000,lte=192000"` // 0 uses the device default.
	Channels        int     `yaml:"channels" validate:"gte=0,lte=32"`                     // 0 uses what both endpoints support.
	FramesPerBuffer int     `yaml:"frames_per_buffer" validate:"gte=32,lte=4096"`         // Requested hardware buffer, rounded to a power of two.
}

// EngineConfig holds the processing parameters applied at startup.
type EngineConfig struct {
	StartRunning bool `yaml:"start_running"` // Start passthrough immediately.

	engine.Config `yaml:",inline"`
}

// ControlConfig tunes the control side of the engine.
type ControlConfig struct {
	RestartDelay        time.Duration `yaml:"restart_delay" validate:"gte=0,lte=5s"`          // Pause between teardown and rebuild.
	CatalogPollInterval time.Duration `yaml:"catalog_poll_interval" validate:"gte=100ms"`     // Device poll period when the platform cannot notify.
	TelemetryInterval   time.Duration `yaml:"telemetry_interval" validate:"gte=10ms,lte=10s"` // Telemetry frame period.
}

// TransportConfig holds settings for publishing telemetry frames.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`                                                                      // Serve frames on /ws.
	WebSocketAddress string `yaml:"websocket_address" validate:"required_if=WebSocketEnabled true,omitempty,hostname_port"` // Listen address.
	UDPEnabled       bool   `yaml:"udp_enabled"`                                                                            // Send binary frames over UDP.
	UDPTargetAddress string `yaml:"udp_target_address" validate:"required_if=UDPEnabled true,omitempty,hostname_port"`      // Target host:port.
	LogFrames        bool   `yaml:"log_frames"`                                                                             // Write frames to the debug log.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Audio: AudioConfig{
			FramesPerBuffer: engine.DefaultBufferFrames,
		},
		Engine: EngineConfig{
			Config: engine.DefaultConfig(),
		},
		Control: ControlConfig{
			RestartDelay:        engine.DefaultRestartDelay,
			CatalogPollInterval: 2 * time.Second,
			TelemetryInterval:   33 * time.Millisecond, // ~30Hz
		},
		Transport: TransportConfig{
			WebSocketAddress: "127.0.0.1:8080",
			UDPTargetAddress: "127.0.0.1:9090",
		},
	}
}

// searchPaths lists the files tried when no path is given.
var searchPaths = func() []string {
	paths := []string{"passthru.yaml", "config.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "passthru", "config.yaml"))
	}
	return paths
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the default locations. If no file is found, it uses built-in
// defaults. After loading, it applies environment variable overrides and
// validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("configuration: loaded %s", path)
	}

	// Environment overrides apply after the file.
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section, including the engine parameters.
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}

	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (got %v)", fieldPath(fe), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), err)
}

// fieldPath turns "Config.Audio.FramesPerBuffer" into "Audio.FramesPerBuffer".
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// applyEnvOverrides applies PASSTHRU_* variables. Malformed values are
// reported rather than ignored.
func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = val
			log.Debugf("configuration: overriding %s from env: %s", strings.ToLower(name), val)
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
			log.Debugf("configuration: overriding %s from env: %v", strings.ToLower(name), b)
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
			log.Debugf("configuration: overriding %s from env: %d", strings.ToLower(name), n)
		}
	}
	float := func(name string, dst *float32) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(val, 32)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = float32(f)
			log.Debugf("configuration: overriding %s from env: %v", strings.ToLower(name), f)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
			log.Debugf("configuration: overriding %s from env: %s", strings.ToLower(name), d)
		}
	}

	boolean("DEBUG", &c.Debug)
	str("LOG_LEVEL", &c.LogLevel)

	str("INPUT_DEVICE", &c.Audio.InputDevice)
	str("OUTPUT_DEVICE", &c.Audio.OutputDevice)
	integer("FRAMES_PER_BUFFER", &c.Audio.FramesPerBuffer)

	boolean("START_RUNNING", &c.Engine.StartRunning)
	float("GAIN", &c.Engine.Gain)
	boolean("GATE", &c.Engine.GateEnabled)
	float("GATE_THRESHOLD", &c.Engine.GateThreshold)
	boolean("METERING", &c.Engine.MeteringEnabled)

	duration("RESTART_DELAY", &c.Control.RestartDelay)
	duration("TELEMETRY_INTERVAL", &c.Control.TelemetryInterval)

	boolean("WS_ENABLED", &c.Transport.WebSocketEnabled)
	str("WS_ADDRESS", &c.Transport.WebSocketAddress)
	boolean("UDP_ENABLED", &c.Transport.UDPEnabled)
	str("UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)

	return errors.Join(errs...)
}
