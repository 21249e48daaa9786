// Package config loads engine settings from defaults, a TOML file and CADENCE_ env vars
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gdamore/tcell/v2"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "CADENCE_"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Duration is a time.Duration read from strings like "50ms" in TOML and env
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full engine and demo configuration
type Config struct {
	FPS             int      `toml:"fps" env:"FPS"`
	BehindThreshold Duration `toml:"behind_threshold" env:"BEHIND_THRESHOLD"`
	Splash          Duration `toml:"splash" env:"SPLASH"`
	Background      string   `toml:"background" env:"BACKGROUND"`
	Debug           bool     `toml:"debug" env:"DEBUG"`
	LogDir          string   `toml:"log_dir" env:"LOG_DIR"`

	Audio     AudioConfig     `toml:"audio" envPrefix:"AUDIO_"`
	Scripts   ScriptsConfig   `toml:"scripts" envPrefix:"SCRIPTS_"`
	Telemetry TelemetryConfig `toml:"telemetry" envPrefix:"TELEMETRY_"`
}

type AudioConfig struct {
	Enabled bool    `toml:"enabled" env:"ENABLED"`
	Volume  float64 `toml:"volume" env:"VOLUME"`
}

// ScriptsConfig locates Lua mods; empty Dir disables the script host
type ScriptsConfig struct {
	Dir string `toml:"dir" env:"DIR"`
}

// TelemetryConfig enables OTLP/HTTP trace export when Endpoint is set
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled" env:"ENABLED"`
	Endpoint    string `toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		FPS:             30,
		BehindThreshold: Duration{50 * time.Millisecond},
		Splash:          Duration{2 * time.Second},
		Background:      "black",
		LogDir:          "logs",
		Audio: AudioConfig{
			Enabled: true,
			Volume:  0.5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "cadence",
		},
	}
}

// Load layers defaults, the TOML file at path and environment overrides, then validates
// A missing file is not an error; an empty path skips the file layer
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := decodeTOML(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Validate checks ranges and the background colour name
func (c *Config) Validate() error {
	var errs []error
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	if c.BehindThreshold.Duration < 0 {
		errs = append(errs, fmt.Errorf("behind_threshold must not be negative, got %s", c.BehindThreshold))
	}
	if c.Splash.Duration < 0 {
		errs = append(errs, fmt.Errorf("splash must not be negative, got %s", c.Splash))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio.volume must be within [0,1], got %g", c.Audio.Volume))
	}
	if _, ok := parseColor(c.Background); !ok {
		errs = append(errs, fmt.Errorf("unknown background colour %q", c.Background))
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint required when telemetry is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// BackgroundColor resolves Background to a tcell colour
func (c *Config) BackgroundColor() tcell.Color {
	color, _ := parseColor(c.Background)
	return color
}

// parseColor accepts tcell colour names, #rrggbb, and "" or "default"
func parseColor(name string) (tcell.Color, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "default" {
		return tcell.ColorDefault, true
	}
	color := tcell.GetColor(name)
	return color, color != tcell.ColorDefault
}

// Encode renders c as TOML, used to write a starter config file
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
