// Package config loads spirgbleds settings with CLI > env > file precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/spirgbleds/internal/driver"
	"github.com/coreman2200/spirgbleds/internal/hw"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
	"github.com/coreman2200/spirgbleds/internal/status"
)

var ErrInvalid = errors.New("invalid config")

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Pretty bool   `yaml:"pretty" toml:"pretty"`
}

type Driver struct {
	InitialColor      rgbw.Color `yaml:"initial_color" toml:"initial_color"`
	Transitions       bool       `yaml:"transitions" toml:"transitions"`
	RefreshIntervalMs int        `yaml:"refresh_interval_ms" toml:"refresh_interval_ms"`
	TransitionTimeMs  int        `yaml:"transition_time_ms" toml:"transition_time_ms"`
	MaxWriteAttempts  int        `yaml:"max_write_attempts" toml:"max_write_attempts"`
	MaxFailedTicks    int        `yaml:"max_failed_ticks" toml:"max_failed_ticks"`
}

type Hardware struct {
	Kind     string `yaml:"kind" toml:"kind"` // tlc5947 | strip | console | sim
	Port     string `yaml:"port" toml:"port"`
	SpeedHz  int64  `yaml:"speed_hz" toml:"speed_hz"`
	Latch    string `yaml:"latch" toml:"latch"`
	Blank    string `yaml:"blank" toml:"blank"`
	Pixels   int    `yaml:"pixels" toml:"pixels"`
	Fallback bool   `yaml:"fallback" toml:"fallback"`
}

type Status struct {
	Enabled bool           `yaml:"enabled" toml:"enabled"`
	Scale   status.Scale   `yaml:"m150_scale" toml:"m150_scale"`
	Palette status.Palette `yaml:"palette" toml:"palette"`
}

type Config struct {
	Log      Log      `yaml:"log" toml:"log"`
	Driver   Driver   `yaml:"driver" toml:"driver"`
	Hardware Hardware `yaml:"hardware" toml:"hardware"`
	Status   Status   `yaml:"status" toml:"status"`
}

// Default mirrors driver.DefaultConfig and hw.DefaultOptions.
func Default() *Config {
	d := driver.DefaultConfig()
	o := hw.DefaultOptions()
	return &Config{
		Log: Log{Level: "info", Pretty: true},
		Driver: Driver{
			InitialColor:      d.InitialColor,
			Transitions:       d.TransitionsEnabled,
			RefreshIntervalMs: int(d.RefreshInterval / time.Millisecond),
			TransitionTimeMs:  int(d.TransitionTime / time.Millisecond),
			MaxWriteAttempts:  d.MaxWriteAttempts,
			MaxFailedTicks:    d.MaxFailedTicks,
		},
		Hardware: Hardware{
			Kind:     o.Kind,
			Port:     o.Port,
			SpeedHz:  o.SpeedHz,
			Latch:    o.Latch,
			Blank:    o.Blank,
			Pixels:   o.Pixels,
			Fallback: o.Fallback,
		},
		Status: Status{Enabled: true, Scale: status.Scale255},
	}
}

// Load reads path on top of Default, then applies SPIRGBLEDS_* environment
// overrides. An empty path skips the file. The result is validated.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// readFile decodes TOML for .toml files and YAML otherwise.
func (c *Config) readFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, c)
	default:
		err = yaml.Unmarshal(b, c)
	}
	return errors.Wrapf(err, "parse %s", path)
}

// Save writes c as YAML or TOML by extension.
func Save(path string, c *Config) error {
	var (
		b   []byte
		err error
	)
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		b, err = toml.Marshal(c)
	} else {
		b, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return os.WriteFile(path, b, 0644)
}

// envView is the flat set of environment overrides. It is seeded from the
// current values so unset variables leave them alone.
type envView struct {
	LogLevel          string `env:"SPIRGBLEDS_LOG_LEVEL"`
	LogPretty         bool   `env:"SPIRGBLEDS_LOG_PRETTY"`
	InitialColor      string `env:"SPIRGBLEDS_INITIAL_COLOR"`
	Transitions       bool   `env:"SPIRGBLEDS_TRANSITIONS"`
	RefreshIntervalMs int    `env:"SPIRGBLEDS_REFRESH_INTERVAL_MS"`
	TransitionTimeMs  int    `env:"SPIRGBLEDS_TRANSITION_TIME_MS"`
	MaxWriteAttempts  int    `env:"SPIRGBLEDS_MAX_WRITE_ATTEMPTS"`
	MaxFailedTicks    int    `env:"SPIRGBLEDS_MAX_FAILED_TICKS"`
	Kind              string `env:"SPIRGBLEDS_HARDWARE"`
	Port              string `env:"SPIRGBLEDS_SPI_PORT"`
	SpeedHz           int    `env:"SPIRGBLEDS_SPI_SPEED_HZ"`
	Latch             string `env:"SPIRGBLEDS_LATCH_PIN"`
	Blank             string `env:"SPIRGBLEDS_BLANK_PIN"`
	Pixels            int    `env:"SPIRGBLEDS_PIXELS"`
	Fallback          bool   `env:"SPIRGBLEDS_FALLBACK"`
	StatusEnabled     bool   `env:"SPIRGBLEDS_STATUS_ENABLED"`
	Scale             string `env:"SPIRGBLEDS_M150_SCALE"`
}

func (c *Config) applyEnv() error {
	v := envView{
		LogLevel:          c.Log.Level,
		LogPretty:         c.Log.Pretty,
		InitialColor:      c.Driver.InitialColor.Hex(),
		Transitions:       c.Driver.Transitions,
		RefreshIntervalMs: c.Driver.RefreshIntervalMs,
		TransitionTimeMs:  c.Driver.TransitionTimeMs,
		MaxWriteAttempts:  c.Driver.MaxWriteAttempts,
		MaxFailedTicks:    c.Driver.MaxFailedTicks,
		Kind:              c.Hardware.Kind,
		Port:              c.Hardware.Port,
		SpeedHz:           int(c.Hardware.SpeedHz),
		Latch:             c.Hardware.Latch,
		Blank:             c.Hardware.Blank,
		Pixels:            c.Hardware.Pixels,
		Fallback:          c.Hardware.Fallback,
		StatusEnabled:     c.Status.Enabled,
		Scale:             c.Status.Scale.String(),
	}
	seeded := v
	if err := env.Parse(&v); err != nil {
		return errors.Wrap(err, "environment")
	}

	c.Log = Log{Level: v.LogLevel, Pretty: v.LogPretty}
	if v.InitialColor != seeded.InitialColor {
		col, err := rgbw.ParseHexStrict(v.InitialColor)
		if err != nil {
			return errors.Wrap(ErrInvalid, err.Error())
		}
		c.Driver.InitialColor = col
	}
	c.Driver.Transitions = v.Transitions
	c.Driver.RefreshIntervalMs = v.RefreshIntervalMs
	c.Driver.TransitionTimeMs = v.TransitionTimeMs
	c.Driver.MaxWriteAttempts = v.MaxWriteAttempts
	c.Driver.MaxFailedTicks = v.MaxFailedTicks
	c.Hardware = Hardware{
		Kind:     v.Kind,
		Port:     v.Port,
		SpeedHz:  int64(v.SpeedHz),
		Latch:    v.Latch,
		Blank:    v.Blank,
		Pixels:   v.Pixels,
		Fallback: v.Fallback,
	}
	c.Status.Enabled = v.StatusEnabled
	return c.Status.Scale.UnmarshalText([]byte(v.Scale))
}

// Validate checks what the driver and hardware layers would reject later.
func (c *Config) Validate() error {
	dc := c.DriverConfig()
	if err := dc.Validate(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	switch strings.ToLower(c.Hardware.Kind) {
	case hw.KindTLC5947, hw.KindStrip, hw.KindConsole, hw.KindSim:
	default:
		return errors.Wrapf(ErrInvalid, "hardware kind %q", c.Hardware.Kind)
	}
	if strings.EqualFold(c.Hardware.Kind, hw.KindStrip) && c.Hardware.Pixels < 2 {
		return errors.Wrapf(ErrInvalid, "strip needs at least 2 pixels, got %d", c.Hardware.Pixels)
	}
	for s, e := range c.Status.Palette {
		if _, err := e.Pattern.Period(); err != nil {
			return errors.Wrapf(ErrInvalid, "palette %s: %v", s, err)
		}
	}
	return nil
}

// DriverConfig converts to the driver's settings.
func (c *Config) DriverConfig() driver.Config {
	return driver.Config{
		InitialColor:       c.Driver.InitialColor,
		TransitionsEnabled: c.Driver.Transitions,
		RefreshInterval:    time.Duration(c.Driver.RefreshIntervalMs) * time.Millisecond,
		TransitionTime:     time.Duration(c.Driver.TransitionTimeMs) * time.Millisecond,
		MaxWriteAttempts:   c.Driver.MaxWriteAttempts,
		MaxFailedTicks:     c.Driver.MaxFailedTicks,
	}
}

// HardwareOptions converts to hw.Open options.
func (c *Config) HardwareOptions() hw.Options {
	return hw.Options{
		Kind:     c.Hardware.Kind,
		Port:     c.Hardware.Port,
		SpeedHz:  c.Hardware.SpeedHz,
		Latch:    c.Hardware.Latch,
		Blank:    c.Hardware.Blank,
		Pixels:   c.Hardware.Pixels,
		Fallback: c.Hardware.Fallback,
	}
}
