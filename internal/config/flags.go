package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// Flag names shared by every command.
const (
	FlagConfig      = "config"
	FlagLogLevel    = "log-level"
	FlagLogJSON     = "log-json"
	FlagHardware    = "hardware"
	FlagPort        = "spi-port"
	FlagSpeed       = "spi-speed"
	FlagLatch       = "latch-pin"
	FlagBlank       = "blank-pin"
	FlagPixels      = "pixels"
	FlagRefresh     = "refresh"
	FlagTransition  = "transition"
	FlagNoFade      = "no-transitions"
	FlagInitial     = "initial-color"
	FlagNoFallback  = "no-fallback"
	FlagM150Scale   = "m150-scale"
	FlagMaxAttempts = "max-write-attempts"
)

// BindFlags registers the config flags on fs with Default values.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringP(FlagConfig, "c", "", "YAML or TOML config file")
	fs.String(FlagLogLevel, d.Log.Level, "log level (trace, debug, info, warn, error)")
	fs.Bool(FlagLogJSON, false, "log JSON instead of console output")
	fs.String(FlagHardware, d.Hardware.Kind, "output device: tlc5947, strip, console or sim")
	fs.String(FlagPort, d.Hardware.Port, "SPI port name; empty picks the first")
	fs.Int64(FlagSpeed, d.Hardware.SpeedHz, "SPI clock in Hz")
	fs.String(FlagLatch, d.Hardware.Latch, "XLAT GPIO name")
	fs.String(FlagBlank, d.Hardware.Blank, "BLANK GPIO name; empty if not wired")
	fs.Int(FlagPixels, d.Hardware.Pixels, "pixel count for the strip device")
	fs.Int(FlagRefresh, d.Driver.RefreshIntervalMs, "refresh interval in ms")
	fs.Int(FlagTransition, d.Driver.TransitionTimeMs, "transition time in ms")
	fs.Bool(FlagNoFade, false, "jump between colors without transitions")
	fs.String(FlagInitial, d.Driver.InitialColor.Hex(), "color shown right after start")
	fs.Bool(FlagNoFallback, false, "fail instead of using the console when SPI is missing")
	fs.String(FlagM150Scale, d.Status.Scale.String(), "M150 value scale: 255 or unit")
	fs.Int(FlagMaxAttempts, d.Driver.MaxWriteAttempts, "write attempts per refresh tick")
}

// LoadWithFlags runs Load on the --config file, then applies every flag
// the user changed on fs.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	path, _ := fs.GetString(FlagConfig)
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyFlags(fs); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagLogLevel:
			c.Log.Level = f.Value.String()
		case FlagLogJSON:
			json, _ := fs.GetBool(FlagLogJSON)
			c.Log.Pretty = !json
		case FlagHardware:
			c.Hardware.Kind = f.Value.String()
		case FlagPort:
			c.Hardware.Port = f.Value.String()
		case FlagSpeed:
			c.Hardware.SpeedHz, err = fs.GetInt64(FlagSpeed)
		case FlagLatch:
			c.Hardware.Latch = f.Value.String()
		case FlagBlank:
			c.Hardware.Blank = f.Value.String()
		case FlagPixels:
			c.Hardware.Pixels, err = fs.GetInt(FlagPixels)
		case FlagRefresh:
			c.Driver.RefreshIntervalMs, err = fs.GetInt(FlagRefresh)
		case FlagTransition:
			c.Driver.TransitionTimeMs, err = fs.GetInt(FlagTransition)
		case FlagNoFade:
			var off bool
			off, err = fs.GetBool(FlagNoFade)
			c.Driver.Transitions = !off
		case FlagInitial:
			var col rgbw.Color
			col, err = rgbw.ParseHexStrict(f.Value.String())
			if err == nil {
				c.Driver.InitialColor = col
			}
		case FlagNoFallback:
			var off bool
			off, err = fs.GetBool(FlagNoFallback)
			c.Hardware.Fallback = !off
		case FlagM150Scale:
			err = c.Status.Scale.UnmarshalText([]byte(f.Value.String()))
		case FlagMaxAttempts:
			c.Driver.MaxWriteAttempts, err = fs.GetInt(FlagMaxAttempts)
		}
	})
	return errors.Wrap(err, "flags")
}
