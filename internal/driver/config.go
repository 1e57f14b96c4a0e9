package driver

import (
	"time"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
	"github.com/coreman2200/spirgbleds/internal/transition"
)

// ErrInvalidConfig is wrapped by Config.Validate failures.
var ErrInvalidConfig = errors.New("invalid driver config")

// Config is fixed for the lifetime of one Initialize.
type Config struct {
	// InitialColor is shown on both channels, constant, right after Initialize.
	InitialColor rgbw.Color

	TransitionsEnabled bool
	RefreshInterval    time.Duration
	TransitionTime     time.Duration

	// MaxWriteAttempts bounds the writes tried within one tick. Defaults to 3.
	MaxWriteAttempts int
	// MaxFailedTicks stops the loop after that many consecutive ticks whose
	// attempts were all exhausted. 0 never gives up.
	MaxFailedTicks int
}

// DefaultConfig is what the status plugin has always used: dark, 200ms
// transitions, 20ms refresh.
func DefaultConfig() Config {
	return Config{
		InitialColor:       rgbw.Off,
		TransitionsEnabled: true,
		RefreshInterval:    20 * time.Millisecond,
		TransitionTime:     200 * time.Millisecond,
		MaxWriteAttempts:   3,
	}
}

// Validate checks ranges and fills unset optional fields.
func (c *Config) Validate() error {
	if c.RefreshInterval <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "refresh interval %v must be positive", c.RefreshInterval)
	}
	if c.TransitionTime < 0 {
		return errors.Wrapf(ErrInvalidConfig, "transition time %v must not be negative", c.TransitionTime)
	}
	if c.MaxFailedTicks < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max failed ticks %d must not be negative", c.MaxFailedTicks)
	}
	if c.MaxWriteAttempts <= 0 {
		c.MaxWriteAttempts = 3
	}
	c.InitialColor = c.InitialColor.Clamp()
	return nil
}

func (c Config) transition() transition.Settings {
	return transition.Settings{Enabled: c.TransitionsEnabled, Duration: c.TransitionTime}
}
