// Package transition blends a channel's previous output into its newly
// requested pattern.
package transition

import (
	"time"

	"github.com/coreman2200/spirgbleds/internal/pattern"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// Settings controls the length of the crossfade. A zero Duration, or
// Enabled=false, makes every change an instantaneous jump.
type Settings struct {
	Enabled  bool
	Duration time.Duration
}

// State is the part of a channel the blend depends on.
type State struct {
	Pattern     pattern.Pattern
	ActivatedAt time.Time

	// Origin is what the channel was showing when the pattern last changed.
	Origin    rgbw.Color
	StartedAt time.Time
}

// Ratio returns the blend position in [0,1] at now. 1 means the target
// pattern drives the output alone.
func Ratio(s State, now time.Time, cfg Settings) float64 {
	if !cfg.Enabled || cfg.Duration <= 0 {
		return 1
	}
	since := now.Sub(s.StartedAt)
	if since >= cfg.Duration {
		return 1
	}
	if since <= 0 {
		return 0
	}
	return float64(since) / float64(cfg.Duration)
}

// Compute returns the channel's output color at now.
func Compute(s State, now time.Time, cfg Settings) rgbw.Color {
	target := pattern.Evaluate(s.Pattern, now.Sub(s.ActivatedAt))
	alpha := Ratio(s, now, cfg)
	if alpha >= 1 {
		return target
	}
	return rgbw.Lerp(s.Origin, target, alpha)
}
