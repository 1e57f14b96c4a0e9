package pattern

import (
	"time"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// clamp01 clamps x in [0,1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// smoothstep 3x^2 - 2x^3
func smoothstep(x float64) float64 {
	return x * x * (3 - 2*x)
}

// phase returns the position within the current period in [0,1).
func phase(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(elapsed%period) / float64(period)
}

// Breath is the pulsing brightness envelope: 0 at phase 0, 1 at phase 0.5,
// back to 0 at phase 1. The triangle is eased so the ends of each ramp meet
// with zero slope.
func Breath(elapsed, period time.Duration) float64 {
	x := phase(elapsed, period)
	tri := 1 - abs(1-2*x)
	return clamp01(smoothstep(tri))
}

// Square is 1 during the first half of the period and 0 during the second.
func Square(elapsed, period time.Duration) float64 {
	if phase(elapsed, period) < 0.5 {
		return 1
	}
	return 0
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Evaluate returns the color p produces elapsed after it was activated.
// Patterns that fail Validate evaluate to their color held constant.
func Evaluate(p Pattern, elapsed time.Duration) rgbw.Color {
	if elapsed < 0 {
		elapsed = 0
	}
	if p.Validate() != nil {
		return p.Color.Clamp()
	}
	switch p.Kind {
	case Pulsing:
		return p.Color.Scale(Breath(elapsed, p.Period))
	case Blinking:
		return p.Color.Scale(Square(elapsed, p.Period))
	default:
		return p.Color.Clamp()
	}
}
