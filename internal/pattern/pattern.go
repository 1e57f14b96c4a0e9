package pattern

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// ErrInvalidPattern is returned for patterns that cannot be evaluated,
// e.g. a pulsing pattern without a positive period.
var ErrInvalidPattern = errors.New("invalid pattern")

// Kind enumerates the waveform rules a channel can follow.
type Kind uint8

const (
	Constant Kind = iota
	Pulsing
	Blinking
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Pulsing:
		return "pulsing"
	case Blinking:
		return "blinking"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Pattern is the rule driving a channel's instantaneous color.
// Period is ignored for Constant.
type Pattern struct {
	Kind   Kind
	Color  rgbw.Color
	Period time.Duration
}

// NewConstant holds c indefinitely.
func NewConstant(c rgbw.Color) Pattern {
	return Pattern{Kind: Constant, Color: c.Clamp()}
}

// NewPulsing breathes c from dark to full and back once per period.
func NewPulsing(c rgbw.Color, period time.Duration) (Pattern, error) {
	p := Pattern{Kind: Pulsing, Color: c.Clamp(), Period: period}
	return p, p.Validate()
}

// NewBlinking shows c for the first half of each period and nothing for the second.
func NewBlinking(c rgbw.Color, period time.Duration) (Pattern, error) {
	p := Pattern{Kind: Blinking, Color: c.Clamp(), Period: period}
	return p, p.Validate()
}

// Validate reports whether p can be evaluated.
func (p Pattern) Validate() error {
	switch p.Kind {
	case Constant:
		return nil
	case Pulsing, Blinking:
		if p.Period <= 0 {
			return errors.Wrapf(ErrInvalidPattern, "%s period %v must be positive", p.Kind, p.Period)
		}
		return nil
	default:
		return errors.Wrapf(ErrInvalidPattern, "unknown %s", p.Kind)
	}
}

func (p Pattern) String() string {
	if p.Kind == Constant {
		return fmt.Sprintf("%s(%s)", p.Kind, p.Color.Hex())
	}
	return fmt.Sprintf("%s(%s, %v)", p.Kind, p.Color.Hex(), p.Period)
}
