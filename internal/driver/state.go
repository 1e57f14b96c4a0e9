package driver

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/transition"
)

// ErrInvalidTarget is returned for Target values outside Left, Right, Both.
var ErrInvalidTarget = errors.New("invalid target")

// Target addresses one or both channels. Values match the status plugin's
// wire encoding.
type Target uint8

const (
	Right Target = 0
	Left  Target = 1
	Both  Target = 2
)

// Channel indexes within a frame.
const (
	ChannelLeft = iota
	ChannelRight
	numChannels
)

func (t Target) String() string {
	switch t {
	case Left:
		return "left"
	case Right:
		return "right"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("target(%d)", uint8(t))
	}
}

// ParseTarget accepts "left", "right" or "both".
func ParseTarget(s string) (Target, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "both", "":
		return Both, nil
	default:
		return Both, errors.Wrap(ErrInvalidTarget, s)
	}
}

func (t Target) channels() ([]int, error) {
	switch t {
	case Left:
		return []int{ChannelLeft}, nil
	case Right:
		return []int{ChannelRight}, nil
	case Both:
		return []int{ChannelLeft, ChannelRight}, nil
	default:
		return nil, errors.Wrap(ErrInvalidTarget, t.String())
	}
}

// ChannelState is one physical channel's pattern and timing anchors.
type ChannelState = transition.State
