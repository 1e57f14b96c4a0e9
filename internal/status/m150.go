package status

import (
	"strconv"
	"strings"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// Scale says how M150 parameter values map onto [0,1].
type Scale int

const (
	// Scale255 treats values as 0..255 bytes, as Marlin firmware does.
	Scale255 Scale = iota
	// ScaleUnit takes values as already in [0,1].
	ScaleUnit
)

func (s Scale) String() string {
	if s == ScaleUnit {
		return "unit"
	}
	return "255"
}

// UnmarshalText accepts "255" or "unit".
func (s *Scale) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "unit", "1":
		*s = ScaleUnit
	default:
		*s = Scale255
	}
	return nil
}

func (s Scale) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseM150 reads the color from an "M150 R.. U.. B.. W.." command. U and G
// both set green. Missing parameters are 0; malformed ones are skipped. ok
// is false when cmd is not an M150.
func ParseM150(cmd string, scale Scale) (c rgbw.Color, ok bool) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "M150") {
		return rgbw.Color{}, false
	}
	div := 255.0
	if scale == ScaleUnit {
		div = 1
	}
	for _, f := range fields[1:] {
		if len(f) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(f[1:], 64)
		if err != nil {
			continue
		}
		v /= div
		switch f[0] {
		case 'R', 'r':
			c.R = v
		case 'U', 'u', 'G', 'g':
			c.G = v
		case 'B', 'b':
			c.B = v
		case 'W', 'w':
			c.W = v
		}
	}
	return c.Clamp(), true
}
