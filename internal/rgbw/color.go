package rgbw

import (
	"encoding/hex"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// ErrColorParse is returned by ParseHexStrict for strings that are not 6 or 8 hex digits.
var ErrColorParse = errors.New("malformed hex color")

// DefaultColor is substituted for colors that cannot be parsed. Blue.
var DefaultColor = Color{B: 1}

// Off is the all-zero color.
var Off = Color{}

// Color holds normalized red, green, blue and white intensities in [0,1].
type Color struct {
	R, G, B, W float64
}

// New returns a clamped color.
func New(r, g, b, w float64) Color {
	return Color{R: r, G: g, B: b, W: w}.Clamp()
}

// FromBytes maps 0..255 components to [0,1].
func FromBytes(r, g, b, w uint8) Color {
	return Color{
		R: float64(r) / 255.0,
		G: float64(g) / 255.0,
		B: float64(b) / 255.0,
		W: float64(w) / 255.0,
	}
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Clamp forces every component into [0,1]. NaN becomes 0.
func (c Color) Clamp() Color {
	return Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B), W: clamp01(c.W)}
}

// Scale multiplies every component by s and clamps the result.
func (c Color) Scale(s float64) Color {
	return Color{R: c.R * s, G: c.G * s, B: c.B * s, W: c.W * s}.Clamp()
}

// Lerp blends a into b. alpha 0 yields a, 1 yields b.
func Lerp(a, b Color, alpha float64) Color {
	alpha = clamp01(alpha)
	if alpha == 0 {
		return a.Clamp()
	}
	if alpha == 1 {
		return b.Clamp()
	}
	af := 1.0 - alpha
	return Color{
		R: a.R*af + b.R*alpha,
		G: a.G*af + b.G*alpha,
		B: a.B*af + b.B*alpha,
		W: a.W*af + b.W*alpha,
	}.Clamp()
}

// Components returns r, g, b, w in wire order.
func (c Color) Components() [4]float64 {
	return [4]float64{c.R, c.G, c.B, c.W}
}

// Bytes quantizes the color to 0..255 per component.
func (c Color) Bytes() [4]uint8 {
	var out [4]uint8
	for i, v := range c.Clamp().Components() {
		out[i] = uint8(math.Round(v * 255))
	}
	return out
}

// Hex formats the color as an 8 digit RRGGBBWW string prefixed with '#'.
func (c Color) Hex() string {
	b := c.Bytes()
	return "#" + strings.ToUpper(hex.EncodeToString(b[:]))
}

// ParseHexStrict parses "RRGGBB" or "RRGGBBWW", with or without a leading '#'.
// White defaults to 0 for the 6 digit form.
func ParseHexStrict(s string) (Color, error) {
	s = strings.TrimLeft(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return DefaultColor, errors.Wrapf(ErrColorParse, "%q has %d digits", s, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return DefaultColor, errors.Wrapf(ErrColorParse, "%q: %v", s, err)
	}
	var w uint8
	if len(raw) == 4 {
		w = raw[3]
	}
	return FromBytes(raw[0], raw[1], raw[2], w), nil
}

// ParseHex is ParseHexStrict with malformed input mapped to DefaultColor.
func ParseHex(s string) Color {
	c, err := ParseHexStrict(s)
	if err != nil {
		return DefaultColor
	}
	return c
}

// UnmarshalText lets config files carry colors as hex strings.
func (c *Color) UnmarshalText(text []byte) error {
	*c = ParseHex(string(text))
	return nil
}

// MarshalText writes the color back as a hex string.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}
