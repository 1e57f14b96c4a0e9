// Package status maps printer states and raw light commands onto driver
// requests.
package status

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/coreman2200/spirgbleds/internal/driver"
	"github.com/coreman2200/spirgbleds/internal/pattern"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

// ErrInvalidPattern wraps pattern.ErrInvalidPattern for unknown codes.
var ErrInvalidPattern = errors.Wrap(pattern.ErrInvalidPattern, "unknown pattern code")

// ErrUnknownState is returned for state names missing from the palette.
var ErrUnknownState = errors.New("unknown status state")

// PatternCode is the integer pattern selector stored with each state.
type PatternCode int

const (
	Constant PatternCode = iota
	FastPulsing
	NormalPulsing
	SlowPulsing
)

var codeNames = [...]string{"constant", "fast", "normal", "slow"}

// Period is the pulse period of c. Constant has none.
func (c PatternCode) Period() (time.Duration, error) {
	switch c {
	case Constant:
		return 0, nil
	case FastPulsing:
		return time.Second, nil
	case NormalPulsing:
		return 2 * time.Second, nil
	case SlowPulsing:
		return 4 * time.Second, nil
	}
	return 0, errors.Wrapf(ErrInvalidPattern, "%d", int(c))
}

func (c PatternCode) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "pattern(" + strconv.Itoa(int(c)) + ")"
}

// UnmarshalText accepts a code name or its number.
func (c *PatternCode) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range codeNames {
		if s == n {
			*c = PatternCode(i)
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.Wrapf(ErrInvalidPattern, "%q", s)
	}
	if _, err := PatternCode(n).Period(); err != nil {
		return err
	}
	*c = PatternCode(n)
	return nil
}

func (c PatternCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// State names a printer condition with its own light setting.
type State string

const (
	Startup  State = "startup"
	Idle     State = "idle"
	Paused   State = "paused"
	Error    State = "error"
	Heating  State = "heating"
	Printing State = "printing"
	Finished State = "finished"
)

// States lists every known state in display order.
var States = []State{Startup, Idle, Paused, Error, Heating, Printing, Finished}

// Entry is the light setting for one state.
type Entry struct {
	Color   rgbw.Color  `yaml:"color" toml:"color"`
	Pattern PatternCode `yaml:"pattern" toml:"pattern"`
}

// Palette holds an entry per state.
type Palette map[State]Entry

// DefaultPalette returns the stock colors: green while starting, idle,
// paused or finished; red slow pulse on error; orange while heating and
// white while printing.
func DefaultPalette() Palette {
	return Palette{
		Startup:  {Color: rgbw.ParseHex("#00FF00"), Pattern: NormalPulsing},
		Idle:     {Color: rgbw.ParseHex("#00FF00"), Pattern: Constant},
		Paused:   {Color: rgbw.ParseHex("#00FF00"), Pattern: Constant},
		Error:    {Color: rgbw.ParseHex("#FF0000"), Pattern: SlowPulsing},
		Heating:  {Color: rgbw.ParseHex("#FF8000"), Pattern: NormalPulsing},
		Printing: {Color: rgbw.ParseHex("#FFFFFF"), Pattern: Constant},
		Finished: {Color: rgbw.ParseHex("#00FF00"), Pattern: NormalPulsing},
	}
}

// Controller is the part of driver.Driver status needs.
type Controller interface {
	SetConstantColor(t driver.Target, c rgbw.Color) error
	SetPulsingColor(t driver.Target, c rgbw.Color, period time.Duration) error
	SetBlinkingColor(t driver.Target, c rgbw.Color, period time.Duration) error
}

// Apply requests c on t with the pattern code selects.
func Apply(ctl Controller, t driver.Target, code PatternCode, c rgbw.Color) error {
	period, err := code.Period()
	if err != nil {
		return err
	}
	if code == Constant {
		return ctl.SetConstantColor(t, c)
	}
	return ctl.SetPulsingColor(t, c, period)
}

// Off darkens both channels.
func Off(ctl Controller) error {
	return ctl.SetConstantColor(driver.Both, rgbw.Off)
}

// Lights applies palette entries, raw commands and direct requests to a
// controller. Palette entries and raw commands address both channels.
type Lights struct {
	ctl   Controller
	log   zerolog.Logger
	scale Scale

	mu      sync.Mutex
	palette Palette
	enabled bool
}

// NewLights returns enabled lights. Entries missing from p fall back to
// DefaultPalette.
func NewLights(ctl Controller, p Palette, scale Scale, log zerolog.Logger) *Lights {
	merged := DefaultPalette()
	for s, e := range p {
		merged[s] = e
	}
	return &Lights{
		ctl:     ctl,
		log:     log.With().Str("component", "status").Logger(),
		scale:   scale,
		palette: merged,
		enabled: true,
	}
}

// SetEnabled switches the lights on or off. Disabled lights stay dark
// whatever is requested.
func (l *Lights) SetEnabled(on bool) error {
	l.mu.Lock()
	l.enabled = on
	l.mu.Unlock()
	if !on {
		return Off(l.ctl)
	}
	return nil
}

// Set replaces the entry for s.
func (l *Lights) Set(s State, e Entry) error {
	if _, err := e.Pattern.Period(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.palette[s] = e
	return nil
}

// Entry returns the current entry for s.
func (l *Lights) Entry(s State) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.palette[s]
	return e, ok
}

// Show lights the entry for s. Unknown pattern codes are logged and leave
// the lights as they were.
func (l *Lights) Show(s State) error {
	l.mu.Lock()
	e, ok := l.palette[s]
	on := l.enabled
	l.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrUnknownState, string(s))
	}
	if !on {
		return Off(l.ctl)
	}
	return l.send(driver.Both, e.Pattern, e.Color, string(s))
}

// Preview lights a color and pattern without touching the palette.
func (l *Lights) Preview(code PatternCode, c rgbw.Color) error {
	return l.send(driver.Both, code, c, "preview")
}

// Request lights c on t with the pattern code selects.
func (l *Lights) Request(t driver.Target, code PatternCode, c rgbw.Color) error {
	return l.send(t, code, c, "request")
}

// Blink switches c on and off on t once per period.
func (l *Lights) Blink(t driver.Target, c rgbw.Color, period time.Duration) error {
	return l.apply("blink", c, "blink", func() error {
		return l.ctl.SetBlinkingColor(t, c, period)
	})
}

// Command handles a raw M150 line. It reports whether the line was one.
func (l *Lights) Command(line string) (bool, error) {
	c, ok := ParseM150(line, l.scale)
	if !ok {
		return false, nil
	}
	l.log.Debug().Str("cmd", line).Str("color", c.Hex()).Msg("M150")
	return true, l.send(driver.Both, Constant, c, "M150")
}

// Off darkens both channels regardless of the enabled flag.
func (l *Lights) Off() error {
	l.log.Debug().Msg("lights off")
	return Off(l.ctl)
}

func (l *Lights) send(t driver.Target, code PatternCode, c rgbw.Color, what string) error {
	return l.apply(what, c, code.String(), func() error {
		return Apply(l.ctl, t, code, c)
	})
}

// apply runs set unless the lights are disabled, in which case they go dark.
func (l *Lights) apply(what string, c rgbw.Color, kind string, set func() error) error {
	l.mu.Lock()
	on := l.enabled
	l.mu.Unlock()
	if !on {
		return Off(l.ctl)
	}
	err := set()
	if errors.Is(err, pattern.ErrInvalidPattern) {
		l.log.Warn().Err(err).Str("for", what).Msg("pattern ignored")
		return err
	}
	if err != nil {
		return err
	}
	l.log.Debug().Str("for", what).Str("color", c.Hex()).Str("pattern", kind).Msg("lights set")
	return nil
}
