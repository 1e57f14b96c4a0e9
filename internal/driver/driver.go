// Package driver owns the two LED channels and the loop that refreshes them.
//
// A Driver goes through Initialize, Start and Stop. Control calls (Set*) only
// mutate channel state under a mutex; the drive loop snapshots that state
// once per refresh interval, computes each channel's output and writes a
// single frame to the hardware with the lock released.
package driver

import (
	"sync"
	"time"

	"github.com/kelindar/event"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/coreman2200/spirgbleds/internal/hw"
	"github.com/coreman2200/spirgbleds/internal/pattern"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
	"github.com/coreman2200/spirgbleds/internal/transition"
)

var (
	ErrNotInitialized = errors.New("driver not initialized")
	ErrRunning        = errors.New("driver is running")
	ErrClosed         = errors.New("driver closed")
)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. Defaults to a disabled logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Driver) { d.log = l.With().Str("component", "driver").Logger() }
}

// WithClock replaces time.Now for pattern and transition timing.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithMetrics records loop activity on m.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithDispatcher publishes lifecycle and fault events on disp.
func WithDispatcher(disp *event.Dispatcher) Option {
	return func(d *Driver) { d.events = disp }
}

// Driver is one owned instance of the LED engine. Several may coexist.
type Driver struct {
	w       hw.Writer
	log     zerolog.Logger
	now     func() time.Time
	metrics *Metrics
	events  *event.Dispatcher

	// mu guards the fields below it; never held across hardware I/O.
	mu       sync.Mutex
	cfg      Config
	ready    bool
	channels [numChannels]ChannelState
	fatal    error

	// life serializes Initialize, Start, Stop and Close.
	life    sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// New returns a stopped, uninitialized driver writing to w.
func New(w hw.Writer, opts ...Option) *Driver {
	d := &Driver{
		w:       w,
		log:     zerolog.Nop(),
		now:     time.Now,
		metrics: NewMetrics(nil),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Initialize sets both channels to a constant cfg.InitialColor with no
// transition pending. It must be called before Start and cannot be called
// while running.
func (d *Driver) Initialize(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.life.Lock()
	defer d.life.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.loopAlive() {
		return ErrRunning
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	p := pattern.NewConstant(cfg.InitialColor)
	for i := range d.channels {
		d.channels[i] = ChannelState{
			Pattern:     p,
			ActivatedAt: now,
			Origin:      cfg.InitialColor,
			StartedAt:   now,
		}
	}
	d.cfg = cfg
	d.ready = true
	d.fatal = nil
	d.log.Debug().
		Str("color", cfg.InitialColor.Hex()).
		Bool("transitions", cfg.TransitionsEnabled).
		Dur("refresh", cfg.RefreshInterval).
		Dur("transition", cfg.TransitionTime).
		Msg("initialized")
	return nil
}

// Start spawns the drive loop. Calling it while running does nothing.
func (d *Driver) Start() error {
	d.life.Lock()
	defer d.life.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.loopAlive() {
		return nil
	}
	d.reap()

	d.mu.Lock()
	ready, interval, fatal := d.ready, d.cfg.RefreshInterval, d.fatal
	d.mu.Unlock()
	if !ready {
		if fatal != nil {
			return errors.Wrap(fatal, "stopped by hardware fault; initialize again")
		}
		return ErrNotInitialized
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true
	d.metrics.Running.Set(1)
	go d.run(d.stop, d.done, interval)

	d.log.Info().Str("writer", d.w.String()).Dur("refresh", interval).Msg("drive loop started")
	publish(d.events, Started{Writer: d.w.String(), At: time.Now()})
	return nil
}

// Stop ends the drive loop and waits for it to exit. No hardware write
// happens after Stop returns. Channel state is discarded; Initialize again
// before the next Start.
func (d *Driver) Stop() {
	d.life.Lock()
	defer d.life.Unlock()
	d.halt()
}

// Close stops the loop and releases the writer. The driver cannot be
// restarted afterwards.
func (d *Driver) Close() error {
	d.life.Lock()
	defer d.life.Unlock()
	if d.closed {
		return nil
	}
	d.halt()
	d.closed = true
	return errors.Wrap(d.w.Close(), "close writer")
}

// halt must be called with life held.
func (d *Driver) halt() {
	if !d.running {
		return
	}
	close(d.stop)
	<-d.done
	d.reap()

	d.mu.Lock()
	d.ready = false
	d.mu.Unlock()
	d.log.Info().Msg("drive loop stopped")
}

// loopAlive reports whether a loop goroutine is running. life must be held.
func (d *Driver) loopAlive() bool {
	if !d.running {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// reap clears the bookkeeping of a loop that has exited on its own.
func (d *Driver) reap() {
	if !d.running {
		return
	}
	d.running = false
}

// Running reports whether the drive loop is active.
func (d *Driver) Running() bool {
	d.life.Lock()
	defer d.life.Unlock()
	return d.loopAlive()
}

// Err returns the fault that stopped the loop, if any.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

// SetConstantColor holds c on the addressed channels.
func (d *Driver) SetConstantColor(t Target, c rgbw.Color) error {
	return d.apply(t, pattern.NewConstant(c))
}

// SetPulsingColor breathes c on the addressed channels once per period.
func (d *Driver) SetPulsingColor(t Target, c rgbw.Color, period time.Duration) error {
	p, err := pattern.NewPulsing(c, period)
	if err != nil {
		d.log.Warn().Err(err).Stringer("target", t).Msg("ignoring pulsing request")
		return err
	}
	return d.apply(t, p)
}

// SetBlinkingColor switches c on and off on the addressed channels.
func (d *Driver) SetBlinkingColor(t Target, c rgbw.Color, period time.Duration) error {
	p, err := pattern.NewBlinking(c, period)
	if err != nil {
		d.log.Warn().Err(err).Stringer("target", t).Msg("ignoring blinking request")
		return err
	}
	return d.apply(t, p)
}

// SetConstantHex is SetConstantColor with a "#RRGGBB[WW]" color. Malformed
// strings select rgbw.DefaultColor.
func (d *Driver) SetConstantHex(t Target, hex string) error {
	return d.SetConstantColor(t, d.parseHex(hex))
}

func (d *Driver) SetPulsingHex(t Target, hex string, period time.Duration) error {
	return d.SetPulsingColor(t, d.parseHex(hex), period)
}

func (d *Driver) SetBlinkingHex(t Target, hex string, period time.Duration) error {
	return d.SetBlinkingColor(t, d.parseHex(hex), period)
}

func (d *Driver) parseHex(s string) rgbw.Color {
	c, err := rgbw.ParseHexStrict(s)
	if err != nil {
		d.log.Warn().Err(err).Str("fallback", c.Hex()).Msg("bad color")
	}
	return c
}

// apply makes p the active pattern of every channel t addresses. The blend
// starts from whatever each channel shows right now.
func (d *Driver) apply(t Target, p pattern.Pattern) error {
	idx, err := t.channels()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return ErrNotInitialized
	}
	now := d.now()
	settings := d.cfg.transition()
	for _, i := range idx {
		ch := &d.channels[i]
		ch.Origin = transition.Compute(*ch, now, settings)
		ch.Pattern = p
		ch.ActivatedAt = now
		ch.StartedAt = now
	}
	d.log.Debug().Stringer("target", t).Stringer("pattern", p).Msg("pattern set")
	return nil
}

// Snapshot copies the channel states, left then right.
func (d *Driver) Snapshot() [numChannels]ChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels
}

// Output computes the frame the loop would write at now.
func (d *Driver) Output(now time.Time) hw.Frame {
	d.mu.Lock()
	chans, settings := d.channels, d.cfg.transition()
	d.mu.Unlock()
	return frameAt(chans, now, settings)
}

func frameAt(chans [numChannels]ChannelState, now time.Time, s transition.Settings) hw.Frame {
	return hw.Frame{
		Left:  transition.Compute(chans[ChannelLeft], now, s),
		Right: transition.Compute(chans[ChannelRight], now, s),
	}
}
