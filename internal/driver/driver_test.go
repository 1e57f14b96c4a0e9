package driver_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelindar/event"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/coreman2200/spirgbleds/internal/driver"
	"github.com/coreman2200/spirgbleds/internal/hw"
	"github.com/coreman2200/spirgbleds/internal/pattern"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

var (
	green = rgbw.New(0, 1, 0, 0)
	red   = rgbw.New(1, 0, 0, 0)
	white = rgbw.New(0, 0, 0, 1)
)

// manualClock only advances when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func assertColor(t *testing.T, want, got rgbw.Color) {
	t.Helper()
	w, g := want.Components(), got.Components()
	for i := range w {
		assert.InDelta(t, w[i], g[i], 1e-9, "component %d of %s vs %s", i, want.Hex(), got.Hex())
	}
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RefreshInterval = 5 * time.Millisecond
	return cfg
}

func TestLifecycleErrors(t *testing.T) {
	w := &hw.Fake{}
	d := New(w)

	assert.ErrorIs(t, d.Start(), ErrNotInitialized)
	assert.ErrorIs(t, d.SetConstantColor(Both, green), ErrNotInitialized)
	assert.False(t, d.Running())

	require.NoError(t, d.Initialize(fastConfig()))
	require.NoError(t, d.Start())
	require.NoError(t, d.Start(), "start while running is a no-op")
	assert.True(t, d.Running())
	assert.ErrorIs(t, d.Initialize(fastConfig()), ErrRunning)

	d.Stop()
	d.Stop()
	assert.False(t, d.Running())
	assert.ErrorIs(t, d.SetConstantColor(Both, green), ErrNotInitialized, "stop discards channel state")

	require.NoError(t, d.Initialize(fastConfig()))
	require.NoError(t, d.Start())
	require.NoError(t, d.Close())
	assert.True(t, w.Closed())
	assert.ErrorIs(t, d.Start(), ErrClosed)
	assert.ErrorIs(t, d.Initialize(fastConfig()), ErrClosed)
	assert.NoError(t, d.Close())
}

func TestInitializeRejectsBadConfig(t *testing.T) {
	d := New(&hw.Fake{})

	cfg := DefaultConfig()
	cfg.RefreshInterval = 0
	assert.ErrorIs(t, d.Initialize(cfg), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.TransitionTime = -time.Millisecond
	assert.ErrorIs(t, d.Initialize(cfg), ErrInvalidConfig)

	assert.ErrorIs(t, d.Start(), ErrNotInitialized)
}

func TestInitializeHoldsInitialColor(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	cfg := DefaultConfig()
	cfg.InitialColor = white
	require.NoError(t, d.Initialize(cfg))

	for _, ch := range d.Snapshot() {
		assert.Equal(t, pattern.Constant, ch.Pattern.Kind)
		assert.Equal(t, white, ch.Origin)
	}
	f := d.Output(clk.Now())
	assertColor(t, white, f.Left)
	assertColor(t, white, f.Right)
}

func TestTransitionBlendsLinearly(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	require.NoError(t, d.Initialize(DefaultConfig()))

	t0 := clk.Now()
	require.NoError(t, d.SetConstantColor(Both, green))

	assertColor(t, rgbw.Off, d.Output(t0).Left)
	assertColor(t, rgbw.New(0, 0.25, 0, 0), d.Output(t0.Add(50*time.Millisecond)).Left)
	assertColor(t, rgbw.New(0, 0.5, 0, 0), d.Output(t0.Add(100*time.Millisecond)).Right)
	assertColor(t, green, d.Output(t0.Add(200*time.Millisecond)).Left)
	assertColor(t, green, d.Output(t0.Add(time.Hour)).Right)
}

func TestRetargetStartsFromCurrentOutput(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	require.NoError(t, d.Initialize(DefaultConfig()))

	require.NoError(t, d.SetConstantColor(Both, green))
	mid := clk.Advance(100 * time.Millisecond)
	require.NoError(t, d.SetConstantColor(Left, red))

	snap := d.Snapshot()
	assertColor(t, rgbw.New(0, 0.5, 0, 0), snap[ChannelLeft].Origin)
	assert.Equal(t, mid, snap[ChannelLeft].StartedAt)
	assert.Equal(t, mid, snap[ChannelLeft].ActivatedAt)

	f := d.Output(mid)
	assertColor(t, rgbw.New(0, 0.5, 0, 0), f.Left)
	assertColor(t, rgbw.New(0, 0.5, 0, 0), f.Right)

	f = d.Output(mid.Add(100 * time.Millisecond))
	assertColor(t, rgbw.New(0.5, 0.25, 0, 0), f.Left)
	assertColor(t, green, f.Right)
}

func TestDisabledTransitionsJump(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	cfg := DefaultConfig()
	cfg.TransitionsEnabled = false
	require.NoError(t, d.Initialize(cfg))

	require.NoError(t, d.SetConstantColor(Right, red))
	f := d.Output(clk.Now())
	assertColor(t, red, f.Right)
	assertColor(t, rgbw.Off, f.Left)
}

func TestTargetsAddressChannels(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	cfg := DefaultConfig()
	cfg.TransitionsEnabled = false
	require.NoError(t, d.Initialize(cfg))

	require.NoError(t, d.SetConstantColor(Left, red))
	require.NoError(t, d.SetConstantColor(Right, green))
	f := d.Output(clk.Now())
	assertColor(t, red, f.Left)
	assertColor(t, green, f.Right)

	require.NoError(t, d.SetConstantColor(Both, white))
	f = d.Output(clk.Now())
	assertColor(t, white, f.Left)
	assertColor(t, white, f.Right)
}

func TestRejectedRequestsLeaveStateUnchanged(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	require.NoError(t, d.Initialize(DefaultConfig()))
	before := d.Snapshot()

	assert.ErrorIs(t, d.SetConstantColor(Target(7), red), ErrInvalidTarget)
	assert.ErrorIs(t, d.SetPulsingColor(Both, red, 0), pattern.ErrInvalidPattern)
	assert.ErrorIs(t, d.SetBlinkingColor(Left, red, -time.Second), pattern.ErrInvalidPattern)
	assert.Equal(t, before, d.Snapshot())
}

func TestHexRequests(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	cfg := DefaultConfig()
	cfg.TransitionsEnabled = false
	require.NoError(t, d.Initialize(cfg))

	require.NoError(t, d.SetConstantHex(Left, "#FF0000"))
	require.NoError(t, d.SetConstantHex(Right, "not a color"))
	f := d.Output(clk.Now())
	assertColor(t, red, f.Left)
	assertColor(t, rgbw.DefaultColor, f.Right)

	require.NoError(t, d.SetPulsingHex(Both, "00FF0000", 2*time.Second))
	snap := d.Snapshot()
	assert.Equal(t, pattern.Pulsing, snap[ChannelLeft].Pattern.Kind)
	assert.Equal(t, green, snap[ChannelRight].Pattern.Color)

	require.NoError(t, d.SetBlinkingHex(Right, "#000000FF", time.Second))
	assert.Equal(t, pattern.Blinking, d.Snapshot()[ChannelRight].Pattern.Kind)
}

func TestPulsingThroughOutput(t *testing.T) {
	clk := newManualClock()
	d := New(&hw.Fake{}, WithClock(clk.Now))
	cfg := DefaultConfig()
	cfg.TransitionsEnabled = false
	require.NoError(t, d.Initialize(cfg))

	t0 := clk.Now()
	require.NoError(t, d.SetPulsingColor(Both, red, time.Second))
	assertColor(t, rgbw.Off, d.Output(t0).Left)
	assertColor(t, red, d.Output(t0.Add(500*time.Millisecond)).Left)
	assertColor(t, rgbw.Off, d.Output(t0.Add(time.Second)).Right)
}

func TestNoWritesAfterStop(t *testing.T) {
	w := &hw.Fake{}
	d := New(w)
	require.NoError(t, d.Initialize(fastConfig()))
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool { return w.Count() >= 3 }, time.Second, time.Millisecond)
	d.Stop()
	n := w.Attempts()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, w.Attempts())
}

func TestFirstFrameIsImmediate(t *testing.T) {
	w := &hw.Fake{}
	d := New(w)
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	require.NoError(t, d.Initialize(cfg))
	require.NoError(t, d.Start())
	defer d.Stop()

	assert.Eventually(t, func() bool { return w.Count() == 1 }, time.Second, time.Millisecond)
}

func TestRetryWithinTick(t *testing.T) {
	w := &hw.Fake{}
	m := NewMetrics(prometheus.NewRegistry())
	d := New(w, WithMetrics(m))
	cfg := DefaultConfig()
	cfg.RefreshInterval = time.Hour
	require.NoError(t, d.Initialize(cfg))

	busy := errors.New("bus busy")
	w.FailNext(busy, busy)
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool { return w.Count() == 1 }, time.Second, time.Millisecond)
	d.Stop()

	assert.Equal(t, 3, w.Attempts())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WriteErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DroppedFrames))
	assert.NoError(t, d.Err())
}

func TestExhaustedRetriesKeepTicking(t *testing.T) {
	w := &hw.Fake{}
	m := NewMetrics(prometheus.NewRegistry())
	disp := event.NewDispatcher()
	var failures atomic.Int32
	defer event.Subscribe(disp, func(e WriteFailed) {
		if e.Attempts == 3 {
			failures.Add(1)
		}
	})()

	d := New(w, WithMetrics(m), WithDispatcher(disp))
	require.NoError(t, d.Initialize(fastConfig()))
	w.FailAlways(errors.New("nack"))
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool { return testutil.ToFloat64(m.DroppedFrames) >= 3 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return failures.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, d.Running())
	assert.NoError(t, d.Err())

	w.FailAlways(nil)
	assert.Eventually(t, func() bool { return w.Count() > 0 }, time.Second, time.Millisecond)
	d.Stop()
}

func TestUnusableHardwareStopsLoop(t *testing.T) {
	w := &hw.Fake{}
	m := NewMetrics(prometheus.NewRegistry())
	disp := event.NewDispatcher()
	var fatal, stopped atomic.Int32
	defer event.Subscribe(disp, func(Fatal) { fatal.Add(1) })()
	defer event.Subscribe(disp, func(Stopped) { stopped.Add(1) })()

	d := New(w, WithMetrics(m), WithDispatcher(disp))
	require.NoError(t, d.Initialize(fastConfig()))
	w.FailAlways(errors.Wrap(hw.ErrUnusable, "device removed"))
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool { return !d.Running() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, d.Err(), hw.ErrUnusable)
	assert.Equal(t, 1, w.Attempts(), "unusable hardware is not retried")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Running))
	assert.Eventually(t, func() bool { return fatal.Load() == 1 && stopped.Load() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, d.Start(), hw.ErrUnusable)
	assert.ErrorIs(t, d.SetConstantColor(Both, red), ErrNotInitialized)

	w.FailAlways(nil)
	require.NoError(t, d.Initialize(fastConfig()))
	assert.NoError(t, d.Err())
	require.NoError(t, d.Start())
	assert.Eventually(t, func() bool { return w.Count() > 0 }, time.Second, time.Millisecond)
	d.Stop()
}

func TestConsecutiveFailuresEscalate(t *testing.T) {
	w := &hw.Fake{}
	d := New(w)
	cfg := fastConfig()
	cfg.MaxWriteAttempts = 1
	cfg.MaxFailedTicks = 2
	require.NoError(t, d.Initialize(cfg))
	w.FailAlways(errors.New("nack"))
	require.NoError(t, d.Start())

	assert.Eventually(t, func() bool { return !d.Running() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, d.Err(), hw.ErrUnusable)
	assert.Equal(t, 2, w.Attempts())
}

func TestLifecycleEvents(t *testing.T) {
	disp := event.NewDispatcher()
	var started, stopped atomic.Int32
	var writer atomic.Value
	defer event.Subscribe(disp, func(e Started) {
		writer.Store(e.Writer)
		started.Add(1)
	})()
	defer event.Subscribe(disp, func(Stopped) { stopped.Add(1) })()

	m := NewMetrics(prometheus.NewRegistry())
	d := New(&hw.Fake{}, WithDispatcher(disp), WithMetrics(m))
	require.NoError(t, d.Initialize(fastConfig()))
	require.NoError(t, d.Start())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Running))
	d.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Running))

	assert.Eventually(t, func() bool { return started.Load() == 1 && stopped.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "fake", writer.Load())
}

func TestConcurrentRequestsSettleOnOne(t *testing.T) {
	w := &hw.Fake{Keep: 1}
	d := New(w)
	cfg := fastConfig()
	cfg.TransitionsEnabled = false
	require.NoError(t, d.Initialize(cfg))
	require.NoError(t, d.Start())
	defer d.Stop()

	colors := []rgbw.Color{red, green, white, rgbw.New(0, 0, 1, 0)}
	var requested []pattern.Pattern
	for i, c := range colors {
		requested = append(requested, pattern.NewConstant(c))
		p, err := pattern.NewPulsing(c, time.Duration(i+1)*time.Second)
		require.NoError(t, err)
		requested = append(requested, p)
	}

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(p pattern.Pattern) {
			defer wg.Done()
			if p.Kind == pattern.Pulsing {
				assert.NoError(t, d.SetPulsingColor(Both, p.Color, p.Period))
			} else {
				assert.NoError(t, d.SetConstantColor(Both, p.Color))
			}
		}(requested[i%len(requested)])
	}
	wg.Wait()

	snap := d.Snapshot()
	assert.Contains(t, requested, snap[ChannelLeft].Pattern)
	assert.Equal(t, snap[ChannelLeft], snap[ChannelRight])

	final := snap[ChannelLeft].Pattern
	assert.Eventually(t, func() bool {
		f, ok := w.Last()
		if !ok || f.Left != f.Right {
			return false
		}
		return final.Kind != pattern.Constant || f.Left == final.Color
	}, time.Second, time.Millisecond)
}

func TestStatusScenario(t *testing.T) {
	w := &hw.Fake{}
	d := New(w)
	require.NoError(t, d.Initialize(DefaultConfig()))
	require.NoError(t, d.Start())
	defer d.Stop()

	require.NoError(t, d.SetConstantColor(Both, green))
	assert.Eventually(t, func() bool {
		f, ok := w.Last()
		return ok && f.Left == green && f.Right == green
	}, 2*time.Second, 5*time.Millisecond)

	for _, f := range w.Frames() {
		for _, c := range []rgbw.Color{f.Left, f.Right} {
			assert.Zero(t, c.R)
			assert.Zero(t, c.B)
			assert.Zero(t, c.W)
			assert.LessOrEqual(t, c.G, 1.0)
		}
	}

	require.NoError(t, d.SetPulsingColor(Both, red, time.Second))
	assert.Eventually(t, func() bool {
		f, ok := w.Last()
		return ok && f.Left.G == 0 && f.Left.R > 0.5
	}, 3*time.Second, 5*time.Millisecond)

	f, _ := w.Last()
	assert.LessOrEqual(t, f.Left.R, 1.0)
	assert.Equal(t, f.Left, f.Right)
}
