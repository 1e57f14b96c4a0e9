package driver

import (
	"time"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/hw"
)

// run is the drive loop. It writes one frame immediately, then one per
// interval until stop is closed or the hardware becomes unusable.
func (d *Driver) run(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		d.metrics.Running.Set(0)
		publish(d.events, Stopped{At: time.Now()})
		close(done)
	}()

	failed := 0
	for {
		if err := d.tick(); err != nil {
			if errors.Is(err, hw.ErrUnusable) {
				d.fail(err)
				return
			}
			failed++
			d.metrics.DroppedFrames.Inc()
			d.log.Error().Err(err).Int("consecutive", failed).Msg("frame dropped")
			publish(d.events, WriteFailed{Attempts: d.attempts(), Err: err, At: time.Now()})
			if limit := d.failLimit(); limit > 0 && failed >= limit {
				d.fail(errors.Wrapf(hw.ErrUnusable, "%d consecutive failed ticks: %v", failed, err))
				return
			}
		} else {
			failed = 0
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		// stop wins over a tick that became ready at the same time
		select {
		case <-stop:
			return
		default:
		}
	}
}

// tick snapshots state under the lock, then computes and writes without it.
func (d *Driver) tick() error {
	start := time.Now()
	defer func() { d.metrics.TickSeconds.Observe(time.Since(start).Seconds()) }()

	d.mu.Lock()
	chans, settings, attempts := d.channels, d.cfg.transition(), d.cfg.MaxWriteAttempts
	d.mu.Unlock()

	return d.write(frameAt(chans, d.now(), settings), attempts)
}

// write tries f up to attempts times. Unusable-hardware errors end the
// retries at once.
func (d *Driver) write(f hw.Frame, attempts int) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = d.w.Write(f); err == nil {
			d.metrics.Frames.Inc()
			return nil
		}
		d.metrics.WriteErrors.Inc()
		if errors.Is(err, hw.ErrUnusable) {
			return err
		}
		d.log.Debug().Err(err).Int("attempt", i).Msg("write failed")
	}
	return errors.Wrapf(err, "write failed after %d attempts", attempts)
}

// fail records a fatal hardware fault. The loop exits right after.
func (d *Driver) fail(err error) {
	d.mu.Lock()
	d.fatal = err
	d.ready = false
	d.mu.Unlock()
	d.log.Error().Err(err).Msg("hardware unusable; drive loop stopping")
	publish(d.events, Fatal{Err: err, At: time.Now()})
}

func (d *Driver) attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MaxWriteAttempts
}

func (d *Driver) failLimit() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MaxFailedTicks
}
