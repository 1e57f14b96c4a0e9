package hw

import (
	"sync"
)

// Fake records every frame it is given. Failures can be queued to exercise
// retry handling. Safe for concurrent inspection while a loop writes to it.
type Fake struct {
	mu       sync.Mutex
	frames   []Frame
	attempts int
	written  int
	failures []error
	failAll  error
	closed   bool

	// Keep bounds the number of retained frames; 0 keeps everything.
	Keep int
}

func (d *Fake) String() string { return "fake" }

// FailNext queues errs to be returned by the next len(errs) writes.
func (d *Fake) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// FailAlways makes every write return err until called again with nil.
func (d *Fake) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

func (d *Fake) Write(f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.closed {
		return ErrClosed
	}
	if d.failAll != nil {
		return d.failAll
	}
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			return err
		}
	}
	d.written++
	d.frames = append(d.frames, f)
	if d.Keep > 0 && len(d.frames) > d.Keep {
		d.frames = d.frames[len(d.frames)-d.Keep:]
	}
	return nil
}

func (d *Fake) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Count is the number of frames written successfully, retained or not.
func (d *Fake) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Attempts counts every Write call, failed or not.
func (d *Fake) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Last returns the most recent frame and whether there was one.
func (d *Fake) Last() (Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return Frame{}, false
	}
	return d.frames[len(d.frames)-1], true
}

// Frames returns a copy of the retained frames.
func (d *Fake) Frames() []Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Frame, len(d.frames))
	copy(out, d.frames)
	return out
}

func (d *Fake) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
