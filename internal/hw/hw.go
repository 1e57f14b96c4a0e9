// Package hw turns two-channel RGBW frames into bus transactions.
//
// Writers are not safe for concurrent use; the drive loop is the only caller.
package hw

import (
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/rgbw"
)

var (
	// ErrUnusable marks failures after which the device cannot be written again.
	ErrUnusable = errors.New("hardware unusable")
	// ErrClosed is returned by writers used after Close.
	ErrClosed = errors.Wrap(ErrUnusable, "writer closed")
	// ErrNotSupported is returned by Open for unknown writer kinds.
	ErrNotSupported = errors.New("writer kind not supported")
)

// Frame is one refresh worth of output.
type Frame struct {
	Left  rgbw.Color
	Right rgbw.Color
}

// Outputs flattens the frame in PWM output order: left RGBW then right RGBW.
func (f Frame) Outputs() [8]float64 {
	l := f.Left.Clamp().Components()
	r := f.Right.Clamp().Components()
	return [8]float64{l[0], l[1], l[2], l[3], r[0], r[1], r[2], r[3]}
}

// Writer pushes frames to an LED output sink.
type Writer interface {
	// Write performs one blocking transfer of f.
	Write(f Frame) error
	// Close blanks the output and releases the bus.
	Close() error
	String() string
}

// Unusable wraps err with ErrUnusable when it indicates the underlying
// device is gone rather than a one-off transfer glitch.
func Unusable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnusable) {
		return err
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.ENODEV) ||
		errors.Is(err, syscall.EBADF) || errors.Is(err, syscall.ENXIO) {
		return errors.Wrap(ErrUnusable, err.Error())
	}
	return err
}
