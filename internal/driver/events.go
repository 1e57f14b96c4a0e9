package driver

import (
	"time"

	"github.com/kelindar/event"
)

// Event type constants for kelindar/event.
const (
	TypeStarted uint32 = iota + 1
	TypeStopped
	TypeWriteFailed
	TypeFatal
)

// Started is published once the drive loop is running.
type Started struct {
	Writer string
	At     time.Time
}

func (e Started) Type() uint32 { return TypeStarted }

// Stopped is published when the loop has exited, for any reason.
type Stopped struct {
	At time.Time
}

func (e Stopped) Type() uint32 { return TypeStopped }

// WriteFailed is published when a tick exhausted its write attempts. The
// loop keeps running.
type WriteFailed struct {
	Attempts int
	Err      error
	At       time.Time
}

func (e WriteFailed) Type() uint32 { return TypeWriteFailed }

// Fatal is published when the hardware became unusable and the loop stopped.
type Fatal struct {
	Err error
	At  time.Time
}

func (e Fatal) Type() uint32 { return TypeFatal }

func publish[T event.Event](d *event.Dispatcher, ev T) {
	if d == nil {
		return
	}
	event.Publish(d, ev)
}
