package hw

import (
	"math"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// TLC5947 register layout.
//
// The chip is a 24 output, 12 bit constant-current PWM sink fed by a shift
// register. A frame is 24*12 = 288 bits (36 bytes), clocked MSB first
// starting with output 23 and ending with output 0. Rising XLAT copies the
// shift register into the PWM latches; BLANK high turns all outputs off.
//
// Outputs 0-3 carry the left channel R,G,B,W, outputs 4-7 the right channel.
// The remaining outputs are always written as 0.
const (
	TLC5947Outputs   = 24
	TLC5947MaxDuty   = 4095
	TLC5947FrameSize = TLC5947Outputs * 12 / 8
)

// Duty12 converts a normalized intensity into a 12 bit duty cycle value.
func Duty12(v float64) uint16 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return TLC5947MaxDuty
	}
	return uint16(math.Round(v * TLC5947MaxDuty))
}

// PackTLC5947 serializes 24 duty values into the chip's shift order.
func PackTLC5947(duty [TLC5947Outputs]uint16, dst []byte) {
	off := 0
	for i := TLC5947Outputs - 1; i > 0; i -= 2 {
		hi := duty[i] & 0xFFF
		lo := duty[i-1] & 0xFFF
		dst[off+0] = byte(hi >> 4)
		dst[off+1] = byte(hi<<4) | byte(lo>>8)
		dst[off+2] = byte(lo)
		off += 3
	}
}

// TLC5947 drives the two RGBW channels through a TLC5947 on an SPI bus.
type TLC5947 struct {
	conn  spi.Conn
	port  spi.PortCloser
	latch gpio.PinOut
	blank gpio.PinOut
	name  string

	duty [TLC5947Outputs]uint16
	buf  [TLC5947FrameSize]byte
}

// NewTLC5947 wraps an already connected bus. latch and blank may be nil when
// the board ties them off; port may be nil when the caller owns it.
func NewTLC5947(conn spi.Conn, port spi.PortCloser, latch, blank gpio.PinOut) (*TLC5947, error) {
	if conn == nil {
		return nil, errors.New("tlc5947: nil spi connection")
	}
	t := &TLC5947{conn: conn, port: port, latch: latch, blank: blank, name: "tlc5947{" + conn.String() + "}"}
	if t.latch != nil {
		if err := t.latch.Out(gpio.Low); err != nil {
			return nil, errors.Wrap(err, "tlc5947: latch")
		}
	}
	if t.blank != nil {
		if err := t.blank.Out(gpio.Low); err != nil {
			return nil, errors.Wrap(err, "tlc5947: blank")
		}
	}
	return t, nil
}

func (t *TLC5947) String() string {
	return t.name
}

// Encode fills the frame buffer for f and returns it. The slice is reused
// by the next call.
func (t *TLC5947) Encode(f Frame) []byte {
	for i := range t.duty {
		t.duty[i] = 0
	}
	for i, v := range f.Outputs() {
		t.duty[i] = Duty12(v)
	}
	PackTLC5947(t.duty, t.buf[:])
	return t.buf[:]
}

// Write shifts f into the chip and latches it.
func (t *TLC5947) Write(f Frame) error {
	if t.conn == nil {
		return ErrClosed
	}
	if err := t.conn.Tx(t.Encode(f), nil); err != nil {
		return Unusable(errors.Wrap(err, "tlc5947: tx"))
	}
	return t.pulseLatch()
}

func (t *TLC5947) pulseLatch() error {
	if t.latch == nil {
		return nil
	}
	if err := t.latch.Out(gpio.High); err != nil {
		return Unusable(errors.Wrap(err, "tlc5947: latch high"))
	}
	if err := t.latch.Out(gpio.Low); err != nil {
		return Unusable(errors.Wrap(err, "tlc5947: latch low"))
	}
	return nil
}

// Close writes a dark frame, raises BLANK and releases the port.
func (t *TLC5947) Close() error {
	if t.conn == nil {
		return nil
	}
	var errs []error
	if err := t.Write(Frame{}); err != nil {
		errs = append(errs, err)
	}
	if t.blank != nil {
		if err := t.blank.Out(gpio.High); err != nil {
			errs = append(errs, errors.Wrap(err, "tlc5947: blank"))
		}
	}
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "tlc5947: close port"))
		}
	}
	t.conn = nil
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
