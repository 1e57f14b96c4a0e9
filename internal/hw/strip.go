package hw

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nrzled"
)

// pixelDevice is the subset of *nrzled.Dev the strip needs.
type pixelDevice interface {
	Write(pixels []byte) (int, error)
	Halt() error
	String() string
}

// Strip mirrors the two channels onto an addressable RGBW strip
// (SK6812-class, NRZ over SPI). The first half of the pixels shows the left
// channel, the second half the right.
type Strip struct {
	dev    pixelDevice
	port   spi.PortCloser
	pixels int
	buf    []byte
}

// NewStrip opens an nrzled device with 4 channels per pixel on p.
func NewStrip(p spi.Port, closer spi.PortCloser, pixels int, freq physic.Frequency) (*Strip, error) {
	if pixels < 2 {
		return nil, errors.Errorf("strip: need at least 2 pixels, got %d", pixels)
	}
	if freq == 0 {
		freq = 2500 * physic.KiloHertz
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: pixels, Channels: 4, Freq: freq})
	if err != nil {
		return nil, errors.Wrap(err, "strip: nrzled")
	}
	return &Strip{dev: d, port: closer, pixels: pixels, buf: make([]byte, pixels*4)}, nil
}

func (s *Strip) String() string {
	if s.dev == nil {
		return "strip{closed}"
	}
	return "strip{" + s.dev.String() + "}"
}

// Encode lays out raw RGBW bytes for every pixel.
func (s *Strip) Encode(f Frame) []byte {
	left := f.Left.Bytes()
	right := f.Right.Bytes()
	half := s.pixels / 2
	for i := 0; i < s.pixels; i++ {
		src := left
		if i >= half {
			src = right
		}
		copy(s.buf[i*4:i*4+4], src[:])
	}
	return s.buf
}

func (s *Strip) Write(f Frame) error {
	if s.dev == nil {
		return ErrClosed
	}
	if _, err := s.dev.Write(s.Encode(f)); err != nil {
		return Unusable(errors.Wrap(err, "strip: write"))
	}
	return nil
}

func (s *Strip) Close() error {
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	if s.port != nil {
		if cerr := s.port.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	s.dev = nil
	return errors.Wrap(err, "strip: close")
}
