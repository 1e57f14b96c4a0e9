package hw

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"
)

// Console renders the two channels as colored blocks on the terminal. It is
// what Open falls back to when no SPI port is found.
type Console struct {
	drawer display.Drawer
	img    *image.NRGBA
	closed bool
}

// NewConsole draws to stdout through the periph screen device.
func NewConsole() *Console {
	return newConsole(screen.New(2))
}

func newConsole(d display.Drawer) *Console {
	return &Console{drawer: d, img: image.NewNRGBA(image.Rect(0, 0, 2, 1))}
}

func (c *Console) String() string { return "console" }

// toNRGBA folds the white component into each primary, as a white LED would
// appear next to the RGB die.
func toNRGBA(b [4]uint8) color.NRGBA {
	add := func(v, w uint8) uint8 {
		s := int(v) + int(w)
		if s > 255 {
			return 255
		}
		return uint8(s)
	}
	return color.NRGBA{R: add(b[0], b[3]), G: add(b[1], b[3]), B: add(b[2], b[3]), A: 255}
}

// Image returns the rendered 2x1 image of f.
func (c *Console) Image(f Frame) *image.NRGBA {
	c.img.SetNRGBA(0, 0, toNRGBA(f.Left.Bytes()))
	c.img.SetNRGBA(1, 0, toNRGBA(f.Right.Bytes()))
	return c.img
}

func (c *Console) Write(f Frame) error {
	if c.closed {
		return ErrClosed
	}
	if err := c.drawer.Draw(c.drawer.Bounds(), c.Image(f), image.Point{}); err != nil {
		return errors.Wrap(err, "console: draw")
	}
	return nil
}

func (c *Console) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Wrap(c.drawer.Halt(), "console: halt")
}
