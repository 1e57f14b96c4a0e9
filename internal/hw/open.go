package hw

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Writer kinds accepted by Open.
const (
	KindTLC5947 = "tlc5947"
	KindStrip   = "strip"
	KindConsole = "console"
	KindSim     = "sim"
)

// Options selects and configures the output device.
type Options struct {
	Kind    string
	Port    string // spireg name; "" picks the first port
	SpeedHz int64
	Latch   string // gpioreg pin name for XLAT
	Blank   string // gpioreg pin name for BLANK
	Pixels  int    // strip only

	// Fallback switches to the console writer when the bus cannot be opened.
	Fallback bool
}

// DefaultOptions matches a TLC5947 breakout on the Raspberry Pi SPI0 header.
func DefaultOptions() Options {
	return Options{
		Kind:     KindTLC5947,
		SpeedHz:  1_000_000,
		Latch:    "GPIO25",
		Fallback: true,
	}
}

// Open initializes the host drivers and returns the writer described by o.
func Open(logger zerolog.Logger, o Options) (Writer, error) {
	kind := strings.ToLower(o.Kind)
	switch kind {
	case KindSim:
		return &Fake{Keep: 1}, nil
	case KindConsole:
		return NewConsole(), nil
	case KindTLC5947, KindStrip, "":
	default:
		return nil, errors.Wrap(ErrNotSupported, o.Kind)
	}

	w, err := openBus(kind, o)
	if err != nil {
		if !o.Fallback {
			return nil, err
		}
		logger.Warn().Err(err).
			Str("driver", kind).
			Str("port", o.Port).
			Msg("SPI init failed; falling back to console")
		return NewConsole(), nil
	}
	logger.Info().Str("writer", w.String()).Msg("hardware opened")
	return w, nil
}

func openBus(kind string, o Options) (Writer, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host init")
	}
	port, err := spireg.Open(o.Port)
	if err != nil {
		return nil, errors.Wrapf(err, "open spi port %q", o.Port)
	}

	if kind == KindStrip {
		s, err := NewStrip(port, port, o.Pixels, 0)
		if err != nil {
			_ = port.Close()
			return nil, err
		}
		return s, nil
	}

	speed := physic.Frequency(o.SpeedHz) * physic.Hertz
	if speed <= 0 {
		speed = physic.MegaHertz
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "connect spi")
	}
	latch, err := pin(o.Latch)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	blank, err := pin(o.Blank)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	t, err := NewTLC5947(conn, port, latch, blank)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// pin resolves a named GPIO; an empty name means the signal is not wired.
func pin(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("gpio %q not found", name)
	}
	return p, nil
}
