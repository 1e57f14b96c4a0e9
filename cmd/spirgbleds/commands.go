package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/coreman2200/spirgbleds/internal/driver"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
	"github.com/coreman2200/spirgbleds/internal/status"
)

var errUsage = errors.New("unknown command")

// handleLine runs one line of the stdin protocol documented on the run
// command. Blank lines and lines starting with ';' are ignored. Every
// request goes through l so disabled lights stay dark.
func handleLine(l *status.Lights, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ";") {
		return nil
	}
	if ok, err := l.Command(line); ok {
		return err
	}

	f := strings.Fields(line)
	switch strings.ToLower(f[0]) {
	case "off":
		return l.Off()
	case "enable":
		return l.SetEnabled(true)
	case "disable":
		return l.SetEnabled(false)
	case "state":
		if len(f) != 2 {
			return errors.Wrap(errUsage, "state <name>")
		}
		return l.Show(status.State(strings.ToLower(f[1])))
	case "set":
		if len(f) != 4 {
			return errors.Wrap(errUsage, "set <target> <pattern> <hex>")
		}
		t, err := driver.ParseTarget(strings.ToLower(f[1]))
		if err != nil {
			return err
		}
		var code status.PatternCode
		if err := code.UnmarshalText([]byte(f[2])); err != nil {
			return err
		}
		c, err := rgbw.ParseHexStrict(f[3])
		if err != nil {
			return err
		}
		return l.Request(t, code, c)
	case "blink":
		if len(f) != 4 {
			return errors.Wrap(errUsage, "blink <target> <hex> <period>")
		}
		t, err := driver.ParseTarget(strings.ToLower(f[1]))
		if err != nil {
			return err
		}
		c, err := rgbw.ParseHexStrict(f[2])
		if err != nil {
			return err
		}
		period, err := time.ParseDuration(f[3])
		if err != nil {
			return errors.Wrap(errUsage, err.Error())
		}
		return l.Blink(t, c, period)
	}
	return errors.Wrap(errUsage, f[0])
}
