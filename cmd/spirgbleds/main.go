package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelindar/event"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coreman2200/spirgbleds/internal/config"
	"github.com/coreman2200/spirgbleds/internal/driver"
	"github.com/coreman2200/spirgbleds/internal/hw"
	"github.com/coreman2200/spirgbleds/internal/logging"
	"github.com/coreman2200/spirgbleds/internal/rgbw"
	"github.com/coreman2200/spirgbleds/internal/status"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "spirgbleds",
		Short:         "Drive two RGBW status lights over SPI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	config.BindFlags(root.PersistentFlags())
	root.AddCommand(runCmd(), colorCmd(), offCmd(), demoCmd())
	return root
}

// metrics are registered once per process on the default registry.
var metrics = sync.OnceValue(func() *driver.Metrics {
	return driver.NewMetrics(prometheus.DefaultRegisterer)
})

// session is an opened writer with an initialized, running driver.
type session struct {
	cfg    *config.Config
	log    zerolog.Logger
	driver *driver.Driver
	lights *status.Lights
	events *event.Dispatcher
}

func open(cmd *cobra.Command) (*session, error) {
	cfg, err := config.LoadWithFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	w, err := hw.Open(logger, cfg.HardwareOptions())
	if err != nil {
		return nil, err
	}
	disp := event.NewDispatcher()
	d := driver.New(w,
		driver.WithLogger(logger),
		driver.WithMetrics(metrics()),
		driver.WithDispatcher(disp),
	)
	if err := d.Initialize(cfg.DriverConfig()); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := d.Start(); err != nil {
		_ = d.Close()
		return nil, err
	}
	lights := status.NewLights(d, cfg.Status.Palette, cfg.Status.Scale, logger)
	if !cfg.Status.Enabled {
		if err := lights.SetEnabled(false); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return &session{cfg: cfg, log: logger, driver: d, lights: lights, events: disp}, nil
}

// close darkens the lights, lets the fade finish and releases the hardware.
func (s *session) close(fade bool) error {
	if s.driver.Running() {
		if err := s.lights.Off(); err == nil && fade && s.cfg.Driver.Transitions {
			time.Sleep(s.cfg.DriverConfig().TransitionTime + s.cfg.DriverConfig().RefreshInterval)
		}
	}
	return s.driver.Close()
}

// signalContext is cancelled on SIGINT, SIGTERM or a fatal hardware fault.
func (s *session) signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	unsub := event.Subscribe(s.events, func(e driver.Fatal) {
		s.log.Error().Err(e.Err).Msg("lights stopped")
		cancel()
	})
	return ctx, func() {
		unsub()
		cancel()
	}
}

func runCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the lights and read commands from stdin",
		Long: `Run the drive loop until interrupted. Each stdin line is one command:
  M150 R<0-255> U<0-255> B<0-255> W<0-255>
  state <startup|idle|paused|error|heating|printing|finished>
  set <left|right|both> <constant|fast|normal|slow> <hex>
  blink <left|right|both> <hex> <period>
  enable | disable | off`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := s.signalContext(cmd.Context())
			defer cancel()

			if state != "" {
				if err := s.lights.Show(status.State(state)); err != nil {
					s.log.Warn().Err(err).Msg("initial state")
				}
			}
			go readCommands(ctx, s, cmd.InOrStdin())

			<-ctx.Done()
			s.log.Info().Msg("shutting down")
			if err := s.close(true); err != nil {
				return err
			}
			return s.driver.Err()
		},
	}
	cmd.Flags().StringVar(&state, "state", string(status.Startup), "state to show on start; empty keeps the initial color")
	return cmd
}

// readCommands feeds stdin lines to handleLine until in is exhausted or ctx
// ends. A Scan blocked on an idle terminal outlives ctx; nothing is applied
// after cancellation and the goroutine ends with the process.
func readCommands(ctx context.Context, s *session, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := handleLine(s.lights, sc.Text()); err != nil {
			s.log.Warn().Err(err).Str("line", sc.Text()).Msg("command failed")
		}
	}
}

func colorCmd() *cobra.Command {
	var (
		target string
		code   status.PatternCode
		blink  time.Duration
		hold   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "color HEX",
		Short: "Show one color for a while",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := driver.ParseTarget(target)
			if err != nil {
				return err
			}
			c, err := rgbw.ParseHexStrict(args[0])
			if err != nil {
				return err
			}
			s, err := open(cmd)
			if err != nil {
				return err
			}
			if blink > 0 {
				err = s.lights.Blink(t, c, blink)
			} else {
				err = s.lights.Request(t, code, c)
			}
			if err != nil {
				_ = s.close(false)
				return err
			}
			ctx, cancel := s.signalContext(cmd.Context())
			defer cancel()
			if hold > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(hold):
				}
			} else {
				<-ctx.Done()
			}
			return s.close(true)
		},
	}
	cmd.Flags().StringVar(&target, "target", "both", "left, right or both")
	cmd.Flags().Var(textFlag{&code}, "pattern", "constant, fast, normal or slow")
	cmd.Flags().DurationVar(&blink, "blink", 0, "blink with this period instead")
	cmd.Flags().DurationVar(&hold, "hold", 0, "how long to show the color; 0 waits for a signal")
	return cmd
}

func offCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Switch both channels off",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			return s.close(true)
		},
	}
}

func demoCmd() *cobra.Command {
	var hold time.Duration
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Cycle through every status state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := s.signalContext(cmd.Context())
			defer cancel()
			for _, st := range status.States {
				e, _ := s.lights.Entry(st)
				s.log.Info().Str("state", string(st)).Str("color", e.Color.Hex()).Stringer("pattern", e.Pattern).Msg("demo")
				if err := s.lights.Show(st); err != nil {
					_ = s.close(false)
					return err
				}
				select {
				case <-ctx.Done():
					return s.close(true)
				case <-time.After(hold):
				}
			}
			return s.close(true)
		},
	}
	cmd.Flags().DurationVar(&hold, "hold", 4*time.Second, "time spent on each state")
	return cmd
}

// textFlag adapts an encoding.TextUnmarshaler to pflag.Value.
type textFlag struct {
	v interface {
		UnmarshalText([]byte) error
		MarshalText() ([]byte, error)
	}
}

func (f textFlag) String() string {
	if f.v == nil {
		return ""
	}
	b, _ := f.v.MarshalText()
	return string(b)
}

func (f textFlag) Set(s string) error { return errors.Wrap(f.v.UnmarshalText([]byte(s)), "flag") }

func (f textFlag) Type() string { return "string" }
