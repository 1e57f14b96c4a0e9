package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the drive loop's Prometheus collectors. They are registered
// on whatever registry the owning process exposes.
type Metrics struct {
	Frames        prometheus.Counter
	WriteErrors   prometheus.Counter
	DroppedFrames prometheus.Counter
	TickSeconds   prometheus.Histogram
	Running       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "spirgbleds",
			Subsystem: "loop",
			Name:      "frames_total",
			Help:      "Frames written to the LED hardware",
		}),
		WriteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "spirgbleds",
			Subsystem: "loop",
			Name:      "write_errors_total",
			Help:      "Failed hardware write attempts, including retried ones",
		}),
		DroppedFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "spirgbleds",
			Subsystem: "loop",
			Name:      "dropped_frames_total",
			Help:      "Ticks whose write attempts were all exhausted",
		}),
		TickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spirgbleds",
			Subsystem: "loop",
			Name:      "tick_seconds",
			Help:      "Time spent computing and writing one frame",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .02, .05},
		}),
		Running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "spirgbleds",
			Subsystem: "loop",
			Name:      "running",
			Help:      "1 while the drive loop is running",
		}),
	}
}
