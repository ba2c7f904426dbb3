// Package metrics exports service activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alouette/tts/pkg/tts"
	"github.com/alouette/tts/pkg/tts/engine"
)

const namespace = "alouette_tts"

// Recorder implements tts.Recorder on its own Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	switches   *prometheus.CounterVec
	state      *prometheus.GaugeVec
}

// NewRecorder creates a recorder. Process and Go runtime collectors are
// included so a scrape shows the host's health too.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by engine and outcome",
			},
			[]string{"op", "engine", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of completed service operations in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op", "engine"},
		),
		switches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_switches_total",
				Help:      "Engine changes after initialization",
			},
			[]string{"from", "to"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "1 for the current service state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
	r.registry.MustRegister(
		r.operations, r.duration, r.switches, r.state,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.state.WithLabelValues(tts.StateUninitialized.String()).Set(1)
	return r
}

var _ tts.Recorder = (*Recorder)(nil)

// ObserveOperation counts an operation. Rejections carry no duration.
func (r *Recorder) ObserveOperation(op string, id engine.ID, outcome string, d time.Duration) {
	r.operations.WithLabelValues(op, string(id), outcome).Inc()
	if outcome != tts.OutcomeRejected {
		r.duration.WithLabelValues(op, string(id)).Observe(d.Seconds())
	}
}

func (r *Recorder) EngineSwitched(from, to engine.ID) {
	r.switches.WithLabelValues(string(from), string(to)).Inc()
}

func (r *Recorder) StateChanged(from, to tts.State) {
	r.state.WithLabelValues(from.String()).Set(0)
	r.state.WithLabelValues(to.String()).Set(1)
}

// Registry exposes the underlying registry for extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
