package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/agentlink/internal/connection"
)

// Config configures a Registry.
type Config struct {
	Namespace  string
	Registerer prometheus.Registerer // Defaults to a fresh registry
}

// Registry records connection telemetry. It implements connection.Metrics.
type Registry struct {
	reg   *prometheus.Registry
	state atomic.Int32

	stateGauge     prometheus.Gauge
	reconnects     prometheus.Counter
	reconnectDelay prometheus.Histogram
	received       *prometheus.CounterVec
	sent           prometheus.Counter
	panics         *prometheus.CounterVec
}

var _ connection.Metrics = (*Registry)(nil)

// New creates and registers the connection metrics.
func New(cfg Config) (*Registry, error) {
	r := &Registry{
		stateGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "connection",
			Name:      "reconnects_scheduled_total",
			Help:      "Number of reconnect attempts scheduled after abnormal closures.",
		}),
		reconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "connection",
			Name:      "reconnect_delay_seconds",
			Help:      "Backoff delay chosen for scheduled reconnects.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Inbound messages by payload kind.",
		}, []string{"kind"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Outbound messages written to the connection.",
		}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "callbacks",
			Name:      "panics_total",
			Help:      "Subscriber callbacks that panicked, by event.",
		}, []string{"event"}),
	}

	registerer := cfg.Registerer
	if registerer == nil {
		r.reg = prometheus.NewRegistry()
		registerer = r.reg
	}

	for _, c := range []prometheus.Collector{
		r.stateGauge, r.reconnects, r.reconnectDelay, r.received, r.sent, r.panics,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return r, nil
}

// Gatherer returns the registry owned by r, or prometheus.DefaultGatherer when
// an external Registerer was supplied.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r.reg != nil {
		return r.reg
	}
	return prometheus.DefaultGatherer
}

// State returns the last state recorded.
func (r *Registry) State() connection.State {
	return connection.State(r.state.Load())
}

func (r *Registry) SetState(s connection.State) {
	r.state.Store(int32(s))
	r.stateGauge.Set(float64(s))
}

func (r *Registry) ReconnectScheduled(attempt int, delay time.Duration) {
	r.reconnects.Inc()
	r.reconnectDelay.Observe(delay.Seconds())
}

func (r *Registry) MessageReceived(raw bool) {
	kind := "json"
	if raw {
		kind = "raw"
	}
	r.received.WithLabelValues(kind).Inc()
}

func (r *Registry) MessageSent() {
	r.sent.Inc()
}

func (r *Registry) CallbackPanicked(event string) {
	r.panics.WithLabelValues(event).Inc()
}
