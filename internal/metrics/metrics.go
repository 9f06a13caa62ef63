// ABOUTME: Prometheus collectors for the gateway session and event dispatcher
// ABOUTME: Nil-safe recording helpers so components can run without metrics

// Package metrics defines the Prometheus collectors exported by kook-gateway.
// A nil *Collectors is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kook"

// Event outcomes recorded by the dispatcher.
const (
	OutcomeDispatched = "dispatched"
	OutcomeSelf       = "self_authored"
	OutcomeDuplicate  = "duplicate"
	OutcomeDropped    = "dropped"
	OutcomeSucceeded  = "succeeded"
	OutcomeFailed     = "failed"
)

// Collectors holds every metric the gateway client exports.
type Collectors struct {
	State           prometheus.Gauge
	Transitions     *prometheus.CounterVec
	Frames          *prometheus.CounterVec
	DecodeErrors    prometheus.Counter
	PingsSent       prometheus.Counter
	MaxSequence     prometheus.Gauge
	Events          *prometheus.CounterVec
	InFlight        prometheus.Gauge
	HandlerDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() (*Collectors, error) {
	c := &Collectors{
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Current session state (0=discover, 1=connect, 2=wait_handshake, 3=established)",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions",
		}, []string{"from", "to"}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "frames_received_total",
			Help:      "Decoded gateway frames by kind",
		}, []string{"kind"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "decode_errors_total",
			Help:      "Inbound frames discarded because they could not be decoded",
		}),
		PingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "pings_sent_total",
			Help:      "Heartbeat pings written to the gateway",
		}),
		MaxSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "max_sequence",
			Help:      "Highest event sequence seen on the current connection",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Events seen by the dispatcher by outcome",
		}, []string{"outcome"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Handler invocations currently running",
		}),
		HandlerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_duration_seconds",
			Help:      "Handler invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: prometheus.NewRegistry(),
	}

	for _, collector := range []prometheus.Collector{
		c.State, c.Transitions, c.Frames, c.DecodeErrors, c.PingsSent,
		c.MaxSequence, c.Events, c.InFlight, c.HandlerDuration,
	} {
		if err := c.registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) SetState(state int, from, to string) {
	if c == nil {
		return
	}
	c.State.Set(float64(state))
	c.Transitions.WithLabelValues(from, to).Inc()
}

func (c *Collectors) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues(kind).Inc()
}

func (c *Collectors) DecodeError() {
	if c == nil {
		return
	}
	c.DecodeErrors.Inc()
}

func (c *Collectors) PingSent() {
	if c == nil {
		return
	}
	c.PingsSent.Inc()
}

func (c *Collectors) SetMaxSequence(seq uint64) {
	if c == nil {
		return
	}
	c.MaxSequence.Set(float64(seq))
}

func (c *Collectors) Event(outcome string) {
	if c == nil {
		return
	}
	c.Events.WithLabelValues(outcome).Inc()
}

// HandlerStarted marks an invocation as running and returns a func that
// records its completion.
func (c *Collectors) HandlerStarted() func(err error) {
	if c == nil {
		return func(error) {}
	}
	start := time.Now()
	c.InFlight.Inc()
	return func(err error) {
		c.InFlight.Dec()
		c.HandlerDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.Events.WithLabelValues(OutcomeFailed).Inc()
			return
		}
		c.Events.WithLabelValues(OutcomeSucceeded).Inc()
	}
}
