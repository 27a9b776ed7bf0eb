package database

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks subscription activity of streams built with WithMetrics.
//
// All metrics carry a kind label: value, single-value or child.
// A nil *Metrics records nothing.
type Metrics struct {
	// Active is the number of open subscriptions.
	Active *prometheus.GaugeVec

	// Events counts notifications handed to consumers.
	Events *prometheus.CounterVec

	// Ended counts finished subscriptions by reason: closed or decode_error.
	Ended *prometheus.CounterVec
}

// NewMetrics creates stream metrics with the database_stream_ prefix and
// registers them with reg. Collectors already registered by an earlier call
// are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "database_stream_subscriptions_active",
				Help: "Current number of open stream subscriptions",
			},
			[]string{"kind"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_stream_events_total",
				Help: "Total notifications delivered to stream consumers",
			},
			[]string{"kind"},
		),
		Ended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_stream_subscriptions_ended_total",
				Help: "Total ended stream subscriptions by reason",
			},
			[]string{"kind", "reason"},
		),
	}

	m.Active = registerOrReuse(reg, m.Active).(*prometheus.GaugeVec)
	m.Events = registerOrReuse(reg, m.Events).(*prometheus.CounterVec)
	m.Ended = registerOrReuse(reg, m.Ended).(*prometheus.CounterVec)
	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) subscribed(kind string) {
	if m == nil {
		return
	}
	m.Active.WithLabelValues(kind).Inc()
}

func (m *Metrics) delivered(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) ended(kind string, err error) {
	if m == nil {
		return
	}
	reason := "closed"
	if err != nil {
		reason = "decode_error"
	}
	m.Active.WithLabelValues(kind).Dec()
	m.Ended.WithLabelValues(kind, reason).Inc()
}
