package chatsync

import (
	"github.com/prometheus/client_golang/prometheus"

	"collaboraid-sync/internal/domain"
)

// Metrics exposes engine counters. A nil *Metrics records nothing.
type Metrics struct {
	merges    *prometheus.CounterVec
	sends     *prometheus.CounterVec
	malformed prometheus.Counter
	connected prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collabsync_merges_total",
			Help: "Messages merged into conversations, by source and outcome.",
		}, []string{"source", "outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collabsync_sends_total",
			Help: "Delivery attempts, by transport and result.",
		}, []string{"transport", "result"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collabsync_malformed_events_total",
			Help: "Incoming messages discarded before merging.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collabsync_push_connected",
			Help: "1 while the push channel is connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.merges, m.sends, m.malformed, m.connected)
	}
	return m
}

func (m *Metrics) merge(source string, o outcome) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(source, o.String()).Inc()
}

func (m *Metrics) send(transport, result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

func (m *Metrics) state(s domain.ConnectionState) {
	if m == nil {
		return
	}
	if s == domain.Connected {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *Metrics) Malformed() prometheus.Counter {
	return m.malformed
}
