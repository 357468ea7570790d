package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes coordinator state to Prometheus.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Connections is the number of live registry entries.
	Connections prometheus.Gauge

	// OnlineUsers and IndividualCalls are refreshed by every sweep.
	OnlineUsers     prometheus.Gauge
	IndividualCalls prometheus.Gauge

	// Removals counts connection removals.
	// Labels: reason (disconnect|replaced|heartbeat|stale|send_failed)
	Removals *prometheus.CounterVec

	// Deliveries counts pushes by outcome.
	// Labels: kind (broadcast|direct), result (delivered|failed)
	Deliveries *prometheus.CounterVec

	// Calls counts call lifecycle transitions.
	// Labels: kind (individual|group), event
	Calls *prometheus.CounterVec

	// Sweeps counts reconciled entries per sweep step.
	// Labels: step (connections|presence|calls|group_calls|routers)
	Sweeps *prometheus.CounterVec

	// SweepDuration measures one full sweep pass in seconds.
	SweepDuration prometheus.Histogram
}

// NewMetrics registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "callhub_connections",
			Help: "Number of live signal connections",
		}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "callhub_online_users",
			Help: "Users online within the presence threshold, as of the last sweep",
		}),
		IndividualCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "callhub_individual_calls",
			Help: "Tracked individual calls, as of the last sweep",
		}),
		Removals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_connection_removals_total",
			Help: "Connection removals by reason",
		}, []string{"reason"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_deliveries_total",
			Help: "Pushes to clients by kind and result",
		}, []string{"kind", "result"}),
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_call_events_total",
			Help: "Call lifecycle events by kind",
		}, []string{"kind", "event"}),
		Sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callhub_sweep_reconciled_total",
			Help: "Entries reconciled by the sweep, per step",
		}, []string{"step"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callhub_sweep_duration_seconds",
			Help:    "Duration of a sweep pass",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

func (m *Metrics) SetOccupancy(online, calls int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(online))
	m.IndividualCalls.Set(float64(calls))
}

func (m *Metrics) Removed(reason string) {
	if m == nil {
		return
	}
	m.Removals.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivered(kind string, ok bool, n int) {
	if m == nil || n == 0 {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.Deliveries.WithLabelValues(kind, result).Add(float64(n))
}

func (m *Metrics) CallEvent(kind, event string) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(kind, event).Inc()
}

func (m *Metrics) Swept(step string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Sweeps.WithLabelValues(step).Add(float64(n))
}

func (m *Metrics) ObserveSweep(seconds float64) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(seconds)
}
