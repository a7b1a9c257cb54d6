package event

import "github.com/prometheus/client_golang/prometheus"

// busMetrics holds Prometheus collectors for the bus.
// A nil *busMetrics is valid and records nothing.
type busMetrics struct {
	published     *prometheus.CounterVec
	dispatched    *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	handlerFaults *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// newBusMetrics creates and registers bus metrics.
// Returns nil when no registerer is provided.
func newBusMetrics(reg prometheus.Registerer) *busMetrics {
	if reg == nil {
		return nil
	}

	m := &busMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Events accepted for dispatch, by type and mode",
		}, []string{"type", "mode"}),

		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "bus",
			Name:      "events_dispatched_total",
			Help:      "Events taken through subscriber dispatch",
		}, []string{"type"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Events discarded, by type and reason",
		}, []string{"type", "reason"}),

		handlerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "bus",
			Name:      "handler_faults_total",
			Help:      "Handler errors and panics",
		}, []string{"type", "kind"}),

		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "memento",
			Subsystem: "bus",
			Name:      "queue_depth",
			Help:      "Events currently waiting in the queue",
		}),
	}

	reg.MustRegister(
		m.published,
		m.dispatched,
		m.dropped,
		m.handlerFaults,
		m.queueDepth,
	)

	return m
}

func (m *busMetrics) recordPublished(t Type, mode string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(string(t), mode).Inc()
}

func (m *busMetrics) recordDispatched(t Type) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(string(t)).Inc()
}

func (m *busMetrics) recordDropped(t Type, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(string(t), reason).Add(float64(n))
}

func (m *busMetrics) recordFault(t Type, kind string) {
	if m == nil {
		return
	}
	m.handlerFaults.WithLabelValues(string(t), kind).Inc()
}

func (m *busMetrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
