package engine

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks loop performance. Counters are atomic so Snapshot may be
// called from any goroutine; Prometheus collectors are optional.
type Metrics struct {
	// Tick timing
	tickCount   atomic.Uint64
	tickTotalNs atomic.Int64
	tickMinNs   atomic.Int64
	tickMaxNs   atomic.Int64
	lastTickNs  atomic.Int64
	failedTicks atomic.Uint64

	// Input handling
	inputCount   atomic.Uint64
	inputDropped atomic.Uint64

	// Event processing
	eventsDrained atomic.Uint64

	// Render timing
	renderCount   atomic.Uint64
	renderTotalNs atomic.Int64

	// Transitions observed through GameStateChanged
	transitions atomic.Uint64

	// Errors observed through Error events
	errorEvents atomic.Uint64

	startTime time.Time

	prom *promMetrics
}

// NewMetrics creates a new metrics tracker. A nil registerer disables
// Prometheus export.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		startTime: time.Now(),
		prom:      newPromMetrics(reg),
	}
	// Initialize min to max int64 so first tick will be smaller
	m.tickMinNs.Store(1<<63 - 1)
	return m
}

// RecordTick records tick timing.
func (m *Metrics) RecordTick(duration time.Duration, failed bool) {
	ns := duration.Nanoseconds()

	m.tickCount.Add(1)
	m.tickTotalNs.Add(ns)
	m.lastTickNs.Store(ns)
	if failed {
		m.failedTicks.Add(1)
	}

	for {
		old := m.tickMinNs.Load()
		if ns >= old || m.tickMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.tickMaxNs.Load()
		if ns <= old || m.tickMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}

	m.prom.observeTick(duration, failed)
}

// RecordInput records a delivered input.
func (m *Metrics) RecordInput() {
	m.inputCount.Add(1)
	m.prom.incInput("delivered")
}

// RecordInputDropped records an input rejected by a full inbox.
func (m *Metrics) RecordInputDropped() {
	m.inputDropped.Add(1)
	m.prom.incInput("dropped")
}

// RecordDrain records the number of events drained in a tick.
func (m *Metrics) RecordDrain(n int) {
	m.eventsDrained.Add(uint64(n))
	m.prom.addDrained(n)
}

// RecordRender records render timing.
func (m *Metrics) RecordRender(duration time.Duration) {
	m.renderCount.Add(1)
	m.renderTotalNs.Add(duration.Nanoseconds())
}

// RecordTransition records an applied state transition.
func (m *Metrics) RecordTransition() {
	m.transitions.Add(1)
	m.prom.incTransition()
}

// RecordError records an observed Error event.
func (m *Metrics) RecordError() {
	m.errorEvents.Add(1)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	tickCount := m.tickCount.Load()
	renderCount := m.renderCount.Load()

	var avgTickNs int64
	if tickCount > 0 {
		avgTickNs = m.tickTotalNs.Load() / int64(tickCount)
	}

	var avgRenderNs int64
	if renderCount > 0 {
		avgRenderNs = m.renderTotalNs.Load() / int64(renderCount)
	}

	minTickNs := m.tickMinNs.Load()
	if minTickNs == 1<<63-1 {
		minTickNs = 0
	}

	return MetricsSnapshot{
		Uptime:        time.Since(m.startTime),
		TickCount:     tickCount,
		FailedTicks:   m.failedTicks.Load(),
		AvgTickNs:     avgTickNs,
		MinTickNs:     minTickNs,
		MaxTickNs:     m.tickMaxNs.Load(),
		LastTickNs:    m.lastTickNs.Load(),
		InputCount:    m.inputCount.Load(),
		InputDropped:  m.inputDropped.Load(),
		EventsDrained: m.eventsDrained.Load(),
		RenderCount:   renderCount,
		AvgRenderNs:   avgRenderNs,
		Transitions:   m.transitions.Load(),
		ErrorEvents:   m.errorEvents.Load(),
	}
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Uptime        time.Duration `json:"uptime"`
	TickCount     uint64        `json:"tickCount"`
	FailedTicks   uint64        `json:"failedTicks"`
	AvgTickNs     int64         `json:"avgTickNs"`
	MinTickNs     int64         `json:"minTickNs"`
	MaxTickNs     int64         `json:"maxTickNs"`
	LastTickNs    int64         `json:"lastTickNs"`
	InputCount    uint64        `json:"inputCount"`
	InputDropped  uint64        `json:"inputDropped"`
	EventsDrained uint64        `json:"eventsDrained"`
	RenderCount   uint64        `json:"renderCount"`
	AvgRenderNs   int64         `json:"avgRenderNs"`
	Transitions   uint64        `json:"transitions"`
	ErrorEvents   uint64        `json:"errorEvents"`
}

// AvgTPS returns the average ticks per second based on tick duration.
func (s MetricsSnapshot) AvgTPS() float64 {
	if s.AvgTickNs == 0 {
		return 0
	}
	return 1e9 / float64(s.AvgTickNs)
}

// FailureRate returns the percentage of ticks that reported a failure.
func (s MetricsSnapshot) FailureRate() float64 {
	if s.TickCount == 0 {
		return 0
	}
	return float64(s.FailedTicks) / float64(s.TickCount) * 100
}

// promMetrics holds the Prometheus collectors. Nil records nothing.
type promMetrics struct {
	ticks         *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	inputs        *prometheus.CounterVec
	eventsDrained prometheus.Counter
	transitions   prometheus.Counter
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	if reg == nil {
		return nil
	}

	p := &promMetrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "engine",
			Name:      "ticks_total",
			Help:      "Ticks run, by result",
		}, []string{"result"}),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "memento",
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one tick",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.1},
		}),

		inputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "engine",
			Name:      "inputs_total",
			Help:      "Transport inputs, by outcome",
		}, []string{"outcome"}),

		eventsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "engine",
			Name:      "events_drained_total",
			Help:      "Queued events drained by the loop",
		}),

		transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "memento",
			Subsystem: "engine",
			Name:      "state_transitions_total",
			Help:      "Applied state transitions",
		}),
	}

	reg.MustRegister(p.ticks, p.tickDuration, p.inputs, p.eventsDrained, p.transitions)
	return p
}

func (p *promMetrics) observeTick(d time.Duration, failed bool) {
	if p == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	p.ticks.WithLabelValues(result).Inc()
	p.tickDuration.Observe(d.Seconds())
}

func (p *promMetrics) incInput(outcome string) {
	if p == nil {
		return
	}
	p.inputs.WithLabelValues(outcome).Inc()
}

func (p *promMetrics) addDrained(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.eventsDrained.Add(float64(n))
}

func (p *promMetrics) incTransition() {
	if p == nil {
		return
	}
	p.transitions.Inc()
}
