package event

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultMaxQueueSize is the queue capacity used when none is configured.
const DefaultMaxQueueSize = 1000

// BusOption configures an event Bus.
type BusOption func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// maxQueueSize bounds the deferred-publish queue.
	maxQueueSize int

	// logger receives drop, fault and debug records.
	logger *slog.Logger

	// debug logs every publish and dispatch.
	debug bool

	// filters is the initial allow-list.
	filters []Type

	// registerer receives the bus metrics. Nil disables metrics.
	registerer prometheus.Registerer

	// faultHandler is called after a handler error or panic has been recovered.
	faultHandler FaultHandler
}

// defaultBusConfig returns sensible default configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		maxQueueSize: DefaultMaxQueueSize,
		logger:       slog.New(slog.DiscardHandler),
	}
}

// WithMaxQueueSize sets the queue capacity.
func WithMaxQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.maxQueueSize = size
		}
	}
}

// WithLogger sets the logger used by the bus.
func WithLogger(logger *slog.Logger) BusOption {
	return func(c *busConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDebug enables debug logging of every publish and dispatch.
func WithDebug(enabled bool) BusOption {
	return func(c *busConfig) {
		c.debug = enabled
	}
}

// WithFilters installs an initial allow-list of event types.
func WithFilters(types ...Type) BusOption {
	return func(c *busConfig) {
		c.filters = append(c.filters, types...)
	}
}

// WithRegisterer registers bus metrics with reg.
func WithRegisterer(reg prometheus.Registerer) BusOption {
	return func(c *busConfig) {
		c.registerer = reg
	}
}

// WithFaultHandler sets a callback run after a handler error or panic is recovered.
func WithFaultHandler(h FaultHandler) BusOption {
	return func(c *busConfig) {
		c.faultHandler = h
	}
}

// FaultHandler receives a *HandlerError or *PanicError for every failed
// handler invocation. It runs on the dispatching goroutine.
type FaultHandler func(err error)
