package engine

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Subscriber ID used for the engine's own bus subscriptions.
const SubscriberID = "GameEngine"

// Options configures the engine.
type Options struct {
	// TargetFPS is the tick rate. Defaults to 60.
	TargetFPS int

	// EventBudget is the maximum number of queued events drained per tick.
	// Defaults to 50.
	EventBudget int

	// InputBuffer is the capacity of the transport input inbox. Defaults to 256.
	InputBuffer int

	// MaxConsecutiveFailures stops the loop after this many failing ticks in
	// a row. Zero never stops.
	MaxConsecutiveFailures int

	// Logger receives engine records. Defaults to a discarding logger.
	Logger *slog.Logger

	// Registerer receives engine metrics. Nil disables Prometheus export.
	Registerer prometheus.Registerer

	// Tracer creates tick spans. Defaults to the global tracer provider.
	Tracer trace.Tracer
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		TargetFPS:   60,
		EventBudget: 50,
		InputBuffer: 256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TargetFPS <= 0 {
		o.TargetFPS = d.TargetFPS
	}
	if o.EventBudget <= 0 {
		o.EventBudget = d.EventBudget
	}
	if o.InputBuffer <= 0 {
		o.InputBuffer = d.InputBuffer
	}
	if o.MaxConsecutiveFailures < 0 {
		o.MaxConsecutiveFailures = 0
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}
