package app

import (
	"slices"

	"github.com/dshills/memento/internal/config"
)

// applyConfig applies the settings that can change while running. Others
// are logged and take effect on restart.
func (app *Application) applyConfig(old, updated config.Config) {
	old, updated = app.applyOverrides(old), app.applyOverrides(updated)
	logger := app.logger.With("component", "app.reload")

	if updated.Bus.Debug != old.Bus.Debug {
		app.bus.SetDebugMode(updated.Bus.Debug)
		logger.Info("bus debug mode changed", "debug", updated.Bus.Debug)
	}
	if !slices.Equal(updated.Bus.Filters, old.Bus.Filters) {
		app.bus.SetFilters(toTypes(updated.Bus.Filters)...)
		logger.Info("bus filters changed", "filters", updated.Bus.Filters)
	}
	if updated.Bus.MaxQueueSize != old.Bus.MaxQueueSize {
		app.bus.SetMaxQueueSize(updated.Bus.MaxQueueSize)
		logger.Info("bus queue size changed", "size", updated.Bus.MaxQueueSize)
	}
	if updated.Engine.TargetFPS != old.Engine.TargetFPS {
		app.engine.SetTargetFPS(updated.Engine.TargetFPS)
	}

	if updated.Server != old.Server ||
		updated.Log != old.Log ||
		updated.Tracing != old.Tracing ||
		updated.Metrics != old.Metrics ||
		updated.Script != old.Script ||
		updated.Engine.EventBudget != old.Engine.EventBudget ||
		updated.Engine.InputBuffer != old.Engine.InputBuffer ||
		updated.Engine.MaxConsecutiveFailures != old.Engine.MaxConsecutiveFailures ||
		!bridgeEqual(updated.Bridge, old.Bridge) {
		logger.Warn("some configuration changes need a restart")
	}
}

func bridgeEqual(a, b config.BridgeConfig) bool {
	return a.Enabled == b.Enabled &&
		a.Topic == b.Topic &&
		a.IngestTopic == b.IngestTopic &&
		a.GroupID == b.GroupID &&
		slices.Equal(a.Brokers, b.Brokers) &&
		slices.Equal(a.Types, b.Types)
}
