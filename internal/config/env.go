package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "MEMENTO_"

// ApplyEnv overlays MEMENTO_* environment variables onto cfg, for example
// MEMENTO_ENGINE_TARGET_FPS or MEMENTO_BUS_FILTERS=Error,GameSaved.
// Unset variables leave cfg untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
