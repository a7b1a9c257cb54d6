// Package config loads memento's runtime configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A TOML or YAML file (Load), chosen by extension
//  3. MEMENTO_* environment variables (ApplyEnv)
//
// A Watcher reloads the file on change so the running engine can pick up
// bus and frame-rate settings without a restart.
package config
