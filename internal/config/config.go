package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Engine  EngineConfig  `toml:"engine" yaml:"engine" envPrefix:"ENGINE_"`
	Bus     BusConfig     `toml:"bus" yaml:"bus" envPrefix:"BUS_"`
	Log     LogConfig     `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Server  ServerConfig  `toml:"server" yaml:"server" envPrefix:"SERVER_"`
	Bridge  BridgeConfig  `toml:"bridge" yaml:"bridge" envPrefix:"BRIDGE_"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Tracing TracingConfig `toml:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
	Script  ScriptConfig  `toml:"script" yaml:"script" envPrefix:"SCRIPT_"`
}

// EngineConfig configures the tick loop.
type EngineConfig struct {
	TargetFPS              int `toml:"target_fps" yaml:"target_fps" env:"TARGET_FPS"`
	EventBudget            int `toml:"event_budget" yaml:"event_budget" env:"EVENT_BUDGET"`
	InputBuffer            int `toml:"input_buffer" yaml:"input_buffer" env:"INPUT_BUFFER"`
	MaxConsecutiveFailures int `toml:"max_consecutive_failures" yaml:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	MaxQueueSize int      `toml:"max_queue_size" yaml:"max_queue_size" env:"MAX_QUEUE_SIZE"`
	Debug        bool     `toml:"debug" yaml:"debug" env:"DEBUG"`
	Filters      []string `toml:"filters" yaml:"filters" env:"FILTERS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// ServerConfig configures the HTTP and WebSocket transport.
type ServerConfig struct {
	Addr            string   `toml:"addr" yaml:"addr" env:"ADDR"`
	ReadTimeout     Duration `toml:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    Duration `toml:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// BridgeConfig configures the Kafka event mirror and ingest.
type BridgeConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Brokers     []string `toml:"brokers" yaml:"brokers" env:"BROKERS"`
	Topic       string   `toml:"topic" yaml:"topic" env:"TOPIC"`
	Types       []string `toml:"types" yaml:"types" env:"TYPES"`
	IngestTopic string   `toml:"ingest_topic" yaml:"ingest_topic" env:"INGEST_TOPIC"`
	GroupID     string   `toml:"group_id" yaml:"group_id" env:"GROUP_ID"`
}

// MetricsConfig configures Prometheus export.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled" env:"ENABLED"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint    string `toml:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `toml:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
}

// ScriptConfig configures the optional Lua state.
type ScriptConfig struct {
	Path string `toml:"path" yaml:"path" env:"PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			TargetFPS:   60,
			EventBudget: 50,
			InputBuffer: 256,
		},
		Bus: BusConfig{
			MaxQueueSize: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Bridge: BridgeConfig{
			Topic:   "memento.events",
			GroupID: "memento",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			ServiceName: "memento",
		},
	}
}

// Validate checks that every numeric setting is usable.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, field, msg string) {
		if !ok {
			errs = append(errs, &ValidationError{Field: field, Message: msg})
		}
	}

	check(c.Engine.TargetFPS > 0, "engine.target_fps", "must be positive")
	check(c.Engine.EventBudget > 0, "engine.event_budget", "must be positive")
	check(c.Engine.InputBuffer > 0, "engine.input_buffer", "must be positive")
	check(c.Engine.MaxConsecutiveFailures >= 0, "engine.max_consecutive_failures", "must not be negative")
	check(c.Bus.MaxQueueSize > 0, "bus.max_queue_size", "must be positive")
	check(c.Server.Addr != "", "server.addr", "must not be empty")
	check(c.Server.ReadTimeout > 0, "server.read_timeout", "must be positive")
	check(c.Server.WriteTimeout > 0, "server.write_timeout", "must be positive")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout", "must be positive")
	if c.Bridge.Enabled {
		check(len(c.Bridge.Brokers) > 0, "bridge.brokers", "required when the bridge is enabled")
		check(c.Bridge.Topic != "", "bridge.topic", "required when the bridge is enabled")
		check(c.Bridge.IngestTopic != c.Bridge.Topic, "bridge.ingest_topic", "must differ from bridge.topic")
		check(c.Bridge.IngestTopic == "" || c.Bridge.GroupID != "", "bridge.group_id", "required when ingest is enabled")
	}
	if c.Tracing.Enabled {
		check(c.Tracing.Endpoint != "", "tracing.endpoint", "required when tracing is enabled")
	}

	return errors.Join(errs...)
}

// Duration is a time.Duration that reads and writes as text ("5s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
