// Package app wires the runtime together: configuration, logging, tracing,
// the event bus, the state manager, the engine loop, the game states, the
// transport server and the Kafka bridge.
package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/memento/internal/bridge"
	"github.com/dshills/memento/internal/config"
	"github.com/dshills/memento/internal/engine"
	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/game"
	"github.com/dshills/memento/internal/logging"
	"github.com/dshills/memento/internal/script"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/telemetry"
	"github.com/dshills/memento/internal/transport"
)

// Options configures the application. Non-zero fields override the
// loaded configuration.
type Options struct {
	// ConfigPath is a TOML or YAML file. Empty uses defaults and the
	// environment, and disables hot reload.
	ConfigPath string

	// LogLevel overrides log.level.
	LogLevel string

	// Addr overrides server.addr.
	Addr string

	// ScriptPath overrides script.path.
	ScriptPath string

	// Debug enables bus debug logging and the debug log level.
	Debug bool

	// LogOutput receives log records. Nil writes to stderr.
	LogOutput io.Writer

	// Listener replaces net.Listen on server.addr.
	Listener net.Listener
}

// Application is the central coordinator for all runtime components.
type Application struct {
	opts   Options
	cfg    config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	tracing  telemetry.Shutdown

	bus    *event.Bus
	states *state.Manager
	engine *engine.Engine
	game   *game.Game
	script *script.Program

	hub    *transport.Hub
	server *transport.Server

	mirror *bridge.Mirror
	ingest *bridge.Ingest

	watcher *config.Watcher

	running      atomic.Bool
	shutdownOnce sync.Once
}

// New creates an application and initializes every component in
// dependency order. On failure, already-created components are released.
func New(opts Options) (*Application, error) {
	app := &Application{opts: opts}
	if err := app.bootstrap(); err != nil {
		app.Shutdown()
		return nil, err
	}
	return app, nil
}

func (app *Application) bootstrap() error {
	// 1. Configuration
	cfg, err := config.Load(app.opts.ConfigPath)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	app.cfg = app.applyOverrides(cfg)

	// 2. Logging
	logger, err := logging.New(app.opts.LogOutput, logging.Config{
		Level:  app.cfg.Log.Level,
		Format: app.cfg.Log.Format,
	})
	app.logger = logger
	if err != nil {
		logger.Warn("invalid log level, using info", "error", err)
	}

	// 3. Tracing
	app.tracing, err = telemetry.Setup(context.Background(), app.cfg.Tracing)
	if err != nil {
		return &InitError{Component: "tracing", Err: err}
	}

	// 4. Metrics
	var registerer prometheus.Registerer
	if app.cfg.Metrics.Enabled {
		app.registry = prometheus.NewRegistry()
		app.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registerer = app.registry
	}

	// 5. Event bus and state manager
	app.bus = event.NewBus(
		event.WithMaxQueueSize(app.cfg.Bus.MaxQueueSize),
		event.WithDebug(app.cfg.Bus.Debug),
		event.WithFilters(toTypes(app.cfg.Bus.Filters)...),
		event.WithRegisterer(registerer),
		event.WithLogger(logger),
	)
	app.states = state.NewManager(state.WithLogger(logger))

	// 6. Engine
	app.engine = engine.New(app.bus, app.states, engine.Options{
		TargetFPS:              app.cfg.Engine.TargetFPS,
		EventBudget:            app.cfg.Engine.EventBudget,
		InputBuffer:            app.cfg.Engine.InputBuffer,
		MaxConsecutiveFailures: app.cfg.Engine.MaxConsecutiveFailures,
		Logger:                 logger,
		Registerer:             registerer,
	})
	if err := app.engine.Initialize(); err != nil {
		return &InitError{Component: "engine", Err: err}
	}

	// 7. Transport hub
	parser, err := transport.NewCommandParser()
	if err != nil {
		return &InitError{Component: "command parser", Err: err}
	}
	app.hub = transport.NewHub(parser, app.engine.Submit, transport.WithHubLogger(logger))

	// 8. Game states
	app.game = game.New(app.bus, app.states,
		game.WithLogger(logger),
		game.WithSink(app.hub),
		game.WithQuit(app.engine.RequestShutdown),
	)
	if path := app.cfg.Script.Path; path != "" {
		app.script, err = script.CompileFile(path, script.Options{
			Publisher: event.NewPublisher(app.bus, "script"),
			Resolve:   app.game.Resolve,
			States:    app.states,
			Sink:      app.hub,
			Logger:    logger,
		})
		if err != nil {
			return &InitError{Component: "script", Err: err}
		}
		// Run the chunk once so load-time errors fail startup.
		first, err := app.script.NewState()
		if err != nil {
			return &InitError{Component: "script", Err: err}
		}
		first.Close()

		prog := app.script
		app.game.Register(prog.Name(), func() state.GameState {
			s, err := prog.NewState()
			if err != nil {
				logger.Error("script state failed to load", "script", prog.Name(), "error", err)
				return nil
			}
			return s
		})
	}
	if err := app.game.Start(); err != nil {
		return &InitError{Component: "game", Err: err}
	}

	// 9. HTTP server
	serverOpts := transport.ServerOptions{
		Addr:            app.cfg.Server.Addr,
		ReadTimeout:     app.cfg.Server.ReadTimeout.Std(),
		WriteTimeout:    app.cfg.Server.WriteTimeout.Std(),
		ShutdownTimeout: app.cfg.Server.ShutdownTimeout.Std(),
		Stats:           app.Stats,
		Logger:          logger,
	}
	if app.registry != nil {
		serverOpts.Gatherer = app.registry
	}
	app.server = transport.NewServer(app.hub, serverOpts)

	// 10. Kafka bridge
	if b := app.cfg.Bridge; b.Enabled {
		app.mirror = bridge.NewMirror(bridge.NewWriter(b.Brokers, b.Topic), bridge.MirrorOptions{
			Types:  toTypes(b.Types),
			Logger: logger,
		})
		if err := app.mirror.Attach(app.bus); err != nil {
			return &InitError{Component: "bridge mirror", Err: err}
		}
		if b.IngestTopic != "" {
			app.ingest = bridge.NewIngest(bridge.NewReader(b.Brokers, b.IngestTopic, b.GroupID), app.bus, logger)
		}
	}

	// 11. Config hot reload
	if app.opts.ConfigPath != "" {
		app.watcher, err = config.NewWatcher(app.opts.ConfigPath, app.cfg, config.WithWatchLogger(logger))
		if err != nil {
			return &InitError{Component: "config watcher", Err: err}
		}
		app.watcher.OnChange(app.applyConfig)
	}

	logger.Info("application initialized",
		"addr", app.cfg.Server.Addr,
		"metrics", app.registry != nil,
		"bridge", app.mirror != nil,
		"ingest", app.ingest != nil,
		"script", app.script != nil,
	)
	return nil
}

// Run runs every component until ctx is cancelled, the engine stops, or a
// component fails. Components are shut down before Run returns.
func (app *Application) Run(ctx context.Context) error {
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.Shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return app.engine.Run(ctx)
	})
	g.Go(func() error {
		if app.opts.Listener != nil {
			return app.server.Serve(ctx, app.opts.Listener)
		}
		return app.server.Run(ctx)
	})
	if app.mirror != nil {
		g.Go(func() error { return app.mirror.Run(ctx) })
	}
	if app.ingest != nil {
		g.Go(func() error { return app.ingest.Run(ctx) })
	}
	if app.watcher != nil {
		g.Go(func() error { return app.watcher.Run(ctx) })
	}

	return g.Wait()
}

// Shutdown releases every component. Safe to call more than once.
func (app *Application) Shutdown() {
	app.shutdownOnce.Do(func() {
		if app.engine != nil {
			app.engine.Shutdown()
		}
		if app.game != nil {
			app.game.Close()
		}
		if app.hub != nil {
			app.hub.Close()
		}
		if app.mirror != nil {
			if err := app.mirror.Close(); err != nil {
				app.logger.Warn("close bridge mirror", "error", err)
			}
		}
		if app.tracing != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := app.tracing(ctx); err != nil {
				app.logger.Warn("shut down tracing", "error", err)
			}
		}
		if app.logger != nil {
			app.logger.Info("application shut down")
		}
	})
}

// Config returns the configuration the application started with.
func (app *Application) Config() config.Config {
	return app.cfg
}

// Engine returns the engine.
func (app *Application) Engine() *engine.Engine {
	return app.engine
}

// Bus returns the event bus.
func (app *Application) Bus() *event.Bus {
	return app.bus
}

// States returns the state manager.
func (app *Application) States() *state.Manager {
	return app.states
}

// Game returns the game.
func (app *Application) Game() *game.Game {
	return app.game
}

// Server returns the HTTP server.
func (app *Application) Server() *transport.Server {
	return app.server
}

// RuntimeStats is served on /stats.
type RuntimeStats struct {
	Engine     engine.MetricsSnapshot `json:"engine"`
	Bus        event.Stats            `json:"bus"`
	DropRate   float64                `json:"busDropRate"`
	State      string                 `json:"state"`
	Stack      []string               `json:"stack"`
	Mirror     *bridge.MirrorStats    `json:"mirror,omitempty"`
	Ingested   uint64                 `json:"ingested"`
	Rejected   uint64                 `json:"ingestRejected"`
	ConfigLoad *ReloadStats           `json:"configReload,omitempty"`
}

// ReloadStats counts config reloads.
type ReloadStats struct {
	Reloads  int `json:"reloads"`
	Failures int `json:"failures"`
}

// Stats returns a snapshot of runtime counters.
func (app *Application) Stats() any {
	bus := app.bus.Stats()
	s := RuntimeStats{
		Engine:   app.engine.Snapshot(),
		Bus:      bus,
		DropRate: bus.DropRate(),
		State:    app.states.CurrentStateName(),
		Stack:    app.states.StackNames(),
	}
	if app.mirror != nil {
		ms := app.mirror.Stats()
		s.Mirror = &ms
	}
	if app.ingest != nil {
		s.Ingested, s.Rejected = app.ingest.Stats()
	}
	if app.watcher != nil {
		reloads, failures := app.watcher.Stats()
		s.ConfigLoad = &ReloadStats{Reloads: reloads, Failures: failures}
	}
	return s
}

func (app *Application) applyOverrides(cfg config.Config) config.Config {
	if app.opts.Debug {
		cfg.Bus.Debug = true
		cfg.Log.Level = "debug"
	}
	if app.opts.LogLevel != "" {
		cfg.Log.Level = app.opts.LogLevel
	}
	if app.opts.Addr != "" {
		cfg.Server.Addr = app.opts.Addr
	}
	if app.opts.ScriptPath != "" {
		cfg.Script.Path = app.opts.ScriptPath
	}
	return cfg
}

func toTypes(names []string) []event.Type {
	types := make([]event.Type, 0, len(names))
	for _, n := range names {
		types = append(types, event.Type(n))
	}
	return types
}
