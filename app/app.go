package app

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/searchktools/ember-server/config"
	"github.com/searchktools/ember-server/core"
	"github.com/searchktools/ember-server/plugin"
)

// App ties the configuration, logger, engine, and plugin registry into
// one explicit application context. Nothing in it is global; tests can
// build as many as they need.
type App struct {
	cfg      *config.Config
	log      *logrus.Logger
	engine   *core.Engine
	registry *plugin.Registry

	mu      sync.Mutex
	running []plugin.Plugin
}

// New builds an application from cfg. The logger and engine limits
// come from the configuration.
func New(cfg *config.Config) *App {
	log := logrus.New()
	log.SetLevel(cfg.Level())
	if cfg.LogFormat == "json" || cfg.Production() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	engine := core.NewEngine(
		core.WithLogger(log),
		core.WithMaxHeaderBytes(cfg.MaxHeaderBytes),
		core.WithMaxBodyBytes(cfg.MaxBodyBytes),
		core.WithMaxConnections(cfg.MaxConnections),
		core.WithBufferPool(cfg.BufferSize, cfg.PoolCapacity),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		engine:   engine,
		registry: plugin.NewRegistry(),
	}
}

// Engine returns the engine for route and middleware registration.
func (a *App) Engine() *core.Engine { return a.engine }

// Logger returns the application logger.
func (a *App) Logger() *logrus.Logger { return a.log }

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// RegisterPlugin adds a plugin to the registry. Plugins initialize
// when Run starts.
func (a *App) RegisterPlugin(p plugin.Plugin) error {
	return a.registry.Register(p)
}

// Run initializes plugins, then serves until SIGINT or SIGTERM. On
// shutdown the listener closes first, then plugins shut down in
// reverse initialization order.
func (a *App) Run() error {
	running, err := a.registry.Init(a.engine)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.running = running
	a.mu.Unlock()

	go a.awaitSignal()

	addr := a.cfg.Addr()
	a.log.WithFields(logrus.Fields{
		"addr": addr,
		"env":  a.cfg.Env,
	}).Info("server starting")

	err = a.engine.Run(addr)
	a.shutdownPlugins()
	return err
}

// Shutdown stops the accept loop and runs plugin shutdown hooks. It is
// safe to call more than once.
func (a *App) Shutdown() error {
	err := a.engine.Close()
	a.shutdownPlugins()
	return err
}

func (a *App) shutdownPlugins() {
	a.mu.Lock()
	running := a.running
	a.running = nil
	a.mu.Unlock()

	for i := len(running) - 1; i >= 0; i-- {
		p := running[i]
		if err := p.Shutdown(); err != nil {
			a.log.WithError(err).WithField("plugin", p.Name()).Warn("plugin shutdown failed")
		}
	}
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.WithField("signal", sig.String()).Info("shutting down")
	a.engine.Close()
}
