package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	mid "MarketBoard/internal/middleware"
	"MarketBoard/internal/services/rotation"
	"MarketBoard/internal/usecase"
	"MarketBoard/pkg/config"
	xhttp "MarketBoard/pkg/http"
	applogger "MarketBoard/pkg/logger"
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	aggregator *usecase.Aggregator
	rotation   *rotation.Scheduler
	sink       *mid.SinkPipeline
	httpServer *xhttp.Server
	closers    []closer
}

// Option configures App.
type Option func(*App)

// WithCloser registers an infrastructure client to close on shutdown, after
// the pipeline has drained. Closers run in registration order.
func WithCloser(name string, fn func() error) Option {
	return func(a *App) {
		if fn != nil {
			a.closers = append(a.closers, closer{name: name, fn: fn})
		}
	}
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	aggregator *usecase.Aggregator,
	rot *rotation.Scheduler,
	sink *mid.SinkPipeline,
	httpServer *xhttp.Server,
	opts ...Option,
) *App {
	a := &App{
		cfg:        cfg,
		logger:     logger,
		aggregator: aggregator,
		rotation:   rot,
		sink:       sink,
		httpServer: httpServer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts
// down in reverse dependency order.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.sink != nil {
		a.sink.Start(runCtx)
	}

	if a.rotation != nil {
		a.aggregator.OnSignal(a.rotation.NotifySignal)
		a.aggregator.OnSignalExtended(a.rotation.ExtendSignal)
	}
	if err := a.aggregator.Start(runCtx); err != nil {
		a.logger.Error("aggregator start failed", applogger.Error(err))
		a.shutdown()
		return err
	}

	if a.rotation != nil {
		for _, g := range a.cfg.Rotation.Groups {
			if err := a.rotation.Start(g.Name, g.RotationInterval); err != nil {
				a.logger.Error("rotation start failed", applogger.String("group", g.Name), applogger.Error(err))
				a.shutdown()
				return err
			}
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start failed", applogger.Error(err))
		a.shutdown()
		return err
	}

	a.logger.Info("started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("home_currency", a.cfg.Market.HomeCurrency),
		applogger.Int("instruments", len(a.cfg.Instruments)),
		applogger.Int("rotation_groups", len(a.cfg.Rotation.Groups)),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first so the sink can drain what is already queued.
func (a *App) shutdown() error {
	var errs []error

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(stopCtx); err != nil {
		a.logger.Warn("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.aggregator.Stop()
	if a.rotation != nil {
		a.rotation.StopAll()
	}
	if a.sink != nil {
		a.sink.Stop()
	}

	// Flush collected logs while the producer is still open.
	a.logger.RemoveCollector()
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
