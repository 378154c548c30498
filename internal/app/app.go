// Package app assembles the service from configuration and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"contactlink/internal/config"
	"contactlink/internal/database"
	"contactlink/internal/handlers"
	"contactlink/internal/metrics"
	"contactlink/internal/middleware"
	"contactlink/internal/platform/redis"
	"contactlink/internal/platform/tracing"
	"contactlink/internal/service"
	"contactlink/internal/store"
	"contactlink/internal/store/memstore"
	"contactlink/internal/store/sqlstore"
)

// Run is the application entry point. It loads configuration, wires the
// service and serves HTTP until ctx is canceled.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)
	logger.Info("starting contactlink",
		slog.String("version", BuildVersion()),
		slog.String("driver", cfg.Database.Driver),
		slog.String("log_level", cfg.Log.Level),
	)

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr(), err)
	}
	return a.Serve(ctx, ln)
}

const tracerShutdownTimeout = 5 * time.Second

// App is a wired instance of the service.
type App struct {
	cfg        *config.Config
	log        *slog.Logger
	handler    http.Handler
	tracer     trace.TracerProvider
	spanWriter io.Writer
	closers    []func() error
}

// Option configures an App.
type Option func(*App)

// WithSpanWriter sends exported spans to w instead of stdout.
func WithSpanWriter(w io.Writer) Option {
	return func(a *App) { a.spanWriter = w }
}

// New connects the store and Redis, installs tracing when enabled, then
// builds the HTTP handler.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, log: logger, tracer: otel.GetTracerProvider(), spanWriter: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.setupTracing(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	contacts, dbPing, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	health := map[string]handlers.Pinger{"database": dbPing}
	var limiter middleware.Counter
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		health["redis"] = handlers.PingFunc(rdb.Health)
		if cfg.RateLimit.Enabled {
			limiter = rdb
		}
	}

	svc := service.NewReconciliationService(logger, contacts, m, service.WithTracerProvider(a.tracer))

	a.handler = handlers.NewRouter(handlers.RouterDeps{
		Logger:   logger,
		Identify: handlers.NewIdentifyHandler(svc, logger),
		Health:   handlers.NewHealthHandler(health),
		Metrics:  m,
		Gatherer: reg,
		CORS:     cfg.CORS,
		Limiter:  limiter,
		RateLimit: middleware.RateLimitOptions{
			Limit:         cfg.RateLimit.Limit,
			Window:        cfg.RateLimit.Window,
			BlockDuration: cfg.RateLimit.BlockDuration,
			KeyPrefix:     cfg.RateLimit.KeyPrefix,
		},
	})

	return a, nil
}

// setupTracing installs an SDK tracer provider as the global one when
// tracing is enabled. Close flushes it.
func (a *App) setupTracing() error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}

	tp, err := tracing.New(a.cfg.Tracing, a.spanWriter)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	otel.SetTracerProvider(tp)
	a.tracer = tp
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	})

	a.log.Info("tracing enabled",
		slog.String("service_name", a.cfg.Tracing.ServiceName),
		slog.Float64("sample_ratio", a.cfg.Tracing.SampleRatio),
	)
	return nil
}

// TracerProvider returns the provider spans are recorded with.
func (a *App) TracerProvider() trace.TracerProvider {
	return a.tracer
}

func (a *App) openStore(ctx context.Context) (store.ContactStore, handlers.Pinger, error) {
	if a.cfg.Database.Driver == config.DriverMemory {
		a.log.Warn("using in-memory contact store; data is lost on exit")
		return memstore.New(), handlers.PingFunc(func(context.Context) error { return nil }), nil
	}

	db, err := database.New(ctx, a.cfg.Database, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	return sqlstore.New(db), db, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Serve serves HTTP on ln until ctx is canceled, then shuts down gracefully
// within the configured timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close releases the store and Redis connections and flushes pending spans.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
