// Package bootstrap wires all dependencies and starts the application.
// A single entity schema is loaded from the path named in the config file,
// backed by the configured store and served over HTTP.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/tablecrud/adapters/metrics"
	"github.com/artpar/tablecrud/config"
	apihttp "github.com/artpar/tablecrud/core/channel/http"
	"github.com/artpar/tablecrud/core/schema"
	"github.com/artpar/tablecrud/core/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Schema     *schema.Schema
	Store      storage.Store
	Metrics    *metrics.Collector
	Channel    *apihttp.Channel
	HTTPServer *http.Server

	// Set only by NewWithHotReload.
	holder *config.Holder
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, setupLogger(cfg.Logging))
}

// NewWithHotReload creates the application from a config file and reloads
// it on file changes or SIGHUP. Only the log level applies live; other
// changes are logged as requiring a restart.
func NewWithHotReload(path string) (*App, error) {
	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		return nil, err
	}
	logger := setupLogger(holder.Get().Logging)
	holder.SetLogger(logger)

	a, err := build(holder.Get(), logger)
	if err != nil {
		return nil, err
	}
	a.holder = holder

	holder.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg.Logging.Level)
	})
	if a.Metrics != nil {
		holder.OnReload(a.Metrics.RecordReload)
	}

	if err := holder.WatchFile(); err != nil {
		logger.Warn().Err(err).Msg("config file watch disabled")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Logger: logger,
		Config: cfg,
	}

	s, err := schema.ParseFile(cfg.Schema.Path)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	a.Schema = s

	logger.Info().
		Str("entity", s.Entity()).
		Int("fields", s.Len()).
		Str("driver", cfg.Database.Driver).
		Msg("initializing tablecrud")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, s)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Store = store

	opts := []apihttp.Option{apihttp.WithLogger(logger)}
	routerCfg := apihttp.RouterConfig{
		MetricsPath: cfg.Metrics.Path,
		Health:      a.health,
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)

		opts = append(opts, apihttp.WithRecorder(a.Metrics))
		routerCfg.MetricsMiddleware = a.Metrics.Middleware(cfg.Metrics.Path)
		routerCfg.MetricsHandler = a.Metrics.Handler()
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	a.Channel = apihttp.New(apihttp.NewHandlers(s, store, opts...), cfg.API.BasePath)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apihttp.NewRouter(a.Channel, logger, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// health reports whether the store can serve requests.
func (a *App) health(ctx context.Context) error {
	if st, ok := a.Store.(*storage.SQLStore); ok {
		if err := st.DB().PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Str("base_path", a.Channel.BasePath()).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop config watchers
	if a.holder != nil {
		a.holder.Stop()
	}

	// Shutdown HTTP server
	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Close storage
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("storage close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	applyLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func applyLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
