package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"smart-tracker/internal/application/tracker"
	"smart-tracker/internal/infrastructure/auth"
	"smart-tracker/internal/infrastructure/config"
	"smart-tracker/internal/infrastructure/hub"
	"smart-tracker/internal/infrastructure/logger"
	"smart-tracker/internal/infrastructure/server"
	"smart-tracker/internal/infrastructure/storage"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogrusLogger(newLoggerConfig(cfg.Log))
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		log.Errorf("failed to open store: %v", err)
		return
	}

	verifier, err := auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Errorf("failed to create token verifier: %v", err)
		store.Close()
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The service needs the hub to dispatch and the hub needs the service
	// to authorize declarations.
	var svc *tracker.Service
	var authorizer hub.Authorizer = hub.AllowAll
	if cfg.Realtime.VerifyDeclarations {
		authorizer = hub.AuthorizerFunc(func(ctx context.Context, principal string, key hub.Key) error {
			return svc.Authorize(ctx, principal, key)
		})
	} else {
		log.Warn("subscription declarations are not verified against ownership")
	}

	hubInstance := hub.New(log,
		hub.WithAuthorizer(authorizer),
		hub.WithMetrics(hub.NewMetrics(reg)),
		hub.WithCleanupInterval(cfg.Realtime.CleanupInterval),
	)
	svc = tracker.NewService(store, hubInstance, log)

	// Start the hub before any connection can be accepted
	if err := hubInstance.Start(ctx); err != nil {
		log.Errorf("failed to start hub: %v", err)
		store.Close()
		return
	}
	log.Infof("hub started, running status: %v", hubInstance.IsRunning())

	router := InitRouter(routerDeps{
		cfg:      cfg,
		log:      log,
		hub:      hubInstance,
		svc:      svc,
		verifier: verifier,
		registry: reg,
	})
	httpSrv := server.NewHTTPServer(router, server.HTTPOptions{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, log)

	app := newApplication(log, httpSrv, hubInstance, store, cfg.Server.ShutdownTimeout)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

func newLoggerConfig(c config.LogConfig) *logger.Config {
	lCfg := logger.NewDefaultConfig()

	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, falling back to info\n", err)
	}
	lCfg.Level = level
	lCfg.Format = c.Format
	lCfg.Output = c.Output
	lCfg.FilePath = c.FilePath
	lCfg.MaxSize = c.MaxSize
	lCfg.MaxBackups = c.MaxBackups
	lCfg.MaxAge = c.MaxAge
	lCfg.Compress = c.Compress

	return lCfg
}

func openStore(ctx context.Context, c config.DatabaseConfig, log logger.Logger) (storage.Store, error) {
	switch c.Driver {
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, storage.PostgresOptions{
			URL:      c.URL,
			MaxConns: c.MaxConns,
			Migrate:  c.Migrate,
		})
		if err != nil {
			return nil, err
		}
		log.Infof("connected to postgres (max_conns=%d, migrate=%v)", c.MaxConns, c.Migrate)
		return store, nil
	default:
		log.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	store           storage.Store
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	store storage.Store,
	shutdownTimeout time.Duration,
) *Application {
	return &Application{
		logger:          logger.WithField("app", "smart-tracker"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		store:           store,
		shutdownTimeout: shutdownTimeout,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			app.shutdownTimeout,
		)
		defer cancel()
		defer app.store.Close()

		// Stop hub first so every live session is closed before the
		// listener goes away
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
