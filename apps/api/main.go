package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	contractshandler "github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/handler"
	"github.com/zenGate-Global/palmyra-contracts/domains/contracts/be/setup"
	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-contracts/platform/go/middleware"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}
	backendCfg, err := setup.LoadConfig()
	if err != nil {
		log.Fatalf("load backend config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "contracts-api",
		Service:   backendCfg.ServiceNamespace,
		Level:     backendCfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	backends, err := setup.Build(ctx, backendCfg, logger)
	if err != nil {
		logger.Fatal("init backends", zap.Error(err))
	}
	defer func() {
		if err := backends.Close(context.Background()); err != nil {
			logger.Error("close backends", zap.Error(err))
		}
	}()

	spec, err := contractshandler.GetSwagger()
	if err != nil {
		logger.Fatal("load openapi document", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, backends, spec, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg config, backends *setup.Backends, spec *openapi3.T, logger *zap.Logger) http.Handler {
	contractsHTTPHandler := contractshandler.New(backends.Service, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readinessHandler(backends, logger))

	registerDocsRoutes(rootRouter, spec, logger)

	rootRouter.Group(func(r chi.Router) {
		r.Use(platformmiddleware.RequestTrace)
		r.Use(platformmiddleware.OpenAPIValidator(spec, contractshandler.WriteProblem))
		contractsHTTPHandler.Register(r)
	})

	return rootRouter
}

// readinessHandler pings Postgres when it backs the store; other backends are ready once built.
func readinessHandler(backends *setup.Backends, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if backends.Pool != nil {
			if err := backends.Pool.Ping(r.Context()); err != nil {
				platformlogging.FromRequest(r, logger).Warn("readiness ping failed", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}
