package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mediastack/image-variant-pipeline/internal/config"
	"github.com/mediastack/image-variant-pipeline/internal/dbosruntime"
	"github.com/mediastack/image-variant-pipeline/internal/dedupe"
	"github.com/mediastack/image-variant-pipeline/internal/engine"
	"github.com/mediastack/image-variant-pipeline/internal/gateway"
	"github.com/mediastack/image-variant-pipeline/internal/handlers"
	"github.com/mediastack/image-variant-pipeline/internal/registry"
	"github.com/mediastack/image-variant-pipeline/internal/workflows"
	"github.com/mediastack/image-variant-pipeline/pkg/variant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("configuration error")
	}
	logger := config.NewLogger(cfg.AppEnv)

	reg, err := registry.LoadFile(cfg.FormatsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.FormatsFile).Msg("failed to load variant definitions")
	}
	logger.Info().Str("path", cfg.FormatsFile).Int("entity_types", len(reg.EntityTypes())).Msg("variant definitions loaded")

	gw := gateway.NewHTTPGateway(cfg.ContentAPIURL, cfg.UploadToken)

	var fetcher gateway.ByteFetcher = gw
	if cfg.LocalMediaDir != "" {
		local, err := gateway.NewLocalFetcher(cfg.LocalMediaDir, gw)
		if err != nil {
			logger.Fatal().Err(err).Str("dir", cfg.LocalMediaDir).Msg("failed to open local media directory")
		}
		fetcher = local
		logger.Info().Str("dir", cfg.LocalMediaDir).Msg("serving source bytes from local media directory")
	}

	generator := engine.New(gw, fetcher, gw, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Get("/health", handleHealth)
	router.Handle("/metrics", promhttp.Handler())

	var runtime *dbosruntime.Runtime
	if cfg.QueueEnabled() {
		runtime, err = dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
			DatabaseURL: cfg.DatabaseURL,
			AppName:     cfg.AppName,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize durable runtime")
		}

		runner := workflows.NewWorkflowRunner(runtime)
		runner.Register(variant.JobRegenerate, workflows.NewRegenerateWorkflow(generator, gw, logger))

		// Registration must precede launch.
		if err := runtime.Launch(); err != nil {
			logger.Fatal().Err(err).Msg("failed to launch durable runtime")
		}
		defer runtime.Shutdown(10 * time.Second)

		tracker, err := dedupe.NewTracker(runtime.DB())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize dedupe ledger")
		}

		async := handlers.NewAsyncHandler(runner, runtime, tracker, logger)
		async.Routes(router)

		logger.Info().
			Str("queue", runtime.QueueName()).
			Int("concurrency", runtime.Concurrency()).
			Msg("regeneration queue online")
	} else {
		logger.Warn().Msg("DBOS_SYSTEM_DATABASE_URL not set; regeneration endpoints disabled")
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("variant worker listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
