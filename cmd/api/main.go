package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"studio/internal/bootstrap"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
)

const serviceName = "studio-api"

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := infra.InitTracer(ctx, cfg, serviceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to init tracer")
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := bootstrap.Build(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to build services")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("api: close services")
		}
	}()

	app := &handlers.App{
		Pipeline:       svc.Pipeline,
		Jobs:           svc.Jobs,
		Records:        svc.Records,
		Geo:            svc.Geo,
		Logger:         logger,
		MaxInputImages: cfg.MaxInputImages,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Gatherer:        reg,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Locales:         cfg.Locales,
		DefaultLocale:   cfg.DefaultLocale,
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	logger.Info().Str("store", cfg.StoreDriver).Str("evaluator", cfg.EvaluatorProvider).Msg("api: starting")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("api: http server failed")
		return
	}
	logger.Info().Msg("api: stopped")
}
