package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"studio/internal/bootstrap"
	"studio/internal/infra"
	"studio/internal/worker"
)

const serviceName = "studio-worker"

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
		logger.Fatal().Err(err).Msg("worker: failed to init tracer")
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	svc, err := bootstrap.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build services")
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error().Err(err).Msg("worker: close services")
		}
	}()

	w := worker.New(svc.Jobs, svc.Pipeline, logger, worker.Options{PollInterval: cfg.WorkerPollInterval})
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	logger.Info().Msg("worker: stopped")
}
