// Package bootstrap assembles the pipeline and its adapters from Config. The
// api, worker and gatecheck binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"studio/internal/adapter/cache"
	"studio/internal/adapter/repo"
	"studio/internal/adapter/sqlitestore"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/geoip"
	"studio/internal/pipeline"
	"studio/internal/providers/critic"
	"studio/internal/providers/evaluator"
	"studio/internal/providers/image"
	"studio/internal/providers/qwen"
	"studio/internal/qualitygate"
	"studio/internal/storage"
	"studio/internal/telemetry"
)

// Services holds everything a binary needs. Close releases it in reverse
// order of construction.
type Services struct {
	Pipeline *pipeline.Pipeline
	Gate     *qualitygate.Gate
	Jobs     domain.JobRepository
	Records  domain.RecordReader
	Geo      geoip.CountryResolver
	Sink     *telemetry.Async

	closers []func() error
}

func (s *Services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close flushes telemetry and closes stores. It is safe to call once.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type stores struct {
	products  domain.ProductProvider
	brands    domain.BrandProvider
	templates domain.TemplateProvider
	records   recordRepository
	jobs      domain.JobRepository
}

type recordRepository interface {
	domain.RecordStore
	domain.RecordReader
}

// Build wires the configured stores, providers, gate and telemetry. reg may be
// nil when metrics are not exported.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, reg prometheus.Registerer) (_ *Services, err error) {
	svc := &Services{}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	st, err := openStores(ctx, cfg, logger, svc)
	if err != nil {
		return nil, err
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: redis unavailable, running without context cache")
	} else if rdb != nil {
		svc.onClose(rdb.Close)
		st.brands = cache.NewBrandCache(rdb, st.brands, cache.DefaultBrandTTL, logger)
		st.templates = cache.NewTemplateCache(rdb, st.templates, cache.DefaultTemplateTTL, logger)
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: geoip disabled")
	} else if geo != nil {
		svc.Geo = geo
		if closer, ok := geo.(interface{ Close() error }); ok {
			svc.onClose(closer.Close)
		}
	}

	eval, err := NewEvaluator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.Gate = qualitygate.New(qualitygate.Options{
		Config:    cfg.GateConfig(),
		Evaluator: eval,
		Logger:    logger,
	})

	sink, err := newSink(logger, reg)
	if err != nil {
		return nil, err
	}
	svc.Sink = sink
	svc.onClose(func() error { sink.Close(); return nil })

	p, err := pipeline.New(pipeline.Dependencies{
		Products:  st.products,
		Brands:    st.brands,
		Templates: st.templates,
		Gate:      svc.Gate,
		Generator: newGenerator(cfg, logger),
		Critic:    critic.NewLocalCritic(),
		Store:     st.records,
		Telemetry: sink,
		Logger:    logger,
	}, pipeline.WithTimeouts(cfg.PipelineTimeouts()), pipeline.WithMaxInputImages(cfg.MaxInputImages))
	if err != nil {
		return nil, err
	}
	svc.Pipeline = p
	svc.Jobs = st.jobs
	svc.Records = st.records
	return svc, nil
}

func openStores(ctx context.Context, cfg *infra.Config, logger zerolog.Logger, svc *Services) (*stores, error) {
	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	files, err := storage.NewFileStore(storagePath)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	switch cfg.StoreDriver {
	case infra.StoreDriverSQLite:
		db, err := sqlitestore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		svc.onClose(db.Close)
		st, err := sqlitestore.New(db, files)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("bootstrap: using sqlite store")
		return &stores{products: st, brands: st, templates: st, records: st, jobs: st}, nil
	default:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.onClose(func() error { pool.Close(); return nil })
		runner := infra.NewSQLRunner(pool, logger)
		return &stores{
			products:  repo.NewProductRepository(runner),
			brands:    repo.NewBrandRepository(runner),
			templates: repo.NewTemplateRepository(runner),
			records:   repo.NewGenerationStore(runner, files, logger),
			jobs:      repo.NewJobRepository(runner),
		}, nil
	}
}

// NewEvaluator returns the configured Tier 2 evaluator, or nil when Tier 2 is
// disabled or has no credentials.
func NewEvaluator(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (qualitygate.Evaluator, error) {
	onFailure := func(reason string, err error) {
		logger.Debug().Err(err).Str("reason", reason).Msg("gate: evaluator call failed")
	}
	switch cfg.EvaluatorProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn().Msg("bootstrap: GEMINI_API_KEY missing, gate runs heuristic only")
			return nil, nil
		}
		ev, err := evaluator.NewGeminiEvaluator(ctx, evaluator.GeminiOptions{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			BaseURL:   cfg.GeminiBaseURL,
			OnFailure: onFailure,
		})
		if err != nil {
			return nil, fmt.Errorf("configure gemini evaluator: %w", err)
		}
		logger.Info().Str("evaluator", ev.Name()).Msg("bootstrap: tier 2 evaluator enabled")
		return ev, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("bootstrap: OPENAI_API_KEY missing, gate runs heuristic only")
			return nil, nil
		}
		ev, err := evaluator.NewOpenAIEvaluator(evaluator.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			OnFailure:    onFailure,
		})
		if err != nil {
			return nil, fmt.Errorf("configure openai evaluator: %w", err)
		}
		logger.Info().Str("evaluator", ev.Name()).Msg("bootstrap: tier 2 evaluator enabled")
		return ev, nil
	default:
		return nil, nil
	}
}

// newGenerator returns the Qwen backend, or the synthetic placeholder when no
// credentials are configured.
func newGenerator(cfg *infra.Config, logger zerolog.Logger) pipeline.Generator {
	if cfg.QwenAPIKey == "" {
		logger.Warn().Msg("bootstrap: QWEN_API_KEY missing, using synthetic image generation")
		return image.NewSyntheticGenerator()
	}
	client, err := qwen.NewClient(qwen.Options{
		APIKey:        cfg.QwenAPIKey,
		BaseURL:       cfg.QwenBaseURL,
		Model:         cfg.QwenModel,
		HTTPClient:    &http.Client{Timeout: cfg.GenerationTimeout},
		Logger:        &logger,
		RatePerSecond: cfg.QwenRatePerSecond,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("bootstrap: qwen client unavailable, using synthetic image generation")
		return image.NewSyntheticGenerator()
	}
	return image.NewQwenGenerator(client, cfg.QwenCostCredits)
}

func newSink(logger zerolog.Logger, reg prometheus.Registerer) (*telemetry.Async, error) {
	sinks := []telemetry.Sink{telemetry.NewLogSink(logger)}
	var onDrop func()
	if reg != nil {
		prom, err := telemetry.NewPrometheusSink(reg)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		sinks = append(sinks, prom)
		onDrop = prom.RecordDrop
	}
	return telemetry.NewAsync(telemetry.Multi(sinks...), 0, onDrop), nil
}
