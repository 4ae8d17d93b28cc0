// Package pipeline runs one generation request through enrichment, prompt
// assembly, the pre-generation quality gate, the backend and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"studio/internal/domain"
	"studio/internal/imagegen"
	"studio/internal/qualitygate"
	"studio/internal/telemetry"
)

// Stage names in canonical order.
const (
	StageEnrich            = "enrich"
	StageAssemble          = "assemble"
	StageQualityGate       = "quality_gate"
	StageGenerationAttempt = "generation_attempt"
	StageGeneration        = "generation"
	StageCritique          = "critique"
	StagePersist           = "persist"
)

// Stages lists every stage in the order it runs.
var Stages = []string{
	StageEnrich,
	StageAssemble,
	StageQualityGate,
	StageGenerationAttempt,
	StageGeneration,
	StageCritique,
	StagePersist,
}

// Gate decides whether an assembled instruction may reach the backend.
type Gate interface {
	Evaluate(ctx context.Context, in qualitygate.Input) domain.QualityGateResult
}

// Generator calls the image backend.
type Generator interface {
	Generate(ctx context.Context, instruction domain.AssembledInstruction) (*domain.GeneratedArtifact, error)
}

// Critic reviews a generated artifact. Failures never fail the run.
type Critic interface {
	Critique(ctx context.Context, instruction domain.AssembledInstruction, artifact domain.GeneratedArtifact) (*domain.Critique, error)
}

// Dependencies are the collaborators resolved once at construction. Context
// providers and the critic are optional.
type Dependencies struct {
	Products  domain.ProductProvider
	Brands    domain.BrandProvider
	Templates domain.TemplateProvider
	Gate      Gate
	Generator Generator
	Critic    Critic
	Store     domain.RecordStore
	Telemetry telemetry.Sink
	Logger    zerolog.Logger
}

// Timeouts bound the stages that perform I/O.
type Timeouts struct {
	Enrich     time.Duration
	Generation time.Duration
	Critic     time.Duration
	Persist    time.Duration
}

// DefaultTimeouts returns the production stage budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Enrich:     2 * time.Second,
		Generation: 90 * time.Second,
		Critic:     3 * time.Second,
		Persist:    10 * time.Second,
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithTimeouts overrides stage budgets. Zero fields keep their defaults.
func WithTimeouts(t Timeouts) Option {
	return func(p *Pipeline) {
		if t.Enrich > 0 {
			p.timeouts.Enrich = t.Enrich
		}
		if t.Generation > 0 {
			p.timeouts.Generation = t.Generation
		}
		if t.Critic > 0 {
			p.timeouts.Critic = t.Critic
		}
		if t.Persist > 0 {
			p.timeouts.Persist = t.Persist
		}
	}
}

// WithMaxInputImages bounds the number of images a request may carry.
func WithMaxInputImages(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxImages = n
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	products  domain.ProductProvider
	brands    domain.BrandProvider
	templates domain.TemplateProvider
	gate      Gate
	generator Generator
	critic    Critic
	store     domain.RecordStore
	sink      telemetry.Sink
	logger    zerolog.Logger
	tracer    trace.Tracer
	timeouts  Timeouts
	maxImages int
	now       func() time.Time
}

// New wires a pipeline. The gate, generator and store are required.
func New(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.Gate == nil:
		return nil, errors.New("pipeline: quality gate is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: record store is required")
	}
	sink := deps.Telemetry
	if sink == nil {
		sink = telemetry.Nop
	}
	p := &Pipeline{
		products:  deps.Products,
		brands:    deps.Brands,
		templates: deps.Templates,
		gate:      deps.Gate,
		generator: deps.Generator,
		critic:    deps.Critic,
		store:     deps.Store,
		sink:      sink,
		logger:    deps.Logger,
		tracer:    otel.Tracer("studio/pipeline"),
		timeouts:  DefaultTimeouts(),
		maxImages: domain.DefaultMaxInputImages,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Outcome is returned from every Run, including failed ones, so callers can
// always see how far the request got.
type Outcome struct {
	RequestID       string                    `json:"request_id"`
	RecordID        string                    `json:"record_id,omitempty"`
	Artifact        *domain.GeneratedArtifact `json:"artifact,omitempty"`
	Gate            *domain.QualityGateResult `json:"gate,omitempty"`
	Critique        *domain.Critique          `json:"critique,omitempty"`
	StagesCompleted []string                  `json:"stages_completed"`
	Degraded        []string                  `json:"degraded,omitempty"`

	// produced is the backend result, kept even when it was never saved so
	// the run's cost is still reported.
	produced *domain.GeneratedArtifact
}

func (o *Outcome) complete(stage string) {
	o.StagesCompleted = append(o.StagesCompleted, stage)
}

// Run executes the pipeline. The returned error is one of *ValidationError,
// *GateBlockedError, *domain.BackendError, *CanceledError or *PersistenceError.
func (p *Pipeline) Run(ctx context.Context, req domain.GenerationRequest) (out *Outcome, err error) {
	start := p.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	out = &Outcome{RequestID: req.RequestID, StagesCompleted: []string{}}

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("request.mode", string(req.Mode)),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: panic: %v", r)
			p.logger.Error().Str("request_id", req.RequestID).Interface("panic", r).Msg("pipeline: recovered panic")
		}
		if err != nil {
			span.SetStatus(codes.Error, ErrorCode(err))
		}
		span.SetAttributes(attribute.StringSlice("pipeline.stages", out.StagesCompleted))
		span.End()
		p.sink.Record(p.event(req, out, err, p.now().Sub(start)))
	}()

	if err := Validate(req, p.maxImages); err != nil {
		return out, err
	}

	bag, degraded := p.enrich(ctx, req)
	out.Degraded = degraded
	out.complete(StageEnrich)

	instruction := imagegen.Assemble(req, bag)
	out.complete(StageAssemble)

	gateCtx, gateSpan := p.tracer.Start(ctx, "pipeline."+StageQualityGate)
	result := p.gate.Evaluate(gateCtx, qualitygate.Input{Instruction: instruction, Context: bag, TemplateID: req.TemplateID})
	gateSpan.SetAttributes(
		attribute.Float64("gate.blended_score", result.BlendedScore),
		attribute.String("gate.verdict", string(result.Verdict)),
		attribute.Bool("gate.evaluator_used", result.EvaluatorUsed),
	)
	gateSpan.End()
	out.Gate = &result
	out.complete(StageQualityGate)

	switch result.Verdict {
	case domain.VerdictBlock:
		return out, &GateBlockedError{Result: result}
	case domain.VerdictWarn:
		p.logger.Warn().
			Str("request_id", req.RequestID).
			Float64("blended_score", result.BlendedScore).
			Float64("heuristic_score", result.HeuristicScore).
			Bool("evaluator_used", result.EvaluatorUsed).
			Msg("pipeline: quality gate warning, proceeding")
	}

	if err := ctx.Err(); err != nil {
		return out, &CanceledError{Err: err}
	}

	out.complete(StageGenerationAttempt)
	artifact, err := p.generate(ctx, instruction)
	if err != nil {
		return out, err
	}
	out.produced = artifact
	out.complete(StageGeneration)

	// The backend already charged for the artifact; review and save it even if
	// the caller has gone away.
	detached := context.WithoutCancel(ctx)

	out.Critique = p.critique(detached, req.RequestID, instruction, *artifact)
	out.complete(StageCritique)

	recordID, err := p.persist(detached, req, instruction, result, *artifact, out.Critique, start)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("request_id", req.RequestID).
			Str("provider", artifact.Provider).
			Msg("pipeline: generated artifact could not be persisted")
		return out, &PersistenceError{Err: err}
	}
	out.RecordID = recordID
	out.Artifact = artifact
	out.complete(StagePersist)
	return out, nil
}

func (p *Pipeline) generate(ctx context.Context, instruction domain.AssembledInstruction) (*domain.GeneratedArtifact, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+StageGeneration)
	defer span.End()

	genCtx, cancel := context.WithTimeout(ctx, p.timeouts.Generation)
	defer cancel()
	artifact, err := p.generator.Generate(genCtx, instruction)
	if err == nil && artifact == nil {
		err = errors.New("generator returned no artifact")
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil, &CanceledError{Err: ctx.Err()}
		}
		backendErr := asBackendError(err)
		span.SetStatus(codes.Error, string(backendErr.Kind))
		return nil, backendErr
	}
	span.SetAttributes(attribute.String("artifact.provider", artifact.Provider))
	return artifact, nil
}

func asBackendError(err error) *domain.BackendError {
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return backendErr
	}
	kind := domain.BackendUnknown
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.BackendTimeout
	}
	return &domain.BackendError{Kind: kind, Err: err}
}

func (p *Pipeline) critique(ctx context.Context, requestID string, instruction domain.AssembledInstruction, artifact domain.GeneratedArtifact) (review *domain.Critique) {
	if p.critic == nil {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "pipeline."+StageCritique)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Critic)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			review = nil
			p.logger.Warn().Str("request_id", requestID).Interface("panic", r).Msg("pipeline: critic panicked, skipping review")
		}
	}()
	review, err := p.critic.Critique(ctx, instruction, artifact)
	if err != nil {
		p.logger.Warn().Err(err).Str("request_id", requestID).Msg("pipeline: critique failed, skipping review")
		return nil
	}
	if review != nil {
		span.SetAttributes(attribute.Float64("critique.score", review.Score))
	}
	return review
}

func (p *Pipeline) persist(ctx context.Context, req domain.GenerationRequest, instruction domain.AssembledInstruction, gate domain.QualityGateResult, artifact domain.GeneratedArtifact, review *domain.Critique, start time.Time) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+StagePersist)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, p.timeouts.Persist)
	defer cancel()

	now := p.now()
	usage := domain.UsageRecord{
		RecordID:       uuid.NewString(),
		UserID:         req.UserID,
		RequestID:      req.RequestID,
		Provider:       artifact.Provider,
		Model:          artifact.Model,
		Mode:           instruction.Mode,
		AspectRatio:    instruction.AspectRatio,
		InputImages:    len(req.Images),
		CostCredits:    artifact.CostCredits,
		LatencyMS:      now.Sub(start).Milliseconds(),
		HeuristicScore: gate.HeuristicScore,
		BlendedScore:   gate.BlendedScore,
		Verdict:        gate.Verdict,
		EvaluatorUsed:  gate.EvaluatorUsed,
		CreatedAt:      now.UTC(),
	}
	if review != nil {
		score := review.Score
		usage.CritiqueScore = &score
	}
	recordID, err := p.store.Save(ctx, artifact, usage)
	if err != nil {
		span.SetStatus(codes.Error, "persist failed")
		return "", err
	}
	return recordID, nil
}

func (p *Pipeline) event(req domain.GenerationRequest, out *Outcome, err error, elapsed time.Duration) telemetry.Event {
	ev := telemetry.Event{
		RequestID:       req.RequestID,
		UserID:          req.UserID,
		Country:         req.Country,
		Mode:            string(req.Mode),
		Outcome:         outcomeOf(err),
		StagesCompleted: append([]string(nil), out.StagesCompleted...),
		Degraded:        append([]string(nil), out.Degraded...),
		RecordID:        out.RecordID,
		Duration:        elapsed,
	}
	if err != nil {
		ev.ErrorKind = ErrorCode(err)
	}
	if g := out.Gate; g != nil {
		ev.GateEvaluated = true
		ev.Verdict = string(g.Verdict)
		ev.HeuristicScore = g.HeuristicScore
		ev.BlendedScore = g.BlendedScore
		ev.EvaluatorUsed = g.EvaluatorUsed
		ev.EvaluatorError = g.EvaluatorError
	}
	if a := out.produced; a != nil {
		ev.Provider = a.Provider
		ev.CostCredits = a.CostCredits
	}
	return ev
}

func outcomeOf(err error) telemetry.Outcome {
	var (
		validation *ValidationError
		blocked    *GateBlockedError
		backend    *domain.BackendError
		persist    *PersistenceError
		canceled   *CanceledError
	)
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.As(err, &validation):
		return telemetry.OutcomeInvalid
	case errors.As(err, &blocked):
		return telemetry.OutcomeBlocked
	case errors.As(err, &canceled):
		return telemetry.OutcomeCanceled
	case errors.As(err, &backend):
		return telemetry.OutcomeBackendError
	case errors.As(err, &persist):
		return telemetry.OutcomePersistenceError
	default:
		return telemetry.OutcomeInternal
	}
}
