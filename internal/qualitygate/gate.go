package qualitygate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"studio/internal/domain"
)

// Evaluator is the Tier 2 model scorer. Implementations return four 0-25
// category scores; out-of-range values are clamped by the gate.
type Evaluator interface {
	Evaluate(ctx context.Context, instruction domain.AssembledInstruction, bag domain.StageContext) (*domain.CategoryScores, error)
}

// ErrNoEvaluator is recorded when Tier 2 was needed but none is configured.
var ErrNoEvaluator = errors.New("no evaluator configured")

// Options configures a Gate.
type Options struct {
	Config    Config
	Evaluator Evaluator
	Logger    zerolog.Logger
}

// Gate scores assembled instructions and decides whether they may reach the backend.
type Gate struct {
	cfg       Config
	evaluator Evaluator
	logger    zerolog.Logger
}

// New constructs a Gate. A nil evaluator disables Tier 2.
func New(opts Options) *Gate {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Gate{
		cfg:       cfg.Normalize(),
		evaluator: opts.Evaluator,
		logger:    opts.Logger,
	}
}

// Config returns the normalized tuning in effect.
func (g *Gate) Config() Config {
	return g.cfg
}

// Evaluate runs the two tiers and returns the verdict. Evaluator failures are
// logged and treated as an absent model score; Evaluate itself never fails.
func (g *Gate) Evaluate(ctx context.Context, in Input) domain.QualityGateResult {
	heuristic := Score(in)
	result := domain.QualityGateResult{
		Heuristic:      heuristic,
		HeuristicScore: heuristic.Total(),
	}
	result.BlendedScore = result.HeuristicScore

	if result.HeuristicScore < g.cfg.FastPathThreshold {
		model, err := g.runEvaluator(ctx, in)
		switch {
		case err != nil:
			result.EvaluatorError = err.Error()
			g.logger.Warn().
				Err(err).
				Float64("heuristic_score", result.HeuristicScore).
				Msg("gate: evaluator unavailable, using heuristic score")
		case model != nil:
			clamped := model.Clamp()
			total := clamped.Total()
			result.Model = &clamped
			result.ModelScore = &total
			result.EvaluatorUsed = true
			result.BlendedScore = Blend(result.HeuristicScore, total, g.cfg)
		}
	}

	result.Verdict = g.verdict(result.BlendedScore)
	if result.Verdict == domain.VerdictBlock {
		result.Suggestions = Suggestions(in.Instruction.Mode, heuristic, result.Model)
	}
	return result
}

func (g *Gate) runEvaluator(ctx context.Context, in Input) (scores *domain.CategoryScores, err error) {
	if g.evaluator == nil {
		return nil, ErrNoEvaluator
	}
	defer func() {
		if r := recover(); r != nil {
			scores, err = nil, fmt.Errorf("evaluator panic: %v", r)
		}
	}()
	evalCtx, cancel := context.WithTimeout(ctx, g.cfg.EvaluatorTimeout)
	defer cancel()
	scores, err = g.evaluator.Evaluate(evalCtx, in.Instruction, in.Context)
	if err != nil {
		return nil, err
	}
	if scores == nil {
		return nil, errors.New("evaluator returned no scores")
	}
	return scores, nil
}

func (g *Gate) verdict(score float64) domain.Verdict {
	switch {
	case score < g.cfg.BlockBelow:
		return domain.VerdictBlock
	case score <= g.cfg.WarnMax:
		return domain.VerdictWarn
	default:
		return domain.VerdictPass
	}
}

// Blend combines both tiers with the configured weights, clamped to [0,100].
func Blend(heuristic, model float64, cfg Config) float64 {
	cfg = cfg.Normalize()
	return clampScore(cfg.HeuristicWeight*clampScore(heuristic) + cfg.ModelWeight*clampScore(model))
}
