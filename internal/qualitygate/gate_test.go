package qualitygate

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"studio/internal/domain"
)

type evaluatorFunc func(ctx context.Context, instruction domain.AssembledInstruction, bag domain.StageContext) (*domain.CategoryScores, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, instruction domain.AssembledInstruction, bag domain.StageContext) (*domain.CategoryScores, error) {
	return f(ctx, instruction, bag)
}

const detailedBrief = "Handmade ceramic coffee mug on a rustic oak table, soft morning sunlight from the left window, " +
	"shallow depth of field, close up three quarter angle, steam rising gently, warm neutral tones, cozy premium feel " +
	"for an online shop banner with clean negative space on the right side"

func vagueInput() Input {
	return Input{Instruction: domain.AssembledInstruction{Brief: "A beautiful landscape", Mode: domain.ModeStandard}}
}

func detailedInput() Input {
	var bag domain.StageContext
	bag.SetBrand(&domain.BrandVoice{Name: "Kopi Kita", Tone: "warm and honest"})
	return Input{
		Instruction: domain.AssembledInstruction{
			Brief:       detailedBrief,
			Mode:        domain.ModeStandard,
			InputImages: []domain.InputImage{{URL: "https://cdn.example.com/mug.png"}},
		},
		Context: bag,
	}
}

func templateWithoutReferencesInput() Input {
	var bag domain.StageContext
	bag.SetTemplate(&domain.TemplateRecipe{ID: "tpl-1", Name: "Summer promo", StyleDirectives: []string{"pastel background", "bold headline area"}})
	return Input{
		Instruction: domain.AssembledInstruction{
			Brief:      "Seasonal promo poster for our iced tea with fresh lemon slices and mint leaves in summer vibe",
			Directives: []string{"pastel background", "bold headline area"},
			Mode:       domain.ModeTemplateGuided,
		},
		Context:    bag,
		TemplateID: "tpl-1",
	}
}

func TestVagueRequestIsBlockedWithSuggestions(t *testing.T) {
	var calls int32
	gate := New(Options{
		Evaluator: evaluatorFunc(func(ctx context.Context, _ domain.AssembledInstruction, _ domain.StageContext) (*domain.CategoryScores, error) {
			atomic.AddInt32(&calls, 1)
			return &domain.CategoryScores{Specificity: 3, Context: 8, Images: 10, Consistency: 20}, nil
		}),
		Logger: zerolog.Nop(),
	})

	res := gate.Evaluate(context.Background(), vagueInput())

	if res.HeuristicScore != 37 {
		t.Fatalf("heuristic = %v, want 37", res.HeuristicScore)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("evaluator calls = %d, want 1", calls)
	}
	if res.ModelScore == nil || *res.ModelScore != 41 {
		t.Fatalf("model score = %v, want 41", res.ModelScore)
	}
	if math.Abs(res.BlendedScore-39.4) > 1e-9 {
		t.Fatalf("blended = %v, want 39.4", res.BlendedScore)
	}
	if res.Verdict != domain.VerdictBlock {
		t.Fatalf("verdict = %s, want block", res.Verdict)
	}
	want := []string{
		Hint(domain.ModeStandard, domain.CategoryContext),
		Hint(domain.ModeStandard, domain.CategorySpecificity),
	}
	if diff := cmp.Diff(want, res.Suggestions); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestDetailedRequestTakesFastPath(t *testing.T) {
	gate := New(Options{
		Evaluator: evaluatorFunc(func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			t.Fatalf("evaluator must not run on the fast path")
			return nil, nil
		}),
		Logger: zerolog.Nop(),
	})

	res := gate.Evaluate(context.Background(), detailedInput())

	want := domain.CategoryScores{Specificity: 25, Context: 10, Images: 25, Consistency: 25}
	if diff := cmp.Diff(want, res.Heuristic); diff != "" {
		t.Fatalf("heuristic mismatch (-want +got):\n%s", diff)
	}
	if res.BlendedScore != res.HeuristicScore || res.ModelScore != nil {
		t.Fatalf("fast path must keep heuristic score: %+v", res)
	}
	if res.Verdict != domain.VerdictPass || len(res.Suggestions) != 0 {
		t.Fatalf("verdict = %s suggestions = %v, want pass without suggestions", res.Verdict, res.Suggestions)
	}
}

func TestTemplateWithoutReferencesWarns(t *testing.T) {
	gate := New(Options{Logger: zerolog.Nop()})

	res := gate.Evaluate(context.Background(), templateWithoutReferencesInput())

	want := domain.CategoryScores{Specificity: 12.5, Context: 10, Images: 5, Consistency: 15}
	if diff := cmp.Diff(want, res.Heuristic); diff != "" {
		t.Fatalf("heuristic mismatch (-want +got):\n%s", diff)
	}
	if res.Verdict != domain.VerdictWarn {
		t.Fatalf("verdict = %s, want warn", res.Verdict)
	}
	if !strings.Contains(res.EvaluatorError, ErrNoEvaluator.Error()) {
		t.Fatalf("evaluator error = %q", res.EvaluatorError)
	}
}

func TestEvaluatorTimeoutFallsBackToHeuristic(t *testing.T) {
	gate := New(Options{
		Config: Config{
			FastPathThreshold: 75, BlockBelow: 40, WarnMax: 60,
			HeuristicWeight: 0.4, ModelWeight: 0.6,
			EvaluatorTimeout: 20 * time.Millisecond,
		},
		Evaluator: evaluatorFunc(func(ctx context.Context, _ domain.AssembledInstruction, _ domain.StageContext) (*domain.CategoryScores, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		Logger: zerolog.Nop(),
	})

	res := gate.Evaluate(context.Background(), templateWithoutReferencesInput())

	if res.BlendedScore != res.HeuristicScore {
		t.Fatalf("blended = %v, want heuristic %v", res.BlendedScore, res.HeuristicScore)
	}
	if res.EvaluatorUsed || res.ModelScore != nil {
		t.Fatalf("timed out evaluator must be absent: %+v", res)
	}
	if !strings.Contains(res.EvaluatorError, context.DeadlineExceeded.Error()) {
		t.Fatalf("evaluator error = %q", res.EvaluatorError)
	}
}

func TestEvaluatorFailuresAreAbsorbed(t *testing.T) {
	cases := []struct {
		name string
		eval evaluatorFunc
	}{
		{name: "error", eval: func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			return nil, errors.New("boom")
		}},
		{name: "nil scores", eval: func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			return nil, nil
		}},
		{name: "panic", eval: func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			panic("evaluator exploded")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := New(Options{Evaluator: tc.eval, Logger: zerolog.Nop()})
			res := gate.Evaluate(context.Background(), vagueInput())
			if res.BlendedScore != res.HeuristicScore {
				t.Fatalf("blended = %v, want %v", res.BlendedScore, res.HeuristicScore)
			}
			if res.EvaluatorError == "" || res.EvaluatorUsed || res.ModelScore != nil {
				t.Fatalf("failed evaluator must be recorded as absent: %+v", res)
			}
		})
	}
}

func TestEvaluatorScoresAreClamped(t *testing.T) {
	gate := New(Options{
		Evaluator: evaluatorFunc(func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			return &domain.CategoryScores{Specificity: 40, Context: -3, Images: 25, Consistency: 25}, nil
		}),
		Logger: zerolog.Nop(),
	})
	res := gate.Evaluate(context.Background(), vagueInput())
	if res.ModelScore == nil || *res.ModelScore != 75 {
		t.Fatalf("model score = %v, want 75", res.ModelScore)
	}
}

func TestFastPathNeverInvokesEvaluator(t *testing.T) {
	var calls int32
	gate := New(Options{
		Evaluator: evaluatorFunc(func(context.Context, domain.AssembledInstruction, domain.StageContext) (*domain.CategoryScores, error) {
			atomic.AddInt32(&calls, 1)
			return &domain.CategoryScores{}, nil
		}),
		Logger: zerolog.Nop(),
	})
	briefs := []string{"", "mug", "A beautiful landscape", detailedBrief, strings.Repeat("word ", 60)}
	modes := domain.Modes
	for _, brief := range briefs {
		for _, mode := range modes {
			for images := 0; images <= 5; images++ {
				for _, withBrand := range []bool{false, true} {
					in := Input{Instruction: domain.AssembledInstruction{Brief: brief, Mode: mode}}
					for i := 0; i < images; i++ {
						in.Instruction.InputImages = append(in.Instruction.InputImages, domain.InputImage{URL: "https://cdn.example.com/p.png"})
					}
					if withBrand {
						in.Context.SetBrand(&domain.BrandVoice{Tone: "playful"})
						in.Context.SetProducts([]domain.Product{{ID: "p1", Name: "Mug"}})
					}
					before := atomic.LoadInt32(&calls)
					res := gate.Evaluate(context.Background(), in)
					after := atomic.LoadInt32(&calls)
					if res.HeuristicScore >= DefaultFastPathThreshold {
						if after != before {
							t.Fatalf("evaluator invoked for heuristic %v", res.HeuristicScore)
						}
						if res.BlendedScore != res.HeuristicScore {
							t.Fatalf("blended %v != heuristic %v", res.BlendedScore, res.HeuristicScore)
						}
					} else if after != before+1 {
						t.Fatalf("evaluator not invoked for heuristic %v", res.HeuristicScore)
					}
					if res.BlendedScore < 0 || res.BlendedScore > 100 {
						t.Fatalf("blended score out of range: %v", res.BlendedScore)
					}
					if (res.Verdict == domain.VerdictBlock) != (len(res.Suggestions) > 0) {
						t.Fatalf("suggestions must be present exactly when blocked: %+v", res)
					}
				}
			}
		}
	}
}

func TestBlendIsBounded(t *testing.T) {
	cases := []struct {
		heuristic, model, want float64
	}{
		{0, 0, 0},
		{100, 100, 100},
		{50, 50, 50},
		{37, 41, 39.4},
		{-40, -10, 0},
		{500, 900, 100},
		{math.NaN(), 100, 60},
		{math.Inf(1), 0, 40},
	}
	for _, tc := range cases {
		got := Blend(tc.heuristic, tc.model, DefaultConfig())
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("Blend(%v, %v) = %v, want %v", tc.heuristic, tc.model, got, tc.want)
		}
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{FastPathThreshold: 140, BlockBelow: 55, WarnMax: 30, HeuristicWeight: 2, ModelWeight: 2}.Normalize()
	if cfg.FastPathThreshold != 100 {
		t.Fatalf("fast path = %v, want 100", cfg.FastPathThreshold)
	}
	if cfg.WarnMax != 55 {
		t.Fatalf("warn max = %v, want 55", cfg.WarnMax)
	}
	if cfg.HeuristicWeight != 0.5 || cfg.ModelWeight != 0.5 {
		t.Fatalf("weights = %v/%v, want 0.5/0.5", cfg.HeuristicWeight, cfg.ModelWeight)
	}
	if cfg.EvaluatorTimeout != DefaultEvaluatorTimeout {
		t.Fatalf("timeout = %v", cfg.EvaluatorTimeout)
	}

	neg := Config{HeuristicWeight: -1, ModelWeight: 1}.Normalize()
	if neg.HeuristicWeight != DefaultHeuristicWeight || neg.ModelWeight != DefaultModelWeight {
		t.Fatalf("negative weights not reset: %v/%v", neg.HeuristicWeight, neg.ModelWeight)
	}
}

func TestCustomThresholdsChangeVerdict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlockBelow = 30
	gate := New(Options{Config: cfg, Logger: zerolog.Nop()})
	res := gate.Evaluate(context.Background(), vagueInput())
	if res.Verdict != domain.VerdictWarn {
		t.Fatalf("verdict = %s, want warn with lowered block threshold", res.Verdict)
	}
}

func TestModelHintOverridesStaticHint(t *testing.T) {
	model := &domain.CategoryScores{Specificity: 2, Context: 20, Images: 20, Consistency: 20, Hints: map[string]string{"specificity": "Name the product and its flavor."}}
	got := Suggestions(domain.ModeStandard, domain.CategoryScores{Specificity: 2, Context: 0, Images: 10, Consistency: 25}, model)
	want := []string{Hint(domain.ModeStandard, domain.CategoryContext), "Name the product and its flavor."}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
}
