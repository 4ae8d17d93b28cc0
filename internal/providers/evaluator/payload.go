// Package evaluator holds the LLM backed category scorers used by the
// quality gate. Every scorer returns raw 0..25 category values; clamping and
// blending happen in the gate.
package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studio/internal/domain"
)

const (
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// ErrUnparsable marks evaluator output that did not contain usable scores.
var ErrUnparsable = errors.New("evaluator: unparsable response")

const systemPrompt = "You review requests for AI generated product marketing images before they are sent to an expensive image model. " +
	"You only respond with valid JSON."

// reporter tags failures with a reason and forwards them to the optional hook.
type reporter struct {
	provider  string
	onFailure func(reason string, err error)
}

func (r reporter) fail(reason string, err error) error {
	if r.onFailure != nil {
		r.onFailure(reason, err)
	}
	return fmt.Errorf("%s evaluator %s: %w", r.provider, reason, err)
}

type modelScores struct {
	Specificity *float64          `json:"specificity"`
	Context     *float64          `json:"context_completeness"`
	Images      *float64          `json:"image_adequacy"`
	Consistency *float64          `json:"consistency"`
	Hints       map[string]string `json:"hints"`
}

const scoringRubric = "Score the image request below in four categories, each an integer from 0 to 25. " +
	"specificity: how concretely the subject, materials, setting, lighting and composition are described. " +
	"context_completeness: whether brand, product and template context is sufficient. " +
	"image_adequacy: whether the number of supplied images suits the mode. " +
	"consistency: whether the mode, template and brief agree with each other. " +
	`Respond strictly with JSON matching this schema: {"specificity":number,"context_completeness":number,"image_adequacy":number,"consistency":number,"hints":{"<category>":string}}. ` +
	"Give a short, actionable hint for any category scoring below 13.\n\n"

func buildEvaluationPrompt(instruction domain.AssembledInstruction, bag domain.StageContext) string {
	var sb strings.Builder
	sb.WriteString(scoringRubric)
	fmt.Fprintf(&sb, "mode=%s aspect_ratio=%s input_images=%d reference_images=%d\n",
		instruction.Mode, instruction.AspectRatio, len(instruction.InputImages), len(instruction.ReferenceImages))
	fmt.Fprintf(&sb, "has_brand=%t has_template=%t has_recipe=%t products=%d\n",
		bag.HasBrand(), bag.HasTemplate(), bag.HasRecipe(), len(bag.Products()))
	fmt.Fprintf(&sb, "user_brief=%q\n", instruction.Brief)
	fmt.Fprintf(&sb, "final_instruction=%q", instruction.Text)
	return sb.String()
}

// parseScores decodes the model answer. All four categories are required;
// values are returned unclamped.
func parseScores(raw string) (*domain.CategoryScores, error) {
	fragment := jsonObject(raw)
	if fragment == "" {
		return nil, fmt.Errorf("%w: no json object", ErrUnparsable)
	}
	var parsed modelScores
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	if parsed.Specificity == nil || parsed.Context == nil || parsed.Images == nil || parsed.Consistency == nil {
		return nil, fmt.Errorf("%w: missing category scores", ErrUnparsable)
	}
	scores := &domain.CategoryScores{
		Specificity: *parsed.Specificity,
		Context:     *parsed.Context,
		Images:      *parsed.Images,
		Consistency: *parsed.Consistency,
	}
	for key, hint := range parsed.Hints {
		if hint = strings.TrimSpace(hint); hint == "" {
			continue
		}
		if scores.Hints == nil {
			scores.Hints = make(map[string]string, len(parsed.Hints))
		}
		scores.Hints[strings.ToLower(strings.TrimSpace(key))] = hint
	}
	return scores, nil
}

// jsonObject returns the outermost {...} span of raw, which tolerates code
// fences and chatter around the answer.
func jsonObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}
