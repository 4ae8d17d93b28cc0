package qualitygate

import (
	"strings"

	"studio/internal/domain"
)

var categoryHints = map[domain.Category]string{
	domain.CategorySpecificity: "Describe the shot in more detail, for example the product's material, the setting, the lighting and the camera framing.",
	domain.CategoryContext:     "Pick a template or set up your brand voice so the image can follow your style.",
	domain.CategoryConsistency: "Make sure the selected mode fits your setup; template-guided mode needs a valid template.",
}

var imageHints = map[domain.Mode]string{
	domain.ModeStandard:       "Attach one to three product photos so the result shows your actual product.",
	domain.ModeExactInsert:    "Exact insert works best with exactly one clear product photo.",
	domain.ModeTemplateGuided: "Attach a product photo or choose a template that includes reference images.",
}

// Hint returns the static improvement hint for a category.
func Hint(mode domain.Mode, c domain.Category) string {
	if c == domain.CategoryImages {
		if hint, ok := imageHints[mode]; ok {
			return hint
		}
		return imageHints[domain.ModeStandard]
	}
	return categoryHints[c]
}

// Suggestions builds the block suggestions: one for the weakest heuristic
// category and, when the evaluator ran, one for its weakest category.
// Evaluator supplied hint text wins over the static hint for that category.
func Suggestions(mode domain.Mode, heuristic domain.CategoryScores, model *domain.CategoryScores) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}

	add(Hint(mode, heuristic.Lowest()))
	if model != nil {
		lowest := model.Lowest()
		if custom := model.Hints[string(lowest)]; strings.TrimSpace(custom) != "" {
			add(custom)
		} else {
			add(Hint(mode, lowest))
		}
	}
	if len(out) == 0 {
		add(Hint(mode, domain.CategorySpecificity))
	}
	return out
}
