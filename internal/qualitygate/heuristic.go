package qualitygate

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"studio/internal/domain"
)

// Input is everything the scorers look at.
type Input struct {
	Instruction domain.AssembledInstruction
	Context     domain.StageContext
	// TemplateID is the identifier the caller asked for, resolved or not.
	TemplateID string
}

// descriptive keyword families. Multi-word entries match as phrases.
var keywordFamilies = map[string][]string{
	"material": {
		"wood", "wooden", "marble", "glass", "metal", "ceramic", "leather", "linen",
		"cotton", "stone", "concrete", "matte", "glossy", "velvet", "brass", "bamboo",
		"paper", "fabric", "silk", "steel", "gold", "silver", "rattan", "terracotta",
		"porcelain", "kraft", "woven", "texture", "textured",
	},
	"setting": {
		"kitchen", "studio", "outdoor", "outdoors", "beach", "cafe", "table", "countertop",
		"garden", "background", "backdrop", "street", "room", "shelf", "market", "forest",
		"desk", "window", "rooftop", "interior", "picnic", "bathroom", "living room",
	},
	"lighting": {
		"light", "lighting", "lit", "sunlight", "golden hour", "shadow", "shadows",
		"backlit", "softbox", "neon", "rim light", "diffused", "dramatic", "moody",
		"glow", "glowing", "daylight", "sunset", "sunrise", "candlelight", "highlights",
	},
	"composition": {
		"close up", "closeup", "flat lay", "flatlay", "overhead", "top down", "centered",
		"rule of thirds", "symmetry", "symmetrical", "angle", "foreground", "depth of field",
		"bokeh", "wide shot", "macro", "framing", "framed", "negative space", "composition",
		"eye level", "three quarter", "minimalist", "layout",
	},
}

var keywordFamilyOrder = []string{"material", "setting", "lighting", "composition"}

var folder = cases.Fold()

// normalizeText folds case and reduces every run of non alphanumerics to a
// single space, padded on both ends so phrases match on word boundaries.
func normalizeText(s string) string {
	folded := folder.String(s)
	var b strings.Builder
	b.Grow(len(folded) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// DescriptiveFamilies returns which keyword families occur in text, in canonical order.
func DescriptiveFamilies(text string) []string {
	normalized := normalizeText(text)
	var found []string
	for _, family := range keywordFamilyOrder {
		for _, kw := range keywordFamilies[family] {
			if strings.Contains(normalized, normalizeText(kw)) {
				found = append(found, family)
				break
			}
		}
	}
	return found
}

// Score runs the Tier 1 heuristic. It is pure and never fails.
func Score(in Input) domain.CategoryScores {
	scores := domain.CategoryScores{
		Specificity: specificity(in),
		Context:     contextCompleteness(in.Context),
		Images:      imageAdequacy(in),
		Consistency: consistency(in),
	}
	return scores.Clamp()
}

func specificity(in Input) float64 {
	words := len(strings.Fields(in.Instruction.Brief))
	var score float64
	switch {
	case words < 5:
		score = 2
	case words < 12:
		score = 6
	case words < 25:
		score = 10
	case words < 40:
		score = 13
	default:
		score = 15
	}
	text := in.Instruction.Brief + " " + strings.Join(in.Instruction.Directives, " ")
	score += 2.5 * float64(len(DescriptiveFamilies(text)))
	return score
}

func contextCompleteness(bag domain.StageContext) float64 {
	var score float64
	if bag.HasBrand() {
		score += 10
	}
	if bag.HasTemplate() || bag.HasRecipe() {
		score += 10
	}
	if bag.HasProducts() {
		score += 5
	}
	return score
}

func imageAdequacy(in Input) float64 {
	inputs := len(in.Instruction.InputImages)
	switch in.Instruction.Mode {
	case domain.ModeExactInsert:
		switch {
		case inputs == 0:
			return 0
		case inputs == 1:
			return 25
		case inputs == 2:
			return 20
		default:
			return 15
		}
	case domain.ModeTemplateGuided:
		if inputs+in.Context.TemplateReferenceCount() == 0 {
			return 5
		}
		return 25
	default:
		switch {
		case inputs == 0:
			return 10
		case inputs <= 3:
			return 25
		default:
			return 20
		}
	}
}

func consistency(in Input) float64 {
	resolved := in.Context.HasTemplate() || in.Context.HasRecipe()
	requested := strings.TrimSpace(in.TemplateID) != ""
	switch in.Instruction.Mode {
	case domain.ModeTemplateGuided:
		switch {
		case !resolved:
			return 5
		case in.Context.TemplateReferenceCount()+len(in.Instruction.InputImages) == 0:
			return 15
		default:
			return 25
		}
	case domain.ModeExactInsert:
		if resolved || requested {
			return 15
		}
		return 25
	default:
		if resolved || requested {
			return 20
		}
		return 25
	}
}
