package domain

// Category names one of the four equally weighted quality dimensions.
type Category string

const (
	CategorySpecificity Category = "specificity"
	CategoryContext     Category = "context_completeness"
	CategoryImages      Category = "image_adequacy"
	CategoryConsistency Category = "consistency"
)

// Categories lists the quality dimensions in their canonical order.
var Categories = []Category{CategorySpecificity, CategoryContext, CategoryImages, CategoryConsistency}

// MaxCategoryScore is the ceiling of a single category.
const MaxCategoryScore = 25.0

// CategoryScores holds one 0-25 score per category. Hints optionally carries
// evaluator supplied advice keyed by category name.
type CategoryScores struct {
	Specificity float64           `json:"specificity"`
	Context     float64           `json:"context_completeness"`
	Images      float64           `json:"image_adequacy"`
	Consistency float64           `json:"consistency"`
	Hints       map[string]string `json:"hints,omitempty"`
}

// Get returns the score of one category.
func (s CategoryScores) Get(c Category) float64 {
	switch c {
	case CategorySpecificity:
		return s.Specificity
	case CategoryContext:
		return s.Context
	case CategoryImages:
		return s.Images
	case CategoryConsistency:
		return s.Consistency
	default:
		return 0
	}
}

// Total sums the four categories.
func (s CategoryScores) Total() float64 {
	return s.Specificity + s.Context + s.Images + s.Consistency
}

// Clamp forces every category into [0, MaxCategoryScore].
func (s CategoryScores) Clamp() CategoryScores {
	s.Specificity = clamp(s.Specificity, 0, MaxCategoryScore)
	s.Context = clamp(s.Context, 0, MaxCategoryScore)
	s.Images = clamp(s.Images, 0, MaxCategoryScore)
	s.Consistency = clamp(s.Consistency, 0, MaxCategoryScore)
	return s
}

// Lowest returns the weakest category. Ties resolve to canonical order.
func (s CategoryScores) Lowest() Category {
	lowest := Categories[0]
	for _, c := range Categories[1:] {
		if s.Get(c) < s.Get(lowest) {
			lowest = c
		}
	}
	return lowest
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Verdict is the admission decision of the quality gate.
type Verdict string

const (
	VerdictBlock Verdict = "block"
	VerdictWarn  Verdict = "warn"
	VerdictPass  Verdict = "pass"
)

// QualityGateResult is the scored decision for one assembled instruction.
type QualityGateResult struct {
	HeuristicScore float64         `json:"heuristic_score"`
	Heuristic      CategoryScores  `json:"heuristic"`
	ModelScore     *float64        `json:"model_score,omitempty"`
	Model          *CategoryScores `json:"model,omitempty"`
	BlendedScore   float64         `json:"blended_score"`
	Verdict        Verdict         `json:"verdict"`
	Suggestions    []string        `json:"suggestions,omitempty"`
	EvaluatorUsed  bool            `json:"evaluator_used"`
	EvaluatorError string          `json:"-"`
}
