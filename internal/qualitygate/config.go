package qualitygate

import "time"

// Default tuning values. They are starting points rather than values fitted
// against outcome data, so every one of them can be overridden.
const (
	DefaultFastPathThreshold = 75.0
	DefaultBlockBelow        = 40.0
	DefaultWarnMax           = 60.0
	DefaultHeuristicWeight   = 0.4
	DefaultModelWeight       = 0.6
	DefaultEvaluatorTimeout  = 5 * time.Second
)

// Config tunes the admission decision.
type Config struct {
	// FastPathThreshold is the heuristic score at or above which the model
	// evaluator is skipped.
	FastPathThreshold float64
	// BlockBelow blocks any blended score strictly below it.
	BlockBelow float64
	// WarnMax is the highest blended score that still warns.
	WarnMax          float64
	HeuristicWeight  float64
	ModelWeight      float64
	EvaluatorTimeout time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		FastPathThreshold: DefaultFastPathThreshold,
		BlockBelow:        DefaultBlockBelow,
		WarnMax:           DefaultWarnMax,
		HeuristicWeight:   DefaultHeuristicWeight,
		ModelWeight:       DefaultModelWeight,
		EvaluatorTimeout:  DefaultEvaluatorTimeout,
	}
}

// Normalize repairs out-of-range values. Thresholds are clamped into [0,100],
// WarnMax is raised to BlockBelow when inverted, and weights are rescaled to
// sum to one. Non-positive weight pairs fall back to the defaults.
func (c Config) Normalize() Config {
	c.FastPathThreshold = clampScore(c.FastPathThreshold)
	c.BlockBelow = clampScore(c.BlockBelow)
	c.WarnMax = clampScore(c.WarnMax)
	if c.WarnMax < c.BlockBelow {
		c.WarnMax = c.BlockBelow
	}
	if c.HeuristicWeight < 0 || c.ModelWeight < 0 || c.HeuristicWeight+c.ModelWeight <= 0 {
		c.HeuristicWeight, c.ModelWeight = DefaultHeuristicWeight, DefaultModelWeight
	}
	sum := c.HeuristicWeight + c.ModelWeight
	c.HeuristicWeight /= sum
	c.ModelWeight /= sum
	if c.EvaluatorTimeout <= 0 {
		c.EvaluatorTimeout = DefaultEvaluatorTimeout
	}
	return c
}

func clampScore(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
