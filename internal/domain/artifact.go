package domain

import "time"

// GeneratedArtifact is the output of the generation backend.
type GeneratedArtifact struct {
	Data        []byte `json:"-"`
	URL         string `json:"url,omitempty"`
	MIMEType    string `json:"mime_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	CostCredits int    `json:"cost_credits"`
}

// Critique is the best-effort post-hoc review of an artifact.
type Critique struct {
	Score  float64  `json:"score"`
	Issues []string `json:"issues,omitempty"`
}

// UsageRecord is the billing and audit row written next to every artifact.
type UsageRecord struct {
	RecordID       string    `json:"record_id"`
	UserID         string    `json:"user_id"`
	RequestID      string    `json:"request_id"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Mode           Mode      `json:"mode"`
	AspectRatio    string    `json:"aspect_ratio"`
	InputImages    int       `json:"input_images"`
	CostCredits    int       `json:"cost_credits"`
	LatencyMS      int64     `json:"latency_ms"`
	HeuristicScore float64   `json:"heuristic_score"`
	BlendedScore   float64   `json:"blended_score"`
	Verdict        Verdict   `json:"verdict"`
	EvaluatorUsed  bool      `json:"evaluator_used"`
	CritiqueScore  *float64  `json:"critique_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// GenerationRecord is a persisted artifact as returned by record stores.
type GenerationRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	RequestID   string    `json:"request_id"`
	StorageKey  string    `json:"storage_key"`
	MIMEType    string    `json:"mime_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	CostCredits int       `json:"cost_credits"`
	CreatedAt   time.Time `json:"created_at"`
}
