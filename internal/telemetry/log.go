package telemetry

import (
	"github.com/rs/zerolog"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(e Event) {
	level := zerolog.InfoLevel
	switch e.Outcome {
	case OutcomeBackendError, OutcomePersistenceError, OutcomeInternal:
		level = zerolog.ErrorLevel
	case OutcomeBlocked, OutcomeInvalid, OutcomeCanceled:
		level = zerolog.WarnLevel
	}
	ev := s.logger.WithLevel(level).
		Str("request_id", e.RequestID).
		Str("user_id", e.UserID).
		Str("mode", e.Mode).
		Str("outcome", string(e.Outcome)).
		Strs("stages", e.StagesCompleted).
		Dur("duration", e.Duration)
	if e.GateEvaluated {
		ev = ev.Str("verdict", e.Verdict).
			Float64("heuristic_score", e.HeuristicScore).
			Float64("blended_score", e.BlendedScore).
			Bool("evaluator_used", e.EvaluatorUsed)
	}
	if e.EvaluatorError != "" {
		ev = ev.Str("evaluator_error", e.EvaluatorError)
	}
	if e.ErrorKind != "" {
		ev = ev.Str("error_kind", e.ErrorKind)
	}
	if len(e.Degraded) > 0 {
		ev = ev.Strs("degraded", e.Degraded)
	}
	if e.Country != "" {
		ev = ev.Str("country", e.Country)
	}
	if e.RecordID != "" {
		ev = ev.Str("record_id", e.RecordID).Str("provider", e.Provider).Int("cost_credits", e.CostCredits)
	}
	ev.Msg("pipeline: run finished")
}
