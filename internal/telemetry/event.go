// Package telemetry records one structured event per pipeline run.
package telemetry

import "time"

// Outcome labels how a pipeline run ended.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeBackendError     Outcome = "backend_error"
	OutcomePersistenceError Outcome = "persistence_error"
	OutcomeCanceled         Outcome = "canceled"
	OutcomeInternal         Outcome = "internal"
)

// Event is the single record emitted for every run, whatever the exit path.
type Event struct {
	RequestID       string
	UserID          string
	Country         string
	Mode            string
	Outcome         Outcome
	ErrorKind       string
	Verdict         string
	HeuristicScore  float64
	BlendedScore    float64
	GateEvaluated   bool
	EvaluatorUsed   bool
	EvaluatorError  string
	StagesCompleted []string
	Degraded        []string
	Provider        string
	CostCredits     int
	RecordID        string
	Duration        time.Duration
}

// Sink receives events. Record must not block the caller.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) { f(e) }

// Nop discards every event.
var Nop Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range active {
			s.Record(e)
		}
	})
}
