package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "studio"

// PrometheusSink aggregates events into counters and histograms registered on
// the supplied registerer.
type PrometheusSink struct {
	requests  *prometheus.CounterVec
	scores    *prometheus.HistogramVec
	evaluator *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	degraded  *prometheus.CounterVec
	dropped   prometheus.Counter
}

// NewPrometheusSink creates and registers the pipeline collectors.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Pipeline runs by outcome, gate verdict and mode",
		}, []string{"outcome", "verdict", "mode"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_blended_score",
			Help:      "Blended quality gate score",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}, []string{"verdict"}),
		evaluator: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluator_invocations_total",
			Help:      "Model evaluator participation per gated run",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_degraded_total",
			Help:      "Enrichment stages that continued without their context",
		}, []string{"stage"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_dropped_events_total",
			Help:      "Events dropped because the dispatcher buffer was full",
		}),
	}
	for _, c := range []prometheus.Collector{s.requests, s.scores, s.evaluator, s.duration, s.degraded, s.dropped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusSink) Record(e Event) {
	verdict := e.Verdict
	if verdict == "" {
		verdict = "none"
	}
	s.requests.WithLabelValues(string(e.Outcome), verdict, e.Mode).Inc()
	s.duration.WithLabelValues(string(e.Outcome)).Observe(e.Duration.Seconds())
	for _, stage := range e.Degraded {
		s.degraded.WithLabelValues(stage).Inc()
	}
	if !e.GateEvaluated {
		return
	}
	s.scores.WithLabelValues(verdict).Observe(e.BlendedScore)
	switch {
	case e.EvaluatorUsed:
		s.evaluator.WithLabelValues("used").Inc()
	case e.EvaluatorError != "":
		s.evaluator.WithLabelValues("failed").Inc()
	default:
		s.evaluator.WithLabelValues("fast_path").Inc()
	}
}

// RecordDrop counts an event lost by the async dispatcher.
func (s *PrometheusSink) RecordDrop() {
	s.dropped.Inc()
}
