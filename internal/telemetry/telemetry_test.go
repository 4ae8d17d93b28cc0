package telemetry

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAsyncDropsWhenFullAndDrainsOnClose(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu        sync.Mutex
		delivered []string
		once      sync.Once
	)
	slow := SinkFunc(func(e Event) {
		once.Do(func() { close(started) })
		<-release
		mu.Lock()
		delivered = append(delivered, e.RequestID)
		mu.Unlock()
	})
	var drops int
	async := NewAsync(slow, 1, func() { drops++ })

	async.Record(Event{RequestID: "a"})
	<-started
	async.Record(Event{RequestID: "b"})
	async.Record(Event{RequestID: "c"})

	close(release)
	async.Close()

	if async.Dropped() != 1 || drops != 1 {
		t.Fatalf("dropped = %d (callback %d), want 1", async.Dropped(), drops)
	}
	if len(delivered) != 2 || delivered[0] != "a" || delivered[1] != "b" {
		t.Fatalf("delivered = %v, want [a b]", delivered)
	}

	async.Record(Event{RequestID: "late"})
	if async.Dropped() != 2 {
		t.Fatalf("events after Close must be dropped")
	}
	async.Close()
}

func TestMultiSkipsNilSinks(t *testing.T) {
	var got []Outcome
	sink := Multi(nil, SinkFunc(func(e Event) { got = append(got, e.Outcome) }), nil, SinkFunc(func(e Event) { got = append(got, e.Outcome) }))
	sink.Record(Event{Outcome: OutcomeBlocked})
	if len(got) != 2 {
		t.Fatalf("fan-out = %v", got)
	}
}

func TestLogSinkWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	sink.Record(Event{
		RequestID:       "req-1",
		Mode:            "standard",
		Outcome:         OutcomeBlocked,
		GateEvaluated:   true,
		Verdict:         "block",
		BlendedScore:    39.4,
		StagesCompleted: []string{"enrich", "assemble", "quality_gate"},
		Duration:        120 * time.Millisecond,
	})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if line["level"] != "warn" || line["verdict"] != "block" || line["outcome"] != "blocked" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["record_id"]; ok {
		t.Fatalf("record fields must be omitted without a record")
	}
}

func TestPrometheusSinkAggregates(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	sink.Record(Event{Mode: "standard", Outcome: OutcomeSuccess, GateEvaluated: true, Verdict: "pass", BlendedScore: 85})
	sink.Record(Event{Mode: "standard", Outcome: OutcomeBlocked, GateEvaluated: true, Verdict: "block", BlendedScore: 30, EvaluatorUsed: true})
	sink.Record(Event{Mode: "template_guided", Outcome: OutcomeInvalid})
	sink.Record(Event{Mode: "standard", Outcome: OutcomeSuccess, GateEvaluated: true, Verdict: "warn", EvaluatorError: "timeout", Degraded: []string{"brand"}})
	sink.RecordDrop()

	if got := testutil.ToFloat64(sink.requests.WithLabelValues("blocked", "block", "standard")); got != 1 {
		t.Fatalf("blocked requests = %v", got)
	}
	if got := testutil.ToFloat64(sink.requests.WithLabelValues("invalid", "none", "template_guided")); got != 1 {
		t.Fatalf("invalid requests = %v", got)
	}
	for result, want := range map[string]float64{"used": 1, "failed": 1, "fast_path": 1} {
		if got := testutil.ToFloat64(sink.evaluator.WithLabelValues(result)); got != want {
			t.Fatalf("evaluator %s = %v, want %v", result, got, want)
		}
	}
	if got := testutil.ToFloat64(sink.degraded.WithLabelValues("brand")); got != 1 {
		t.Fatalf("degraded = %v", got)
	}
	if got := testutil.ToFloat64(sink.dropped); got != 1 {
		t.Fatalf("dropped = %v", got)
	}
	if got := testutil.CollectAndCount(sink.scores); got != 3 {
		t.Fatalf("score series = %d, want 3", got)
	}

	if _, err := NewPrometheusSink(reg); err == nil {
		t.Fatalf("registering twice must fail")
	}
}
