package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
)

const detailedBrief = "Handmade ceramic coffee mug on a rustic oak table, soft morning sunlight from the left window, " +
	"shallow depth of field, close up three quarter angle, steam rising gently, warm neutral tones, cozy premium feel " +
	"for an online shop banner with clean negative space on the right side"

func sqliteConfig(t *testing.T) *infra.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "studio.db"))
	t.Setenv("STORAGE_PATH", filepath.Join(dir, "files"))
	t.Setenv("EVALUATOR_PROVIDER", "none")
	t.Setenv("REDIS_URL", "")
	t.Setenv("GEOIP_DB_PATH", "")
	t.Setenv("QWEN_API_KEY", "")
	cfg, err := infra.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestBuildSQLiteRunsEndToEnd(t *testing.T) {
	cfg := sqliteConfig(t)
	reg := prometheus.NewRegistry()
	svc, err := Build(context.Background(), cfg, zerolog.Nop(), reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := svc.Pipeline.Run(context.Background(), domain.GenerationRequest{
		UserID:      "user-1",
		Instruction: detailedBrief,
		Mode:        domain.ModeStandard,
		Images:      []domain.InputImage{{URL: "https://cdn.example.com/mug.png"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.RecordID == "" || out.Artifact == nil || out.Artifact.Provider != "synthetic" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Gate == nil || out.Gate.EvaluatorUsed {
		t.Fatalf("gate must run heuristic only: %+v", out.Gate)
	}
	if svc.Jobs == nil || svc.Geo != nil {
		t.Fatalf("jobs = %v geo = %v", svc.Jobs, svc.Geo)
	}
	rec, err := svc.Records.GetRecord(context.Background(), out.RecordID)
	if err != nil || rec.UserID != "user-1" || rec.Provider != "synthetic" {
		t.Fatalf("saved record = %+v, %v", rec, err)
	}

	// Close flushes the async sink before metrics are read.
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "studio_generation_requests_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("request counter not registered")
	}
}

func TestBuildQueuesThroughSQLite(t *testing.T) {
	svc, err := Build(context.Background(), sqliteConfig(t), zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer svc.Close()

	id, err := svc.Jobs.Enqueue(context.Background(), "user-1", domain.GenerationRequest{Instruction: detailedBrief, Mode: domain.ModeStandard})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := svc.Jobs.Get(context.Background(), id, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
}

func TestNewEvaluatorWithoutKeyIsHeuristicOnly(t *testing.T) {
	for _, provider := range []string{"gemini", "openai", "none"} {
		cfg := &infra.Config{EvaluatorProvider: provider}
		ev, err := NewEvaluator(context.Background(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if ev != nil {
			t.Fatalf("%s: evaluator must be nil without credentials", provider)
		}
	}
}
