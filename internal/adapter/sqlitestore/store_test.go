package sqlitestore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"studio/internal/domain"
	"studio/internal/storage"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *stepClock) {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	files, err := storage.NewFileStore(filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	s, err := New(db, files)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s.now = clock.Now
	return s, clock
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := migrate(s.db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestSaveAndGetRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	score := 91.0
	id, err := s.Save(ctx, domain.GeneratedArtifact{
		Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png", Width: 1024, Height: 1024,
		Provider: "qwen", Model: "qwen-image-plus", CostCredits: 2,
	}, domain.UsageRecord{
		RecordID: "rec-1", UserID: "u-1", RequestID: "req-1", Mode: domain.ModeStandard,
		BlendedScore: 85, Verdict: domain.VerdictPass, CritiqueScore: &score, LatencyMS: 1200,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id != "rec-1" {
		t.Fatalf("id = %q, want caller-assigned id", id)
	}

	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.UserID != "u-1" || rec.Provider != "qwen" || rec.CostCredits != 2 || rec.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	data, err := s.files.Read(ctx, rec.StorageKey)
	if err != nil || len(data) != 4 {
		t.Fatalf("artifact bytes = %v, %v", data, err)
	}

	var props string
	if err := s.db.QueryRow(`SELECT properties FROM usage_events WHERE generation_id = ?`, id).Scan(&props); err != nil {
		t.Fatalf("usage row: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(props), &decoded); err != nil {
		t.Fatalf("decode properties: %v", err)
	}
	if decoded["verdict"] != "pass" || decoded["critique_score"] != 91.0 {
		t.Fatalf("properties = %v", decoded)
	}
}

func TestSaveRejectsEmptyArtifact(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Save(context.Background(), domain.GeneratedArtifact{}, domain.UsageRecord{}); err == nil {
		t.Fatalf("expected error for empty artifact")
	}
}

func TestSaveRemovesFileWhenRowsFail(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	artifact := domain.GeneratedArtifact{Data: []byte("x"), MIMEType: "image/png", Provider: "p", Model: "m"}
	if _, err := s.Save(ctx, artifact, domain.UsageRecord{RecordID: "dup", RequestID: "r"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	// same id hits the primary key on the second insert
	if _, err := s.Save(ctx, artifact, domain.UsageRecord{RecordID: "dup", RequestID: "r"}); err == nil {
		t.Fatalf("expected duplicate id to fail")
	}
	if _, err := s.files.Read(ctx, storage.ArtifactKey("dup", "image/png", s.now())); err == nil {
		t.Fatalf("artifact file must be removed after a failed insert")
	}
}

func TestGetRecordMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.GetRecord(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestContextProviders(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, p := range []domain.Product{
		{ID: "p1", Name: "Kopi susu", Tags: []string{"drink"}},
		{ID: "p2", Name: "Roti bakar", Description: "Toasted bread"},
	} {
		if err := s.SeedProduct(ctx, p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	products, err := s.FetchProducts(ctx, []string{"p2", "missing", "p1"})
	if err != nil {
		t.Fatalf("fetch products: %v", err)
	}
	want := []domain.Product{
		{ID: "p2", Name: "Roti bakar", Description: "Toasted bread", Tags: []string{}},
		{ID: "p1", Name: "Kopi susu", Tags: []string{"drink"}},
	}
	if diff := cmp.Diff(want, products); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.FetchBrand(ctx, "u-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("brand err = %v, want ErrNotFound", err)
	}
	if err := s.SeedBrand(ctx, "u-1", domain.BrandVoice{Name: "Kedai", Tone: "warm", ForbiddenPhrases: []string{"cheap"}}); err != nil {
		t.Fatalf("seed brand: %v", err)
	}
	brand, err := s.FetchBrand(ctx, "u-1")
	if err != nil || brand.Tone != "warm" || len(brand.ForbiddenPhrases) != 1 {
		t.Fatalf("brand = %+v, %v", brand, err)
	}

	tpl := domain.TemplateRecipe{ID: "t1", Name: "Flatlay", StyleDirectives: []string{"top down"}, ReferenceImageURLs: []string{"https://cdn.example.com/a.png"}, AspectRatio: "1:1"}
	if err := s.SeedTemplate(ctx, tpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	got, err := s.FetchTemplate(ctx, "t1")
	if err != nil {
		t.Fatalf("fetch template: %v", err)
	}
	if diff := cmp.Diff(tpl, *got); diff != "" {
		t.Fatalf("template mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.db.Exec(`UPDATE templates SET archived_at = 'x' WHERE id = 't1'`); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := s.FetchTemplate(ctx, "t1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("archived template err = %v, want ErrNotFound", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	if job, err := s.Claim(ctx); err != nil || job != nil {
		t.Fatalf("empty queue claim = %+v, %v", job, err)
	}

	first, err := s.Enqueue(ctx, "u-1", domain.GenerationRequest{Instruction: "first", Mode: domain.ModeStandard})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.advance(time.Second)
	second, err := s.Enqueue(ctx, "u-1", domain.GenerationRequest{Instruction: "second", Mode: domain.ModeStandard})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	job, err := s.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("claim = %+v, %v", job, err)
	}
	if job.ID != first || job.Status != domain.JobStatusRunning {
		t.Fatalf("claimed %s (%s), want oldest job running", job.ID, job.Status)
	}
	var req domain.GenerationRequest
	if err := json.Unmarshal(job.RequestJSON, &req); err != nil || req.Instruction != "first" {
		t.Fatalf("request payload = %s, %v", job.RequestJSON, err)
	}

	if err := s.Complete(ctx, first, domain.JobStatusBlocked, "", "prompt_needs_refinement", []byte(`{"verdict":"block"}`)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	done, err := s.Get(ctx, first, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.Status != domain.JobStatusBlocked || done.ErrorCode != "prompt_needs_refinement" || string(done.ResultJSON) != `{"verdict":"block"}` {
		t.Fatalf("completed job = %+v", done)
	}
	if _, err := s.Get(ctx, first, "someone-else"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign get err = %v, want ErrNotFound", err)
	}

	if _, err := s.Claim(ctx); err != nil {
		t.Fatalf("claim second: %v", err)
	}
	clock.advance(10 * time.Minute)
	n, err := s.RequeueStale(ctx, 5*time.Minute)
	if err != nil || n != 1 {
		t.Fatalf("requeue = %d, %v; want 1", n, err)
	}
	again, err := s.Get(ctx, second, "u-1")
	if err != nil || again.Status != domain.JobStatusQueued {
		t.Fatalf("requeued job = %+v, %v", again, err)
	}
}

func TestSubSecondTimestampsKeepOrder(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	clock.advance(100 * time.Millisecond)
	first, err := s.Enqueue(ctx, "u-1", domain.GenerationRequest{Instruction: "first", Mode: domain.ModeStandard})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	clock.advance(50 * time.Millisecond)
	if _, err := s.Enqueue(ctx, "u-1", domain.GenerationRequest{Instruction: "second", Mode: domain.ModeStandard}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job, err := s.Claim(ctx)
	if err != nil || job == nil || job.ID != first {
		t.Fatalf("claim = %+v, %v; want the .100 job before the .150 one", job, err)
	}

	// Claimed at 09:00:00.150; the cutoff lands on the whole second 09:00:00.
	clock.advance(10*time.Minute - 150*time.Millisecond)
	n, err := s.RequeueStale(ctx, 10*time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("requeue = %d, %v; a job updated after the cutoff must stay running", n, err)
	}
	clock.advance(time.Second)
	if n, err := s.RequeueStale(ctx, 10*time.Minute); err != nil || n != 1 {
		t.Fatalf("requeue = %d, %v; want 1 once the job is stale", n, err)
	}
}

func TestTimeLayoutIsFixedWidth(t *testing.T) {
	a := formatTime(time.Date(2026, 3, 1, 9, 0, 0, 100_000_000, time.UTC))
	b := formatTime(time.Date(2026, 3, 1, 9, 0, 0, 150_000_000, time.UTC))
	if len(a) != len(b) || !(a < b) {
		t.Fatalf("%q and %q do not sort in time order", a, b)
	}
	if got := parseTime(a); !got.Equal(time.Date(2026, 3, 1, 9, 0, 0, 100_000_000, time.UTC)) {
		t.Fatalf("round trip = %v", got)
	}
	if got := parseTime("2026-03-01T09:00:00.1Z"); got.Nanosecond() != 100_000_000 {
		t.Fatalf("legacy rows must still parse, got %v", got)
	}
}
