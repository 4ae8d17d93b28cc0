package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
	"studio/internal/storage"
)

var (
	_ domain.RecordStore      = (*Store)(nil)
	_ domain.RecordReader     = (*Store)(nil)
	_ domain.JobRepository    = (*Store)(nil)
	_ domain.ProductProvider  = (*Store)(nil)
	_ domain.BrandProvider    = (*Store)(nil)
	_ domain.TemplateProvider = (*Store)(nil)
)

// Store keeps artifacts, usage, context and the job queue in one SQLite file.
// Artifact bytes go to the FileStore; only the storage key is kept in the row.
type Store struct {
	db    *sql.DB
	files *storage.FileStore
	now   func() time.Time
}

// New creates a Store and initialises the schema.
func New(db *sql.DB, files *storage.FileStore) (*Store, error) {
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, files: files, now: time.Now}, nil
}

// timeLayout is fixed width so that text comparison in SQL follows time
// order. RFC3339Nano drops trailing zeros and would sort .1 after .15.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the fixed layout and older RFC3339Nano rows.
func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

// Save writes the artifact and its usage row in one transaction.
func (s *Store) Save(ctx context.Context, artifact domain.GeneratedArtifact, usage domain.UsageRecord) (string, error) {
	if len(artifact.Data) == 0 {
		return "", errors.New("save generation: artifact has no data")
	}
	id := usage.RecordID
	if id == "" {
		id = uuid.NewString()
	}
	props, err := json.Marshal(map[string]any{
		"mode":            usage.Mode,
		"aspect_ratio":    usage.AspectRatio,
		"input_images":    usage.InputImages,
		"heuristic_score": usage.HeuristicScore,
		"blended_score":   usage.BlendedScore,
		"verdict":         usage.Verdict,
		"evaluator_used":  usage.EvaluatorUsed,
		"critique_score":  usage.CritiqueScore,
		"cost_credits":    artifact.CostCredits,
	})
	if err != nil {
		return "", fmt.Errorf("encode usage properties: %w", err)
	}
	createdAt := usage.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	now := formatTime(createdAt)

	key, err := s.files.Write(ctx, storage.ArtifactKey(id, artifact.MIMEType, createdAt), artifact.Data)
	if err != nil {
		return "", err
	}
	if err := s.insertRows(ctx, id, key, now, string(props), artifact, usage); err != nil {
		if delErr := s.files.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return "", err
	}
	return id, nil
}

func (s *Store) insertRows(ctx context.Context, id, key, now, props string, artifact domain.GeneratedArtifact, usage domain.UsageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO generations (id, user_id, request_id, mime_type, width, height, provider, model, cost_credits, storage_key, created_at)
		 VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, usage.UserID, usage.RequestID, artifact.MIMEType, artifact.Width, artifact.Height,
		artifact.Provider, artifact.Model, artifact.CostCredits, key, now,
	); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage_events (id, generation_id, user_id, request_id, latency_ms, properties, created_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?)`,
		uuid.NewString(), id, usage.UserID, usage.RequestID, usage.LatencyMS, props, now,
	); err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit generation: %w", err)
	}
	return nil
}

// GetRecord loads generation metadata.
func (s *Store) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	var (
		rec     domain.GenerationRecord
		userID  sql.NullString
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, request_id, storage_key, mime_type, width, height, provider, model, cost_credits, created_at
		 FROM generations WHERE id = ?`, id,
	).Scan(&rec.ID, &userID, &rec.RequestID, &rec.StorageKey, &rec.MIMEType, &rec.Width, &rec.Height, &rec.Provider, &rec.Model, &rec.CostCredits, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.UserID = userID.String
	rec.CreatedAt = parseTime(created)
	return &rec, nil
}

// FetchProducts returns the products that exist, in the order requested.
func (s *Store) FetchProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, tags FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	byID := map[string]domain.Product{}
	for rows.Next() {
		var (
			p    domain.Product
			tags string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &tags); err != nil {
			return nil, err
		}
		if p.Tags, err = decodeList(tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", p.ID, err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var products []domain.Product
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) FetchBrand(ctx context.Context, userID string) (*domain.BrandVoice, error) {
	var (
		brand     domain.BrandVoice
		forbidden string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, tone, forbidden_phrases FROM brand_profiles WHERE user_id = ?`, userID,
	).Scan(&brand.Name, &brand.Tone, &forbidden)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select brand profile: %w", err)
	}
	if brand.ForbiddenPhrases, err = decodeList(forbidden); err != nil {
		return nil, fmt.Errorf("decode forbidden phrases: %w", err)
	}
	return &brand, nil
}

func (s *Store) FetchTemplate(ctx context.Context, templateID string) (*domain.TemplateRecipe, error) {
	var (
		tpl        domain.TemplateRecipe
		directives string
		refs       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, style_directives, reference_image_urls, aspect_ratio
		 FROM templates WHERE id = ? AND archived_at IS NULL`, templateID,
	).Scan(&tpl.ID, &tpl.Name, &directives, &refs, &tpl.AspectRatio)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select template: %w", err)
	}
	if tpl.StyleDirectives, err = decodeList(directives); err != nil {
		return nil, fmt.Errorf("decode style directives: %w", err)
	}
	if tpl.ReferenceImageURLs, err = decodeList(refs); err != nil {
		return nil, fmt.Errorf("decode reference images: %w", err)
	}
	return &tpl, nil
}

// SeedBrand upserts a brand profile. Used by local tooling and tests.
func (s *Store) SeedBrand(ctx context.Context, userID string, brand domain.BrandVoice) error {
	forbidden, err := encodeList(brand.ForbiddenPhrases)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO brand_profiles (user_id, name, tone, forbidden_phrases) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, tone = excluded.tone, forbidden_phrases = excluded.forbidden_phrases`,
		userID, brand.Name, brand.Tone, forbidden)
	return err
}

// SeedTemplate upserts a template.
func (s *Store) SeedTemplate(ctx context.Context, tpl domain.TemplateRecipe) error {
	directives, err := encodeList(tpl.StyleDirectives)
	if err != nil {
		return err
	}
	refs, err := encodeList(tpl.ReferenceImageURLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, style_directives, reference_image_urls, aspect_ratio) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, style_directives = excluded.style_directives,
		   reference_image_urls = excluded.reference_image_urls, aspect_ratio = excluded.aspect_ratio`,
		tpl.ID, tpl.Name, directives, refs, tpl.AspectRatio)
	return err
}

// SeedProduct upserts a product.
func (s *Store) SeedProduct(ctx context.Context, p domain.Product) error {
	tags, err := encodeList(p.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, tags) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, tags = excluded.tags`,
		p.ID, p.Name, p.Description, tags)
	return err
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
