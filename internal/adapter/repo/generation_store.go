package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
	"studio/internal/storage"
)

// GenerationStore implements domain.RecordStore on Postgres plus a FileStore
// for the artifact bytes.
type GenerationStore struct {
	sql    infra.SQLExecutor
	files  *storage.FileStore
	logger zerolog.Logger
}

func NewGenerationStore(sql infra.SQLExecutor, files *storage.FileStore, logger zerolog.Logger) *GenerationStore {
	return &GenerationStore{sql: sql, files: files, logger: logger}
}

type usageProperties struct {
	Mode           domain.Mode    `json:"mode"`
	AspectRatio    string         `json:"aspect_ratio"`
	InputImages    int            `json:"input_images"`
	HeuristicScore float64        `json:"heuristic_score"`
	BlendedScore   float64        `json:"blended_score"`
	Verdict        domain.Verdict `json:"verdict"`
	EvaluatorUsed  bool           `json:"evaluator_used"`
	CritiqueScore  *float64       `json:"critique_score,omitempty"`
}

func encodeUsage(usage domain.UsageRecord) ([]byte, error) {
	return json.Marshal(usageProperties{
		Mode:           usage.Mode,
		AspectRatio:    usage.AspectRatio,
		InputImages:    usage.InputImages,
		HeuristicScore: usage.HeuristicScore,
		BlendedScore:   usage.BlendedScore,
		Verdict:        usage.Verdict,
		EvaluatorUsed:  usage.EvaluatorUsed,
		CritiqueScore:  usage.CritiqueScore,
	})
}

// Save writes the bytes first, then both rows in one statement. The file is
// removed again when the rows cannot be written.
func (s *GenerationStore) Save(ctx context.Context, artifact domain.GeneratedArtifact, usage domain.UsageRecord) (string, error) {
	if len(artifact.Data) == 0 {
		return "", fmt.Errorf("save generation: artifact has no data")
	}
	recordID := usage.RecordID
	if recordID == "" {
		recordID = uuid.NewString()
	}
	createdAt := usage.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	props, err := encodeUsage(usage)
	if err != nil {
		return "", fmt.Errorf("encode usage properties: %w", err)
	}

	key, err := s.files.Write(ctx, storage.ArtifactKey(recordID, artifact.MIMEType, createdAt), artifact.Data)
	if err != nil {
		return "", err
	}

	var id string
	err = s.sql.QueryRow(ctx, sqlinline.QInsertGeneration,
		recordID,
		usage.UserID,
		usage.RequestID,
		key,
		artifact.MIMEType,
		artifact.Width,
		artifact.Height,
		artifact.Provider,
		artifact.Model,
		artifact.CostCredits,
		usage.LatencyMS,
		props,
	).Scan(&id)
	if err != nil {
		if rmErr := s.files.Delete(context.WithoutCancel(ctx), key); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("key", key).Msg("repo: orphaned artifact file")
		}
		return "", fmt.Errorf("insert generation: %w", err)
	}
	return id, nil
}

// GetRecord loads generation metadata.
func (s *GenerationStore) GetRecord(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var rec domain.GenerationRecord
	err := s.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.RequestID,
		&rec.StorageKey,
		&rec.MIMEType,
		&rec.Width,
		&rec.Height,
		&rec.Provider,
		&rec.Model,
		&rec.CostCredits,
		&rec.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

var (
	_ domain.RecordStore  = (*GenerationStore)(nil)
	_ domain.RecordReader = (*GenerationStore)(nil)
)
