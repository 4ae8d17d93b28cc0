package domain

import (
	"context"
	"time"
)

// ProductProvider resolves catalog facts for product identifiers.
type ProductProvider interface {
	FetchProducts(ctx context.Context, ids []string) ([]Product, error)
}

// BrandProvider resolves the brand voice configured by a user.
type BrandProvider interface {
	FetchBrand(ctx context.Context, userID string) (*BrandVoice, error)
}

// TemplateProvider resolves a stored template.
type TemplateProvider interface {
	FetchTemplate(ctx context.Context, templateID string) (*TemplateRecipe, error)
}

// RecordStore persists an artifact together with its usage record and
// returns the identifier of the saved record.
type RecordStore interface {
	Save(ctx context.Context, artifact GeneratedArtifact, usage UsageRecord) (string, error)
}

// RecordReader loads a persisted generation.
type RecordReader interface {
	GetRecord(ctx context.Context, id string) (*GenerationRecord, error)
}

// JobRepository persists queued generation requests. Claim returns nil, nil
// when the queue is empty.
type JobRepository interface {
	Enqueue(ctx context.Context, userID string, req GenerationRequest) (string, error)
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, jobID string, status JobStatus, recordID, errorCode string, result []byte) error
	Get(ctx context.Context, jobID, userID string) (*Job, error)
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}
