package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on the generation_requests table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Enqueue stores the request for the worker and returns the job id.
func (r *JobRepositoryPG) Enqueue(ctx context.Context, userID string, req domain.GenerationRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QEnqueueGeneration, userID, payload).Scan(&id); err != nil {
		return "", fmt.Errorf("enqueue generation: %w", err)
	}
	return id, nil
}

// Claim marks the oldest queued job RUNNING. It returns nil when none is queued.
func (r *JobRepositoryPG) Claim(ctx context.Context) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QWorkerClaimJob))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete stores the final status of a job.
func (r *JobRepositoryPG) Complete(ctx context.Context, jobID string, status domain.JobStatus, recordID, errorCode string, result []byte) error {
	_, err := r.sql.Exec(ctx, sqlinline.QWorkerCompleteJob, jobID, string(status), recordID, errorCode, nullableBytes(result))
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Get fetches a job owned by userID.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID, userID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// RequeueStale puts RUNNING jobs untouched for olderThan back on the queue.
func (r *JobRepositoryPG) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QRequeueStaleJobs, int(olderThan.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
		result []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.RequestJSON,
		&result,
		&job.ErrorCode,
		&job.RecordID,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if len(result) > 0 {
		job.ResultJSON = result
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
