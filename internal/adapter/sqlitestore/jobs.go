package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studio/internal/domain"
)

const jobColumns = `id, user_id, status, request_json, result_json, error_code, record_id, created_at, updated_at`

// Enqueue stores the request for the worker and returns the job id.
func (s *Store) Enqueue(ctx context.Context, userID string, req domain.GenerationRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	id := uuid.NewString()
	now := s.timestamp()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_requests (id, user_id, status, request_json, created_at, updated_at)
		 VALUES (?, NULLIF(?, ''), ?, ?, ?, ?)`,
		id, userID, domain.JobStatusQueued, string(payload), now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue generation: %w", err)
	}
	return id, nil
}

// Claim atomically picks the oldest QUEUED job and sets it to RUNNING.
// Returns nil if no job is available.
func (s *Store) Claim(ctx context.Context) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE generation_requests SET status = ?, updated_at = ?
		WHERE id = (SELECT id FROM generation_requests WHERE status = ? ORDER BY created_at ASC LIMIT 1)
		RETURNING `+jobColumns,
		domain.JobStatusRunning, s.timestamp(), domain.JobStatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *Store) Complete(ctx context.Context, jobID string, status domain.JobStatus, recordID, errorCode string, result []byte) error {
	var resultArg any
	if len(result) > 0 {
		resultArg = string(result)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE generation_requests
		 SET status = ?, record_id = COALESCE(NULLIF(?, ''), record_id), error_code = NULLIF(?, ''),
		     result_json = COALESCE(?, result_json), updated_at = ?
		 WHERE id = ?`,
		status, recordID, errorCode, resultArg, s.timestamp(), jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM generation_requests WHERE id = ? AND COALESCE(user_id, '') = ?`, jobID, userID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// RequeueStale resets RUNNING jobs untouched for olderThan back to QUEUED.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(s.now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_requests SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		domain.JobStatusQueued, s.timestamp(), domain.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func scanJob(row *sql.Row) (*domain.Job, error) {
	var (
		job                           domain.Job
		userID, result, code, record  sql.NullString
		status, request, created, upd string
	)
	if err := row.Scan(&job.ID, &userID, &status, &request, &result, &code, &record, &created, &upd); err != nil {
		return nil, err
	}
	job.UserID = userID.String
	job.Status = domain.JobStatus(status)
	job.RequestJSON = json.RawMessage(request)
	if result.Valid && result.String != "" {
		job.ResultJSON = json.RawMessage(result.String)
	}
	job.ErrorCode = code.String
	job.RecordID = record.String
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(upd)
	return &job, nil
}
