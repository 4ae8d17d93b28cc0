package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates queued generation lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusBlocked   JobStatus = "BLOCKED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Job is a generation request queued for the background worker.
type Job struct {
	ID          string
	UserID      string
	Status      JobStatus
	RequestJSON json.RawMessage
	ResultJSON  json.RawMessage
	ErrorCode   string
	RecordID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
