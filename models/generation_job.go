package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal returns true if no further transitions are allowed from this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// GenerationKind represents the type of media being generated
type GenerationKind string

const (
	GenerationKindImage GenerationKind = "image"
	GenerationKindVideo GenerationKind = "video"
)

// GenerationJob represents a unit of work submitted to an external AI provider.
// Jobs are created by the orchestrator at admission time and mutated only by
// the poller (status, result, error) or by an explicit publish action.
// Jobs are never deleted; terminal jobs are retained as history.
type GenerationJob struct {
	ID             string         `db:"id"`
	UserID         int64          `db:"user_id"`
	Kind           GenerationKind `db:"kind"`
	Provider       string         `db:"provider"`
	ExternalTaskID string         `db:"external_task_id"`
	Status         JobStatus      `db:"status"`
	Prompt         string         `db:"prompt"`
	Params         map[string]any `db:"params"`
	Cost           int64          `db:"cost"`
	ResultURI      *string        `db:"result_uri"`
	ErrorMessage   *string        `db:"error_message"`
	PublishIntent  bool           `db:"publish_intent"`
	Published      bool           `db:"published"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
