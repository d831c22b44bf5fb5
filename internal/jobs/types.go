// Package jobs defines the asynchronous work the service runs off the
// request path: spending-alert sweeps over a user's recent transactions.
package jobs

import (
	"context"
	"time"
)

// JobType identifies the kind of work a job carries.
type JobType string

const (
	// JobTypeSweep analyzes a user's recent transactions for budget
	// overages and outliers and persists spending alerts.
	JobTypeSweep JobType = "alert_sweep"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// SweepJob asks the analyzer to examine one user's lookback window.
type SweepJob struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id"`
	PeriodDays int       `json:"period_days"`
	Status     JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is the generic view the queue hands to handlers.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *SweepJob) GetID() string        { return j.JobID }
func (j *SweepJob) GetType() JobType     { return JobTypeSweep }
func (j *SweepJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs. The in-memory queue implements it; a hosted queue
// could replace it without touching callers.
type Publisher interface {
	PublishSweep(ctx context.Context, job *SweepJob) error
	Close() error
}

// Consumer drains the queue, invoking the handler per job.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler processes one job; returning an error triggers a retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so callers can poll sweep progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *SweepJob) error
	GetJob(ctx context.Context, jobID string) (*SweepJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*SweepJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	UserID string
	Status JobStatus
	Limit  int
	Offset int
}
