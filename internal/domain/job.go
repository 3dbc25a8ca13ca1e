package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one formatting attempt for an article. Retries never reuse a row:
// a failed job stays failed and a fresh queued job carries the retry count.
type Job struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ArticleID    uuid.UUID  `db:"article_id" json:"article_id"`
	Status       JobStatus  `db:"status" json:"status"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// NewJob returns a queued job for the given article.
func NewJob(articleID uuid.UUID, retryCount int) *Job {
	return &Job{
		ID:         uuid.New(),
		ArticleID:  articleID,
		Status:     JobStatusQueued,
		RetryCount: retryCount,
		CreatedAt:  time.Now().UTC(),
	}
}

// JobEvent is published when a job completes.
type JobEvent struct {
	Action     string    `json:"action"`
	JobID      uuid.UUID `json:"job_id"`
	ArticleID  uuid.UUID `json:"article_id"`
	RetryCount int       `json:"retry_count"`
	CacheHit   bool      `json:"cache_hit"`
	ModelUsed  string    `json:"model_used,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const JobEventCompleted = "format.completed"
