package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeSendNotification JobType = "send_notification"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusRetrying   JobStatus = "retrying"
	// JobStatusDead jobs used up their attempts and sit in the dead letter list.
	JobStatusDead JobStatus = "dead"
)

// Job is the Redis record of one unit of background work. Payload is the
// JSON encoding of the type specific value handed to Enqueue.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	ErrorMsg    string          `json:"error_msg,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload of job %s: %w", j.Type, j.ID, err)
	}
	return nil
}

// CanRetry reports whether another attempt is allowed after a failure.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

func (j *Job) MarkAsProcessing(now time.Time) {
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsFailed records a failed attempt. The caller decides between retry and
// dead letter.
func (j *Job) MarkAsFailed(now time.Time, errorMsg string) {
	j.Attempts++
	j.ErrorMsg = errorMsg
	j.UpdatedAt = now
	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusDead
	}
}

func (j *Job) MarkAsCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.ErrorMsg = ""
}
