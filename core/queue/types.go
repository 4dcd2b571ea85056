package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType enumerates the known job kinds.
type JobType string

const (
	JobTypeImport    JobType = "import"
	JobTypeCalculate JobType = "calculate"
	JobTypeExport    JobType = "export"
)

// Valid reports whether the job type is one of the known kinds.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeImport, JobTypeCalculate, JobTypeExport:
		return true
	}
	return false
}

// JobStatus tracks a job through its lifecycle. Transitions are monotonic
// except delayed → active → delayed again on retry.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a unit of asynchronous work. AttemptsMade never exceeds
// MaxAttempts: the retry policy refuses further attempts once the budget
// is spent.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Queue        string          `json:"queue"`
	Type         JobType         `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       JobStatus       `json:"status"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	EligibleAt   time.Time       `json:"eligible_at,omitzero"`
	ClaimedAt    time.Time       `json:"claimed_at,omitzero"`
}

// DecodePayload unmarshals the raw payload into its typed form according
// to the job type tag.
func (j *Job) DecodePayload() (Payload, error) {
	return decodePayload(j.Type, j.Payload)
}
