package domain

import (
	"maps"
	"time"
)

// Job is a unit of work handed from the dispatcher to a worker
type Job struct {
	JobID       string
	DispatchKey string
	Action      string
	Payload     map[string]any
	CreatedAt   time.Time
}

// JobStatusRecord is the observable lifecycle of a job
type JobStatusRecord struct {
	JobID       string
	DispatchKey string
	Action      string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Result      map[string]any
	Error       string
}

// NewQueuedRecord builds the initial record for a freshly accepted job.
func NewQueuedRecord(job *Job) JobStatusRecord {
	return JobStatusRecord{
		JobID:       job.JobID,
		DispatchKey: job.DispatchKey,
		Action:      job.Action,
		Status:      JobStatusQueued,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.CreatedAt,
	}
}

// IsTerminal reports whether no further transition is allowed.
func (r JobStatusRecord) IsTerminal() bool {
	return r.Status == JobStatusSucceeded || r.Status == JobStatusFailed
}

// Clone returns a copy that shares nothing mutable with r.
func (r JobStatusRecord) Clone() JobStatusRecord {
	r.Result = maps.Clone(r.Result)
	return r
}
