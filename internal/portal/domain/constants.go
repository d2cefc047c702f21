package domain

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusInProgress = "in_progress"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	// JobStatusDeduped is never stored. It tags the copy of an existing
	// record returned to a caller whose trigger was absorbed by dedup.
	JobStatusDeduped = "deduped"
)

// Dispatch key constraints
const (
	MinKeyLength = 2
	MaxKeyLength = 24
)
