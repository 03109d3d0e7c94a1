package domain

import "time"

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ScrapeRun is one orchestration attempt for a tracked URL. Created and
// mutated only by the orchestrator; pending -> running -> completed|failed,
// terminal states are final.
type ScrapeRun struct {
	ID           int64
	TrackedURLID int64
	Status       RunStatus
	JobID        *string // external engine job id
	Error        *string
	SnapshotID   *int64 // set once ingestion produced a snapshot
	StartedAt    time.Time
	EndedAt      *time.Time
}

// JobStatus is the external scraping engine's run status.
type JobStatus string

const (
	JobReady     JobStatus = "READY"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobAborting  JobStatus = "ABORTING"
	JobAborted   JobStatus = "ABORTED"
	JobTimingOut JobStatus = "TIMING-OUT"
	JobTimedOut  JobStatus = "TIMED-OUT"
)

// Terminal reports whether the engine will make no further progress.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobAborted, JobTimedOut:
		return true
	}
	return false
}

// JobHandle identifies a run on the external engine and, once known, the
// dataset its results land in.
type JobHandle struct {
	ID        string
	DatasetID string
	Status    JobStatus
}
