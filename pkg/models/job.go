package models

import "time"

// JobStatus represents the lifecycle state of a beam-search job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal states are sticky:
// no transition leaves them.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status may legally move to next.
// The only legal path is pending → running → {completed, failed, cancelled}.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning
	case JobStatusRunning:
		return next.Terminal()
	}
	return false
}

// BestCandidate is the compact description of a finished candidate used in
// the complete progress message and the metadata winner/finalists fields.
type BestCandidate struct {
	CandidateKey string  `json:"candidateId,omitempty"`
	What         string  `json:"what"`
	How          string  `json:"how"`
	Combined     string  `json:"combined"`
	TotalScore   float64 `json:"totalScore"`
	ImageURL     string  `json:"imageUrl"`
}

// Result is produced by the orchestrator when a job completes.
type Result struct {
	BestCandidate BestCandidate  `json:"bestCandidate"`
	Finalists     []string       `json:"finalists,omitempty"`
	Lineage       []LineageEntry `json:"lineage,omitempty"`
	Comparison    string         `json:"comparison,omitempty"`
}

// Job is the in-memory record the job manager keeps for every submission.
// Cancellation state lives with the manager (a context cancel func), not
// here, so the record serializes cleanly.
type Job struct {
	JobID       string     `json:"jobId"`
	SessionID   string     `json:"sessionId"`
	Params      Params     `json:"params"`
	Status      JobStatus  `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Result      *Result    `json:"result,omitempty"`
	SessionPath string     `json:"sessionPath,omitempty"`
	Error       string     `json:"error,omitempty"`
}
