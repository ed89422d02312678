package api

import (
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/session"
)

// SubmitResponse confirms a job submission.
type SubmitResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
	Params models.Params    `json:"params"`
}

// CancelResponse confirms a cancellation request was flagged.
type CancelResponse struct {
	Success bool `json:"success"`
}

// SessionsResponse lists the known sessions, newest first.
type SessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

// ServiceActionResponse reports the outcome of a start or restart.
type ServiceActionResponse struct {
	PID  int `json:"pid"`
	Port int `json:"port"`
}

// HealthResponse is the liveness document.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version,omitempty"`
}

// SubscribedMessage confirms a WebSocket subscription.
type SubscribedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}
