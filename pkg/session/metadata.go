package session

import (
	"time"

	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
)

// Metadata is the evolving job descriptor persisted as metadata.json in
// each session directory. It grows one iteration frame per completed
// round and gains winner, finalists, lineage, and totals on finalize.
type Metadata struct {
	SessionID     string                   `json:"sessionId"`
	JobID         string                   `json:"jobId,omitempty"`
	UserPrompt    string                   `json:"userPrompt"`
	Status        models.JobStatus         `json:"status"`
	Config        Config                   `json:"config"`
	Iterations    []*models.IterationFrame `json:"iterations"`
	Winner        *models.BestCandidate    `json:"winner,omitempty"`
	Finalists     []string                 `json:"finalists,omitempty"`
	Lineage       []models.LineageEntry    `json:"lineage,omitempty"`
	Comparison    string                   `json:"comparison,omitempty"`
	TokenUsage    *meter.Stats             `json:"tokenUsage,omitempty"`
	EstimatedCost *float64                 `json:"estimatedCost,omitempty"`
	Error         string                   `json:"error,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// Config is the run configuration echoed into metadata.json.
type Config struct {
	BeamWidth     int     `json:"beamWidth"`
	KeepTop       int     `json:"keepTop"`
	MaxIterations int     `json:"maxIterations"`
	Alpha         float64 `json:"alpha"`
	Temperature   float64 `json:"temperature"`
}

// configFromParams maps submit parameters onto the metadata config block.
func configFromParams(p models.Params) Config {
	return Config{
		BeamWidth:     p.N,
		KeepTop:       p.M,
		MaxIterations: p.Iterations,
		Alpha:         p.Alpha,
		Temperature:   p.Temperature,
	}
}

// Summary is one row of the session listing.
type Summary struct {
	SessionID  string           `json:"sessionId"`
	Date       string           `json:"date"`
	UserPrompt string           `json:"userPrompt"`
	Status     models.JobStatus `json:"status"`
	Iterations int              `json:"iterations"`
	HasWinner  bool             `json:"hasWinner"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Evaluation is one human pairwise-comparison record appended under the
// session's evaluation directory.
type Evaluation struct {
	CandidateA string    `json:"candidateA"`
	CandidateB string    `json:"candidateB"`
	Preferred  string    `json:"preferred"`
	Notes      string    `json:"notes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
