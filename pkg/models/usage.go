package models

import "time"

// Dimension selects which half of a prompt expansion an operation targets:
// WHAT is the content dimension, HOW the style dimension.
type Dimension string

const (
	DimensionWhat Dimension = "what"
	DimensionHow  Dimension = "how"
)

// ForChildIndex returns the dimension a child refinement targets. Children
// of one parent alternate: even child indexes refine WHAT, odd refine HOW.
func ForChildIndex(i int) Dimension {
	if i%2 == 0 {
		return DimensionWhat
	}
	return DimensionHow
}

// UsageMetadata situates one usage record within the run.
type UsageMetadata struct {
	Iteration   *int   `json:"iteration,omitempty"`
	CandidateID *int   `json:"candidateId,omitempty"`
	Model       string `json:"model,omitempty"`
	Dimension   string `json:"dimension,omitempty"`
}

// Usage is one recorded provider call. Tokens is the total; the input and
// output splits are set when the provider reports them, which makes cost
// estimates exact instead of input-price approximations.
type Usage struct {
	Provider     string        `json:"provider"`
	Operation    string        `json:"operation"`
	Tokens       int           `json:"tokens"`
	InputTokens  int           `json:"inputTokens,omitempty"`
	OutputTokens int           `json:"outputTokens,omitempty"`
	Metadata     UsageMetadata `json:"metadata"`
	Timestamp    time.Time     `json:"timestamp"`
}
