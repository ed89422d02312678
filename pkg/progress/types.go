// Package progress implements the per-job progress bus: typed messages
// multicast to any number of subscribers, one bounded buffer per
// subscriber, drop-on-overflow so a slow client can never stall a worker.
//
// Messages published before a subscriber joined are not redelivered.
// Clients that need history read the session store instead.
package progress

import (
	"time"

	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
)

// Message type tags, one per variant. These are the "type" values on the
// wire.
const (
	TypeStarted   = "started"
	TypeOperation = "operation"
	TypeStep      = "step"
	TypeCandidate = "candidate"
	TypeRanked    = "ranked"
	TypeIteration = "iteration"
	TypeComplete  = "complete"
	TypeError     = "error"
	TypeCancelled = "cancelled"
)

// Message is one progress event. Every variant carries its type tag and an
// RFC3339Nano timestamp stamped at construction.
type Message interface {
	MessageType() string
	When() string
}

func stamp() string {
	return time.Now().Format(time.RFC3339Nano)
}

// Started opens every job's stream and echoes the effective parameters.
type Started struct {
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Params    models.Params `json:"params"`
}

// NewStarted builds a started message.
func NewStarted(params models.Params) Started {
	return Started{Type: TypeStarted, Timestamp: stamp(), Params: params}
}

// Operation is a coarse human-readable activity line.
type Operation struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// NewOperation builds an operation message.
func NewOperation(message string) Operation {
	return Operation{Type: TypeOperation, Timestamp: stamp(), Message: message}
}

// Step marks a phase change within an iteration.
type Step struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Phase     string `json:"phase"`
}

// NewStep builds a step message.
func NewStep(phase string) Step {
	return Step{Type: TypeStep, Timestamp: stamp(), Phase: phase}
}

// Candidate announces one scored candidate with its prompts and image.
type Candidate struct {
	Type        string   `json:"type"`
	Timestamp   string   `json:"timestamp"`
	Iteration   int      `json:"iteration"`
	CandidateID int      `json:"candidateId"`
	ImageURL    string   `json:"imageUrl"`
	WhatPrompt  string   `json:"whatPrompt"`
	HowPrompt   string   `json:"howPrompt"`
	Combined    string   `json:"combined"`
	Score       *float64 `json:"score,omitempty"`
	ParentID    *string  `json:"parentId,omitempty"`
}

// NewCandidate builds a candidate message from the domain candidate.
func NewCandidate(c *models.Candidate) Candidate {
	msg := Candidate{
		Type:        TypeCandidate,
		Timestamp:   stamp(),
		Iteration:   c.Iteration,
		CandidateID: c.CandidateID,
		WhatPrompt:  c.WhatPrompt,
		HowPrompt:   c.HowPrompt,
		Combined:    c.Combined,
		ParentID:    c.ParentID,
	}
	if c.Image != nil {
		msg.ImageURL = c.Image.URL
	}
	if !c.Failed() {
		score := c.TotalScore
		msg.Score = &score
	}
	return msg
}

// Ranked carries the ranker's verdict for one candidate.
type Ranked struct {
	Type        string   `json:"type"`
	Timestamp   string   `json:"timestamp"`
	Iteration   int      `json:"iteration"`
	CandidateID int      `json:"candidateId"`
	Rank        int      `json:"rank"`
	Reason      string   `json:"reason"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

// NewRanked builds a ranked message.
func NewRanked(iteration int, entry models.RankEntry) Ranked {
	return Ranked{
		Type:        TypeRanked,
		Timestamp:   stamp(),
		Iteration:   iteration,
		CandidateID: entry.CandidateID,
		Rank:        entry.Rank,
		Reason:      entry.Reason,
		Strengths:   entry.Strengths,
		Weaknesses:  entry.Weaknesses,
	}
}

// Iteration summarizes one completed round, including running token and
// cost totals so dashboards can show spend live.
type Iteration struct {
	Type            string      `json:"type"`
	Timestamp       string      `json:"timestamp"`
	Iteration       int         `json:"iteration"`
	TotalIterations int         `json:"totalIterations"`
	CandidatesCount int         `json:"candidatesCount"`
	BestScore       float64     `json:"bestScore"`
	TokenUsage      meter.Stats `json:"tokenUsage"`
	EstimatedCost   float64     `json:"estimatedCost"`
}

// NewIteration builds an iteration summary message.
func NewIteration(iteration, totalIterations, candidatesCount int, bestScore float64, usage meter.Stats, estimatedCost float64) Iteration {
	return Iteration{
		Type:            TypeIteration,
		Timestamp:       stamp(),
		Iteration:       iteration,
		TotalIterations: totalIterations,
		CandidatesCount: candidatesCount,
		BestScore:       bestScore,
		TokenUsage:      usage,
		EstimatedCost:   estimatedCost,
	}
}

// CompleteResult wraps the winner for the complete message.
type CompleteResult struct {
	BestCandidate models.BestCandidate `json:"bestCandidate"`
}

// Complete closes a successful run.
type Complete struct {
	Type      string         `json:"type"`
	Timestamp string         `json:"timestamp"`
	Result    CompleteResult `json:"result"`
}

// NewComplete builds a complete message.
func NewComplete(best models.BestCandidate) Complete {
	return Complete{
		Type:      TypeComplete,
		Timestamp: stamp(),
		Result:    CompleteResult{BestCandidate: best},
	}
}

// Error closes a failed run with a user-facing message.
type Error struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
}

// NewError builds an error message.
func NewError(message, details string) Error {
	return Error{Type: TypeError, Timestamp: stamp(), Error: message, Details: details}
}

// Cancelled closes a cancelled run.
type Cancelled struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// NewCancelled builds a cancelled message.
func NewCancelled() Cancelled {
	return Cancelled{Type: TypeCancelled, Timestamp: stamp()}
}

func (m Started) MessageType() string   { return m.Type }
func (m Operation) MessageType() string { return m.Type }
func (m Step) MessageType() string      { return m.Type }
func (m Candidate) MessageType() string { return m.Type }
func (m Ranked) MessageType() string    { return m.Type }
func (m Iteration) MessageType() string { return m.Type }
func (m Complete) MessageType() string  { return m.Type }
func (m Error) MessageType() string     { return m.Type }
func (m Cancelled) MessageType() string { return m.Type }

func (m Started) When() string   { return m.Timestamp }
func (m Operation) When() string { return m.Timestamp }
func (m Step) When() string      { return m.Timestamp }
func (m Candidate) When() string { return m.Timestamp }
func (m Ranked) When() string    { return m.Timestamp }
func (m Iteration) When() string { return m.Timestamp }
func (m Complete) When() string  { return m.Timestamp }
func (m Error) When() string     { return m.Timestamp }
func (m Cancelled) When() string { return m.Timestamp }
