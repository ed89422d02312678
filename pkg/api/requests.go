package api

import (
	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/session"
)

// SubmitRequest is the POST /api/beam-search body. Alpha and Temperature
// are pointers because 0 is a legal value for both; absence falls back to
// the configured defaults. EnsembleSize is accepted for compatibility
// with the demo client and ignored.
type SubmitRequest struct {
	Prompt       string   `json:"prompt"`
	N            int      `json:"n"`
	M            int      `json:"m"`
	Iterations   int      `json:"iterations"`
	Alpha        *float64 `json:"alpha"`
	Temperature  *float64 `json:"temperature"`
	Steps        int      `json:"steps"`
	Guidance     int      `json:"guidance"`
	Seed         *int64   `json:"seed"`
	EnsembleSize int      `json:"ensembleSize"`
}

// toParams resolves the request into run parameters, filling absent
// fields from the configured beam defaults.
func (r *SubmitRequest) toParams(defaults *config.BeamDefaults) models.Params {
	p := models.Params{
		Prompt:      r.Prompt,
		N:           r.N,
		M:           r.M,
		Iterations:  r.Iterations,
		Steps:       r.Steps,
		Guidance:    r.Guidance,
		Seed:        r.Seed,
	}

	alpha, temperature := models.DefaultAlpha, models.DefaultTemperature
	if defaults != nil {
		if p.N == 0 {
			p.N = defaults.N
		}
		if p.M == 0 {
			p.M = defaults.M
		}
		if p.Iterations == 0 {
			p.Iterations = defaults.Iterations
		}
		alpha, temperature = defaults.Alpha, defaults.Temperature
	}
	p.ApplyDefaults()

	p.Alpha = alpha
	if r.Alpha != nil {
		p.Alpha = *r.Alpha
	}
	p.Temperature = temperature
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	return p
}

// EvaluationRequest is the POST /api/sessions/:sessionId/evaluations body.
type EvaluationRequest struct {
	CandidateA string `json:"candidateA"`
	CandidateB string `json:"candidateB"`
	Preferred  string `json:"preferred"`
	Notes      string `json:"notes"`
}

func (r *EvaluationRequest) toEvaluation() session.Evaluation {
	return session.Evaluation{
		CandidateA: r.CandidateA,
		CandidateB: r.CandidateB,
		Preferred:  r.Preferred,
		Notes:      r.Notes,
	}
}

// SubscribeMessage is the one client-to-server WebSocket message.
type SubscribeMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
}
