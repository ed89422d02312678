package models

import "fmt"

// Default beam-search parameters, applied when the submit request omits a
// field. Alpha and Temperature have meaningful zero values, so the HTTP
// boundary resolves their absence before constructing Params.
const (
	DefaultN           = 4
	DefaultM           = 2
	DefaultIterations  = 3
	DefaultAlpha       = 0.7
	DefaultTemperature = 0.8
)

// Params configures a beam-search run.
//
// N is the beam width (candidates per iteration), M the keep-top count.
// N must be divisible by M so each survivor yields exactly N/M children.
// Alpha weighs prompt alignment against aesthetic quality in the total
// score. Steps, Guidance and Seed are optional generator options; zero
// means "let the image provider choose".
type Params struct {
	Prompt      string  `json:"prompt"`
	N           int     `json:"n"`
	M           int     `json:"m"`
	Iterations  int     `json:"iterations"`
	Alpha       float64 `json:"alpha"`
	Temperature float64 `json:"temperature"`
	Steps       int     `json:"steps,omitempty"`
	Guidance    int     `json:"guidance,omitempty"`
	Seed        *int64  `json:"seed,omitempty"`
}

// ApplyDefaults fills the zero-valued integer fields. Alpha and Temperature
// are left untouched because 0 is a legal value for both; callers that need
// absence semantics use DefaultAlpha / DefaultTemperature at decode time.
func (p *Params) ApplyDefaults() {
	if p.N == 0 {
		p.N = DefaultN
	}
	if p.M == 0 {
		p.M = DefaultM
	}
	if p.Iterations == 0 {
		p.Iterations = DefaultIterations
	}
}

// Validate checks every parameter constraint and returns a *ValidationError
// naming the first offending field.
//
// The divisibility check runs before the m upper-bound check so a request
// like n=4, m=3 reports the divisibility rule rather than the range.
func (p *Params) Validate() error {
	if p.Prompt == "" {
		return NewValidationError("prompt", "prompt is required and must be non-empty")
	}
	if p.N < 2 || p.N > 8 {
		return NewValidationError("n", fmt.Sprintf("n must be between 2 and 8, got %d", p.N))
	}
	if p.M < 1 {
		return NewValidationError("m", fmt.Sprintf("m must be at least 1, got %d", p.M))
	}
	if p.N%p.M != 0 {
		return NewValidationError("m", fmt.Sprintf("n must be divisible by m (n=%d, m=%d)", p.N, p.M))
	}
	if p.M > p.N/2 {
		return NewValidationError("m", fmt.Sprintf("m must be between 1 and n/2 (n=%d, m=%d)", p.N, p.M))
	}
	if p.Iterations < 1 || p.Iterations > 5 {
		return NewValidationError("iterations", fmt.Sprintf("iterations must be between 1 and 5, got %d", p.Iterations))
	}
	if p.Alpha < 0 || p.Alpha > 1 {
		return NewValidationError("alpha", fmt.Sprintf("alpha must be between 0 and 1, got %g", p.Alpha))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return NewValidationError("temperature", fmt.Sprintf("temperature must be between 0 and 2, got %g", p.Temperature))
	}
	if p.Steps != 0 && (p.Steps < 15 || p.Steps > 50) {
		return NewValidationError("steps", fmt.Sprintf("steps must be between 15 and 50, got %d", p.Steps))
	}
	if p.Guidance != 0 && (p.Guidance < 1 || p.Guidance > 20) {
		return NewValidationError("guidance", fmt.Sprintf("guidance must be between 1 and 20, got %d", p.Guidance))
	}
	return nil
}

// ChildrenPerSurvivor returns N/M, the number of children each surviving
// candidate produces in the next iteration. Valid only after Validate.
func (p *Params) ChildrenPerSurvivor() int {
	return p.N / p.M
}
