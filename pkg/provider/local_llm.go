package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// LocalLLM talks to the local LLM daemon's refine/combine endpoints.
type LocalLLM struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewLocalLLM returns an LLM provider bound to the daemon at baseURL.
func NewLocalLLM(baseURL string) *LocalLLM {
	return &LocalLLM{
		baseURL: baseURL,
		client:  newHTTPClient(),
		logger:  slog.With("component", "llm_provider"),
	}
}

// GPUBound reports that the daemon shares the single local GPU.
func (p *LocalLLM) GPUBound() bool { return true }

type refineRequest struct {
	Prompt       string  `json:"prompt"`
	Dimension    string  `json:"dimension"`
	Temperature  float64 `json:"temperature"`
	Operation    string  `json:"operation,omitempty"`
	Iteration    int     `json:"iteration"`
	CandidateID  int     `json:"candidate_id"`
	ParentPrompt string  `json:"parent_prompt,omitempty"`
	Guidance     string  `json:"guidance,omitempty"`
}

type refineResponse struct {
	RefinedPrompt string `json:"refined_prompt"`
	Model         string `json:"model"`
	TokensUsed    int    `json:"tokens_used"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
}

// RefinePrompt asks the daemon for a refined variant of prompt along the
// requested dimension.
func (p *LocalLLM) RefinePrompt(ctx context.Context, prompt string, opts RefineOptions) (*RefineResult, error) {
	start := time.Now()
	req := refineRequest{
		Prompt:       prompt,
		Dimension:    string(opts.Dimension),
		Temperature:  opts.Temperature,
		Operation:    opts.Operation,
		Iteration:    opts.Iteration,
		CandidateID:  opts.CandidateID,
		ParentPrompt: opts.ParentPrompt,
		Guidance:     opts.Guidance,
	}

	var resp refineResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/refine", nil, req, &resp); err != nil {
		return nil, Classify(NameLLM, fmt.Errorf("llm daemon refine: %w", err))
	}
	if resp.RefinedPrompt == "" {
		return nil, Classify(NameLLM, fmt.Errorf("llm daemon refine: empty refined_prompt"))
	}

	p.logger.Debug("Refined prompt",
		"dimension", opts.Dimension,
		"iteration", opts.Iteration,
		"candidate_id", opts.CandidateID,
		"tokens", resp.TokensUsed,
		"elapsed_ms", elapsedMS(start))

	return &RefineResult{
		RefinedPrompt: resp.RefinedPrompt,
		Metadata: Metadata{
			Model:        resp.Model,
			TokensUsed:   resp.TokensUsed,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}

type combineRequest struct {
	What string `json:"what"`
	How  string `json:"how"`
}

type combineResponse struct {
	Combined     string `json:"combined"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// CombinePrompts merges a WHAT and a HOW prompt into one generation prompt.
func (p *LocalLLM) CombinePrompts(ctx context.Context, what, how string) (*CombineResult, error) {
	var resp combineResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/combine", nil, combineRequest{What: what, How: how}, &resp); err != nil {
		return nil, Classify(NameLLM, fmt.Errorf("llm daemon combine: %w", err))
	}
	if resp.Combined == "" {
		return nil, Classify(NameLLM, fmt.Errorf("llm daemon combine: empty combined prompt"))
	}
	return &CombineResult{
		Combined: resp.Combined,
		Metadata: Metadata{
			Model:        resp.Model,
			TokensUsed:   resp.TokensUsed,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}
