package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// LocalVision talks to the local multimodal daemon's analyze endpoint.
// One pass returns both scores: prompt alignment and aesthetic quality.
type LocalVision struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewLocalVision returns a Vision provider bound to the daemon at baseURL.
func NewLocalVision(baseURL string) *LocalVision {
	return &LocalVision{
		baseURL: baseURL,
		client:  newHTTPClient(),
		logger:  slog.With("component", "vision_provider"),
	}
}

// GPUBound reports that the daemon shares the single local GPU.
func (p *LocalVision) GPUBound() bool { return true }

type analyzeRequest struct {
	ImagePath   string   `json:"image_path"`
	Prompt      string   `json:"prompt"`
	FocusAreas  []string `json:"focus_areas,omitempty"`
	Iteration   int      `json:"iteration"`
	CandidateID int      `json:"candidate_id"`
}

type analyzeResponse struct {
	Analysis       string  `json:"analysis"`
	AlignmentScore float64 `json:"alignment_score"`
	AestheticScore float64 `json:"aesthetic_score"`
	Caption        string  `json:"caption,omitempty"`
	Model          string  `json:"model"`
	TokensUsed     int     `json:"tokens_used"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
}

// AnalyzeImage scores the image at imageRef against the prompt that
// produced it. Out-of-range scores from the daemon are an error, not
// clamped.
func (p *LocalVision) AnalyzeImage(ctx context.Context, imageRef, prompt string, opts AnalyzeOptions) (*Analysis, error) {
	start := time.Now()
	req := analyzeRequest{
		ImagePath:   imageRef,
		Prompt:      prompt,
		FocusAreas:  opts.FocusAreas,
		Iteration:   opts.Iteration,
		CandidateID: opts.CandidateID,
	}

	var resp analyzeResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/analyze", nil, req, &resp); err != nil {
		return nil, Classify(NameVision, fmt.Errorf("vision daemon analyze: %w", err))
	}
	if resp.AlignmentScore < 0 || resp.AlignmentScore > 100 {
		return nil, Classify(NameVision, fmt.Errorf("vision daemon analyze: alignment_score %g out of range 0..100", resp.AlignmentScore))
	}
	if resp.AestheticScore < 0 || resp.AestheticScore > 10 {
		return nil, Classify(NameVision, fmt.Errorf("vision daemon analyze: aesthetic_score %g out of range 0..10", resp.AestheticScore))
	}

	p.logger.Debug("Analyzed image",
		"iteration", opts.Iteration,
		"candidate_id", opts.CandidateID,
		"alignment", resp.AlignmentScore,
		"aesthetic", resp.AestheticScore,
		"elapsed_ms", elapsedMS(start))

	return &Analysis{
		Analysis:       resp.Analysis,
		AlignmentScore: resp.AlignmentScore,
		AestheticScore: resp.AestheticScore,
		Caption:        resp.Caption,
		Metadata: Metadata{
			Model:        resp.Model,
			TokensUsed:   resp.TokensUsed,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}
