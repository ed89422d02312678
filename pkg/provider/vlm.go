package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/easel-ai/easel/pkg/models"
)

// candidatePayload is the wire form of a candidate sent to the vlm daemon.
type candidatePayload struct {
	Key            string  `json:"key"`
	Iteration      int     `json:"iteration"`
	CandidateID    int     `json:"candidate_id"`
	WhatPrompt     string  `json:"what_prompt"`
	HowPrompt      string  `json:"how_prompt"`
	Combined       string  `json:"combined"`
	ImagePath      string  `json:"image_path,omitempty"`
	AlignmentScore float64 `json:"alignment_score"`
	AestheticScore float64 `json:"aesthetic_score"`
	TotalScore     float64 `json:"total_score"`
}

func toCandidatePayload(c *models.Candidate) candidatePayload {
	p := candidatePayload{
		Key:            c.Key(),
		Iteration:      c.Iteration,
		CandidateID:    c.CandidateID,
		WhatPrompt:     c.WhatPrompt,
		HowPrompt:      c.HowPrompt,
		Combined:       c.Combined,
		AlignmentScore: c.AlignmentScore,
		AestheticScore: c.AestheticScore,
		TotalScore:     c.TotalScore,
	}
	if c.Image != nil {
		p.ImagePath = c.Image.LocalPath
	}
	return p
}

type rankingPayload struct {
	Rank       int      `json:"rank"`
	Reason     string   `json:"reason"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// VLMCritic asks the local vision-language daemon for per-candidate
// critiques that steer the next iteration's refinements.
type VLMCritic struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewVLMCritic returns a Critic bound to the daemon at baseURL.
func NewVLMCritic(baseURL string) *VLMCritic {
	return &VLMCritic{
		baseURL: baseURL,
		client:  newHTTPClient(),
		logger:  slog.With("component", "vlm_critic"),
	}
}

// GPUBound reports that the daemon shares the single local GPU.
func (p *VLMCritic) GPUBound() bool { return true }

type critiqueRequest struct {
	Candidate       candidatePayload `json:"candidate"`
	PreviousRanking *rankingPayload  `json:"previous_ranking,omitempty"`
}

type critiqueResponse struct {
	SuggestedWhat string `json:"suggested_what"`
	SuggestedHow  string `json:"suggested_how"`
	Rationale     string `json:"rationale"`
	Model         string `json:"model"`
	TokensUsed    int    `json:"tokens_used"`
	InputTokens   int    `json:"input_tokens"`
	OutputTokens  int    `json:"output_tokens"`
}

// Critique reviews one candidate, optionally in light of its ranking from
// the previous iteration.
func (p *VLMCritic) Critique(ctx context.Context, candidate *models.Candidate, prev *models.Ranking) (*Critique, error) {
	req := critiqueRequest{Candidate: toCandidatePayload(candidate)}
	if prev != nil {
		req.PreviousRanking = &rankingPayload{
			Rank:       prev.Rank,
			Reason:     prev.Reason,
			Strengths:  prev.Strengths,
			Weaknesses: prev.Weaknesses,
		}
	}

	var resp critiqueResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/critique", nil, req, &resp); err != nil {
		return nil, Classify(NameVLM, fmt.Errorf("vlm daemon critique: %w", err))
	}

	p.logger.Debug("Critiqued candidate",
		"candidate", candidate.Key(),
		"tokens", resp.TokensUsed)

	return &Critique{
		SuggestedWhat: resp.SuggestedWhat,
		SuggestedHow:  resp.SuggestedHow,
		Rationale:     resp.Rationale,
		Metadata: Metadata{
			Model:        resp.Model,
			TokensUsed:   resp.TokensUsed,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil
}

// VLMRanker asks the local vision-language daemon for a best-first
// ordering of an iteration's candidates.
type VLMRanker struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewVLMRanker returns a Ranker bound to the daemon at baseURL.
func NewVLMRanker(baseURL string) *VLMRanker {
	return &VLMRanker{
		baseURL: baseURL,
		client:  newHTTPClient(),
		logger:  slog.With("component", "vlm_ranker"),
	}
}

// GPUBound reports that the daemon shares the single local GPU.
func (p *VLMRanker) GPUBound() bool { return true }

type rankRequest struct {
	Candidates []candidatePayload `json:"candidates"`
}

type rankEntryPayload struct {
	CandidateID int      `json:"candidate_id"`
	Rank        int      `json:"rank"`
	Reason      string   `json:"reason"`
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
}

type rankResponse struct {
	Rankings []rankEntryPayload `json:"rankings"`
	Model    string             `json:"model"`
}

// Rank orders candidates best-first. The daemon must rank every candidate
// it was given; a short response is an error.
func (p *VLMRanker) Rank(ctx context.Context, candidates []*models.Candidate) ([]models.RankEntry, error) {
	req := rankRequest{Candidates: make([]candidatePayload, len(candidates))}
	for i, c := range candidates {
		req.Candidates[i] = toCandidatePayload(c)
	}

	var resp rankResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/v1/rank", nil, req, &resp); err != nil {
		return nil, Classify(NameVLM, fmt.Errorf("vlm daemon rank: %w", err))
	}
	if len(resp.Rankings) != len(candidates) {
		return nil, Classify(NameVLM, fmt.Errorf("vlm daemon rank: got %d rankings for %d candidates", len(resp.Rankings), len(candidates)))
	}

	entries := make([]models.RankEntry, len(resp.Rankings))
	for i, r := range resp.Rankings {
		entries[i] = models.RankEntry{
			CandidateID: r.CandidateID,
			Rank:        r.Rank,
			Reason:      r.Reason,
			Strengths:   r.Strengths,
			Weaknesses:  r.Weaknesses,
		}
	}
	return entries, nil
}
