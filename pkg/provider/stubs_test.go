package provider

import (
	"context"

	"github.com/easel-ai/easel/pkg/models"
)

// In-memory providers for wrapper tests. Each fails its first `failures`
// calls with `failWith`, then succeeds; blockOnCtx makes calls hang until
// the context expires.

type stubLLM struct {
	refineCalls  int
	combineCalls int
	failures     int
	failWith     error
	blockOnCtx   bool
}

func (s *stubLLM) GPUBound() bool { return true }

func (s *stubLLM) RefinePrompt(ctx context.Context, prompt string, opts RefineOptions) (*RefineResult, error) {
	s.refineCalls++
	if s.blockOnCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.refineCalls <= s.failures {
		return nil, s.failWith
	}
	return &RefineResult{
		RefinedPrompt: prompt + " refined",
		Metadata:      Metadata{Model: "stub-llm", TokensUsed: 40, InputTokens: 25, OutputTokens: 15},
	}, nil
}

func (s *stubLLM) CombinePrompts(_ context.Context, what, how string) (*CombineResult, error) {
	s.combineCalls++
	return &CombineResult{
		Combined: what + ", " + how,
		Metadata: Metadata{Model: "stub-llm", TokensUsed: 10},
	}, nil
}

type stubImage struct {
	calls    int
	failures int
	failWith error
	gpuBound bool
}

func (s *stubImage) GPUBound() bool { return s.gpuBound }

func (s *stubImage) GenerateImage(_ context.Context, _ string, opts ImageOptions) (*ImageResult, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, s.failWith
	}
	filename := imageFilename(opts)
	return &ImageResult{
		URL:       ImageURL(opts.SessionID, filename),
		LocalPath: "/tmp/" + filename,
		Metadata:  ImageMetadata{Model: "stub-flux", Size: "1024x1024"},
	}, nil
}

type stubVision struct {
	calls int
}

func (s *stubVision) GPUBound() bool { return true }

func (s *stubVision) AnalyzeImage(_ context.Context, _, _ string, _ AnalyzeOptions) (*Analysis, error) {
	s.calls++
	return &Analysis{
		Analysis:       "balanced",
		AlignmentScore: 75,
		AestheticScore: 6.5,
		Metadata:       Metadata{Model: "stub-vision", TokensUsed: 90},
	}, nil
}

type stubCritic struct {
	calls int
}

func (s *stubCritic) GPUBound() bool { return true }

func (s *stubCritic) Critique(_ context.Context, _ *models.Candidate, _ *models.Ranking) (*Critique, error) {
	s.calls++
	return &Critique{
		SuggestedWhat: "add motion",
		Rationale:     "static",
		Metadata:      Metadata{Model: "stub-vlm", TokensUsed: 60},
	}, nil
}

type stubRanker struct {
	calls int
}

func (s *stubRanker) GPUBound() bool { return true }

func (s *stubRanker) Rank(_ context.Context, candidates []*models.Candidate) ([]models.RankEntry, error) {
	s.calls++
	entries := make([]models.RankEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = models.RankEntry{CandidateID: c.CandidateID, Rank: i + 1}
	}
	return entries, nil
}
