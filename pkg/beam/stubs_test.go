package beam

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/provider"
)

// Scripted in-memory providers. Vision scores come from a per-candidate
// score table so survivor selection is deterministic in every test.

type scriptedLLM struct {
	mu      sync.Mutex
	refines int
}

func (s *scriptedLLM) GPUBound() bool { return true }

func (s *scriptedLLM) RefinePrompt(ctx context.Context, prompt string, opts provider.RefineOptions) (*provider.RefineResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.Lock()
	s.refines++
	s.mu.Unlock()
	return &provider.RefineResult{
		RefinedPrompt: fmt.Sprintf("%s [%s i%dc%d]", prompt, opts.Dimension, opts.Iteration, opts.CandidateID),
		Metadata:      provider.Metadata{Model: "test-llm", TokensUsed: 40},
	}, nil
}

func (s *scriptedLLM) CombinePrompts(ctx context.Context, what, how string) (*provider.CombineResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &provider.CombineResult{
		Combined: what + ", " + how,
		Metadata: provider.Metadata{Model: "test-llm", TokensUsed: 10},
	}, nil
}

// scriptedImage fails candidates listed in failFor with failWith; other
// candidates succeed without touching the filesystem.
type scriptedImage struct {
	mu       sync.Mutex
	calls    int
	failFor  map[string]bool
	failWith error
	block    bool
}

func (s *scriptedImage) GPUBound() bool { return true }

func (s *scriptedImage) GenerateImage(ctx context.Context, _ string, opts provider.ImageOptions) (*provider.ImageResult, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	key := models.CandidateKey(opts.Iteration, opts.CandidateID)
	if s.failFor[key] {
		return nil, s.failWith
	}
	filename := key + ".png"
	return &provider.ImageResult{
		URL:       provider.ImageURL(opts.SessionID, filename),
		LocalPath: opts.OutputDir + "/" + filename,
		Metadata:  provider.ImageMetadata{Model: "test-flux", Size: "1024x1024"},
	}, nil
}

// scriptedVision scores each candidate from the table; unlisted
// candidates get a flat 50 / 5.0.
type scriptedVision struct {
	scores map[string][2]float64 // key → {alignment, aesthetic}
	block  bool
}

func (s *scriptedVision) GPUBound() bool { return true }

func (s *scriptedVision) AnalyzeImage(ctx context.Context, _, _ string, opts provider.AnalyzeOptions) (*provider.Analysis, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	key := models.CandidateKey(opts.Iteration, opts.CandidateID)
	align, aesthetic := 50.0, 5.0
	if sc, ok := s.scores[key]; ok {
		align, aesthetic = sc[0], sc[1]
	}
	return &provider.Analysis{
		Analysis:       "scripted",
		AlignmentScore: align,
		AestheticScore: aesthetic,
		Metadata:       provider.Metadata{Model: "test-vision", TokensUsed: 90},
	}, nil
}

type scriptedCritic struct{}

func (s *scriptedCritic) GPUBound() bool { return true }

func (s *scriptedCritic) Critique(ctx context.Context, c *models.Candidate, _ *models.Ranking) (*provider.Critique, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &provider.Critique{
		SuggestedWhat: "more detail on " + c.Key(),
		SuggestedHow:  "softer light",
		Rationale:     "scripted rationale",
		Metadata:      provider.Metadata{Model: "test-vlm", TokensUsed: 60},
	}, nil
}

// scriptedRanker ranks by total score descending, ties to lower id.
type scriptedRanker struct{}

func (s *scriptedRanker) GPUBound() bool { return true }

func (s *scriptedRanker) Rank(ctx context.Context, cands []*models.Candidate) ([]models.RankEntry, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	ordered := make([]*models.Candidate, len(cands))
	copy(ordered, cands)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].TotalScore != ordered[j].TotalScore {
			return ordered[i].TotalScore > ordered[j].TotalScore
		}
		return ordered[i].CandidateID < ordered[j].CandidateID
	})
	entries := make([]models.RankEntry, len(ordered))
	for i, c := range ordered {
		entries[i] = models.RankEntry{
			CandidateID: c.CandidateID,
			Rank:        i + 1,
			Reason:      fmt.Sprintf("rank %d by total score", i+1),
			Strengths:   []string{"scripted strength"},
			Weaknesses:  []string{"scripted weakness"},
		}
	}
	return entries, nil
}

// passthroughGPU satisfies Coordinator without any locking; gpu package
// tests cover serialization. It records closure entry counts so tests
// can assert phases actually ran through it.
type passthroughGPU struct {
	mu    sync.Mutex
	calls map[string]int
}

func newPassthroughGPU() *passthroughGPU {
	return &passthroughGPU{calls: make(map[string]int)}
}

func (g *passthroughGPU) run(family string, ctx context.Context, fn func(context.Context) error) error {
	g.mu.Lock()
	g.calls[family]++
	g.mu.Unlock()
	return fn(ctx)
}

func (g *passthroughGPU) WithLLM(ctx context.Context, fn func(context.Context) error) error {
	return g.run("llm", ctx, fn)
}

func (g *passthroughGPU) WithImageGen(ctx context.Context, fn func(context.Context) error) error {
	return g.run("imageGen", ctx, fn)
}

func (g *passthroughGPU) WithVision(ctx context.Context, fn func(context.Context) error) error {
	return g.run("vision", ctx, fn)
}

func (g *passthroughGPU) WithVLM(ctx context.Context, fn func(context.Context) error) error {
	return g.run("vlm", ctx, fn)
}
