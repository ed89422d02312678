package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/provider"
)

// pngHeader makes the scripted images look enough like PNGs for anything
// that sniffs the first bytes.
var pngHeader = []byte("\x89PNG\r\n\x1a\n")

// ScriptedProviders is the in-process stand-in for all five model
// capabilities. Image generation writes real files into the session's
// images directory so the serving endpoint can be exercised.
type ScriptedProviders struct {
	mu sync.Mutex

	// BlockImages makes every image call hang until cancellation.
	BlockImages bool

	// Gate, when non-nil, holds every image call until the channel is
	// closed. Lets a test attach its WebSocket subscription before the
	// run streams past it.
	Gate chan struct{}

	// FailImages makes every image call fail with this error.
	FailImages error

	// FailImageFor fails only the listed candidates, keyed by candidate
	// key ("i0c1").
	FailImageFor map[string]bool

	// Score overrides the default alignment score per candidate. The
	// default favors higher candidate ids so winners are deterministic.
	Score func(iteration, candidateID int) float64

	calls map[string]int
}

// NewScriptedProviders returns providers with deterministic defaults.
func NewScriptedProviders() *ScriptedProviders {
	return &ScriptedProviders{calls: make(map[string]int)}
}

// Factory adapts the scripted providers to the job manager's injection
// point.
func (p *ScriptedProviders) Factory() jobs.ProviderFactory {
	return func(_ *meter.Meter) (*provider.Set, error) {
		return &provider.Set{
			LLM:    scriptedLLM{p},
			Image:  scriptedImage{p},
			Vision: scriptedVision{p},
			Critic: scriptedCritic{p},
			Ranker: scriptedRanker{p},
		}, nil
	}
}

// Calls returns how many times the named operation ran.
func (p *ScriptedProviders) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *ScriptedProviders) record(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

type scriptedLLM struct{ p *ScriptedProviders }

func (s scriptedLLM) GPUBound() bool { return false }
func (s scriptedLLM) RefinePrompt(ctx context.Context, prompt string, opts provider.RefineOptions) (*provider.RefineResult, error) {
	s.p.record(provider.OpRefine)
	return &provider.RefineResult{
		RefinedPrompt: fmt.Sprintf("%s (%s i%dc%d)", prompt, opts.Dimension, opts.Iteration, opts.CandidateID),
		Metadata:      provider.Metadata{Model: "scripted-llm", TokensUsed: 12},
	}, nil
}
func (s scriptedLLM) CombinePrompts(ctx context.Context, what, how string) (*provider.CombineResult, error) {
	s.p.record(provider.OpCombine)
	return &provider.CombineResult{
		Combined: what + ", " + how,
		Metadata: provider.Metadata{Model: "scripted-llm", TokensUsed: 6},
	}, nil
}

type scriptedImage struct{ p *ScriptedProviders }

func (s scriptedImage) GPUBound() bool { return false }
func (s scriptedImage) GenerateImage(ctx context.Context, _ string, opts provider.ImageOptions) (*provider.ImageResult, error) {
	s.p.record(provider.OpGenerate)
	if s.p.BlockImages {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.p.Gate != nil {
		select {
		case <-s.p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.p.FailImages != nil {
		return nil, s.p.FailImages
	}
	if s.p.FailImageFor[models.CandidateKey(opts.Iteration, opts.CandidateID)] {
		return nil, fmt.Errorf("generation failed for %s", models.CandidateKey(opts.Iteration, opts.CandidateID))
	}

	name := models.CandidateKey(opts.Iteration, opts.CandidateID) + ".png"
	path := filepath.Join(opts.OutputDir, name)
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		return nil, err
	}
	return &provider.ImageResult{
		URL:       provider.ImageURL(opts.SessionID, name),
		LocalPath: path,
		Metadata:  provider.ImageMetadata{Model: "scripted-image"},
	}, nil
}

type scriptedVision struct{ p *ScriptedProviders }

func (s scriptedVision) GPUBound() bool { return false }
func (s scriptedVision) AnalyzeImage(ctx context.Context, _, _ string, opts provider.AnalyzeOptions) (*provider.Analysis, error) {
	s.p.record(provider.OpAnalyze)
	alignment := 50 + float64(opts.CandidateID*10)
	if s.p.Score != nil {
		alignment = s.p.Score(opts.Iteration, opts.CandidateID)
	}
	return &provider.Analysis{
		Analysis:       "scripted analysis",
		AlignmentScore: alignment,
		AestheticScore: 5,
		Metadata:       provider.Metadata{Model: "scripted-vision", TokensUsed: 8},
	}, nil
}

type scriptedCritic struct{ p *ScriptedProviders }

func (s scriptedCritic) GPUBound() bool { return false }
func (s scriptedCritic) Critique(ctx context.Context, _ *models.Candidate, _ *models.Ranking) (*provider.Critique, error) {
	s.p.record(provider.OpCritique)
	return &provider.Critique{
		SuggestedWhat: "add a focal subject",
		SuggestedHow:  "warmer light",
		Rationale:     "scripted critique",
		Metadata:      provider.Metadata{Model: "scripted-vlm", TokensUsed: 9},
	}, nil
}

type scriptedRanker struct{ p *ScriptedProviders }

func (s scriptedRanker) GPUBound() bool { return false }
func (s scriptedRanker) Rank(ctx context.Context, cands []*models.Candidate) ([]models.RankEntry, error) {
	s.p.record(provider.OpRank)
	entries := make([]models.RankEntry, len(cands))
	for i, c := range cands {
		entries[i] = models.RankEntry{CandidateID: c.CandidateID, Rank: i + 1, Reason: "scripted rank"}
	}
	return entries, nil
}
