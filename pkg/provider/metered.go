package provider

import (
	"context"

	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
)

// The Metered* decorators record every successful call into the session
// meter. Token-billed calls record what the daemon reported; image calls
// record one per-request unit, which the pricing table bills flat.

// MeteredLLM wraps inner so refine and combine calls are metered.
func MeteredLLM(inner LLM, m *meter.Meter) LLM {
	return &meteredLLM{inner: inner, meter: m}
}

type meteredLLM struct {
	inner LLM
	meter *meter.Meter
}

func (p *meteredLLM) GPUBound() bool { return p.inner.GPUBound() }

func (p *meteredLLM) RefinePrompt(ctx context.Context, prompt string, opts RefineOptions) (*RefineResult, error) {
	res, err := p.inner.RefinePrompt(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	iteration, candidateID := opts.Iteration, opts.CandidateID
	p.meter.Record(models.Usage{
		Provider:     NameLLM,
		Operation:    OpRefine,
		Tokens:       res.Metadata.TokensUsed,
		InputTokens:  res.Metadata.InputTokens,
		OutputTokens: res.Metadata.OutputTokens,
		Metadata: models.UsageMetadata{
			Iteration:   &iteration,
			CandidateID: &candidateID,
			Model:       res.Metadata.Model,
			Dimension:   string(opts.Dimension),
		},
	})
	return res, nil
}

func (p *meteredLLM) CombinePrompts(ctx context.Context, what, how string) (*CombineResult, error) {
	res, err := p.inner.CombinePrompts(ctx, what, how)
	if err != nil {
		return nil, err
	}
	p.meter.Record(models.Usage{
		Provider:     NameLLM,
		Operation:    OpCombine,
		Tokens:       res.Metadata.TokensUsed,
		InputTokens:  res.Metadata.InputTokens,
		OutputTokens: res.Metadata.OutputTokens,
		Metadata:     models.UsageMetadata{Model: res.Metadata.Model},
	})
	return res, nil
}

// MeteredImage wraps inner so generate calls are metered per request.
func MeteredImage(inner Image, m *meter.Meter) Image {
	return &meteredImage{inner: inner, meter: m}
}

type meteredImage struct {
	inner Image
	meter *meter.Meter
}

func (p *meteredImage) GPUBound() bool { return p.inner.GPUBound() }

func (p *meteredImage) GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImageResult, error) {
	res, err := p.inner.GenerateImage(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	iteration, candidateID := opts.Iteration, opts.CandidateID
	p.meter.Record(models.Usage{
		Provider:  NameImage,
		Operation: OpGenerate,
		Metadata: models.UsageMetadata{
			Iteration:   &iteration,
			CandidateID: &candidateID,
			Model:       res.Metadata.Model,
		},
	})
	return res, nil
}

// MeteredVision wraps inner so analyze calls are metered.
func MeteredVision(inner Vision, m *meter.Meter) Vision {
	return &meteredVision{inner: inner, meter: m}
}

type meteredVision struct {
	inner Vision
	meter *meter.Meter
}

func (p *meteredVision) GPUBound() bool { return p.inner.GPUBound() }

func (p *meteredVision) AnalyzeImage(ctx context.Context, imageRef, prompt string, opts AnalyzeOptions) (*Analysis, error) {
	res, err := p.inner.AnalyzeImage(ctx, imageRef, prompt, opts)
	if err != nil {
		return nil, err
	}
	iteration, candidateID := opts.Iteration, opts.CandidateID
	p.meter.Record(models.Usage{
		Provider:     NameVision,
		Operation:    OpAnalyze,
		Tokens:       res.Metadata.TokensUsed,
		InputTokens:  res.Metadata.InputTokens,
		OutputTokens: res.Metadata.OutputTokens,
		Metadata: models.UsageMetadata{
			Iteration:   &iteration,
			CandidateID: &candidateID,
			Model:       res.Metadata.Model,
		},
	})
	return res, nil
}

// MeteredCritic wraps inner so critique calls are metered.
func MeteredCritic(inner Critic, m *meter.Meter) Critic {
	return &meteredCritic{inner: inner, meter: m}
}

type meteredCritic struct {
	inner Critic
	meter *meter.Meter
}

func (p *meteredCritic) GPUBound() bool { return p.inner.GPUBound() }

func (p *meteredCritic) Critique(ctx context.Context, candidate *models.Candidate, prev *models.Ranking) (*Critique, error) {
	res, err := p.inner.Critique(ctx, candidate, prev)
	if err != nil {
		return nil, err
	}
	iteration, candidateID := candidate.Iteration, candidate.CandidateID
	p.meter.Record(models.Usage{
		Provider:     NameVLM,
		Operation:    OpCritique,
		Tokens:       res.Metadata.TokensUsed,
		InputTokens:  res.Metadata.InputTokens,
		OutputTokens: res.Metadata.OutputTokens,
		Metadata: models.UsageMetadata{
			Iteration:   &iteration,
			CandidateID: &candidateID,
			Model:       res.Metadata.Model,
		},
	})
	return res, nil
}

// MeteredRanker wraps inner so rank calls are metered. Rank output carries
// no token counts, so the record is a zero-token marker per call.
func MeteredRanker(inner Ranker, m *meter.Meter) Ranker {
	return &meteredRanker{inner: inner, meter: m}
}

type meteredRanker struct {
	inner Ranker
	meter *meter.Meter
}

func (p *meteredRanker) GPUBound() bool { return p.inner.GPUBound() }

func (p *meteredRanker) Rank(ctx context.Context, candidates []*models.Candidate) ([]models.RankEntry, error) {
	res, err := p.inner.Rank(ctx, candidates)
	if err != nil {
		return nil, err
	}
	usage := models.Usage{Provider: NameVLM, Operation: OpRank}
	if len(candidates) > 0 {
		iteration := candidates[0].Iteration
		usage.Metadata.Iteration = &iteration
	}
	p.meter.Record(usage)
	return res, nil
}
