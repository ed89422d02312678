// Package provider defines the five capability interfaces the beam-search
// orchestrator runs on (prompt refinement, image generation, vision
// analysis, critique, ranking) and their production implementations: the
// four local model daemons the supervisor manages, plus the hosted Modal
// endpoint for image generation.
//
// Every call is value-in value-out with a context the caller threads
// through; implementations are side-effect free except for network I/O
// and image writes to the given output directory. Decorators compose the
// cross-cutting pieces: *WithRetry applies the backoff policy, Metered*
// records usage into the session meter.
package provider

import (
	"context"

	"github.com/easel-ai/easel/pkg/models"
)

// Provider names, used as meter and pricing-table keys.
const (
	NameLLM    = "llm"
	NameImage  = "image"
	NameVision = "vision"
	NameVLM    = "vlm"
)

// Operation names, used as meter keys and in retry logs.
const (
	OpRefine   = "refine"
	OpCombine  = "combine"
	OpGenerate = "generate"
	OpAnalyze  = "analyze"
	OpCritique = "critique"
	OpRank     = "rank"
)

// Metadata reports what a token-billed call consumed. InputTokens and
// OutputTokens are set when the daemon splits them; TokensUsed is always
// the total.
type Metadata struct {
	Model        string
	TokensUsed   int
	InputTokens  int
	OutputTokens int
}

// RefineOptions parameterizes one prompt refinement.
type RefineOptions struct {
	// Dimension selects the half of the prompt being refined.
	Dimension models.Dimension

	Temperature float64

	// Operation is a free-form label for the calling phase ("seed",
	// "refine"), passed through to the daemon for prompt templating.
	Operation string

	Iteration   int
	CandidateID int

	// ParentPrompt is the surviving parent's prompt in that dimension;
	// empty when seeding iteration 0.
	ParentPrompt string

	// Guidance carries the critique text steering this refinement.
	Guidance string
}

// RefineResult is one refined prompt plus call metadata.
type RefineResult struct {
	RefinedPrompt string
	Metadata      Metadata
}

// CombineResult is a WHAT and HOW prompt merged into one generation prompt.
type CombineResult struct {
	Combined string
	Metadata Metadata
}

// LLM refines and combines prompts.
type LLM interface {
	RefinePrompt(ctx context.Context, prompt string, opts RefineOptions) (*RefineResult, error)
	CombinePrompts(ctx context.Context, what, how string) (*CombineResult, error)

	// GPUBound reports whether calls must run under the GPU coordinator.
	GPUBound() bool
}

// ImageOptions parameterizes one image generation.
type ImageOptions struct {
	// Size is "{width}x{height}"; empty lets the generator choose.
	Size     string
	Steps    int
	Guidance float64
	Seed     *int64

	// InputImage switches the generator to img2img from the given local
	// image path, denoised by DenoiseStrength.
	InputImage      string
	DenoiseStrength float64

	Iteration   int
	CandidateID int

	// SessionID and OutputDir place the written image: the PNG lands in
	// OutputDir and the returned URL is the session-scoped serving path.
	SessionID string
	OutputDir string
}

// ImageMetadata reports what the generator ran with.
type ImageMetadata struct {
	Model string
	Size  string
	Seed  *int64
}

// ImageResult references one generated image both ways: the URL the HTTP
// boundary serves and the path on local disk.
type ImageResult struct {
	URL       string
	LocalPath string
	Metadata  ImageMetadata
}

// Image renders prompts to images.
type Image interface {
	GenerateImage(ctx context.Context, prompt string, opts ImageOptions) (*ImageResult, error)
	GPUBound() bool
}

// AnalyzeOptions parameterizes one image analysis.
type AnalyzeOptions struct {
	// FocusAreas optionally narrows the analysis ("composition", "color").
	FocusAreas []string

	Iteration   int
	CandidateID int
}

// Analysis is the vision daemon's verdict on one image: free-form analysis
// text, a 0..100 prompt-alignment score, a 0..10 aesthetic score, and an
// optional caption. Both scores come from the same pass.
type Analysis struct {
	Analysis       string
	AlignmentScore float64
	AestheticScore float64
	Caption        string
	Metadata       Metadata
}

// Vision scores rendered images against the prompt that produced them.
type Vision interface {
	AnalyzeImage(ctx context.Context, imageRef, prompt string, opts AnalyzeOptions) (*Analysis, error)
	GPUBound() bool
}

// Critique is directed feedback for one candidate, used to seed the next
// iteration's refinements. SuggestedWhat and SuggestedHow may be empty
// when the critic sees no improvement on that dimension.
type Critique struct {
	SuggestedWhat string
	SuggestedHow  string
	Rationale     string
	Metadata      Metadata
}

// Critic produces per-candidate critiques.
type Critic interface {
	Critique(ctx context.Context, candidate *models.Candidate, prev *models.Ranking) (*Critique, error)
	GPUBound() bool
}

// Ranker orders a set of candidates best-first, with per-candidate reasons.
type Ranker interface {
	Rank(ctx context.Context, candidates []*models.Candidate) ([]models.RankEntry, error)
	GPUBound() bool
}
