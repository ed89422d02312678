package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go"

	"github.com/easel-ai/easel/pkg/models"
)

// Retry policy: up to 3 attempts with exponential backoff starting at one
// second, doubling, capped at 30 seconds. Only the transient kinds
// (rate-limit, network, timeout) are retried.
const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second

	// Soft per-attempt deadlines. Image generation is slow; everything
	// else answers within a minute or is stuck.
	softTimeoutImage = 120 * time.Second
	softTimeoutLLM   = 60 * time.Second
)

type retryOptions struct {
	attempts  uint
	baseDelay time.Duration
	maxDelay  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// RetryOption adjusts the retry policy, mainly for tests.
type RetryOption func(*retryOptions)

// WithAttempts overrides the total attempt count.
func WithAttempts(n uint) RetryOption {
	return func(o *retryOptions) { o.attempts = n }
}

// WithBaseDelay overrides the first backoff delay.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.baseDelay = d }
}

// WithSoftTimeout overrides the per-attempt deadline.
func WithSoftTimeout(d time.Duration) RetryOption {
	return func(o *retryOptions) { o.timeout = d }
}

func newRetryOptions(timeout time.Duration, opts []RetryOption) retryOptions {
	o := retryOptions{
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		timeout:   timeout,
		logger:    slog.With("component", "provider_retry"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// do runs fn under the retry policy. Each attempt gets its own soft
// deadline; errors are classified before the retry predicate sees them, so
// only transient kinds re-attempt. The returned error is always a *Error.
func (o retryOptions) do(ctx context.Context, name, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			if err := fn(attemptCtx); err != nil {
				return Classify(name, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.baseDelay),
		retry.MaxDelay(o.maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var perr *Error
			return errors.As(err, &perr) && perr.Retryable()
		}),
		retry.OnRetry(func(n uint, err error) {
			o.logger.Warn("Provider call failed, retrying",
				"provider", name,
				"operation", op,
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		// Cancellation during a backoff wait surfaces as a raw context
		// error; classify it like everything else.
		return Classify(name, err)
	}
	return nil
}

// LLMWithRetry wraps inner with the retry policy and a 60s soft deadline
// per attempt.
func LLMWithRetry(inner LLM, opts ...RetryOption) LLM {
	return &retryLLM{inner: inner, opts: newRetryOptions(softTimeoutLLM, opts)}
}

type retryLLM struct {
	inner LLM
	opts  retryOptions
}

func (p *retryLLM) GPUBound() bool { return p.inner.GPUBound() }

func (p *retryLLM) RefinePrompt(ctx context.Context, prompt string, o RefineOptions) (*RefineResult, error) {
	var res *RefineResult
	err := p.opts.do(ctx, NameLLM, OpRefine, func(ctx context.Context) error {
		var err error
		res, err = p.inner.RefinePrompt(ctx, prompt, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *retryLLM) CombinePrompts(ctx context.Context, what, how string) (*CombineResult, error) {
	var res *CombineResult
	err := p.opts.do(ctx, NameLLM, OpCombine, func(ctx context.Context) error {
		var err error
		res, err = p.inner.CombinePrompts(ctx, what, how)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ImageWithRetry wraps inner with the retry policy and a 120s soft
// deadline per attempt.
func ImageWithRetry(inner Image, opts ...RetryOption) Image {
	return &retryImage{inner: inner, opts: newRetryOptions(softTimeoutImage, opts)}
}

type retryImage struct {
	inner Image
	opts  retryOptions
}

func (p *retryImage) GPUBound() bool { return p.inner.GPUBound() }

func (p *retryImage) GenerateImage(ctx context.Context, prompt string, o ImageOptions) (*ImageResult, error) {
	var res *ImageResult
	err := p.opts.do(ctx, NameImage, OpGenerate, func(ctx context.Context) error {
		var err error
		res, err = p.inner.GenerateImage(ctx, prompt, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// VisionWithRetry wraps inner with the retry policy and a 60s soft
// deadline per attempt.
func VisionWithRetry(inner Vision, opts ...RetryOption) Vision {
	return &retryVision{inner: inner, opts: newRetryOptions(softTimeoutLLM, opts)}
}

type retryVision struct {
	inner Vision
	opts  retryOptions
}

func (p *retryVision) GPUBound() bool { return p.inner.GPUBound() }

func (p *retryVision) AnalyzeImage(ctx context.Context, imageRef, prompt string, o AnalyzeOptions) (*Analysis, error) {
	var res *Analysis
	err := p.opts.do(ctx, NameVision, OpAnalyze, func(ctx context.Context) error {
		var err error
		res, err = p.inner.AnalyzeImage(ctx, imageRef, prompt, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CriticWithRetry wraps inner with the retry policy and a 60s soft
// deadline per attempt.
func CriticWithRetry(inner Critic, opts ...RetryOption) Critic {
	return &retryCritic{inner: inner, opts: newRetryOptions(softTimeoutLLM, opts)}
}

type retryCritic struct {
	inner Critic
	opts  retryOptions
}

func (p *retryCritic) GPUBound() bool { return p.inner.GPUBound() }

func (p *retryCritic) Critique(ctx context.Context, candidate *models.Candidate, prev *models.Ranking) (*Critique, error) {
	var res *Critique
	err := p.opts.do(ctx, NameVLM, OpCritique, func(ctx context.Context) error {
		var err error
		res, err = p.inner.Critique(ctx, candidate, prev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RankerWithRetry wraps inner with the retry policy and a 60s soft
// deadline per attempt.
func RankerWithRetry(inner Ranker, opts ...RetryOption) Ranker {
	return &retryRanker{inner: inner, opts: newRetryOptions(softTimeoutLLM, opts)}
}

type retryRanker struct {
	inner Ranker
	opts  retryOptions
}

func (p *retryRanker) GPUBound() bool { return p.inner.GPUBound() }

func (p *retryRanker) Rank(ctx context.Context, candidates []*models.Candidate) ([]models.RankEntry, error) {
	var res []models.RankEntry
	err := p.opts.do(ctx, NameVLM, OpRank, func(ctx context.Context) error {
		var err error
		res, err = p.inner.Rank(ctx, candidates)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
