// Package beam implements the beam-search orchestrator: the state machine
// that turns one submitted prompt into iterations of candidate prompts,
// rendered images, vision scores, and ranked survivors, ending with a
// winner and its lineage.
//
// One Run call owns one job. Candidate work inside an iteration fans out
// in parallel; every phase that touches the accelerator runs under the
// GPU coordinator, so GPU work serializes globally while hosted providers
// call straight through.
package beam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/provider"
	"github.com/easel-ai/easel/pkg/session"
)

// ErrCancelled is returned by Run when the job's context was cancelled.
// The session is already finalized as cancelled when Run returns it.
var ErrCancelled = errors.New("beam search cancelled")

// Phase labels carried on step progress messages, in the order a client
// sees them within one iteration.
const (
	PhaseSeed    = "seed"
	PhaseRefine  = "refine"
	PhaseRender  = "render"
	PhaseAnalyze = "analyze"
	PhaseRank    = "rank"
)

// Coordinator is the slice of the GPU coordinator the orchestrator runs
// its accelerator phases under. *gpu.Coordinator satisfies it.
type Coordinator interface {
	WithLLM(ctx context.Context, fn func(context.Context) error) error
	WithImageGen(ctx context.Context, fn func(context.Context) error) error
	WithVision(ctx context.Context, fn func(context.Context) error) error
	WithVLM(ctx context.Context, fn func(context.Context) error) error
}

// Orchestrator drives one beam-search job end to end. The meter and the
// metered provider set are session scoped, so one orchestrator serves one
// job.
type Orchestrator struct {
	providers *provider.Set
	gpu       Coordinator
	store     *session.Store
	bus       *progress.Bus
	meter     *meter.Meter
	pricing   *config.PricingConfig
	logger    *slog.Logger
}

// New creates an orchestrator over the given dependencies.
func New(providers *provider.Set, gpu Coordinator, store *session.Store, bus *progress.Bus, m *meter.Meter, pricing *config.PricingConfig) *Orchestrator {
	return &Orchestrator{
		providers: providers,
		gpu:       gpu,
		store:     store,
		bus:       bus,
		meter:     m,
		pricing:   pricing,
		logger:    slog.With("component", "beam"),
	}
}

// run is the per-job state threaded through the iteration pipeline.
type run struct {
	job       *models.Job
	params    models.Params
	imagesDir string
	logger    *slog.Logger

	// failures collects classified permanent candidate failures. Appended
	// between phases by the orchestrator goroutine only.
	failures []*provider.Error
}

// Run executes the job's beam search: seed, then render/score/rank cycles
// with survivor refinement, then termination. The session is finalized
// and a terminal progress message published on every path out.
//
// The job record carries the already-created session; Run never mutates
// it.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) (*models.Result, error) {
	logger := o.logger.With("job_id", job.JobID, "session_id", job.SessionID)
	r := &run{job: job, params: job.Params, logger: logger}

	o.bus.Publish(job.JobID, progress.NewStarted(r.params))
	logger.Info("Beam search started",
		"n", r.params.N,
		"m", r.params.M,
		"iterations", r.params.Iterations,
		"alpha", r.params.Alpha)

	imagesDir, err := o.store.ImagesDir(job.SessionID)
	if err != nil {
		return o.finishFailed(r, fmt.Errorf("resolve session images directory: %w", err))
	}
	r.imagesDir = imagesDir

	byKey := make(map[string]*models.Candidate)
	var survivors []*models.Candidate
	var lastFrame *models.IterationFrame

	for iteration := 0; iteration < r.params.Iterations; iteration++ {
		if ctx.Err() != nil {
			return o.finishCancelled(r)
		}

		frame, err := o.runIteration(ctx, r, iteration, survivors)
		if err != nil {
			if ctx.Err() != nil {
				return o.finishCancelled(r)
			}
			return o.finishFailed(r, err)
		}

		for _, c := range frame.Candidates {
			byKey[c.Key()] = c
		}
		survivors = survivorsOf(frame)
		lastFrame = frame
	}

	winner := survivors[0]
	finalists := finalistsOf(lastFrame)
	comparison := o.compareFinalists(ctx, r, finalists)
	if ctx.Err() != nil {
		return o.finishCancelled(r)
	}
	lineage := lineageOf(winner, byKey)

	best := bestCandidateOf(winner)
	o.bus.Publish(job.JobID, progress.NewComplete(best))

	result := &models.Result{
		BestCandidate: best,
		Finalists:     lo.Map(finalists, func(c *models.Candidate, _ int) string { return c.Key() }),
		Lineage:       lineage,
		Comparison:    comparison,
	}
	if err := o.store.Finalize(job.SessionID, session.FinalizeResult{
		Status:        models.JobStatusCompleted,
		Winner:        &best,
		Finalists:     result.Finalists,
		Lineage:       lineage,
		Comparison:    comparison,
		Meter:         o.meter,
		EstimatedCost: o.estimatedCost(),
	}); err != nil {
		logger.Error("Failed to finalize session", "error", err)
		return nil, fmt.Errorf("beam search completed but session finalize failed: %w", err)
	}

	logger.Info("Beam search completed",
		"winner", winner.Key(),
		"total_score", winner.TotalScore,
		"estimated_cost", o.estimatedCost())
	return result, nil
}

// runIteration executes one full round: derive prompts, render, analyze,
// emit candidates, rank, select survivors, persist the frame.
func (o *Orchestrator) runIteration(ctx context.Context, r *run, iteration int, parents []*models.Candidate) (*models.IterationFrame, error) {
	jobID := r.job.JobID

	var cands []*models.Candidate
	var err error
	if iteration == 0 {
		o.bus.Publish(jobID, progress.NewStep(PhaseSeed))
		cands, err = o.seedCandidates(ctx, r)
	} else {
		o.bus.Publish(jobID, progress.NewStep(PhaseRefine))
		var critiques []*provider.Critique
		critiques, err = o.critiqueParents(ctx, r, parents)
		if err == nil {
			cands, err = o.refineCandidates(ctx, r, iteration, parents, critiques)
		}
	}
	if err != nil {
		return nil, err
	}

	o.bus.Publish(jobID, progress.NewStep(PhaseRender))
	if err := o.renderAll(ctx, r, cands); err != nil {
		return nil, err
	}

	o.bus.Publish(jobID, progress.NewStep(PhaseAnalyze))
	if err := o.analyzeAll(ctx, r, cands); err != nil {
		return nil, err
	}

	for _, c := range cands {
		o.bus.Publish(jobID, progress.NewCandidate(c))
	}

	scored := lo.Filter(cands, func(c *models.Candidate, _ int) bool { return !c.Failed() })
	if len(scored) < r.params.M {
		return nil, r.tooFewScored(iteration, len(scored))
	}

	o.bus.Publish(jobID, progress.NewStep(PhaseRank))
	if err := o.rankScored(ctx, r, iteration, scored); err != nil {
		return nil, err
	}

	survivors := selectTop(scored, r.params.M)
	frame := &models.IterationFrame{
		Iteration:     iteration,
		Candidates:    cands,
		TopCandidates: lo.Map(survivors, func(c *models.Candidate, _ int) string { return c.Key() }),
	}
	if err := o.store.AppendIteration(r.job.SessionID, frame); err != nil {
		return nil, fmt.Errorf("persist iteration %d: %w", iteration, err)
	}

	o.bus.Publish(jobID, progress.NewIteration(
		iteration,
		r.params.Iterations,
		len(cands),
		survivors[0].TotalScore,
		o.meter.Stats(),
		o.estimatedCost()))
	r.logger.Info("Iteration completed",
		"iteration", iteration,
		"scored", len(scored),
		"best", frame.TopCandidates[0],
		"best_score", survivors[0].TotalScore)
	return frame, nil
}

// seedCandidates produces the iteration-0 frame: n independent expansions
// of the user prompt, each candidate refining WHAT and HOW and combining
// them into its generation prompt.
func (o *Orchestrator) seedCandidates(ctx context.Context, r *run) ([]*models.Candidate, error) {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Expanding the prompt into %d candidates", r.params.N)))

	cands := make([]*models.Candidate, r.params.N)
	for i := range cands {
		cands[i] = &models.Candidate{Iteration: 0, CandidateID: i, Timestamp: time.Now()}
	}

	errs := fanOut(len(cands), func(i int) error {
		return o.llmPhase(ctx, func(ctx context.Context) error {
			return o.expandSeed(ctx, r, cands[i])
		})
	})
	return cands, r.collectCandidateFailures(ctx, provider.NameLLM, cands, errs)
}

// expandSeed derives one seed candidate's prompt pair.
func (o *Orchestrator) expandSeed(ctx context.Context, r *run, c *models.Candidate) error {
	what, err := o.providers.LLM.RefinePrompt(ctx, r.params.Prompt, provider.RefineOptions{
		Dimension:   models.DimensionWhat,
		Temperature: r.params.Temperature,
		Operation:   opSeed,
		Iteration:   c.Iteration,
		CandidateID: c.CandidateID,
	})
	if err != nil {
		return err
	}
	how, err := o.providers.LLM.RefinePrompt(ctx, r.params.Prompt, provider.RefineOptions{
		Dimension:   models.DimensionHow,
		Temperature: r.params.Temperature,
		Operation:   opSeed,
		Iteration:   c.Iteration,
		CandidateID: c.CandidateID,
	})
	if err != nil {
		return err
	}
	combined, err := o.providers.LLM.CombinePrompts(ctx, what.RefinedPrompt, how.RefinedPrompt)
	if err != nil {
		return err
	}

	c.WhatPrompt = what.RefinedPrompt
	c.HowPrompt = how.RefinedPrompt
	c.Combined = combined.Combined
	return nil
}

// critiqueParents gathers one critique per survivor before its children
// are derived. A parent whose critique fails permanently still produces
// children; they refine without the critique's guidance.
func (o *Orchestrator) critiqueParents(ctx context.Context, r *run, parents []*models.Candidate) ([]*provider.Critique, error) {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Critiquing %d survivors", len(parents))))

	critiques := make([]*provider.Critique, len(parents))
	errs := fanOut(len(parents), func(i int) error {
		return o.criticPhase(ctx, func(ctx context.Context) error {
			crit, err := o.providers.Critic.Critique(ctx, parents[i], parents[i].Ranking)
			if err != nil {
				return err
			}
			critiques[i] = crit
			return nil
		})
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		perr := provider.Classify(provider.NameVLM, err)
		r.logger.Warn("Critique failed, children will refine unguided",
			"parent", parents[i].Key(),
			"kind", perr.Kind,
			"error", err)
	}
	return critiques, nil
}

// refineCandidates derives the next frame: each survivor yields n/m
// children, child dimensions alternating by index within the parent.
func (o *Orchestrator) refineCandidates(ctx context.Context, r *run, iteration int, parents []*models.Candidate, critiques []*provider.Critique) ([]*models.Candidate, error) {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Deriving %d children from %d survivors", r.params.N, len(parents))))

	perParent := r.params.ChildrenPerSurvivor()
	cands := make([]*models.Candidate, r.params.N)
	for i := range cands {
		parentKey := parents[i/perParent].Key()
		cands[i] = &models.Candidate{
			Iteration:   iteration,
			CandidateID: i,
			ParentID:    &parentKey,
			Timestamp:   time.Now(),
		}
	}

	errs := fanOut(len(cands), func(i int) error {
		return o.llmPhase(ctx, func(ctx context.Context) error {
			return o.refineChild(ctx, r, cands[i], parents[i/perParent], critiques[i/perParent], i%perParent)
		})
	})
	return cands, r.collectCandidateFailures(ctx, provider.NameLLM, cands, errs)
}

// refineChild derives one child from its parent: a single refinement call
// on the child's dimension seeded with the critique's suggestion, the
// other dimension inherited, then combine.
func (o *Orchestrator) refineChild(ctx context.Context, r *run, c *models.Candidate, parent *models.Candidate, critique *provider.Critique, childIndex int) error {
	dim := models.ForChildIndex(childIndex)

	parentPrompt := parent.WhatPrompt
	if dim == models.DimensionHow {
		parentPrompt = parent.HowPrompt
	}

	refined, err := o.providers.LLM.RefinePrompt(ctx, r.params.Prompt, provider.RefineOptions{
		Dimension:    dim,
		Temperature:  r.params.Temperature,
		Operation:    opRefine,
		Iteration:    c.Iteration,
		CandidateID:  c.CandidateID,
		ParentPrompt: parentPrompt,
		Guidance:     refinementGuidance(dim, critique, parent.Ranking),
	})
	if err != nil {
		return err
	}

	what, how := parent.WhatPrompt, parent.HowPrompt
	if dim == models.DimensionWhat {
		what = refined.RefinedPrompt
	} else {
		how = refined.RefinedPrompt
	}

	combined, err := o.providers.LLM.CombinePrompts(ctx, what, how)
	if err != nil {
		return err
	}

	c.WhatPrompt = what
	c.HowPrompt = how
	c.Combined = combined.Combined
	return nil
}

// renderAll generates one image per live candidate into the session's
// image directory.
func (o *Orchestrator) renderAll(ctx context.Context, r *run, cands []*models.Candidate) error {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Rendering %d images", countLive(cands))))

	errs := fanOut(len(cands), func(i int) error {
		c := cands[i]
		if c.Failed() {
			return nil
		}
		return o.imagePhase(ctx, func(ctx context.Context) error {
			res, err := o.providers.Image.GenerateImage(ctx, c.Combined, provider.ImageOptions{
				Steps:       r.params.Steps,
				Guidance:    float64(r.params.Guidance),
				Seed:        r.params.Seed,
				Iteration:   c.Iteration,
				CandidateID: c.CandidateID,
				SessionID:   r.job.SessionID,
				OutputDir:   r.imagesDir,
			})
			if err != nil {
				return err
			}
			c.Image = &models.CandidateImage{URL: res.URL, LocalPath: res.LocalPath}
			return nil
		})
	})
	return r.collectCandidateFailures(ctx, provider.NameImage, cands, errs)
}

// analyzeAll scores one live candidate's image at a time against the user
// prompt and folds the alignment and aesthetic scores into the total.
func (o *Orchestrator) analyzeAll(ctx context.Context, r *run, cands []*models.Candidate) error {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Scoring %d candidates", countLive(cands))))

	errs := fanOut(len(cands), func(i int) error {
		c := cands[i]
		if c.Failed() {
			return nil
		}
		return o.visionPhase(ctx, func(ctx context.Context) error {
			res, err := o.providers.Vision.AnalyzeImage(ctx, c.Image.LocalPath, r.params.Prompt, provider.AnalyzeOptions{
				FocusAreas:  defaultFocusAreas,
				Iteration:   c.Iteration,
				CandidateID: c.CandidateID,
			})
			if err != nil {
				return err
			}
			c.AlignmentScore = res.AlignmentScore
			c.AestheticScore = res.AestheticScore
			c.TotalScore = models.ComputeTotalScore(r.params.Alpha, res.AlignmentScore, res.AestheticScore)
			return nil
		})
	})
	return r.collectCandidateFailures(ctx, provider.NameVision, cands, errs)
}

// rankScored asks the ranker for the frame's verdicts, attaches them to
// the candidates, and emits them in rank order. A permanent rank failure
// fails the job: rankings steer the next iteration's refinements.
func (o *Orchestrator) rankScored(ctx context.Context, r *run, iteration int, scored []*models.Candidate) error {
	o.bus.Publish(r.job.JobID, progress.NewOperation(
		fmt.Sprintf("Ranking %d candidates", len(scored))))

	var entries []models.RankEntry
	err := o.rankerPhase(ctx, func(ctx context.Context) error {
		var rerr error
		entries, rerr = o.providers.Ranker.Rank(ctx, scored)
		return rerr
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rank iteration %d: %w", iteration, err)
	}

	byID := make(map[int]*models.Candidate, len(scored))
	for _, c := range scored {
		byID[c.CandidateID] = c
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	for _, entry := range entries {
		if c, ok := byID[entry.CandidateID]; ok {
			c.Ranking = &models.Ranking{
				Rank:       entry.Rank,
				Reason:     entry.Reason,
				Strengths:  entry.Strengths,
				Weaknesses: entry.Weaknesses,
			}
		}
		o.bus.Publish(r.job.JobID, progress.NewRanked(iteration, entry))
	}
	return nil
}

// compareFinalists asks the ranker to contrast the two finalists. A
// failure here leaves the comparison empty; the run still completes.
func (o *Orchestrator) compareFinalists(ctx context.Context, r *run, finalists []*models.Candidate) string {
	if len(finalists) < 2 {
		return ""
	}
	o.bus.Publish(r.job.JobID, progress.NewOperation("Comparing finalists"))

	var entries []models.RankEntry
	err := o.rankerPhase(ctx, func(ctx context.Context) error {
		var rerr error
		entries, rerr = o.providers.Ranker.Rank(ctx, finalists)
		return rerr
	})
	if err != nil {
		r.logger.Warn("Finalist comparison failed", "error", err)
		return ""
	}

	for _, entry := range entries {
		if entry.Rank == 1 {
			return comparisonText(finalists[0], finalists[1], entry.Reason)
		}
	}
	return ""
}

// finishCancelled publishes the cancelled terminal message and finalizes
// the session, keeping the token snapshot for whatever ran.
func (o *Orchestrator) finishCancelled(r *run) (*models.Result, error) {
	o.bus.Publish(r.job.JobID, progress.NewCancelled())
	o.finalizeTerminal(r, session.FinalizeResult{
		Status:        models.JobStatusCancelled,
		Meter:         o.meter,
		EstimatedCost: o.estimatedCost(),
	})
	r.logger.Info("Beam search cancelled")
	return nil, ErrCancelled
}

// finishFailed publishes the error terminal message with the failure's
// user-facing summary and finalizes the session as failed.
func (o *Orchestrator) finishFailed(r *run, err error) (*models.Result, error) {
	msg, details := userError(err)
	o.bus.Publish(r.job.JobID, progress.NewError(msg, details))
	o.finalizeTerminal(r, session.FinalizeResult{
		Status:        models.JobStatusFailed,
		Error:         msg,
		Meter:         o.meter,
		EstimatedCost: o.estimatedCost(),
	})
	r.logger.Error("Beam search failed", "error", err)
	return nil, err
}

func (o *Orchestrator) finalizeTerminal(r *run, result session.FinalizeResult) {
	if err := o.store.Finalize(r.job.SessionID, result); err != nil {
		r.logger.Error("Failed to finalize session",
			"status", result.Status,
			"error", err)
	}
}

func (o *Orchestrator) estimatedCost() float64 {
	return o.meter.EstimatedCost(o.pricing).Total
}

// Phase helpers. A provider that is not GPU bound (hosted endpoints)
// bypasses the coordinator entirely.

func (o *Orchestrator) llmPhase(ctx context.Context, fn func(context.Context) error) error {
	if !o.providers.LLM.GPUBound() {
		return fn(ctx)
	}
	return o.gpu.WithLLM(ctx, fn)
}

func (o *Orchestrator) imagePhase(ctx context.Context, fn func(context.Context) error) error {
	if !o.providers.Image.GPUBound() {
		return fn(ctx)
	}
	return o.gpu.WithImageGen(ctx, fn)
}

func (o *Orchestrator) visionPhase(ctx context.Context, fn func(context.Context) error) error {
	if !o.providers.Vision.GPUBound() {
		return fn(ctx)
	}
	return o.gpu.WithVision(ctx, fn)
}

func (o *Orchestrator) criticPhase(ctx context.Context, fn func(context.Context) error) error {
	if !o.providers.Critic.GPUBound() {
		return fn(ctx)
	}
	return o.gpu.WithVLM(ctx, fn)
}

func (o *Orchestrator) rankerPhase(ctx context.Context, fn func(context.Context) error) error {
	if !o.providers.Ranker.GPUBound() {
		return fn(ctx)
	}
	return o.gpu.WithVLM(ctx, fn)
}

// collectCandidateFailures records permanent per-candidate failures on
// the candidates and surfaces cancellation. Cancellation of the job
// context always wins over individual candidate errors.
func (r *run) collectCandidateFailures(ctx context.Context, providerName string, cands []*models.Candidate, errs []error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		perr := provider.Classify(providerName, err)
		cands[i].FailureReason = perr.UserFacing().Message
		r.failures = append(r.failures, perr)
		r.logger.Warn("Candidate failed",
			"candidate", cands[i].Key(),
			"kind", perr.Kind,
			"error", err)
	}
	return nil
}

// tooFewScored builds the job-level error for an iteration whose scored
// candidate count fell below m. The first recorded failure carries the
// kind surfaced to the user.
func (r *run) tooFewScored(iteration, scored int) error {
	if len(r.failures) == 0 {
		return fmt.Errorf("iteration %d: only %d of %d candidates scored, need at least %d",
			iteration, scored, r.params.N, r.params.M)
	}
	return fmt.Errorf("iteration %d: only %d of %d candidates scored, need at least %d: %w",
		iteration, scored, r.params.N, r.params.M, r.failures[0])
}

// userError renders err for clients: classified provider failures get
// their user-facing summary with the raw chain as details, everything
// else the raw message.
func userError(err error) (msg, details string) {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.UserFacing().Message, err.Error()
	}
	return err.Error(), ""
}

// fanOut runs fn for each index concurrently and returns the per-index
// errors.
func fanOut(n int, fn func(int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = fn(idx)
		}(i)
	}
	wg.Wait()
	return errs
}

func countLive(cands []*models.Candidate) int {
	return lo.CountBy(cands, func(c *models.Candidate) bool { return !c.Failed() })
}

// orderByScore returns the candidates highest total score first, equal
// totals broken by the lower candidate id.
func orderByScore(cands []*models.Candidate) []*models.Candidate {
	ordered := make([]*models.Candidate, len(cands))
	copy(ordered, cands)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].TotalScore != ordered[j].TotalScore {
			return ordered[i].TotalScore > ordered[j].TotalScore
		}
		return ordered[i].CandidateID < ordered[j].CandidateID
	})
	return ordered
}

// selectTop marks and returns the min(m, len) survivors, best first.
func selectTop(scored []*models.Candidate, m int) []*models.Candidate {
	survivors := orderByScore(scored)
	if len(survivors) > m {
		survivors = survivors[:m]
	}
	for _, c := range survivors {
		c.Survived = true
	}
	return survivors
}

// survivorsOf resolves a frame's top-candidate keys back to candidates,
// best first.
func survivorsOf(frame *models.IterationFrame) []*models.Candidate {
	byKey := make(map[string]*models.Candidate, len(frame.Candidates))
	for _, c := range frame.Candidates {
		byKey[c.Key()] = c
	}
	out := make([]*models.Candidate, 0, len(frame.TopCandidates))
	for _, key := range frame.TopCandidates {
		if c, ok := byKey[key]; ok {
			out = append(out, c)
		}
	}
	return out
}

// finalistsOf returns the final frame's best two scored candidates. The
// winner is always finalistsOf(frame)[0].
func finalistsOf(frame *models.IterationFrame) []*models.Candidate {
	scored := lo.Filter(frame.Candidates, func(c *models.Candidate, _ int) bool { return !c.Failed() })
	ordered := orderByScore(scored)
	if len(ordered) > 2 {
		ordered = ordered[:2]
	}
	return ordered
}

// lineageOf walks parent links from the winner back to its iteration-0
// ancestor and returns the chain oldest first.
func lineageOf(winner *models.Candidate, byKey map[string]*models.Candidate) []models.LineageEntry {
	var chain []models.LineageEntry
	for c := winner; c != nil; {
		chain = append(chain, models.LineageEntry{Iteration: c.Iteration, CandidateID: c.CandidateID})
		if c.ParentID == nil {
			break
		}
		c = byKey[*c.ParentID]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func bestCandidateOf(c *models.Candidate) models.BestCandidate {
	best := models.BestCandidate{
		CandidateKey: c.Key(),
		What:         c.WhatPrompt,
		How:          c.HowPrompt,
		Combined:     c.Combined,
		TotalScore:   c.TotalScore,
	}
	if c.Image != nil {
		best.ImageURL = c.Image.URL
	}
	return best
}
