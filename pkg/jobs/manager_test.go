package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/provider"
	"github.com/easel-ai/easel/pkg/session"
)

// Fast in-memory providers so manager tests run whole jobs in
// milliseconds. block makes every image call hang until cancellation.

type fakeProviders struct {
	block bool
}

func (f *fakeProviders) set() *provider.Set {
	return &provider.Set{
		LLM:    fakeLLM{},
		Image:  fakeImage{block: f.block},
		Vision: fakeVision{},
		Critic: fakeCritic{},
		Ranker: fakeRanker{},
	}
}

type fakeLLM struct{}

func (fakeLLM) GPUBound() bool { return false }
func (fakeLLM) RefinePrompt(ctx context.Context, prompt string, opts provider.RefineOptions) (*provider.RefineResult, error) {
	return &provider.RefineResult{RefinedPrompt: prompt + " refined", Metadata: provider.Metadata{Model: "fake", TokensUsed: 10}}, nil
}
func (fakeLLM) CombinePrompts(ctx context.Context, what, how string) (*provider.CombineResult, error) {
	return &provider.CombineResult{Combined: what + ", " + how, Metadata: provider.Metadata{Model: "fake", TokensUsed: 5}}, nil
}

type fakeImage struct{ block bool }

func (f fakeImage) GPUBound() bool { return false }
func (f fakeImage) GenerateImage(ctx context.Context, _ string, opts provider.ImageOptions) (*provider.ImageResult, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	name := models.CandidateKey(opts.Iteration, opts.CandidateID) + ".png"
	return &provider.ImageResult{
		URL:       provider.ImageURL(opts.SessionID, name),
		LocalPath: opts.OutputDir + "/" + name,
	}, nil
}

type fakeVision struct{}

func (fakeVision) GPUBound() bool { return false }
func (fakeVision) AnalyzeImage(ctx context.Context, _, _ string, opts provider.AnalyzeOptions) (*provider.Analysis, error) {
	// Higher candidate ids score higher so the winner is deterministic.
	return &provider.Analysis{
		AlignmentScore: 50 + float64(opts.CandidateID*10),
		AestheticScore: 5,
	}, nil
}

type fakeCritic struct{}

func (fakeCritic) GPUBound() bool { return false }
func (fakeCritic) Critique(ctx context.Context, _ *models.Candidate, _ *models.Ranking) (*provider.Critique, error) {
	return &provider.Critique{Rationale: "fake"}, nil
}

type fakeRanker struct{}

func (fakeRanker) GPUBound() bool { return false }
func (fakeRanker) Rank(ctx context.Context, cands []*models.Candidate) ([]models.RankEntry, error) {
	entries := make([]models.RankEntry, len(cands))
	for i, c := range cands {
		entries[i] = models.RankEntry{CandidateID: c.CandidateID, Rank: i + 1, Reason: "fake"}
	}
	return entries, nil
}

func newTestManager(t *testing.T, block bool) (*Manager, *session.Store) {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)
	f := &fakeProviders{block: block}
	mgr := NewManager(&config.Config{}, store, progress.NewBus(), nil, func(_ *meter.Meter) (*provider.Set, error) {
		return f.set(), nil
	})
	return mgr, store
}

func validParams() models.Params {
	return models.Params{Prompt: "a cat", N: 2, M: 1, Iterations: 1, Alpha: 0.7, Temperature: 0.8}
}

func waitForStatus(t *testing.T, mgr *Manager, jobID string, status models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := mgr.Get(jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", status)
	return job
}

func TestSubmitRunsToCompletion(t *testing.T) {
	mgr, _ := newTestManager(t, false)

	job, err := mgr.Submit(validParams())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	_, err = uuid.Parse(job.JobID)
	assert.NoError(t, err, "job id is a v4 uuid")
	assert.NotEmpty(t, job.SessionID)

	finished := waitForStatus(t, mgr, job.JobID, models.JobStatusCompleted)
	require.NotNil(t, finished.Result)
	assert.NotEmpty(t, finished.Result.BestCandidate.Combined)
	require.NotNil(t, finished.EndTime)
	assert.Equal(t, 0, mgr.ActiveCount())
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	mgr, _ := newTestManager(t, false)

	t.Run("missing prompt", func(t *testing.T) {
		_, err := mgr.Submit(models.Params{N: 2, M: 1, Iterations: 1})
		require.Error(t, err)
		assert.True(t, models.IsValidationError(err))
		assert.Contains(t, err.Error(), "prompt")
	})

	t.Run("indivisible beam", func(t *testing.T) {
		_, err := mgr.Submit(models.Params{Prompt: "x", N: 4, M: 3, Iterations: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "divisible")
	})
}

func TestCancelRunningJob(t *testing.T) {
	mgr, _ := newTestManager(t, true)

	job, err := mgr.Submit(validParams())
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(job.JobID))
	finished := waitForStatus(t, mgr, job.JobID, models.JobStatusCancelled)
	assert.Nil(t, finished.Result)
}

// TestCancelDuringCompletion hammers Cancel while jobs finish so the
// race detector can watch the terminal-status check against the
// worker's terminal write.
func TestCancelDuringCompletion(t *testing.T) {
	mgr, _ := newTestManager(t, false)

	for i := 0; i < 10; i++ {
		job, err := mgr.Submit(validParams())
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			// Either outcome is fine; once the job is terminal the
			// cancel is rejected and the loop ends.
			for {
				if err := mgr.Cancel(job.JobID); err != nil {
					assert.ErrorIs(t, err, ErrNotCancellable)
					return
				}
			}
		}()

		require.Eventually(t, func() bool {
			j, err := mgr.Get(job.JobID)
			return err == nil && j.Status.Terminal()
		}, 5*time.Second, time.Millisecond)
		<-done
	}
}

func TestCancelErrors(t *testing.T) {
	mgr, _ := newTestManager(t, false)

	t.Run("unknown job", func(t *testing.T) {
		err := mgr.Cancel("no-such-job")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("terminal job", func(t *testing.T) {
		job, err := mgr.Submit(validParams())
		require.NoError(t, err)
		waitForStatus(t, mgr, job.JobID, models.JobStatusCompleted)

		err = mgr.Cancel(job.JobID)
		assert.ErrorIs(t, err, ErrNotCancellable)
	})
}

func TestGetUnknownJob(t *testing.T) {
	mgr, _ := newTestManager(t, false)
	_, err := mgr.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFallsBackToSessionStore(t *testing.T) {
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	// A completed run left behind by an earlier runtime.
	params := validParams()
	jobID := uuid.New().String()
	handle, err := store.Create(time.Now(), jobID, params)
	require.NoError(t, err)
	winner := models.BestCandidate{CandidateKey: "i0c1", Combined: "combined", TotalScore: 80}
	require.NoError(t, store.Finalize(handle.ID, session.FinalizeResult{
		Status: models.JobStatusCompleted,
		Winner: &winner,
	}))

	f := &fakeProviders{}
	mgr := NewManager(&config.Config{}, store, progress.NewBus(), nil, func(_ *meter.Meter) (*provider.Set, error) {
		return f.set(), nil
	})

	job, err := mgr.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, handle.ID, job.SessionID)
	require.NotNil(t, job.Result)
	assert.Equal(t, "i0c1", job.Result.BestCandidate.CandidateKey)
	assert.Equal(t, params.Prompt, job.Params.Prompt)
}

func TestMetadata(t *testing.T) {
	mgr, _ := newTestManager(t, false)

	job, err := mgr.Submit(validParams())
	require.NoError(t, err)
	waitForStatus(t, mgr, job.JobID, models.JobStatusCompleted)

	doc, err := mgr.Metadata(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.SessionID, doc.SessionID)
	assert.Equal(t, "a cat", doc.UserPrompt)
	require.Len(t, doc.Iterations, 1)
	assert.NotNil(t, doc.Winner)
}

func TestShutdownDrainsActiveJobs(t *testing.T) {
	mgr, _ := newTestManager(t, true)

	job, err := mgr.Submit(validParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mgr.Shutdown(ctx))

	finished, err := mgr.Get(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, finished.Status)
}
