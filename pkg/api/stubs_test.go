package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/jobs"
	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/provider"
	"github.com/easel-ai/easel/pkg/session"
	"github.com/easel-ai/easel/pkg/supervisor"
)

// Fast in-memory providers so handler tests can run whole jobs without
// any model service.

type stubLLM struct{}

func (stubLLM) GPUBound() bool { return false }
func (stubLLM) RefinePrompt(ctx context.Context, prompt string, opts provider.RefineOptions) (*provider.RefineResult, error) {
	return &provider.RefineResult{RefinedPrompt: prompt + " refined", Metadata: provider.Metadata{Model: "stub", TokensUsed: 10}}, nil
}
func (stubLLM) CombinePrompts(ctx context.Context, what, how string) (*provider.CombineResult, error) {
	return &provider.CombineResult{Combined: what + ", " + how, Metadata: provider.Metadata{Model: "stub", TokensUsed: 5}}, nil
}

type stubImage struct{ block bool }

func (s stubImage) GPUBound() bool { return false }
func (s stubImage) GenerateImage(ctx context.Context, _ string, opts provider.ImageOptions) (*provider.ImageResult, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	name := models.CandidateKey(opts.Iteration, opts.CandidateID) + ".png"
	return &provider.ImageResult{
		URL:       provider.ImageURL(opts.SessionID, name),
		LocalPath: opts.OutputDir + "/" + name,
	}, nil
}

type stubVision struct{}

func (stubVision) GPUBound() bool { return false }
func (stubVision) AnalyzeImage(ctx context.Context, _, _ string, opts provider.AnalyzeOptions) (*provider.Analysis, error) {
	return &provider.Analysis{
		AlignmentScore: 50 + float64(opts.CandidateID*10),
		AestheticScore: 5,
	}, nil
}

type stubCritic struct{}

func (stubCritic) GPUBound() bool { return false }
func (stubCritic) Critique(ctx context.Context, _ *models.Candidate, _ *models.Ranking) (*provider.Critique, error) {
	return &provider.Critique{Rationale: "stub"}, nil
}

type stubRanker struct{}

func (stubRanker) GPUBound() bool { return false }
func (stubRanker) Rank(ctx context.Context, cands []*models.Candidate) ([]models.RankEntry, error) {
	entries := make([]models.RankEntry, len(cands))
	for i, c := range cands {
		entries[i] = models.RankEntry{CandidateID: c.CandidateID, Rank: i + 1, Reason: "stub"}
	}
	return entries, nil
}

func stubProviders(block bool) jobs.ProviderFactory {
	return func(_ *meter.Meter) (*provider.Set, error) {
		return &provider.Set{
			LLM:    stubLLM{},
			Image:  stubImage{block: block},
			Vision: stubVision{},
			Critic: stubCritic{},
			Ranker: stubRanker{},
		}, nil
	}
}

// fixture bundles a fully wired server over temp directories and stub
// providers. No service processes and no listeners are involved.
type fixture struct {
	server  *Server
	manager *jobs.Manager
	store   *session.Store
	bus     *progress.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	services := make(map[string]*config.ServiceConfig)
	for i, name := range config.ServiceNames() {
		// Present but unconfigured: no launch command.
		services[name] = &config.ServiceConfig{Name: name, Port: 8100 + i}
	}
	cfg := &config.Config{
		Services: services,
		Defaults: &config.BeamDefaults{N: 2, M: 1, Iterations: 1, Alpha: 0.7, Temperature: 0.8},
	}

	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)

	bus := progress.NewBus()
	manager := jobs.NewManager(cfg, store, bus, nil, stubProviders(false))
	sup := supervisor.New(cfg, t.TempDir())

	return &fixture{
		server:  NewServer(cfg, manager, store, sup, bus),
		manager: manager,
		store:   store,
		bus:     bus,
	}
}

// jobsManagerWithBlockingImages swaps in providers whose image calls
// hang until cancellation so jobs stay cancellable.
func jobsManagerWithBlockingImages(t *testing.T, f *fixture) *jobs.Manager {
	t.Helper()
	return jobs.NewManager(f.server.cfg, f.store, f.bus, nil, stubProviders(true))
}

func (f *fixture) waitForStatus(t *testing.T, jobID string, status models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := f.manager.Get(jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == status
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", status)
	return job
}
