// Package jobs implements the job manager: it accepts beam-search
// submissions, assigns ids, runs each job on its own goroutine, and
// exposes cancellation and status. There is no queueing layer; jobs run
// as they arrive, bounded in practice by the GPU coordinator.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easel-ai/easel/pkg/beam"
	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/progress"
	"github.com/easel-ai/easel/pkg/provider"
	"github.com/easel-ai/easel/pkg/session"
)

// ProviderFactory builds the per-job provider set around a session-scoped
// meter. Production uses provider.NewSet; tests inject scripted providers.
type ProviderFactory func(m *meter.Meter) (*provider.Set, error)

// record is the manager's in-memory state for one job. The embedded job
// is mutated only under the manager's mutex.
type record struct {
	job    *models.Job
	cancel context.CancelFunc
}

// Manager owns all job records for the process lifetime.
type Manager struct {
	cfg       *config.Config
	store     *session.Store
	bus       *progress.Bus
	gpu       beam.Coordinator
	providers ProviderFactory
	logger    *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*record

	wg sync.WaitGroup
}

// NewManager creates a job manager. providers may be nil, in which case
// the production set is built from the configuration per job.
func NewManager(cfg *config.Config, store *session.Store, bus *progress.Bus, gpu beam.Coordinator, providers ProviderFactory) *Manager {
	m := &Manager{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		gpu:       gpu,
		providers: providers,
		logger:    slog.With("component", "job_manager"),
		jobs:      make(map[string]*record),
	}
	if m.providers == nil {
		m.providers = func(mtr *meter.Meter) (*provider.Set, error) {
			return provider.NewSet(cfg, mtr)
		}
	}
	return m
}

// Submit validates params, creates the session, and dispatches the job
// on a fresh worker goroutine. It returns immediately with the job in
// status running; the worker drives the orchestrator.
func (m *Manager) Submit(params models.Params) (*models.Job, error) {
	params.ApplyDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	start := time.Now()

	handle, err := m.store.Create(start, jobID, params)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	job := &models.Job{
		JobID:       jobID,
		SessionID:   handle.ID,
		Params:      params,
		Status:      models.JobStatusPending,
		StartTime:   start,
		SessionPath: handle.Path,
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &record{job: job, cancel: cancel}

	m.mu.Lock()
	m.jobs[jobID] = rec
	m.transitionLocked(job, models.JobStatusRunning)
	m.mu.Unlock()

	m.logger.Info("Job submitted",
		"job_id", jobID,
		"session_id", handle.ID,
		"n", params.N,
		"m", params.M,
		"iterations", params.Iterations)

	m.wg.Add(1)
	go m.runJob(ctx, rec)

	return m.snapshot(job), nil
}

// runJob is the worker: it builds the session-scoped meter and provider
// set, runs the orchestrator, and records the terminal state.
func (m *Manager) runJob(ctx context.Context, rec *record) {
	defer m.wg.Done()
	defer rec.cancel()

	jobID := rec.job.JobID
	defer m.bus.CloseJob(jobID)

	mtr := meter.New()
	set, err := m.providers(mtr)
	if err != nil {
		m.logger.Error("Failed to build providers", "job_id", jobID, "error", err)
		m.bus.Publish(jobID, progress.NewError("failed to initialize providers", err.Error()))
		m.finish(rec, models.JobStatusFailed, nil, err)
		return
	}

	orch := beam.New(set, m.gpu, m.store, m.bus, mtr, m.cfg.Pricing)
	result, err := orch.Run(ctx, m.snapshot(rec.job))

	switch {
	case errors.Is(err, beam.ErrCancelled):
		m.finish(rec, models.JobStatusCancelled, nil, nil)
	case err != nil:
		m.finish(rec, models.JobStatusFailed, nil, err)
	default:
		m.finish(rec, models.JobStatusCompleted, result, nil)
	}
}

// finish records a job's terminal state. Transitions that would leave a
// terminal state are ignored (terminal is sticky).
func (m *Manager) finish(rec *record, status models.JobStatus, result *models.Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.transitionLocked(rec.job, status) {
		return
	}
	now := time.Now()
	rec.job.EndTime = &now
	rec.job.Result = result
	if err != nil {
		rec.job.Error = err.Error()
	}
	m.logger.Info("Job finished",
		"job_id", rec.job.JobID,
		"status", status,
		"duration", now.Sub(rec.job.StartTime))
}

// transitionLocked applies a status transition if it is legal.
func (m *Manager) transitionLocked(job *models.Job, next models.JobStatus) bool {
	if !job.Status.CanTransitionTo(next) {
		m.logger.Warn("Ignoring illegal status transition",
			"job_id", job.JobID,
			"from", job.Status,
			"to", next)
		return false
	}
	job.Status = next
	return true
}

// Cancel flips the job's cancellation and returns as soon as it is set;
// the worker observes it at its next suspension point.
func (m *Manager) Cancel(jobID string) error {
	m.mu.RLock()
	rec, ok := m.jobs[jobID]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	// finish() writes the status under the write lock, so the terminal
	// check must stay inside the read lock.
	if rec.job.Status.Terminal() {
		status := rec.job.Status
		m.mu.RUnlock()
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, jobID, status)
	}
	m.mu.RUnlock()
	rec.cancel()
	m.logger.Info("Job cancellation requested", "job_id", jobID)
	return nil
}

// Get returns the job record: from memory for jobs this runtime has
// seen, reconstructed from session metadata for completed runs left by
// an earlier runtime.
func (m *Manager) Get(jobID string) (*models.Job, error) {
	m.mu.RLock()
	rec, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if ok {
		return m.snapshot(rec.job), nil
	}

	job, err := m.fromStore(jobID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Metadata returns the job's (possibly in-progress) metadata document.
func (m *Manager) Metadata(jobID string) (*session.Metadata, error) {
	job, err := m.Get(jobID)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.Metadata(job.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, err
	}
	return doc, nil
}

// List returns the known session summaries, newest first.
func (m *Manager) List() ([]session.Summary, error) {
	return m.store.ListSessions()
}

// ActiveCount returns the number of jobs not yet in a terminal state.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := 0
	for _, rec := range m.jobs {
		if !rec.job.Status.Terminal() {
			active++
		}
	}
	return active
}

// Shutdown cancels every active job and waits for the workers to drain,
// bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, rec := range m.jobs {
		if !rec.job.Status.Terminal() {
			rec.cancel()
		}
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All jobs drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job drain interrupted: %w", ctx.Err())
	}
}

// snapshot copies a job record for handing outside the lock.
func (m *Manager) snapshot(job *models.Job) *models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	copied := *job
	return &copied
}

// fromStore reconstructs a job record from persisted session metadata.
// Sessions are scanned newest first; only terminal runs appear here
// because in-flight jobs are always in memory.
func (m *Manager) fromStore(jobID string) (*models.Job, error) {
	summaries, err := m.store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for _, summary := range summaries {
		doc, err := m.store.Metadata(summary.SessionID)
		if err != nil {
			continue
		}
		if doc.JobID != jobID {
			continue
		}
		return jobFromMetadata(doc), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
}

// jobFromMetadata rebuilds the job record a prior runtime persisted.
func jobFromMetadata(doc *session.Metadata) *models.Job {
	job := &models.Job{
		JobID:     doc.JobID,
		SessionID: doc.SessionID,
		Params: models.Params{
			Prompt:      doc.UserPrompt,
			N:           doc.Config.BeamWidth,
			M:           doc.Config.KeepTop,
			Iterations:  doc.Config.MaxIterations,
			Alpha:       doc.Config.Alpha,
			Temperature: doc.Config.Temperature,
		},
		Status:    doc.Status,
		StartTime: doc.CreatedAt,
	}
	if doc.Status.Terminal() {
		end := doc.UpdatedAt
		job.EndTime = &end
	}
	if doc.Winner != nil {
		job.Result = &models.Result{
			BestCandidate: *doc.Winner,
			Finalists:     doc.Finalists,
			Lineage:       doc.Lineage,
			Comparison:    doc.Comparison,
		}
	}
	return job
}
