// Package supervisor manages the four local model daemons (llm, flux,
// vision, vlm) as external processes. State that must survive an easel
// restart lives in pid, port, and stop-lock files under the run
// directory; everything else is derived by probing the host.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/easel-ai/easel/pkg/config"
)

const (
	healthCacheTTL     = 2 * time.Second
	healthProbeTimeout = 3 * time.Second
	healthPollInterval = 500 * time.Millisecond
)

// StartOptions carries per-start overrides. Zero values defer to the
// service configuration.
type StartOptions struct {
	// LoraPath and LoraScale override the flux LoRA adapter for this
	// launch only.
	LoraPath  string
	LoraScale float64

	// ExtraEnv is appended to the daemon environment as KEY=VALUE pairs.
	ExtraEnv []string
}

// HealthResult is the outcome of one health probe.
type HealthResult struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ServiceStatus is the externally visible record for one service.
type ServiceStatus struct {
	Name            string     `json:"name"`
	Configured      bool       `json:"configured"`
	Running         bool       `json:"running"`
	PID             int        `json:"pid,omitempty"`
	Port            int        `json:"port"`
	Healthy         bool       `json:"healthy"`
	LastHealthy     *time.Time `json:"last_healthy,omitempty"`
	StopLocked      bool       `json:"stop_locked"`
	StopLockedAt    *time.Time `json:"stop_locked_at,omitempty"`
	ShouldBeRunning bool       `json:"should_be_running"`
}

// Supervisor starts, stops, and health-checks the model daemons.
type Supervisor struct {
	cfg         *config.Config
	runDir      string
	logger      *slog.Logger
	httpClient  *http.Client
	healthCache *cache.Cache

	mu          sync.Mutex
	shouldRun   map[string]bool
	lastHealthy map[string]time.Time
	startedAt   map[string]time.Time

	// startMu serializes launch attempts per service so two concurrent
	// starts cannot spawn twin daemons.
	startMu map[string]*sync.Mutex
}

// New creates a supervisor over the configured services. An empty
// runDir means the system temp directory, which is where daemons from
// previous runtimes left their pid files.
func New(cfg *config.Config, runDir string) *Supervisor {
	if runDir == "" {
		runDir = os.TempDir()
	}
	s := &Supervisor{
		cfg:         cfg,
		runDir:      runDir,
		logger:      slog.With("component", "supervisor"),
		httpClient:  &http.Client{Timeout: healthProbeTimeout},
		healthCache: cache.New(healthCacheTTL, time.Minute),
		shouldRun:   make(map[string]bool),
		lastHealthy: make(map[string]time.Time),
		startedAt:   make(map[string]time.Time),
		startMu:     make(map[string]*sync.Mutex),
	}
	for _, name := range config.ServiceNames() {
		s.startMu[name] = &sync.Mutex{}
	}
	s.adoptRunning()
	return s
}

// RunDir returns the directory holding pid, port, and lock files.
func (s *Supervisor) RunDir() string {
	return s.runDir
}

// adoptRunning picks up daemons left behind by an earlier runtime so
// status, stop, and auto-restart treat them as ours.
func (s *Supervisor) adoptRunning() {
	for _, name := range config.ServiceNames() {
		if pid, ok := s.alivePID(name); ok {
			s.mu.Lock()
			s.shouldRun[name] = true
			s.startedAt[name] = time.Now()
			s.mu.Unlock()
			s.logger.Info("Adopted running service from previous runtime",
				"service", name, "pid", pid)
		}
	}
}

// alivePID reads the pid file and confirms the process exists. Stale
// files are removed on the spot.
func (s *Supervisor) alivePID(name string) (int, bool) {
	pid, ok := s.readPIDFile(name)
	if !ok {
		return 0, false
	}
	if !pidAlive(pid) {
		s.logger.Info("Removing stale pid file", "service", name, "pid", pid)
		s.clearRuntimeFiles(name)
		return 0, false
	}
	return pid, true
}

// IsRunning reports whether the named daemon has a live process.
func (s *Supervisor) IsRunning(name string) bool {
	_, ok := s.alivePID(name)
	return ok
}

// PID returns the live pid for a running service.
func (s *Supervisor) PID(name string) (int, bool) {
	return s.alivePID(name)
}

// Port returns the service port, preferring the port file written at
// launch over the configured value.
func (s *Supervisor) Port(name string) (int, error) {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return 0, err
	}
	if port := s.readPortFile(name); port > 0 {
		return port, nil
	}
	return svc.Port, nil
}

// Start launches the named daemon and records its pid and port. It
// refuses when the service is unconfigured, already running, when the
// port is taken by any process, or when flux encoder validation fails.
// An explicit stop lock does not block Start; it blocks Restart and the
// auto-restart monitor.
func (s *Supervisor) Start(ctx context.Context, name string, opts StartOptions) (int, int, error) {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return 0, 0, err
	}
	if !svc.Configured() {
		return 0, 0, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}

	s.startMu[name].Lock()
	defer s.startMu[name].Unlock()

	if pid, running := s.alivePID(name); running {
		return 0, 0, fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, name, pid)
	}
	if portInUse(svc.Port) {
		return 0, 0, fmt.Errorf("%w: %s port %d", ErrPortInUse, name, svc.Port)
	}
	if name == config.ServiceFlux {
		if err := ValidateFluxEncoderPaths(svc); err != nil {
			return 0, 0, err
		}
	}

	pid, err := s.spawn(svc, svc.Port, s.buildEnv(svc, opts))
	if err != nil {
		return 0, 0, err
	}
	if err := s.writeRuntimeFiles(name, pid, svc.Port); err != nil {
		_ = terminate(ctx, pid, time.Second)
		return 0, 0, err
	}

	s.mu.Lock()
	s.shouldRun[name] = true
	s.startedAt[name] = time.Now()
	s.mu.Unlock()
	s.healthCache.Delete(name)

	s.logger.Info("Service started", "service", name, "pid", pid, "port", svc.Port)
	return pid, svc.Port, nil
}

// buildEnv assembles the daemon environment: the easel process env,
// per-service entries from config, the port, credentials, and the flux
// LoRA knobs with any per-start overrides applied.
func (s *Supervisor) buildEnv(svc *config.ServiceConfig, opts StartOptions) []string {
	env := os.Environ()
	env = append(env, svc.Env...)
	env = append(env, fmt.Sprintf("PORT=%d", svc.Port))
	if s.cfg.HFToken != "" {
		env = append(env, "HF_TOKEN="+s.cfg.HFToken)
	}
	if svc.Name == config.ServiceFlux {
		lora := svc.LoraPath
		if opts.LoraPath != "" {
			lora = opts.LoraPath
		}
		scale := svc.LoraScale
		if opts.LoraScale != 0 {
			scale = opts.LoraScale
		}
		if lora != "" {
			env = append(env, "FLUX_LORA_PATH="+lora)
			if scale > 0 {
				env = append(env, fmt.Sprintf("FLUX_LORA_SCALE=%g", scale))
			}
		}
	}
	return append(env, opts.ExtraEnv...)
}

// Stop terminates the named daemon: SIGTERM, a graceful window, then
// SIGKILL. Stopping a service that is not running is a no-op. The pid
// and port files are always removed on success.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return err
	}

	s.startMu[name].Lock()
	defer s.startMu[name].Unlock()

	s.mu.Lock()
	s.shouldRun[name] = false
	s.mu.Unlock()

	pid, running := s.alivePID(name)
	if !running {
		s.clearRuntimeFiles(name)
		return nil
	}

	graceful := svc.GracefulTimeout
	if graceful <= 0 {
		graceful = 5 * time.Second
	}
	if err := terminate(ctx, pid, graceful); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}

	s.clearRuntimeFiles(name)
	s.healthCache.Delete(name)
	s.logger.Info("Service stopped", "service", name, "pid", pid)
	return nil
}

// EnsureStarted brings the service up if it is not already. Losing a
// start race to another caller counts as success.
func (s *Supervisor) EnsureStarted(ctx context.Context, name string) error {
	if s.IsRunning(name) {
		return nil
	}
	_, _, err := s.Start(ctx, name, StartOptions{})
	if errors.Is(err, ErrAlreadyRunning) {
		return nil
	}
	return err
}

// RestartService is Restart without per-start options, in the shape
// restart plumbing expects.
func (s *Supervisor) RestartService(ctx context.Context, name string) error {
	_, _, err := s.Restart(ctx, name, StartOptions{})
	return err
}

// Restart stops and relaunches the service. It refuses while a stop
// lock is present so an explicit user stop stays stopped.
func (s *Supervisor) Restart(ctx context.Context, name string, opts StartOptions) (int, int, error) {
	if !config.IsValidServiceName(name) {
		return 0, 0, fmt.Errorf("%w: %s", config.ErrServiceNotFound, name)
	}
	if s.HasStopLock(name) {
		return 0, 0, fmt.Errorf("%w: %s (delete the lock to allow restarts)", ErrStopLocked, name)
	}
	if err := s.Stop(ctx, name); err != nil {
		return 0, 0, err
	}
	return s.Start(ctx, name, opts)
}

// Health probes the daemon's health endpoint. Results are cached for a
// short interval so status fan-outs do not hammer the daemons.
func (s *Supervisor) Health(ctx context.Context, name string) HealthResult {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return HealthResult{Error: err.Error(), CheckedAt: time.Now()}
	}
	if !s.IsRunning(name) {
		return HealthResult{Error: "service is not running", CheckedAt: time.Now()}
	}
	if cached, ok := s.healthCache.Get(name); ok {
		return cached.(HealthResult)
	}

	result := HealthResult{CheckedAt: time.Now()}
	if err := s.probeHealth(ctx, svc); err != nil {
		result.Error = err.Error()
	} else {
		result.Healthy = true
		s.mu.Lock()
		s.lastHealthy[name] = result.CheckedAt
		s.mu.Unlock()
	}
	s.healthCache.SetDefault(name, result)
	return result
}

func (s *Supervisor) probeHealth(ctx context.Context, svc *config.ServiceConfig) error {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, svc.HealthURL(), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// WaitHealthy blocks until the daemon's health endpoint reports ready,
// the service startup timeout elapses, or ctx is done. Model daemons
// load weights for a while after launch, so this polls patiently.
func (s *Supervisor) WaitHealthy(ctx context.Context, name string) error {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return err
	}
	timeout := svc.StartupTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := s.probeHealth(waitCtx, svc); err == nil {
			now := time.Now()
			s.mu.Lock()
			s.lastHealthy[name] = now
			s.mu.Unlock()
			s.healthCache.SetDefault(name, HealthResult{Healthy: true, CheckedAt: now})
			return nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("service %s did not become healthy within %s", name, timeout)
		case <-time.After(healthPollInterval):
		}
	}
}

// Status assembles the full record for one service.
func (s *Supervisor) Status(ctx context.Context, name string) (ServiceStatus, error) {
	svc, err := s.cfg.Service(name)
	if err != nil {
		return ServiceStatus{}, err
	}

	status := ServiceStatus{
		Name:       name,
		Configured: svc.Configured(),
		Port:       svc.Port,
	}
	if port := s.readPortFile(name); port > 0 {
		status.Port = port
	}
	if pid, running := s.alivePID(name); running {
		status.Running = true
		status.PID = pid
		status.Healthy = s.Health(ctx, name).Healthy
	}

	s.mu.Lock()
	status.ShouldBeRunning = s.shouldRun[name]
	if t, ok := s.lastHealthy[name]; ok {
		lh := t
		status.LastHealthy = &lh
	}
	s.mu.Unlock()

	if at, ok := s.AllStopLocks()[name]; ok {
		status.StopLocked = true
		if !at.IsZero() {
			lockedAt := at
			status.StopLockedAt = &lockedAt
		}
	}
	return status, nil
}

// AllStatuses returns the status of every managed service.
func (s *Supervisor) AllStatuses(ctx context.Context) map[string]ServiceStatus {
	statuses := make(map[string]ServiceStatus, len(config.ServiceNames()))
	for _, name := range config.ServiceNames() {
		status, err := s.Status(ctx, name)
		if err != nil {
			continue
		}
		statuses[name] = status
	}
	return statuses
}

// ShouldBeRunning reports whether the service is expected up, per the
// last start/stop issued through this supervisor.
func (s *Supervisor) ShouldBeRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shouldRun[name]
}

// SinceStart returns how long ago the service was last started by this
// runtime. ok is false when this runtime never started it.
func (s *Supervisor) SinceStart(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.startedAt[name]
	if !ok {
		return 0, false
	}
	return time.Since(at), true
}
