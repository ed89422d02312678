package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/easel-ai/easel/pkg/config"
)

const (
	// MonitorInterval is the default crash-detector poll cadence.
	MonitorInterval = 15 * time.Second

	// restartGrace suppresses restarts right after a launch, while the
	// daemon is still loading weights and cannot answer health probes.
	restartGrace = 30 * time.Second
)

// Restarter relaunches a crashed service. The host wires an
// implementation that serializes with GPU ownership; the supervisor
// itself is the fallback.
type Restarter interface {
	RestartService(ctx context.Context, name string) error
}

// Monitor is the crash detector. It polls service health and restarts
// daemons that should be running but are not, leaving stop-locked and
// deliberately stopped services alone.
type Monitor struct {
	sup       *Supervisor
	restarter Restarter
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewMonitor creates a crash detector over the supervisor. A nil
// restarter means restarts go straight through the supervisor.
func NewMonitor(sup *Supervisor, restarter Restarter, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = MonitorInterval
	}
	if restarter == nil {
		restarter = directRestarter{sup}
	}
	return &Monitor{
		sup:       sup,
		restarter: restarter,
		interval:  interval,
		logger:    slog.With("component", "service_monitor"),
	}
}

// Start launches the background poll loop. Starting a running monitor
// is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	m.done = done
	go m.loop(ctx, done)
}

// Stop shuts the loop down and waits for it to finish. After Stop
// returns, Start may be called again.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	for _, name := range config.ServiceNames() {
		if ctx.Err() != nil {
			return
		}
		m.checkService(ctx, name)
	}
}

func (m *Monitor) checkService(ctx context.Context, name string) {
	if !m.sup.ShouldBeRunning(name) {
		return
	}
	if m.sup.HasStopLock(name) {
		return
	}
	if since, ok := m.sup.SinceStart(name); ok && since < restartGrace {
		return
	}

	if m.sup.IsRunning(name) && m.sup.Health(ctx, name).Healthy {
		return
	}

	m.logger.Warn("Service unhealthy, restarting", "service", name)
	if err := m.restarter.RestartService(ctx, name); err != nil {
		m.logger.Error("Auto-restart failed", "service", name, "error", err)
	}
}

// directRestarter restarts through the supervisor with no extra
// coordination.
type directRestarter struct {
	sup *Supervisor
}

func (r directRestarter) RestartService(ctx context.Context, name string) error {
	_, _, err := r.sup.Restart(ctx, name, StartOptions{})
	return err
}
