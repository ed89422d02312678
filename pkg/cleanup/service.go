// Package cleanup enforces the session-history retention policy.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/session"
)

// Service periodically removes session directories older than the
// configured retention window. Date directories holding a session that
// is still being written are never touched.
type Service struct {
	config *config.RetentionConfig
	store  *session.Store
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention sweeper over the session store.
func NewService(cfg *config.RetentionConfig, store *session.Store) *Service {
	return &Service{
		config: cfg,
		store:  store,
		logger: slog.With("component", "cleanup"),
	}
}

// Enabled reports whether the retention policy does anything at all.
func (s *Service) Enabled() bool {
	return s.config != nil && s.config.SessionRetentionDays > 0
}

// Start launches the background sweep loop. A disabled policy is a
// no-op start; Stop remains safe to call either way.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	if !s.Enabled() {
		s.logger.Info("Session retention disabled; sweeper not started")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"session_retention_days", s.config.SessionRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep()

	interval := s.config.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes everything older than the retention window.
func (s *Service) sweep() {
	cutoff := time.Now().AddDate(0, 0, -s.config.SessionRetentionDays)
	count, err := s.store.RemoveOlderThan(cutoff)
	if err != nil {
		s.logger.Error("Retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: removed old sessions", "count", count)
	}
}
