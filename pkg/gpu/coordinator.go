package gpu

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServiceController is the slice of the supervisor the coordinator
// drives. *supervisor.Supervisor satisfies it.
type ServiceController interface {
	IsRunning(name string) bool
	Stop(ctx context.Context, name string) error
	EnsureStarted(ctx context.Context, name string) error
	WaitHealthy(ctx context.Context, name string) error
	RestartService(ctx context.Context, name string) error
}

// Coordinator owns the GPU: a FIFO lock over all GPU-touching phases
// and the record of which family is resident. Every orchestrator phase
// that touches the accelerator runs inside one of the With* closures.
type Coordinator struct {
	services    ServiceController
	settleDelay time.Duration
	logger      *slog.Logger

	lock fifoMutex

	mu       sync.Mutex
	resident Family
}

// New creates a coordinator over the given controller. settleDelay is
// the pause after eviction before the next family loads, for drivers
// that release VRAM lazily.
func New(services ServiceController, settleDelay time.Duration) *Coordinator {
	return &Coordinator{
		services:    services,
		settleDelay: settleDelay,
		logger:      slog.With("component", "gpu_coordinator"),
		resident:    FamilyNone,
	}
}

// Resident returns the family currently prepared on the GPU.
func (c *Coordinator) Resident() Family {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resident
}

func (c *Coordinator) setResident(f Family) {
	c.mu.Lock()
	c.resident = f
	c.mu.Unlock()
}

// WithLLM runs fn with the llm family resident and the GPU lock held.
func (c *Coordinator) WithLLM(ctx context.Context, fn func(context.Context) error) error {
	return c.withFamily(ctx, FamilyLLM, fn)
}

// WithImageGen runs fn with the image generator resident.
func (c *Coordinator) WithImageGen(ctx context.Context, fn func(context.Context) error) error {
	return c.withFamily(ctx, FamilyImageGen, fn)
}

// WithVision runs fn with the vision scorer resident.
func (c *Coordinator) WithVision(ctx context.Context, fn func(context.Context) error) error {
	return c.withFamily(ctx, FamilyVision, fn)
}

// WithVLM runs fn with the vlm family resident.
func (c *Coordinator) WithVLM(ctx context.Context, fn func(context.Context) error) error {
	return c.withFamily(ctx, FamilyVLM, fn)
}

// WithLock runs fn under the GPU lock without touching residency. Low
// level escape hatch; the family closures are the normal path.
func (c *Coordinator) WithLock(ctx context.Context, fn func(context.Context) error) error {
	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	defer c.lock.Release()
	return fn(ctx)
}

// withFamily holds the lock across prepare and fn. Releasing between
// the two would let another waiter evict the family mid-operation.
func (c *Coordinator) withFamily(ctx context.Context, family Family, fn func(context.Context) error) error {
	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	defer c.lock.Release()

	if err := c.ensureResident(ctx, family); err != nil {
		return err
	}
	return fn(ctx)
}

// ensureResident makes family the sole GPU occupant: every other
// family's daemon is stopped, then the target is started if needed and
// awaited healthy. Caller holds the lock.
func (c *Coordinator) ensureResident(ctx context.Context, family Family) error {
	target := family.ServiceName()
	if c.Resident() == family && c.services.IsRunning(target) {
		return nil
	}

	if err := c.evictOthers(ctx, family); err != nil {
		return err
	}
	if !c.services.IsRunning(target) {
		c.logger.Info("Starting GPU family", "family", family, "service", target)
		if err := c.services.EnsureStarted(ctx, target); err != nil {
			return fmt.Errorf("failed to start %s: %w", target, err)
		}
	}
	if err := c.services.WaitHealthy(ctx, target); err != nil {
		return fmt.Errorf("%s not healthy after prepare: %w", target, err)
	}

	c.setResident(family)
	return nil
}

// evictOthers terminates every family other than keep and waits the
// settle delay when anything was actually evicted.
func (c *Coordinator) evictOthers(ctx context.Context, keep Family) error {
	evicted := false
	for _, other := range Families() {
		if other == keep {
			continue
		}
		name := other.ServiceName()
		if !c.services.IsRunning(name) {
			continue
		}
		c.logger.Info("Evicting GPU family", "family", other, "service", name)
		if err := c.services.Stop(ctx, name); err != nil {
			return fmt.Errorf("failed to evict %s: %w", other, err)
		}
		evicted = true
	}
	if c.Resident() != keep {
		c.setResident(FamilyNone)
	}

	if evicted && c.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.settleDelay):
		}
	}
	return nil
}

// CleanupAll evicts every family. Used on shutdown so no daemon holds
// the GPU after the server exits.
func (c *Coordinator) CleanupAll(ctx context.Context) error {
	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	defer c.lock.Release()

	var firstErr error
	for _, family := range Families() {
		name := family.ServiceName()
		if !c.services.IsRunning(name) {
			continue
		}
		c.logger.Info("Stopping GPU family for cleanup", "family", family)
		if err := c.services.Stop(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.setResident(FamilyNone)
	return firstErr
}

// RestartService relaunches a crashed daemon under the GPU lock, so a
// monitor-driven restart can never overlap a running GPU phase. It
// re-establishes the service's family as resident.
func (c *Coordinator) RestartService(ctx context.Context, name string) error {
	family, ok := FamilyForService(name)
	if !ok {
		return fmt.Errorf("unknown service %q", name)
	}

	if err := c.lock.Acquire(ctx); err != nil {
		return err
	}
	defer c.lock.Release()

	c.setResident(FamilyNone)
	if err := c.evictOthers(ctx, family); err != nil {
		return err
	}
	if err := c.services.RestartService(ctx, name); err != nil {
		return err
	}
	if err := c.services.WaitHealthy(ctx, name); err != nil {
		return err
	}
	c.setResident(family)
	return nil
}
