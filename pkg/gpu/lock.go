package gpu

import (
	"context"
	"sync"
)

// fifoMutex is a mutex with a strict first-come-first-served wait
// queue. sync.Mutex makes no ordering promise, and GPU fairness across
// jobs depends on one, so the queue is explicit. Release hands the lock
// directly to the head waiter; a fresh caller can never barge past the
// queue.
type fifoMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Acquire blocks until the caller owns the lock or ctx is done.
func (m *fifoMutex) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.locked && len(m.waiters) == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	m.waiters = append(m.waiters, grant)
	m.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == grant {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		m.mu.Unlock()
		// The grant raced the cancellation: we own the lock. Give it up
		// and report the cancellation.
		m.Release()
		return ctx.Err()
	}
}

// Release passes ownership to the head waiter, or unlocks when the
// queue is empty.
func (m *fifoMutex) Release() {
	m.mu.Lock()
	if len(m.waiters) > 0 {
		grant := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		close(grant)
		return
	}
	m.locked = false
	m.mu.Unlock()
}

// queueLen reports how many callers are waiting.
func (m *fifoMutex) queueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
