package gpu

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOMutexGrantsInArrivalOrder(t *testing.T) {
	var m fifoMutex
	require.NoError(t, m.Acquire(context.Background()))

	const waiters = 5
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := m.Acquire(context.Background()); err != nil {
				assert.NoError(t, err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			m.Release()
		}(i)
		// Admit waiters one at a time so the queue order is known.
		require.Eventually(t, func() bool { return m.queueLen() == i+1 },
			time.Second, time.Millisecond)
	}

	m.Release()
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFIFOMutexMutualExclusion(t *testing.T) {
	var m fifoMutex
	var inside, total int
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := m.Acquire(context.Background()); err != nil {
					assert.NoError(t, err)
					return
				}
				inside++
				assert.Equal(t, 1, inside)
				total++
				inside--
				m.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, total)
}

func TestFIFOMutexCancelWhileWaiting(t *testing.T) {
	var m fifoMutex
	require.NoError(t, m.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Acquire(ctx) }()
	require.Eventually(t, func() bool { return m.queueLen() == 1 },
		time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, 0, m.queueLen(), "cancelled waiter must leave the queue")

	// The lock still works end to end.
	m.Release()
	require.NoError(t, m.Acquire(context.Background()))
	m.Release()
}

func TestFIFOMutexRejectsDoneContext(t *testing.T) {
	var m fifoMutex
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Acquire(ctx), context.Canceled)

	require.NoError(t, m.Acquire(context.Background()))
	m.Release()
}
