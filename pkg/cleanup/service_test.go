package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/config"
	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/session"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	store, err := session.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// seedSession creates a finalized session whose date directory is start's day.
func seedSession(t *testing.T, store *session.Store, start time.Time) string {
	t.Helper()
	handle, err := store.Create(start, "job-"+start.Format("20060102150405"), models.Params{Prompt: "x"})
	require.NoError(t, err)
	require.NoError(t, store.Finalize(handle.ID, session.FinalizeResult{
		Status: models.JobStatusCompleted,
	}))
	return handle.ID
}

func dateDirExists(t *testing.T, store *session.Store, day time.Time) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(store.Root(), day.Format("2006-01-02")))
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err))
	return false
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().AddDate(0, 0, -40)
	recent := time.Now()
	seedSession(t, store, old)
	kept := seedSession(t, store, recent)

	svc := NewService(&config.RetentionConfig{
		SessionRetentionDays: 30,
		CleanupInterval:      time.Hour,
	}, store)
	svc.sweep()

	assert.False(t, dateDirExists(t, store, old), "expired date directory removed")
	assert.True(t, dateDirExists(t, store, recent), "recent date directory kept")

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, kept, summaries[0].SessionID)
}

func TestSweepSkipsOpenSessions(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().AddDate(0, 0, -40)

	// Created but never finalized: still being written.
	_, err := store.Create(old, "job-open", models.Params{Prompt: "x"})
	require.NoError(t, err)

	svc := NewService(&config.RetentionConfig{
		SessionRetentionDays: 30,
		CleanupInterval:      time.Hour,
	}, store)
	svc.sweep()

	assert.True(t, dateDirExists(t, store, old), "open session survives the sweep")
}

func TestSweepIgnoresForeignDirectories(t *testing.T) {
	store := newTestStore(t)
	foreign := filepath.Join(store.Root(), "not-a-date")
	require.NoError(t, os.MkdirAll(foreign, 0o755))

	svc := NewService(&config.RetentionConfig{
		SessionRetentionDays: 30,
		CleanupInterval:      time.Hour,
	}, store)
	svc.sweep()

	_, err := os.Stat(foreign)
	assert.NoError(t, err)
}

func TestStartDisabledPolicy(t *testing.T) {
	store := newTestStore(t)
	svc := NewService(&config.RetentionConfig{SessionRetentionDays: 0}, store)

	assert.False(t, svc.Enabled())
	svc.Start(context.Background())
	// Stop on a never-started sweeper must not hang.
	svc.Stop()
}

func TestStartStopLifecycle(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().AddDate(0, 0, -40)
	seedSession(t, store, old)

	svc := NewService(&config.RetentionConfig{
		SessionRetentionDays: 30,
		CleanupInterval:      time.Hour,
	}, store)
	svc.Start(context.Background())

	// The initial sweep runs before the first tick.
	require.Eventually(t, func() bool {
		return !dateDirExists(t, store, old)
	}, 5*time.Second, 10*time.Millisecond)

	svc.Stop()
	svc.Stop() // idempotent
}
