package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
)

func testParams() models.Params {
	return models.Params{
		Prompt:      "a lighthouse at dusk",
		N:           4,
		M:           2,
		Iterations:  2,
		Alpha:       0.7,
		Temperature: 0.8,
	}
}

func testFrame(iteration int) *models.IterationFrame {
	parent := models.CandidateKey(0, 0)
	c0 := &models.Candidate{
		Iteration:      iteration,
		CandidateID:    0,
		WhatPrompt:     "a lighthouse",
		HowPrompt:      "dusk light, film grain",
		Combined:       "a lighthouse at dusk, film grain",
		AlignmentScore: 82,
		AestheticScore: 7.5,
		TotalScore:     80,
		Survived:       true,
		Timestamp:      time.Now(),
	}
	c1 := &models.Candidate{
		Iteration:      iteration,
		CandidateID:    1,
		WhatPrompt:     "a lighthouse on a cliff",
		HowPrompt:      "dusk, long exposure",
		Combined:       "a lighthouse on a cliff at dusk, long exposure",
		AlignmentScore: 70,
		AestheticScore: 6,
		TotalScore:     67,
		Timestamp:      time.Now(),
	}
	if iteration > 0 {
		c0.ParentID = &parent
		c1.ParentID = &parent
	}
	return &models.IterationFrame{
		Iteration:     iteration,
		Candidates:    []*models.Candidate{c0, c1},
		TopCandidates: []string{c0.Key()},
	}
}

func TestStoreCreate(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	start := time.Date(2025, 7, 14, 9, 30, 15, 0, time.Local)
	handle, err := store.Create(start, "job-1", testParams())
	require.NoError(t, err)

	assert.Equal(t, "ses-093015", handle.ID)
	assert.DirExists(t, handle.Path)
	assert.DirExists(t, filepath.Join(handle.Path, "images"))
	assert.Contains(t, handle.Path, "2025-07-14")

	doc, err := store.Metadata(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse at dusk", doc.UserPrompt)
	assert.Equal(t, models.JobStatusRunning, doc.Status)
	assert.Equal(t, 4, doc.Config.BeamWidth)
	assert.Equal(t, 2, doc.Config.KeepTop)
	assert.Empty(t, doc.Iterations)
}

func TestStoreCreateCollisionGetsSuffix(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	start := time.Date(2025, 7, 14, 9, 30, 15, 0, time.Local)
	first, err := store.Create(start, "job-1", testParams())
	require.NoError(t, err)
	second, err := store.Create(start, "job-2", testParams())
	require.NoError(t, err)

	assert.Equal(t, "ses-093015", first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, ValidSessionID(second.ID), "suffixed id still validates: %s", second.ID)
	assert.DirExists(t, second.Path)
}

func TestStoreAppendIterationAndFinalize(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Create(time.Now(), "job-1", testParams())
	require.NoError(t, err)

	require.NoError(t, store.AppendIteration(handle.ID, testFrame(0)))
	require.NoError(t, store.AppendIteration(handle.ID, testFrame(1)))

	doc, err := store.Metadata(handle.ID)
	require.NoError(t, err)
	require.Len(t, doc.Iterations, 2)
	assert.Equal(t, 0, doc.Iterations[0].Iteration)
	assert.Len(t, doc.Iterations[0].Candidates, 2)
	assert.Equal(t, []string{"i0c0"}, doc.Iterations[0].TopCandidates)

	m := meter.New()
	m.Record(models.Usage{Provider: "llm", Operation: "refine_prompt", Tokens: 100})

	winner := &models.BestCandidate{
		CandidateKey: "i1c0",
		What:         "a lighthouse",
		How:          "dusk light, film grain",
		Combined:     "a lighthouse at dusk, film grain",
		TotalScore:   80,
		ImageURL:     "/api/images/" + handle.ID + "/i1c0.png",
	}
	err = store.Finalize(handle.ID, FinalizeResult{
		Status:    models.JobStatusCompleted,
		Winner:    winner,
		Finalists: []string{"i1c0", "i1c1"},
		Lineage: []models.LineageEntry{
			{Iteration: 0, CandidateID: 0},
			{Iteration: 1, CandidateID: 0},
		},
		Comparison:    "the winner keeps the film grain texture",
		Meter:         m,
		EstimatedCost: 0.42,
	})
	require.NoError(t, err)

	doc, err = store.Metadata(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, doc.Status)
	require.NotNil(t, doc.Winner)
	assert.Equal(t, "i1c0", doc.Winner.CandidateKey)
	assert.Equal(t, []string{"i1c0", "i1c1"}, doc.Finalists)
	require.Len(t, doc.Lineage, 2)
	require.NotNil(t, doc.TokenUsage)
	assert.Equal(t, 100, doc.TokenUsage.Total)
	require.NotNil(t, doc.EstimatedCost)
	assert.InDelta(t, 0.42, *doc.EstimatedCost, 1e-9)

	// tokens.json round-trips to the same stats.
	data, err := os.ReadFile(filepath.Join(handle.Path, "tokens.json"))
	require.NoError(t, err)
	restored := meter.New()
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, m.Stats(), restored.Stats())

	// The session is closed for writing.
	err = store.AppendIteration(handle.ID, testFrame(2))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestStoreMetadataReadsFromDiskAfterFinalize(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	handle, err := store.Create(time.Now(), "job-1", testParams())
	require.NoError(t, err)
	require.NoError(t, store.AppendIteration(handle.ID, testFrame(0)))
	require.NoError(t, store.Finalize(handle.ID, FinalizeResult{Status: models.JobStatusCompleted}))

	// A second store over the same root sees the session purely from disk.
	reopened, err := NewStore(root)
	require.NoError(t, err)
	doc, err := reopened.Metadata(handle.ID)
	require.NoError(t, err)
	assert.Equal(t, handle.ID, doc.SessionID)
	require.Len(t, doc.Iterations, 1)
}

func TestStoreMetadataErrors(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Metadata("ses-999999")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Metadata("../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestStoreListSessions(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	older, err := store.Create(time.Date(2025, 7, 13, 8, 0, 0, 0, time.Local), "job-1", testParams())
	require.NoError(t, err)
	require.NoError(t, store.Finalize(older.ID, FinalizeResult{Status: models.JobStatusCompleted,
		Winner: &models.BestCandidate{CandidateKey: "i0c0"}}))

	newer, err := store.Create(time.Date(2025, 7, 14, 9, 0, 0, 0, time.Local), "job-2", testParams())
	require.NoError(t, err)

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, newer.ID, summaries[0].SessionID)
	assert.Equal(t, models.JobStatusRunning, summaries[0].Status)
	assert.False(t, summaries[0].HasWinner)

	assert.Equal(t, older.ID, summaries[1].SessionID)
	assert.Equal(t, models.JobStatusCompleted, summaries[1].Status)
	assert.True(t, summaries[1].HasWinner)
}

func TestStoreImagePath(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Create(time.Now(), "job-1", testParams())
	require.NoError(t, err)

	imgPath := filepath.Join(handle.Path, "images", "i0c0.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("png-bytes"), 0o644))

	t.Run("resolves existing image", func(t *testing.T) {
		got, err := store.ImagePath(handle.ID, "i0c0.png")
		require.NoError(t, err)
		assert.Equal(t, imgPath, got)
	})

	t.Run("missing image", func(t *testing.T) {
		_, err := store.ImagePath(handle.ID, "i9c9.png")
		assert.ErrorIs(t, err, ErrImageNotFound)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		for _, name := range []string{
			"../metadata.json",
			"..%2Fmetadata.json",
			"a/b.png",
			"..png",
			"i0c0.jpg",
			"",
		} {
			_, err := store.ImagePath(handle.ID, name)
			assert.ErrorIs(t, err, ErrInvalidFilename, "filename %q", name)
		}
	})

	t.Run("rejects bad session id", func(t *testing.T) {
		_, err := store.ImagePath("ses-12345", "i0c0.png")
		assert.ErrorIs(t, err, ErrInvalidSessionID)
	})
}

func TestValidSessionID(t *testing.T) {
	valid := []string{"ses-000000", "ses-235959", "ses-093015-a1b2"}
	for _, id := range valid {
		assert.True(t, ValidSessionID(id), id)
	}
	invalid := []string{"ses-1234", "ses-1234567", "abc-123456", "ses-12a456", "ses-123456-xyz", "", "ses-123456/.."}
	for _, id := range invalid {
		assert.False(t, ValidSessionID(id), id)
	}
}

func TestStoreRemoveOlderThan(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	old1, err := store.Create(time.Date(2025, 7, 10, 8, 0, 0, 0, time.Local), "job-1", testParams())
	require.NoError(t, err)
	require.NoError(t, store.Finalize(old1.ID, FinalizeResult{Status: models.JobStatusCompleted}))
	old2, err := store.Create(time.Date(2025, 7, 10, 9, 0, 0, 0, time.Local), "job-2", testParams())
	require.NoError(t, err)
	require.NoError(t, store.Finalize(old2.ID, FinalizeResult{Status: models.JobStatusFailed}))

	recent, err := store.Create(time.Date(2025, 7, 14, 9, 0, 0, 0, time.Local), "job-3", testParams())
	require.NoError(t, err)
	require.NoError(t, store.Finalize(recent.ID, FinalizeResult{Status: models.JobStatusCompleted}))

	// A stray directory that is not one of our date directories.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scratch"), 0o755))

	removed, err := store.RemoveOlderThan(time.Date(2025, 7, 12, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.NoDirExists(t, filepath.Join(root, "2025-07-10"))
	assert.DirExists(t, filepath.Join(root, "2025-07-14"))
	assert.DirExists(t, filepath.Join(root, "scratch"))
}

func TestStoreRemoveOlderThanSkipsOpenSessions(t *testing.T) {
	root := t.TempDir()
	store, err := NewStore(root)
	require.NoError(t, err)

	// Never finalized, so the whole date directory must survive the sweep.
	open, err := store.Create(time.Date(2025, 7, 10, 8, 0, 0, 0, time.Local), "job-1", testParams())
	require.NoError(t, err)

	removed, err := store.RemoveOlderThan(time.Date(2025, 7, 12, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.DirExists(t, open.Path)

	// Once finalized the session is fair game.
	require.NoError(t, store.Finalize(open.ID, FinalizeResult{Status: models.JobStatusCompleted}))
	removed, err = store.RemoveOlderThan(time.Date(2025, 7, 12, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, filepath.Join(root, "2025-07-10"))
}

func TestStoreAppendEvaluation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Create(time.Now(), "job-1", testParams())
	require.NoError(t, err)

	err = store.AppendEvaluation(handle.ID, Evaluation{
		CandidateA: "i1c0",
		CandidateB: "i1c1",
		Preferred:  "i1c0",
		Notes:      "stronger silhouette",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(handle.Path, "evaluation"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^eval-\d+\.json$`, entries[0].Name())
}

func TestStoreListEvaluations(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	handle, err := store.Create(time.Now(), "job-1", testParams())
	require.NoError(t, err)

	// No evaluation directory yet.
	evals, err := store.ListEvaluations(handle.ID)
	require.NoError(t, err)
	assert.Empty(t, evals)

	base := time.Date(2025, 7, 14, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.AppendEvaluation(handle.ID, Evaluation{
		CandidateA: "i1c0", CandidateB: "i1c1", Preferred: "i1c1",
		Timestamp: base.Add(time.Second),
	}))
	require.NoError(t, store.AppendEvaluation(handle.ID, Evaluation{
		CandidateA: "i2c0", CandidateB: "i2c1", Preferred: "i2c0",
		Notes: "cleaner composition", Timestamp: base.Add(2 * time.Second),
	}))

	evals, err = store.ListEvaluations(handle.ID)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, "i1c1", evals[0].Preferred)
	assert.Equal(t, "i2c0", evals[1].Preferred)
	assert.Equal(t, "cleaner composition", evals[1].Notes)

	_, err = store.ListEvaluations("ses-000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
