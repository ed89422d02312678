// Package session implements the on-disk session store. Each run lives
// under {root}/YYYY-MM-DD/ses-HHMMSS/ with metadata.json, an images/
// directory, tokens.json on completion, and optional evaluation logs.
//
// One writer per session (the job's worker); any number of readers.
// Metadata commits are atomic renames, so a reader never observes a
// partially written iteration frame.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/easel-ai/easel/pkg/meter"
	"github.com/easel-ai/easel/pkg/models"
)

const (
	metadataFile = "metadata.json"
	tokensFile   = "tokens.json"
	imagesDir    = "images"
	evalDir      = "evaluation"
)

// Session ids are ses-HHMMSS, with an optional 4-hex suffix when two runs
// start within the same second.
var sessionIDPattern = regexp.MustCompile(`^ses-\d{6}(-[0-9a-f]{4})?$`)

// Image filenames are a single safe path element ending in .png.
var imageFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]+\.png$`)

// ValidSessionID reports whether id is a well-formed session id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidImageFilename reports whether name is a safe image filename. The
// pattern excludes path separators; ".." alone cannot match because of
// the required .png suffix, but reject dot-dot anywhere for clarity.
func ValidImageFilename(name string) bool {
	if strings.Contains(name, "..") {
		return false
	}
	return imageFilenamePattern.MatchString(name)
}

// Handle identifies one created session.
type Handle struct {
	ID   string
	Path string
}

// openSession is the store's in-memory state for a session being written.
type openSession struct {
	path string
	doc  *Metadata
}

// Store is the filesystem session store rooted at one directory.
type Store struct {
	root   string
	logger *slog.Logger

	mu   sync.RWMutex
	open map[string]*openSession
}

// NewStore creates a store rooted at root, creating the directory if
// needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session root: %w", err)
	}
	return &Store{
		root:   root,
		logger: slog.With("component", "session_store"),
		open:   make(map[string]*openSession),
	}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// newSessionID derives a session id from the start time.
func newSessionID(start time.Time) string {
	return "ses-" + start.Format("150405")
}

// Create opens a new session for a job: directory tree, initial
// metadata.json with status running. Two sessions starting within the
// same second get distinct ids via a random suffix.
func (s *Store) Create(start time.Time, jobID string, params models.Params) (*Handle, error) {
	dateDir := filepath.Join(s.root, start.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create date directory: %w", err)
	}

	id := newSessionID(start)
	path := filepath.Join(dateDir, id)
	if _, err := os.Stat(path); err == nil {
		suffix := make([]byte, 2)
		if _, err := cryptoRead(suffix); err != nil {
			return nil, fmt.Errorf("failed to generate session suffix: %w", err)
		}
		id = fmt.Sprintf("%s-%02x%02x", id, suffix[0], suffix[1])
		path = filepath.Join(dateDir, id)
	}

	if err := os.MkdirAll(filepath.Join(path, imagesDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directories: %w", err)
	}

	doc := &Metadata{
		SessionID:  id,
		JobID:      jobID,
		UserPrompt: params.Prompt,
		Status:     models.JobStatusRunning,
		Config:     configFromParams(params),
		Iterations: []*models.IterationFrame{},
		CreatedAt:  start,
		UpdatedAt:  start,
	}
	if err := s.writeMetadata(path, doc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.open[id] = &openSession{path: path, doc: doc}
	s.mu.Unlock()

	s.logger.Info("Session created", "session_id", id, "path", path)
	return &Handle{ID: id, Path: path}, nil
}

// ImagesDir returns the session's image directory, suitable as a
// provider output dir.
func (s *Store) ImagesDir(sessionID string) (string, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, imagesDir), nil
}

// AppendIteration commits one completed iteration frame to the metadata
// document. The on-disk file moves atomically from the previous state to
// the one including the frame.
func (s *Store) AppendIteration(sessionID string, frame *models.IterationFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.open[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}
	sess.doc.Iterations = append(sess.doc.Iterations, frame)
	sess.doc.UpdatedAt = time.Now()
	return s.writeMetadata(sess.path, sess.doc)
}

// FinalizeResult carries everything Finalize persists.
type FinalizeResult struct {
	Status        models.JobStatus
	Winner        *models.BestCandidate
	Finalists     []string
	Lineage       []models.LineageEntry
	Comparison    string
	Error         string
	Meter         *meter.Meter
	EstimatedCost float64
}

// Finalize writes the terminal state: winner, finalists, lineage, token
// totals, and tokens.json. The session leaves the open set; further
// writes fail with ErrSessionClosed.
func (s *Store) Finalize(sessionID string, result FinalizeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.open[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionClosed, sessionID)
	}

	doc := sess.doc
	doc.Status = result.Status
	doc.Winner = result.Winner
	doc.Finalists = result.Finalists
	doc.Lineage = result.Lineage
	doc.Comparison = result.Comparison
	doc.Error = result.Error
	doc.UpdatedAt = time.Now()

	if result.Meter != nil {
		stats := result.Meter.Stats()
		doc.TokenUsage = &stats
		cost := result.EstimatedCost
		doc.EstimatedCost = &cost

		tokens, err := json.MarshalIndent(result.Meter, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal token snapshot: %w", err)
		}
		if err := writeFileAtomic(filepath.Join(sess.path, tokensFile), tokens); err != nil {
			return fmt.Errorf("failed to write tokens.json: %w", err)
		}
	}

	if err := s.writeMetadata(sess.path, doc); err != nil {
		return err
	}

	delete(s.open, sessionID)
	s.logger.Info("Session finalized",
		"session_id", sessionID,
		"status", result.Status,
		"iterations", len(doc.Iterations))
	return nil
}

// Metadata returns the current metadata document for a session, from
// memory for open sessions and from disk otherwise.
func (s *Store) Metadata(sessionID string) (*Metadata, error) {
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSessionID, sessionID)
	}

	s.mu.RLock()
	sess, ok := s.open[sessionID]
	if ok {
		// Deep copy via JSON so callers never alias the writer's document.
		data, err := json.Marshal(sess.doc)
		s.mu.RUnlock()
		if err != nil {
			return nil, err
		}
		var doc Metadata
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	s.mu.RUnlock()

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	return readMetadata(filepath.Join(dir, metadataFile))
}

// ListSessions scans the store and returns summaries, newest first.
func (s *Store) ListSessions() ([]Summary, error) {
	dates, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session root: %w", err)
	}

	var summaries []Summary
	for _, date := range dates {
		if !date.IsDir() {
			continue
		}
		sessions, err := os.ReadDir(filepath.Join(s.root, date.Name()))
		if err != nil {
			continue
		}
		for _, entry := range sessions {
			if !entry.IsDir() || !ValidSessionID(entry.Name()) {
				continue
			}
			doc, err := readMetadata(filepath.Join(s.root, date.Name(), entry.Name(), metadataFile))
			if err != nil {
				// Tolerate partially written or foreign directories.
				s.logger.Warn("Skipping unreadable session",
					"session_id", entry.Name(), "error", err)
				continue
			}
			summaries = append(summaries, Summary{
				SessionID:  doc.SessionID,
				Date:       date.Name(),
				UserPrompt: doc.UserPrompt,
				Status:     doc.Status,
				Iterations: len(doc.Iterations),
				HasWinner:  doc.Winner != nil,
				CreatedAt:  doc.CreatedAt,
			})
		}
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// RemoveOlderThan removes date directories whose date falls strictly
// before cutoff's date. A date directory still holding an open session
// is left alone entirely. Returns the number of session directories
// removed.
func (s *Store) RemoveOlderThan(cutoff time.Time) (int, error) {
	dates, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read session root: %w", err)
	}

	// The date format sorts lexicographically.
	cutoffDay := cutoff.Format("2006-01-02")

	removed := 0
	for _, date := range dates {
		if !date.IsDir() {
			continue
		}
		if _, err := time.Parse("2006-01-02", date.Name()); err != nil {
			// Foreign directory, not ours to touch.
			continue
		}
		if date.Name() >= cutoffDay {
			continue
		}
		if s.hasOpenSessions(date.Name()) {
			s.logger.Warn("Skipping retention sweep of date with open sessions",
				"date", date.Name())
			continue
		}

		dir := filepath.Join(s.root, date.Name())
		count := 0
		if entries, err := os.ReadDir(dir); err == nil {
			for _, entry := range entries {
				if entry.IsDir() && ValidSessionID(entry.Name()) {
					count++
				}
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", date.Name(), err)
		}
		removed += count
	}
	return removed, nil
}

// hasOpenSessions reports whether any open session lives under the
// given date directory.
func (s *Store) hasOpenSessions(day string) bool {
	prefix := filepath.Join(s.root, day) + string(os.PathSeparator)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.open {
		if strings.HasPrefix(sess.path, prefix) {
			return true
		}
	}
	return false
}

// ImagePath validates the id and filename and returns the absolute path
// of an existing image inside the session directory. Traversal attempts
// fail validation before any filesystem access.
func (s *Store) ImagePath(sessionID, filename string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %s", ErrInvalidSessionID, sessionID)
	}
	if !ValidImageFilename(filename) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}

	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, imagesDir, filename)
	// The patterns already exclude separators; keep the containment check
	// as a hard guarantee.
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s/%s", ErrImageNotFound, sessionID, filename)
		}
		return "", err
	}
	return path, nil
}

// AppendEvaluation writes one pairwise-comparison record under the
// session's evaluation directory.
func (s *Store) AppendEvaluation(sessionID string, eval Evaluation) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if eval.Timestamp.IsZero() {
		eval.Timestamp = time.Now()
	}

	evalPath := filepath.Join(dir, evalDir)
	if err := os.MkdirAll(evalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create evaluation directory: %w", err)
	}

	data, err := json.MarshalIndent(eval, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("eval-%d.json", eval.Timestamp.UnixNano())
	return writeFileAtomic(filepath.Join(evalPath, name), data)
}

// ListEvaluations returns the session's pairwise-comparison records in the
// order they were recorded. A session with no evaluation directory yields
// an empty slice.
func (s *Store) ListEvaluations(sessionID string) ([]Evaluation, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, evalDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []Evaluation{}, nil
		}
		return nil, err
	}

	evals := make([]Evaluation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, evalDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var eval Evaluation
		if err := json.Unmarshal(data, &eval); err != nil {
			s.logger.Warn("Skipping unreadable evaluation record",
				"session_id", sessionID, "file", entry.Name(), "error", err)
			continue
		}
		evals = append(evals, eval)
	}
	sort.Slice(evals, func(i, j int) bool { return evals[i].Timestamp.Before(evals[j].Timestamp) })
	return evals, nil
}

// sessionDir locates a session directory by id, open sessions first,
// then a scan of the date directories (newest first).
func (s *Store) sessionDir(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %s", ErrInvalidSessionID, sessionID)
	}

	s.mu.RLock()
	if sess, ok := s.open[sessionID]; ok {
		s.mu.RUnlock()
		return sess.path, nil
	}
	s.mu.RUnlock()

	dates, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return "", err
	}

	names := make([]string, 0, len(dates))
	for _, d := range dates {
		if d.IsDir() {
			names = append(names, d.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		candidate := filepath.Join(s.root, name, sessionID)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
}

// writeMetadata commits the document with an atomic rename.
func (s *Store) writeMetadata(dir string, doc *Metadata) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metadataFile), data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// readMetadata loads a metadata document from disk.
func readMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, path)
		}
		return nil, err
	}
	var doc Metadata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corrupt metadata at %s: %w", path, err)
	}
	return &doc, nil
}
