// Package checkpoint persists run progress so an interrupted matrix run can
// resume without redoing finished searches. Everything is plain JSON on the
// local filesystem; writes go through a temp file and rename so a crash never
// leaves a half-written checkpoint behind.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"farematrix/internal/models"
)

// Checkpoint directory layout.
const (
	completedFile = "completed_tasks.json"
	resultsFile   = "results.json"
	progressFile  = "progress.json"

	// BatchSpoolDir holds the batch spec files the coordinator writes for
	// worker processes.
	BatchSpoolDir = "batches"
)

// Store owns the coordinator-side checkpoint state: the completed-signature
// set, accumulated results, and progress metadata. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	dir       string
	sessionID string

	// saveEvery triggers a save after that many new completions; saveInterval
	// after that much wall-clock time. Either being zero disables that policy.
	saveEvery    int
	saveInterval time.Duration

	completed  map[string]struct{}
	results    []models.FareQuote
	totalTasks int

	pendingSinceSave int
	lastSave         time.Time

	now func() time.Time
}

// NewStore creates the checkpoint directory if needed and returns an empty
// store. Call Load to pick up a previous run's state.
func NewStore(dir, sessionID string, saveEvery int, saveInterval time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, BatchSpoolDir), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	s := &Store{
		dir:          dir,
		sessionID:    sessionID,
		saveEvery:    saveEvery,
		saveInterval: saveInterval,
		completed:    make(map[string]struct{}),
		now:          time.Now,
	}
	s.lastSave = s.now()
	return s, nil
}

// Load reads the previous run's snapshot, results, and progress metadata.
// A missing snapshot is a fresh start, not an error. A snapshot that is
// corrupt, carries the wrong schema version, or holds signatures in an older
// format is discarded with a warning so the run restarts cleanly rather than
// resuming from garbage.
func (s *Store) Load() (meta models.ProgressMeta, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, completedFile))
	if os.IsNotExist(err) {
		return models.ProgressMeta{}, false
	}
	if err != nil {
		log.Printf("checkpoint load failed, starting fresh err=%v", err)
		return models.ProgressMeta{}, false
	}

	var snapshot models.CompletedSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Printf("checkpoint snapshot corrupt, starting fresh err=%v", err)
		return models.ProgressMeta{}, false
	}
	if snapshot.SchemaVersion != models.CompletedSchemaVersion {
		log.Printf("checkpoint schema mismatch, starting fresh have=%d want=%d",
			snapshot.SchemaVersion, models.CompletedSchemaVersion)
		return models.ProgressMeta{}, false
	}
	for _, sig := range snapshot.Signatures {
		if strings.Count(sig, "|") != models.SignatureParts-1 {
			log.Printf("checkpoint signatures use an older format, starting fresh sig=%q", sig)
			return models.ProgressMeta{}, false
		}
	}

	for _, sig := range snapshot.Signatures {
		s.completed[sig] = struct{}{}
	}

	// Results and progress are best effort; losing them costs statistics, not
	// correctness.
	if data, err := os.ReadFile(filepath.Join(s.dir, resultsFile)); err == nil {
		var results []models.FareQuote
		if err := json.Unmarshal(data, &results); err == nil {
			s.results = results
		} else {
			log.Printf("results file corrupt, dropping accumulated results err=%v", err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(s.dir, progressFile)); err == nil {
		if err := json.Unmarshal(data, &meta); err != nil {
			log.Printf("progress file corrupt err=%v", err)
			meta = models.ProgressMeta{}
		}
	}

	meta.CompletedTasks = len(s.completed)
	s.totalTasks = meta.TotalTasks
	return meta, true
}

// SetTotalTasks records the catalog size for progress metadata.
func (s *Store) SetTotalTasks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalTasks = n
}

// RecordBatch folds a finished batch into the store and saves when a
// threshold policy fires.
func (s *Store) RecordBatch(result models.BatchResult) error {
	s.mu.Lock()
	for _, sig := range result.CompletedSignatures {
		if _, seen := s.completed[sig]; !seen {
			s.completed[sig] = struct{}{}
			s.pendingSinceSave++
		}
	}
	s.results = append(s.results, result.Results...)
	due := s.saveDueLocked()
	s.mu.Unlock()

	if due {
		return s.Save(false)
	}
	return nil
}

// saveDueLocked must be called with s.mu held.
func (s *Store) saveDueLocked() bool {
	if s.saveEvery > 0 && s.pendingSinceSave >= s.saveEvery {
		return true
	}
	if s.saveInterval > 0 && s.now().Sub(s.lastSave) >= s.saveInterval {
		return true
	}
	return false
}

// Save persists the snapshot, results, and progress metadata. With force set
// it always writes; otherwise it writes only when a threshold policy is due,
// so callers can invoke it on every event.
func (s *Store) Save(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && !s.saveDueLocked() {
		return nil
	}

	now := s.now()
	snapshot := models.CompletedSnapshot{
		SchemaVersion: models.CompletedSchemaVersion,
		SessionID:     s.sessionID,
		SavedAt:       now,
		Signatures:    s.signaturesLocked(),
	}
	if err := WriteJSONAtomic(filepath.Join(s.dir, completedFile), snapshot); err != nil {
		return fmt.Errorf("save completed snapshot: %w", err)
	}
	if err := WriteJSONAtomic(filepath.Join(s.dir, resultsFile), s.results); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	meta := models.ProgressMeta{
		SessionID:      s.sessionID,
		SavedAt:        now,
		CompletedTasks: len(s.completed),
		TotalResults:   len(s.results),
		TotalTasks:     s.totalTasks,
	}
	if err := WriteJSONAtomic(filepath.Join(s.dir, progressFile), meta); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	s.pendingSinceSave = 0
	s.lastSave = now
	return nil
}

// signaturesLocked must be called with s.mu held.
func (s *Store) signaturesLocked() []string {
	sigs := make([]string, 0, len(s.completed))
	for sig := range s.completed {
		sigs = append(sigs, sig)
	}
	return sigs
}

// IsCompleted reports whether the task was already executed in this or a
// previous run.
func (s *Store) IsCompleted(task models.Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[task.Signature()]
	return ok
}

// FilterPending returns the tasks whose signatures are not yet completed,
// preserving order.
func (s *Store) FilterPending(tasks []models.Task) []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]models.Task, 0, len(tasks))
	for _, task := range tasks {
		if _, done := s.completed[task.Signature()]; !done {
			pending = append(pending, task)
		}
	}
	return pending
}

// CompletedCount returns how many signatures are recorded.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// Results returns a copy of the accumulated results.
func (s *Store) Results() []models.FareQuote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FareQuote, len(s.results))
	copy(out, s.results)
	return out
}

// Progress returns the current progress metadata without persisting anything.
func (s *Store) Progress() models.ProgressMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.ProgressMeta{
		SessionID:      s.sessionID,
		SavedAt:        s.now(),
		CompletedTasks: len(s.completed),
		TotalResults:   len(s.results),
		TotalTasks:     s.totalTasks,
	}
}

// Clear removes all checkpoint state for a fresh start: the master files, any
// worker checkpoint files, and the batch spool.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{completedFile, resultsFile, progressFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	workerFiles, err := filepath.Glob(filepath.Join(s.dir, "worker_*_checkpoint_*.json"))
	if err == nil {
		for _, path := range workerFiles {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	if err := os.RemoveAll(filepath.Join(s.dir, BatchSpoolDir)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.dir, BatchSpoolDir), 0o755); err != nil {
		return err
	}

	s.completed = make(map[string]struct{})
	s.results = nil
	s.pendingSinceSave = 0
	return nil
}

// LoadProgress reads the progress metadata file without opening a full store.
// Used by read-only status tooling.
func LoadProgress(dir string) (models.ProgressMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, progressFile))
	if err != nil {
		return models.ProgressMeta{}, err
	}
	var meta models.ProgressMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return models.ProgressMeta{}, fmt.Errorf("parse progress file: %w", err)
	}
	return meta, nil
}

// SpoolBatch writes a batch spec for a worker process and returns its path.
func (s *Store) SpoolBatch(spec models.BatchSpec) (string, error) {
	path := filepath.Join(s.dir, BatchSpoolDir, fmt.Sprintf("batch_%d.json", spec.BatchID))
	if err := WriteJSONAtomic(path, spec); err != nil {
		return "", fmt.Errorf("spool batch %d: %w", spec.BatchID, err)
	}
	return path, nil
}

// ReadBatchSpec loads a spooled batch spec in a worker process.
func ReadBatchSpec(path string) (models.BatchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.BatchSpec{}, fmt.Errorf("read batch spec: %w", err)
	}
	var spec models.BatchSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return models.BatchSpec{}, fmt.Errorf("parse batch spec: %w", err)
	}
	return spec, nil
}

// WriteJSONAtomic marshals v with indentation and renames a temp file over
// path, so readers never observe a partial write.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
