package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"farematrix/internal/models"
)

// WriteWorkerCheckpoint persists a worker's partial progress. The filename
// carries the worker id, a timestamp, and a per-worker sequence number so
// checkpoints within the same second never collide.
func WriteWorkerCheckpoint(dir string, cp models.WorkerCheckpoint, seq int) (string, error) {
	name := fmt.Sprintf("worker_%d_checkpoint_%s_%03d.json",
		cp.WorkerID, cp.Timestamp.UTC().Format("20060102_150405"), seq)
	path := filepath.Join(dir, name)
	if err := WriteJSONAtomic(path, cp); err != nil {
		return "", fmt.Errorf("write worker checkpoint: %w", err)
	}
	return path, nil
}

// ResumeSummary describes recoverable work found in a checkpoint directory.
type ResumeSummary struct {
	WorkerFiles    int
	TotalResults   int
	CompletedTasks int
	Providers      map[string]int
	Routes         map[string]int
	LatestWrite    time.Time
}

// ScanWorkerCheckpoints inspects all worker checkpoint files under dir. Files
// that fail to parse are counted but otherwise skipped.
func ScanWorkerCheckpoints(dir string) (ResumeSummary, error) {
	summary := ResumeSummary{
		Providers: make(map[string]int),
		Routes:    make(map[string]int),
	}
	paths, err := filepath.Glob(filepath.Join(dir, "worker_*_checkpoint_*.json"))
	if err != nil {
		return summary, err
	}

	seen := make(map[string]struct{})
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cp models.WorkerCheckpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		summary.WorkerFiles++
		summary.TotalResults += len(cp.Results)
		for _, sig := range cp.CompletedSignatures {
			seen[sig] = struct{}{}
		}
		for _, q := range cp.Results {
			summary.Providers[q.Source]++
			summary.Routes[q.Route()]++
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().After(summary.LatestWrite) {
			summary.LatestWrite = info.ModTime()
		}
	}
	summary.CompletedTasks = len(seen)
	return summary, nil
}
