package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"context"

	"farematrix/internal/checkpoint"
	"farematrix/internal/models"
)

// ExecRunner runs a batch in a separate worker process. The contract is file
// based: the batch spec is spooled under the checkpoint dir, the worker binary
// gets its path via -batch and writes its final result to the path passed via
// -out. On context cancellation the worker receives SIGTERM and has GraceWait
// to checkpoint and exit before it is killed.
type ExecRunner struct {
	Bin           string
	Store         *checkpoint.Store
	CheckpointDir string
	ResultsDir    string
	GraceWait     time.Duration
}

// Run spawns the worker process for one batch and reads back its result file.
func (r *ExecRunner) Run(ctx context.Context, spec models.BatchSpec) (models.BatchResult, error) {
	specPath, err := r.Store.SpoolBatch(spec)
	if err != nil {
		return models.BatchResult{}, err
	}
	outPath := filepath.Join(r.ResultsDir,
		fmt.Sprintf("batch_%d_final_%d.json", spec.BatchID, time.Now().UTC().Unix()))

	cmd := exec.CommandContext(ctx, r.Bin,
		"-batch", specPath,
		"-out", outPath,
		"-results-dir", r.ResultsDir,
		"-checkpoint-dir", r.CheckpointDir,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	grace := r.GraceWait
	if grace <= 0 {
		grace = 30 * time.Second
	}
	cmd.WaitDelay = grace

	runErr := cmd.Run()

	// A worker that was told to stop still writes its result file before
	// exiting, so read it regardless of the exit status.
	data, err := os.ReadFile(outPath)
	if err != nil {
		if runErr != nil {
			return models.BatchResult{}, fmt.Errorf("worker for batch %d failed: %w", spec.BatchID, runErr)
		}
		return models.BatchResult{}, fmt.Errorf("worker for batch %d wrote no result: %w", spec.BatchID, err)
	}
	var result models.BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return models.BatchResult{}, fmt.Errorf("parse result of batch %d: %w", spec.BatchID, err)
	}
	return result, nil
}
