// Package scheduler fans batches of fare-search tasks out to worker processes
// and folds their results back into the checkpoint store.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"farematrix/internal/checkpoint"
	"farematrix/internal/models"
)

// BatchRunner executes one batch and returns its result. The production
// implementation spawns a worker process; tests substitute fakes.
type BatchRunner interface {
	Run(ctx context.Context, spec models.BatchSpec) (models.BatchResult, error)
}

// Coordinator runs batches with bounded parallelism. On context cancellation
// it stops launching new batches but lets in-flight ones finish their grace
// period and still records whatever they produced.
type Coordinator struct {
	Store        *checkpoint.Store
	Runner       BatchRunner
	Workers      int
	BatchTimeout time.Duration

	// OnBatchDone, when set, observes every recorded batch result.
	OnBatchDone func(models.BatchResult)
}

type outcome struct {
	spec   models.BatchSpec
	result models.BatchResult
	err    error
}

// Run executes all specs and returns merged stats. The error reflects only
// checkpoint persistence problems; individual batch failures are logged and
// counted, not fatal.
func (c *Coordinator) Run(ctx context.Context, specs []models.BatchSpec) (models.RunStats, error) {
	workers := c.Workers
	if workers <= 0 {
		workers = 4
	}

	sem := make(chan struct{}, workers)
	outcomes := make(chan outcome, len(specs))
	var wg sync.WaitGroup

	go func() {
		for _, spec := range specs {
			if ctx.Err() != nil {
				log.Printf("shutdown requested, not launching batch id=%d tasks=%d", spec.BatchID, len(spec.Tasks))
				continue
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				log.Printf("shutdown requested, not launching batch id=%d tasks=%d", spec.BatchID, len(spec.Tasks))
				continue
			}
			wg.Add(1)
			go func(spec models.BatchSpec) {
				defer wg.Done()
				defer func() { <-sem }()
				outcomes <- outcome{spec: spec, result: c.runOne(ctx, spec)}
			}(spec)
		}
		wg.Wait()
		close(outcomes)
	}()

	var stats models.RunStats
	for out := range outcomes {
		if err := c.Store.RecordBatch(out.result); err != nil {
			log.Printf("checkpoint save failed batch=%d err=%v", out.spec.BatchID, err)
		}
		stats.Merge(out.result.Stats)
		if c.OnBatchDone != nil {
			c.OnBatchDone(out.result)
		}
		log.Printf("batch done id=%d status=%s processed=%d/%d results=%d",
			out.result.BatchID, out.result.Status,
			out.result.TasksProcessed, out.result.TasksTotal, len(out.result.Results))
	}

	return stats, c.Store.Save(true)
}

// runOne bounds a single batch with the batch timeout and normalizes runner
// errors into an aborted result so accounting stays uniform.
func (c *Coordinator) runOne(ctx context.Context, spec models.BatchSpec) models.BatchResult {
	runCtx := ctx
	if c.BatchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.BatchTimeout)
		defer cancel()
	}

	result, err := c.Runner.Run(runCtx, spec)
	if err != nil {
		log.Printf("batch failed id=%d err=%v", spec.BatchID, err)
		return models.BatchResult{
			BatchID:    spec.BatchID,
			SessionID:  spec.SessionID,
			Status:     models.BatchAborted,
			TasksTotal: len(spec.Tasks),
			FinishedAt: time.Now().UTC(),
		}
	}
	return result
}
