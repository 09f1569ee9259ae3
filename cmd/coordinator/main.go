// The coordinator drives a full fare-matrix run: it generates the task
// catalog, filters out work finished in previous runs, partitions the rest
// into batches, and fans the batches out to worker processes. Progress is
// checkpointed throughout so an interrupted run resumes where it stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"farematrix/common"
	"farematrix/internal/aggregate"
	"farematrix/internal/catalog"
	"farematrix/internal/checkpoint"
	"farematrix/internal/models"
	"farematrix/internal/ratelimit"
	"farematrix/internal/scheduler"
	"farematrix/internal/store"
)

func main() {
	var (
		workers            = flag.Int("workers", 4, "Maximum concurrent worker processes")
		tasksPerWorker     = flag.Int("tasks-per-worker", 100, "Maximum tasks per batch")
		resume             = flag.Bool("resume", false, "Resume from the existing checkpoint")
		freshStart         = flag.Bool("fresh-start", false, "Discard all checkpoint data and start over")
		checkpointDir      = flag.String("checkpoint-dir", "flight_checkpoints", "Checkpoint directory")
		resultsDir         = flag.String("results-dir", "fare_matrix_results", "Results directory")
		checkpointInterval = flag.Duration("checkpoint-interval", 10*time.Minute, "Wall-clock checkpoint cadence")
		checkpointEvery    = flag.Int("checkpoint-every", 0, "Checkpoint after this many new completions (0 disables)")
		batchTimeout       = flag.Duration("batch-timeout", 20*time.Minute, "Per-batch timeout")
		workerBin          = flag.String("worker-bin", "farematrix-worker", "Path to the worker binary")
		providersFile      = flag.String("providers", "", "YAML file with per-provider request budgets")
		samplePercent      = flag.Float64("sample", 0, "Keep only this percentage of the catalog (0 or 100 keeps all)")
		shuffle            = flag.Bool("shuffle", true, "Shuffle task order for regional diversity")
		seed               = flag.Int64("seed", 0, "Seed for catalog sampling and shuffling")
		dryRun             = flag.Bool("dry-run", false, "Print the catalog summary and exit")
		minTaskDelay       = flag.Duration("min-delay", 500*time.Millisecond, "Minimum inter-task delay in workers")
		maxTaskDelay       = flag.Duration("max-delay", 2*time.Second, "Maximum inter-task delay in workers")
	)
	flag.Parse()

	if *resume && *freshStart {
		log.Fatal("-resume and -fresh-start are mutually exclusive")
	}

	sessionID := uuid.NewString()
	log.Printf("coordinator starting session=%s workers=%d", sessionID, *workers)

	if err := os.MkdirAll(*resultsDir, 0o755); err != nil {
		log.Fatalf("create results dir: %v", err)
	}
	cpStore, err := checkpoint.NewStore(*checkpointDir, sessionID, *checkpointEvery, *checkpointInterval)
	if err != nil {
		log.Fatalf("checkpoint store: %v", err)
	}

	if *freshStart {
		if err := cpStore.Clear(); err != nil {
			log.Fatalf("fresh start failed: %v", err)
		}
		log.Print("checkpoint data cleared")
	}

	if !*resume && !*freshStart {
		if _, err := checkpoint.LoadProgress(*checkpointDir); err == nil {
			log.Print("existing checkpoint found but -resume not set; this run will overwrite it (use -resume to continue or -fresh-start to clear)")
		}
	}

	if *resume {
		meta, ok := cpStore.Load()
		if !ok {
			log.Print("no usable checkpoint found, starting fresh")
		} else {
			log.Printf("resuming session=%s completed=%d results=%d saved_at=%s",
				meta.SessionID, meta.CompletedTasks, meta.TotalResults, meta.SavedAt.Format(time.RFC3339))
			if summary, err := checkpoint.ScanWorkerCheckpoints(*checkpointDir); err == nil && summary.WorkerFiles > 0 {
				log.Printf("worker checkpoints found files=%d results=%d latest=%s",
					summary.WorkerFiles, summary.TotalResults, summary.LatestWrite.Format(time.RFC3339))
			}
		}
	}

	tasks, err := catalog.Config{
		SamplePercent: *samplePercent,
		Shuffle:       *shuffle,
		Seed:          *seed,
	}.Generate()
	if err != nil {
		log.Fatalf("catalog generation: %v", err)
	}
	cpStore.SetTotalTasks(len(tasks))
	log.Printf("catalog generated tasks=%d", len(tasks))

	if *dryRun {
		printDistribution(tasks)
		return
	}

	pending := cpStore.FilterPending(tasks)
	log.Printf("pending tasks=%d (skipping %d already completed)", len(pending), len(tasks)-len(pending))

	limits := ratelimit.DefaultLimits()
	if *providersFile != "" {
		loaded, err := ratelimit.LoadLimits(*providersFile)
		if err != nil {
			log.Fatalf("provider limits: %v", err)
		}
		limits = loaded
	}

	settings := models.ExecSettings{
		MaxRetries:         common.ParseInt(common.GetEnv("MAX_RETRIES", ""), executorMaxRetries),
		BaseDelay:          ratelimit.DefaultBaseDelay,
		MaxDelay:           ratelimit.DefaultMaxDelay,
		Multiplier:         ratelimit.DefaultMultiplier,
		TaskTimeout:        common.ParseDuration(common.GetEnv("TASK_TIMEOUT", ""), time.Minute),
		MinTaskDelay:       *minTaskDelay,
		MaxTaskDelay:       *maxTaskDelay,
		CheckpointEvery:    10,
		CheckpointInterval: *checkpointInterval,
		ProviderLimits:     limits.Providers,
		DefaultLimit:       limits.Default,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installShutdownHandler(cancel, cpStore)

	var status store.StatusStore
	if redisAddr := common.GetEnv("REDIS_ADDR", ""); redisAddr != "" {
		rs := store.NewRedisStatusStore(redisAddr, "farematrix:status:", 48*time.Hour)
		defer rs.Close()
		status = rs
	}

	coord := &scheduler.Coordinator{
		Store: cpStore,
		Runner: &scheduler.ExecRunner{
			Bin:           *workerBin,
			Store:         cpStore,
			CheckpointDir: *checkpointDir,
			ResultsDir:    *resultsDir,
		},
		Workers:      *workers,
		BatchTimeout: *batchTimeout,
	}
	if status != nil {
		coord.OnBatchDone = func(models.BatchResult) {
			pubCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := status.SetStatus(pubCtx, cpStore.Progress()); err != nil {
				log.Printf("status publish failed err=%v", err)
			}
		}
	}

	specs := scheduler.BuildSpecs(pending, *tasksPerWorker, sessionID, settings)
	log.Printf("running batches=%d batch_size<=%d", len(specs), *tasksPerWorker)

	stats, err := coord.Run(ctx, specs)
	if err != nil {
		log.Printf("final checkpoint save failed err=%v", err)
	}

	log.Printf("run finished tasks=%d ok=%d failed=%d skipped=%d quotes=%d",
		stats.TotalTasks, stats.Successful, stats.Failed, stats.Skipped, stats.TotalQuotes)

	agg := aggregate.New(*resultsDir, *checkpointDir)
	canonical, err := agg.Run(false)
	if err != nil {
		log.Printf("aggregation failed err=%v", err)
	} else {
		log.Printf("aggregation complete file=%s", canonical)
	}

	if ctx.Err() != nil {
		fmt.Printf("\nRun interrupted. Resume with:\n  farematrix-coordinator -resume -checkpoint-dir %s\n", *checkpointDir)
	}
}

// executorMaxRetries mirrors the worker-side default so the settings in the
// batch spec are explicit.
const executorMaxRetries = 3

func printDistribution(tasks []models.Task) {
	preview := tasks
	if len(preview) > 150 {
		preview = preview[:150]
	}
	dist := catalog.Summarize(preview)

	fmt.Printf("Catalog preview (first %d of %d tasks)\n", len(preview), len(tasks))
	fmt.Println("Region pairs:")
	for _, pair := range catalog.SortedKeys(dist.RegionPairs) {
		count := dist.RegionPairs[pair]
		fmt.Printf("  %-40s %4d (%.1f%%)\n", pair, count, float64(count)/float64(len(preview))*100)
	}
	fmt.Println("Passenger configurations:")
	for _, name := range catalog.SortedKeys(dist.PassengerTypes) {
		count := dist.PassengerTypes[name]
		fmt.Printf("  %-20s %4d (%.1f%%)\n", name, count, float64(count)/float64(len(preview))*100)
	}
	fmt.Printf("Unique routes in preview: %d\n", dist.UniqueRoutes)
}
