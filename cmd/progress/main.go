// The progress tool prints a read-only status report for a run: coordinator
// progress metadata, recoverable worker checkpoints, and the canonical
// dataset's headline numbers. It never modifies any file, so it is safe to run
// while the coordinator is live.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"farematrix/common"
	"farematrix/internal/aggregate"
	"farematrix/internal/checkpoint"
	"farematrix/internal/store"
)

func main() {
	checkpointDir := flag.String("checkpoint-dir", "flight_checkpoints", "Checkpoint directory to inspect")
	resultsDir := flag.String("results-dir", "fare_matrix_results", "Results directory to inspect")
	sessionID := flag.String("session", "", "Fetch live status for this session from Redis (requires REDIS_ADDR)")
	flag.Parse()

	if *sessionID != "" {
		printLiveStatus(*sessionID)
	}

	meta, err := checkpoint.LoadProgress(*checkpointDir)
	switch {
	case os.IsNotExist(err):
		fmt.Println("No coordinator progress recorded yet.")
	case err != nil:
		fmt.Printf("Progress file unreadable: %v\n", err)
	default:
		fmt.Printf("Session:          %s\n", meta.SessionID)
		fmt.Printf("Last saved:       %s\n", meta.SavedAt.Format(time.RFC3339))
		if meta.TotalTasks > 0 {
			fmt.Printf("Completed tasks:  %d / %d (%.1f%%)\n",
				meta.CompletedTasks, meta.TotalTasks,
				float64(meta.CompletedTasks)/float64(meta.TotalTasks)*100)
		} else {
			fmt.Printf("Completed tasks:  %d\n", meta.CompletedTasks)
		}
		fmt.Printf("Results on disk:  %d\n", meta.TotalResults)
	}

	summary, err := checkpoint.ScanWorkerCheckpoints(*checkpointDir)
	if err != nil {
		fmt.Printf("Worker checkpoint scan failed: %v\n", err)
	} else if summary.WorkerFiles > 0 {
		fmt.Printf("\nWorker checkpoints: %d files, %d results, %d completed tasks, latest %s\n",
			summary.WorkerFiles, summary.TotalResults, summary.CompletedTasks,
			summary.LatestWrite.Format(time.RFC3339))
		for provider, count := range summary.Providers {
			fmt.Printf("  provider %-15s %d quotes\n", provider, count)
		}
	}

	data, err := aggregate.LoadCanonical(*resultsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("\nCanonical dataset unreadable: %v\n", err)
		}
		return
	}
	fmt.Printf("\nCanonical dataset (%s)\n", data.AggregatedAt)
	fmt.Printf("  quotes:           %d\n", data.TotalQuotes)
	fmt.Printf("  unique routes:    %d\n", data.Statistics.UniqueRoutes)
	fmt.Printf("  region pairs:     %d\n", data.Statistics.RegionalCoverage)
	for provider, count := range data.Statistics.Providers {
		fmt.Printf("  provider %-15s %d\n", provider, count)
	}
	if data.Statistics.Prices.Count > 0 {
		fmt.Printf("  prices:           min %.2f / avg %.2f / max %.2f over %d priced quotes\n",
			data.Statistics.Prices.Min, data.Statistics.Prices.Average,
			data.Statistics.Prices.Max, data.Statistics.Prices.Count)
	}
}

// printLiveStatus shows the progress record a running coordinator publishes to
// Redis, which may be fresher than the files on disk.
func printLiveStatus(sessionID string) {
	redisAddr := common.GetEnv("REDIS_ADDR", "")
	if redisAddr == "" {
		fmt.Println("REDIS_ADDR not set, skipping live status.")
		return
	}

	rs := store.NewRedisStatusStore(redisAddr, "farematrix:status:", 0)
	defer rs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	status, found, err := rs.GetStatus(ctx, sessionID)
	switch {
	case err != nil:
		fmt.Printf("Live status lookup failed: %v\n", err)
	case !found:
		fmt.Printf("No live status for session %s.\n", sessionID)
	default:
		fmt.Printf("Live status (session %s): %d tasks completed, %d results, as of %s\n",
			sessionID, status.CompletedTasks, status.TotalResults, status.SavedAt.Format(time.RFC3339))
	}
	fmt.Println()
}
