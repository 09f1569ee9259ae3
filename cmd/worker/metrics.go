package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"farematrix/internal/fares"
	"farematrix/internal/models"
)

var (
	// Counters for worker batch activity exposed on /metrics.
	// processed: tasks executed; skipped: claims held elsewhere; failed:
	// tasks that ended in a failure record.
	workerTasksProcessed  uint64
	workerTasksSkipped    uint64
	workerTasksFailed     uint64
	workerQuotesCollected uint64
	workerPublishErrors   uint64

	// Histogram buckets for provider search latency (seconds).
	// Buckets define upper bounds; the +Inf bucket is implicit.
	searchLatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	searchLatencyCounts  = make([]uint64, len(searchLatencyBuckets)+1)
	searchLatencySumNs   uint64
	searchLatencyCount   uint64

	// Provider HTTP 429 responses; one increment per throttled search.
	workerRateLimitHitsTotal uint64
)

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"farematrix_worker_up 1\n"+
			"farematrix_worker_tasks_processed_total %d\n"+
			"farematrix_worker_tasks_skipped_total %d\n"+
			"farematrix_worker_tasks_failed_total %d\n"+
			"farematrix_worker_quotes_collected_total %d\n"+
			"farematrix_worker_publish_errors_total %d\n"+
			"farematrix_worker_rate_limit_hits_total %d\n",
		atomic.LoadUint64(&workerTasksProcessed),
		atomic.LoadUint64(&workerTasksSkipped),
		atomic.LoadUint64(&workerTasksFailed),
		atomic.LoadUint64(&workerQuotesCollected),
		atomic.LoadUint64(&workerPublishErrors),
		atomic.LoadUint64(&workerRateLimitHitsTotal),
	)

	var histogram strings.Builder
	histogram.WriteString("# HELP farematrix_worker_search_latency_seconds Provider search latency.\n")
	histogram.WriteString("# TYPE farematrix_worker_search_latency_seconds histogram\n")
	appendHistogram(&histogram, "farematrix_worker_search_latency_seconds", searchLatencyBuckets,
		searchLatencyCounts, &searchLatencySumNs, &searchLatencyCount, "%.2f")

	_, _ = w.Write([]byte(body + histogram.String()))
}

// appendHistogram writes a Prometheus histogram (buckets, +Inf, sum, count) to sb.
// counts must have len(buckets)+1 elements; leFmt formats bucket bounds (e.g. "%.2f").
func appendHistogram(sb *strings.Builder, name string, buckets []float64, counts []uint64, sumNs, count *uint64, leFmt string) {
	var cumulative uint64
	for i, bound := range buckets {
		cumulative += atomic.LoadUint64(&counts[i])
		sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%s\"} %d\n", name, fmt.Sprintf(leFmt, bound), cumulative))
	}
	cumulative += atomic.LoadUint64(&counts[len(buckets)])
	sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", name, cumulative))
	sumSeconds := float64(atomic.LoadUint64(sumNs)) / float64(time.Second)
	sb.WriteString(fmt.Sprintf("%s_sum %.6f\n", name, sumSeconds))
	sb.WriteString(fmt.Sprintf("%s_count %d\n", name, atomic.LoadUint64(count)))
}

// instrumentedClient wraps a provider client to record search latency and
// rate-limit hits.
type instrumentedClient struct {
	inner fares.Client
}

func instrument(inner fares.Client) fares.Client {
	return &instrumentedClient{inner: inner}
}

func (c *instrumentedClient) Provider() string { return c.inner.Provider() }

func (c *instrumentedClient) Search(ctx context.Context, task models.Task) ([]models.FareQuote, error) {
	start := time.Now()
	quotes, err := c.inner.Search(ctx, task)
	observeSearchLatency(time.Since(start))
	if err != nil && fares.ErrorKind(err) == fares.KindRateLimited {
		atomic.AddUint64(&workerRateLimitHitsTotal, 1)
	}
	return quotes, err
}

// observeSearchLatency updates the manual Prometheus histogram.
func observeSearchLatency(duration time.Duration) {
	if duration <= 0 {
		return
	}
	seconds := duration.Seconds()
	bucketIndex := len(searchLatencyBuckets)
	for i, bound := range searchLatencyBuckets {
		if seconds <= bound {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&searchLatencyCounts[bucketIndex], 1)
	atomic.AddUint64(&searchLatencySumNs, uint64(duration.Nanoseconds()))
	atomic.AddUint64(&searchLatencyCount, 1)
}
