// The worker process executes one batch of fare-search tasks. The coordinator
// spools the batch spec to disk and passes its path via -batch; the worker
// writes periodic checkpoints while running and a final batch result to the
// path given via -out, even when told to stop early.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"farematrix/common"
	"farematrix/internal/checkpoint"
	"farematrix/internal/executor"
	"farematrix/internal/fares"
	"farematrix/internal/kafka"
	"farematrix/internal/models"
	"farematrix/internal/ratelimit"
	"farematrix/internal/store"
)

func main() {
	batchPath := flag.String("batch", "", "Path to the spooled batch spec file")
	outPath := flag.String("out", "", "Path to write the final batch result")
	checkpointDir := flag.String("checkpoint-dir", "flight_checkpoints", "Directory for worker checkpoint files")
	resultsDir := flag.String("results-dir", "fare_matrix_results", "Directory for result files")
	flag.Parse()

	if *batchPath == "" || *outPath == "" {
		log.Fatal("both -batch and -out are required")
	}

	spec, err := checkpoint.ReadBatchSpec(*batchPath)
	if err != nil {
		log.Fatalf("batch spec error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr := common.GetEnv("METRICS_ADDR", ""); metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	providerName := common.GetEnv("PROVIDER_NAME", "kiwi")
	baseURL := common.GetEnv("PROVIDER_BASE_URL", "https://api.kiwi.test/v2/search")

	httpClient := fares.BuildHTTPClient(fares.HTTPClientConfig{
		ConnectTimeout:        common.ParseDuration(common.GetEnv("HTTP_CONNECT_TIMEOUT", ""), 10*time.Second),
		ResponseHeaderTimeout: common.ParseDuration(common.GetEnv("HTTP_HEADER_TIMEOUT", ""), 25*time.Second),
		TotalTimeout:          common.ParseDuration(common.GetEnv("HTTP_TOTAL_TIMEOUT", ""), 30*time.Second),
		ProxyURL:              common.GetEnv("PROXY_URL", ""),
		ProxyPool:             splitPool(common.GetEnv("PROXY_POOL", "")),
	})

	provider := fares.NewHTTPProvider(providerName, baseURL, httpClient)
	if common.ParseBool(common.GetEnv("RESPECT_ROBOTS_TXT", "false"), false) {
		robotsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		rules, err := fares.FetchRobotsRules(robotsCtx, httpClient, baseURL)
		cancel()
		if err != nil {
			log.Printf("robots.txt fetch failed, proceeding without rules err=%v", err)
		} else {
			provider.SetRobots(rules)
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		Limits: ratelimit.Limits{
			Default:   spec.Settings.DefaultLimit,
			Providers: spec.Settings.ProviderLimits,
		},
		BaseDelay:  spec.Settings.BaseDelay,
		MaxDelay:   spec.Settings.MaxDelay,
		Multiplier: spec.Settings.Multiplier,
	})

	var claims store.ClaimGuard
	if redisAddr := common.GetEnv("REDIS_ADDR", ""); redisAddr != "" {
		guard := store.NewRedisClaimGuard(redisAddr, "farematrix:claim:", 24*time.Hour)
		defer guard.Close()
		claims = guard
	}

	var producer kafka.QuoteWriter
	if broker := common.GetEnv("KAFKA_BROKER", ""); broker != "" {
		topic := common.GetEnv("KAFKA_QUOTES_TOPIC", "farematrix.quotes")
		prod := kafka.NewQuoteProducer(broker, topic)
		defer func() {
			if err := prod.Close(); err != nil {
				log.Printf("producer close error: %v", err)
			}
		}()
		producer = prod
	}

	w := &worker{
		spec:          spec,
		exec:          executor.New(instrument(provider), limiter, spec.Settings, spec.SessionID),
		claims:        claims,
		producer:      producer,
		checkpointDir: *checkpointDir,
		resultsDir:    *resultsDir,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	result := w.run(ctx)
	if err := checkpoint.WriteJSONAtomic(*outPath, result); err != nil {
		log.Fatalf("write batch result: %v", err)
	}
	log.Printf("batch finished id=%d status=%s processed=%d/%d results=%d",
		result.BatchID, result.Status, result.TasksProcessed, result.TasksTotal, len(result.Results))
}

type worker struct {
	spec          models.BatchSpec
	exec          *executor.Executor
	claims        store.ClaimGuard
	producer      kafka.QuoteWriter
	checkpointDir string
	resultsDir    string
	rng           *rand.Rand

	results       []models.FareQuote
	completedSigs []string
	processed     int
	checkpointSeq int
	lastSave      time.Time
}

// run executes the batch sequentially. On cancellation the current task
// finishes, a final checkpoint is written, and the partial result is returned
// with status aborted.
func (w *worker) run(ctx context.Context) models.BatchResult {
	settings := w.spec.Settings
	w.lastSave = time.Now()

	status := models.BatchCompleted
	for i, task := range w.spec.Tasks {
		if ctx.Err() != nil {
			log.Printf("stop requested, aborting batch id=%d at task %d/%d",
				w.spec.BatchID, i, len(w.spec.Tasks))
			status = models.BatchAborted
			break
		}

		if i > 0 {
			w.pause(ctx, settings.MinTaskDelay, settings.MaxTaskDelay)
		}

		if w.claims != nil {
			owned, err := w.claims.Claim(ctx, task.Signature())
			if err != nil {
				log.Printf("claim check failed, proceeding task=%s err=%v", task.Signature(), err)
			} else if !owned {
				atomic.AddUint64(&workerTasksSkipped, 1)
				log.Printf("task claimed by another process, skipping task=%s", task.Signature())
				continue
			}
		}

		quotes := w.exec.Execute(ctx, task)
		w.processed++
		w.results = append(w.results, quotes...)
		atomic.AddUint64(&workerQuotesCollected, uint64(len(quotes)))

		// A skip record means the provider was never called (open circuit or
		// cancellation). The task stays pending so a resume re-runs it; only
		// the skip record itself is kept for visibility.
		if len(quotes) == 1 && quotes[0].Status == models.StatusSkipped {
			atomic.AddUint64(&workerTasksSkipped, 1)
		} else {
			w.completedSigs = append(w.completedSigs, task.Signature())
			atomic.AddUint64(&workerTasksProcessed, 1)
			if len(quotes) == 1 && quotes[0].Status == models.StatusFailed {
				atomic.AddUint64(&workerTasksFailed, 1)
			}
		}

		w.publish(quotes)
		w.maybeCheckpoint(settings, false)
	}

	w.writeCheckpoint(true)

	return models.BatchResult{
		BatchID:             w.spec.BatchID,
		SessionID:           w.spec.SessionID,
		Status:              status,
		TasksTotal:          len(w.spec.Tasks),
		TasksProcessed:      w.processed,
		Results:             w.results,
		CompletedSignatures: w.completedSigs,
		Stats:               w.exec.Stats,
		FinishedAt:          time.Now().UTC(),
	}
}

// pause sleeps a random inter-task delay within [min, max], honoring ctx.
func (w *worker) pause(ctx context.Context, min, max time.Duration) {
	if min <= 0 {
		return
	}
	delay := min
	if max > min {
		delay += time.Duration(w.rng.Int63n(int64(max - min)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// publish sends quotes to the optional Kafka stream with a bounded timeout per
// message. Uses a fresh context so quotes from the final task still go out
// during shutdown. Publish failures are logged, never fatal; files are the
// source of truth.
func (w *worker) publish(quotes []models.FareQuote) {
	if w.producer == nil {
		return
	}
	for _, quote := range quotes {
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.producer.WriteQuote(writeCtx, quote)
		cancel()
		if err != nil {
			atomic.AddUint64(&workerPublishErrors, 1)
			log.Printf("quote publish failed route=%s err=%v", quote.Route(), err)
		}
	}
}

// maybeCheckpoint writes a progress checkpoint when either threshold policy
// fires.
func (w *worker) maybeCheckpoint(settings models.ExecSettings, force bool) {
	due := force
	if settings.CheckpointEvery > 0 && w.processed > 0 && w.processed%settings.CheckpointEvery == 0 {
		due = true
	}
	if settings.CheckpointInterval > 0 && time.Since(w.lastSave) >= settings.CheckpointInterval {
		due = true
	}
	if due {
		w.writeCheckpoint(false)
	}
}

func (w *worker) writeCheckpoint(final bool) {
	cp := models.WorkerCheckpoint{
		WorkerID:            w.spec.BatchID,
		BatchID:             w.spec.BatchID,
		SessionID:           w.spec.SessionID,
		Timestamp:           time.Now().UTC(),
		Final:               final,
		Results:             w.results,
		CompletedSignatures: w.completedSigs,
	}
	path, err := checkpoint.WriteWorkerCheckpoint(w.checkpointDir, cp, w.checkpointSeq)
	if err != nil {
		log.Printf("worker checkpoint failed err=%v", err)
		return
	}
	w.checkpointSeq++
	w.lastSave = time.Now()
	log.Printf("worker checkpoint written file=%s results=%d", path, len(w.results))
}

func splitPool(raw string) []string {
	if raw == "" {
		return nil
	}
	var pool []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			pool = append(pool, entry)
		}
	}
	return pool
}
