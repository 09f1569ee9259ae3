// Package executor runs single fare-search tasks against a provider client
// with bounded retries, backoff, and circuit-breaker awareness. Every task it
// is handed produces at least one FareQuote record, so failed and skipped
// searches stay visible downstream instead of vanishing.
package executor

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"farematrix/internal/fares"
	"farematrix/internal/models"
	"farematrix/internal/ratelimit"
)

// Production retry defaults.
const (
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 3 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 2.0
	DefaultTaskTimeout = 60 * time.Second

	// retryJitterFraction widens each retry pause by up to this fraction so
	// parallel workers do not retry in lockstep.
	retryJitterFraction = 0.3
)

// Executor executes tasks sequentially. Not safe for concurrent use; each
// worker goroutine or process owns its own Executor.
type Executor struct {
	client  fares.Client
	limiter *ratelimit.Limiter

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	timeout    time.Duration

	sessionID string

	// Stats accumulates counters across Execute calls.
	Stats models.RunStats

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	rng   *rand.Rand
}

// New builds an Executor from batch settings, applying defaults for zero
// fields.
func New(client fares.Client, limiter *ratelimit.Limiter, settings models.ExecSettings, sessionID string) *Executor {
	if settings.MaxRetries <= 0 {
		settings.MaxRetries = DefaultMaxRetries
	}
	if settings.BaseDelay <= 0 {
		settings.BaseDelay = DefaultBaseDelay
	}
	if settings.MaxDelay <= 0 {
		settings.MaxDelay = DefaultMaxDelay
	}
	if settings.Multiplier <= 0 {
		settings.Multiplier = DefaultMultiplier
	}
	if settings.TaskTimeout <= 0 {
		settings.TaskTimeout = DefaultTaskTimeout
	}
	return &Executor{
		client:     client,
		limiter:    limiter,
		maxRetries: settings.MaxRetries,
		baseDelay:  settings.BaseDelay,
		maxDelay:   settings.MaxDelay,
		multiplier: settings.Multiplier,
		timeout:    settings.TaskTimeout,
		sessionID:  sessionID,
		sleep:      sleepCtx,
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs one task to completion. The returned slice is never empty: on
// success it holds the provider's quotes, otherwise a single failure or skip
// record carrying the task identity.
func (e *Executor) Execute(ctx context.Context, task models.Task) []models.FareQuote {
	provider := e.client.Provider()

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if !e.limiter.WaitForSlot(ctx, provider) {
			if ctx.Err() != nil {
				e.Stats.RecordSkip()
				return []models.FareQuote{e.skipRecord(task, provider, "cancelled", "run cancelled before execution", attempt)}
			}
			log.Printf("circuit open, skipping task provider=%s task=%s", provider, task.Signature())
			e.Stats.RecordSkip()
			return []models.FareQuote{e.skipRecord(task, provider, "circuit_open", "provider circuit breaker open", attempt)}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		quotes, err := e.client.Search(attemptCtx, task)
		cancel()

		if err == nil && len(quotes) > 0 {
			e.limiter.RecordSuccess(provider)
			e.annotate(quotes, attempt)
			e.Stats.RecordSuccess(provider, len(quotes))
			return quotes
		}

		if err != nil {
			e.limiter.RecordFailure(provider)
			lastErr = err
			var serr *fares.SearchError
			if errors.As(err, &serr) && serr.Permanent() {
				log.Printf("permanent failure provider=%s task=%s err=%v", provider, task.Signature(), err)
				e.Stats.RecordFailure(provider)
				return []models.FareQuote{e.failureRecord(task, provider, string(serr.Kind), serr.Message, attempt+1)}
			}
			log.Printf("attempt failed provider=%s task=%s attempt=%d err=%v", provider, task.Signature(), attempt+1, err)
		} else {
			// The provider answered but had no fares. Worth retrying, but not
			// a provider failure.
			lastErr = nil
			log.Printf("no quotes returned provider=%s task=%s attempt=%d", provider, task.Signature(), attempt+1)
		}

		if attempt < e.maxRetries {
			if err := e.sleep(ctx, e.retryDelay(attempt)); err != nil {
				e.Stats.RecordSkip()
				return []models.FareQuote{e.skipRecord(task, provider, "cancelled", "run cancelled during retry wait", attempt+1)}
			}
		}
	}

	e.Stats.RecordFailure(provider)
	kind := "no_results"
	message := "provider returned no fares after all retries"
	if lastErr != nil {
		kind = string(fares.ErrorKind(lastErr))
		message = lastErr.Error()
	}
	return []models.FareQuote{e.failureRecord(task, provider, kind, message, e.maxRetries+1)}
}

// retryDelay doubles the base delay per attempt, capped at maxDelay, plus a
// positive jitter of up to retryJitterFraction.
func (e *Executor) retryDelay(attempt int) time.Duration {
	delay := time.Duration(float64(e.baseDelay) * math.Pow(e.multiplier, float64(attempt)))
	if delay > e.maxDelay || delay <= 0 {
		delay = e.maxDelay
	}
	jitter := time.Duration(e.rng.Float64() * retryJitterFraction * float64(delay))
	return delay + jitter
}

// annotate stamps run metadata onto successful quotes.
func (e *Executor) annotate(quotes []models.FareQuote, attempt int) {
	scrapedAt := e.now().UTC().Format(time.RFC3339)
	for i := range quotes {
		quotes[i].SessionID = e.sessionID
		quotes[i].Attempt = attempt + 1
		if quotes[i].Status == "" {
			quotes[i].Status = models.StatusOK
		}
		if quotes[i].ScrapedAt == "" {
			quotes[i].ScrapedAt = scrapedAt
		}
	}
}

func (e *Executor) failureRecord(task models.Task, provider, kind, message string, attempts int) models.FareQuote {
	return e.record(task, provider, models.StatusFailed, kind, message, attempts)
}

func (e *Executor) skipRecord(task models.Task, provider, kind, message string, attempts int) models.FareQuote {
	return e.record(task, provider, models.StatusSkipped, kind, message, attempts)
}

// record builds a non-success FareQuote carrying full task identity so the
// aggregator and progress tooling can account for the task.
func (e *Executor) record(task models.Task, provider, status, kind, message string, attempts int) models.FareQuote {
	return models.FareQuote{
		DepartureCity:     task.OriginCity,
		DestinationCity:   task.DestinationCity,
		OriginRegion:      task.OriginRegion,
		DestinationRegion: task.DestinationRegion,
		FlightDate:        task.DepartureDate,
		DepartureTime:     task.DepartureTime,
		NumAdults:         task.PassengerConfig.Adults,
		NumChildren:       task.PassengerConfig.Children,
		NumInfants:        task.PassengerConfig.Infants,
		PassengerType:     task.PassengerConfig.Name,
		Source:            provider,
		ScrapedAt:         e.now().UTC().Format(time.RFC3339),
		Status:            status,
		ErrorKind:         kind,
		ErrorMessage:      message,
		Attempt:           attempts,
		SessionID:         e.sessionID,
		TaskID:            task.TaskID,
	}
}
