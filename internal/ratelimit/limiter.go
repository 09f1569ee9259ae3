// Package ratelimit paces requests per pricing provider and trips a circuit
// breaker after repeated failures. Limiting is process-local and best effort;
// providers enforce the real limits and the executor absorbs their pushback.
package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Production pacing defaults.
const (
	DefaultFailureThreshold  = 5
	DefaultRecoveryTimeout   = 5 * time.Minute
	DefaultBaseDelay         = 3 * time.Second
	DefaultMaxDelay          = 30 * time.Second
	DefaultMultiplier        = 2.0
	DefaultJitterFraction    = 0.5
	DefaultMinDelay          = 100 * time.Millisecond
	DefaultRequestsPerMinute = 10
)

// Config tunes a Limiter. Zero fields fall back to the defaults above.
type Config struct {
	Limits           Limits
	FailureThreshold int
	RecoveryTimeout  time.Duration
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFraction   float64
	MinDelay         time.Duration
}

// providerState is created lazily on first use, so unknown providers need no
// registration step.
type providerState struct {
	recent    []time.Time
	failures  int
	openUntil time.Time
}

// Limiter tracks request pacing and failure state per provider. Safe for
// concurrent use.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	providers map[string]*providerState
	rng       *rand.Rand

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Limiter with the given config, applying defaults for zero
// fields.
func New(cfg Config) *Limiter {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	} else if cfg.JitterFraction == 0 {
		cfg.JitterFraction = DefaultJitterFraction
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultMinDelay
	}
	return &Limiter{
		cfg:       cfg,
		providers: make(map[string]*providerState),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		sleep:     sleepCtx,
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

// CalculateDelay returns the pacing delay for the provider at the given
// consecutive failure count. Deterministic and non-decreasing in failures;
// jitter is applied separately by WaitForSlot so callers can reason about the
// base schedule.
func (l *Limiter) CalculateDelay(provider string, failures int) time.Duration {
	base := time.Minute / time.Duration(l.cfg.Limits.RequestsPerMinute(provider))
	delay := base
	if failures > 0 {
		backoff := time.Duration(float64(l.cfg.BaseDelay) * math.Pow(l.cfg.Multiplier, float64(failures)))
		if backoff > l.cfg.MaxDelay || backoff <= 0 {
			backoff = l.cfg.MaxDelay
		}
		if backoff > delay {
			delay = backoff
		}
	}
	if delay < l.cfg.MinDelay {
		delay = l.cfg.MinDelay
	}
	return delay
}

// WaitForSlot blocks until the provider may be called again, honoring the
// pacing delay (with jitter) since the provider's last request. Returns false
// without waiting when the circuit is open or ctx is done.
func (l *Limiter) WaitForSlot(ctx context.Context, provider string) bool {
	if l.IsCircuitOpen(provider) {
		return false
	}

	l.mu.Lock()
	st := l.state(provider)
	now := l.now()
	delay := l.jittered(l.CalculateDelay(provider, st.failures))

	var wait time.Duration
	l.prune(st, now)
	if len(st.recent) > 0 {
		elapsed := now.Sub(st.recent[len(st.recent)-1])
		if elapsed < delay {
			wait = delay - elapsed
		}
	}
	l.mu.Unlock()

	if err := l.sleep(ctx, wait); err != nil {
		return false
	}

	l.mu.Lock()
	st.recent = append(st.recent, l.now())
	l.mu.Unlock()
	return true
}

// IsCircuitOpen reports whether the provider's circuit is open. A circuit past
// its recovery deadline closes and the failure counter resets to zero.
func (l *Limiter) IsCircuitOpen(provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(provider)
	if st.openUntil.IsZero() {
		return false
	}
	if l.now().Before(st.openUntil) {
		return true
	}
	st.openUntil = time.Time{}
	st.failures = 0
	return false
}

// RecordSuccess resets the provider's consecutive failure count.
func (l *Limiter) RecordSuccess(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(provider)
	st.failures = 0
	st.openUntil = time.Time{}
}

// RecordFailure increments the provider's consecutive failure count and opens
// the circuit when the threshold is crossed.
func (l *Limiter) RecordFailure(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(provider)
	st.failures++
	if st.failures >= l.cfg.FailureThreshold && st.openUntil.IsZero() {
		st.openUntil = l.now().Add(l.cfg.RecoveryTimeout)
	}
}

// Failures returns the provider's current consecutive failure count.
func (l *Limiter) Failures(provider string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(provider).failures
}

// state must be called with l.mu held.
func (l *Limiter) state(provider string) *providerState {
	st, ok := l.providers[provider]
	if !ok {
		st = &providerState{}
		l.providers[provider] = st
	}
	return st
}

// prune drops request timestamps older than one minute. Must be called with
// l.mu held.
func (l *Limiter) prune(st *providerState, now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for ; i < len(st.recent); i++ {
		if st.recent[i].After(cutoff) {
			break
		}
	}
	st.recent = st.recent[i:]
}

// jittered widens delay by a random fraction in [-j, +j], never below the
// configured floor. Must be called with l.mu held (rng is not goroutine safe).
func (l *Limiter) jittered(delay time.Duration) time.Duration {
	if l.cfg.JitterFraction > 0 {
		f := (l.rng.Float64()*2 - 1) * l.cfg.JitterFraction
		delay += time.Duration(float64(delay) * f)
	}
	if delay < l.cfg.MinDelay {
		delay = l.cfg.MinDelay
	}
	return delay
}
