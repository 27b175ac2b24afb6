// Package ratelimit enforces the REST request-weight budget of one exchange
// and spaces snapshot requests per symbol. Snapshot freshness is degraded
// before the exchange's ban thresholds are ever reached.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
)

const (
	DefaultWindow              = time.Minute
	DefaultMinSnapshotInterval = 30 * time.Second

	// retryPoll bounds how long Wait sleeps between permit attempts.
	retryPoll = 250 * time.Millisecond

	backoffFactor = 1.5
	backoffCap    = 16
)

type Config struct {
	// WeightLimit is the request-weight budget per rolling window.
	WeightLimit int
	// Window is the length of the rolling weight window.
	Window time.Duration
	// MinSnapshotInterval is the minimum spacing between granted permits
	// for the same symbol.
	MinSnapshotInterval time.Duration
	// BackoffBase is the penalty after the first consecutive error; it
	// grows multiplicatively up to BackoffBase * 16.
	BackoffBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.WeightLimit <= 0 {
		c.WeightLimit = 1200
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSnapshotInterval < 0 {
		c.MinSnapshotInterval = DefaultMinSnapshotInterval
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	return c
}

// Limiter is shared by all symbol tasks of one exchange; it is the only
// cross-symbol mutable state in the engine and serializes itself with a
// single mutex.
type Limiter struct {
	mu sync.Mutex

	cfg Config

	weightUsed  int
	windowReset time.Time

	lastPermit map[string]time.Time

	consecutiveErrors int
	boff              *backoff.Backoff

	now func() time.Time // overridable in tests
}

func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:        cfg,
		lastPermit: make(map[string]time.Time),
		boff: &backoff.Backoff{
			Min:    cfg.BackoffBase,
			Max:    time.Duration(backoffCap) * cfg.BackoffBase,
			Factor: backoffFactor,
		},
		now: time.Now,
	}
}

// AcquirePermit grants one snapshot request worth the given weight, or
// returns false when the weight budget for the current window would be
// exceeded or the symbol asked for a snapshot too recently.
func (l *Limiter) AcquirePermit(symbol string, cost int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.windowReset) {
		l.weightUsed = 0
		l.windowReset = now.Add(l.cfg.Window)
	}

	if last, ok := l.lastPermit[symbol]; ok && now.Sub(last) < l.cfg.MinSnapshotInterval {
		return false
	}
	if l.weightUsed+cost > l.cfg.WeightLimit {
		return false
	}

	l.weightUsed += cost
	l.lastPermit[symbol] = now
	return true
}

// Wait blocks until a permit is granted, serving the error-backoff penalty
// first. It returns only a context error.
func (l *Limiter) Wait(ctx context.Context, symbol string, cost int) error {
	if penalty := l.penalty(); penalty > 0 {
		if err := sleep(ctx, penalty); err != nil {
			return err
		}
	}

	for {
		if l.AcquirePermit(symbol, cost) {
			return nil
		}
		if err := sleep(ctx, l.nextAttemptIn(symbol)); err != nil {
			return err
		}
	}
}

// RecordError grows the backoff penalty multiplicatively (factor 1.5, cap
// 16x base).
func (l *Limiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors++
}

// RecordSuccess resets the backoff penalty.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.consecutiveErrors = 0
	l.boff.Reset()
}

// Penalty is the current error-backoff delay; zero when the last request
// succeeded.
func (l *Limiter) Penalty() time.Duration {
	return l.penalty()
}

func (l *Limiter) penalty() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consecutiveErrors == 0 {
		return 0
	}
	return l.boff.ForAttempt(float64(l.consecutiveErrors - 1))
}

// nextAttemptIn estimates how long until a permit could be granted, capped
// at the poll interval so window resets are never missed.
func (l *Limiter) nextAttemptIn(symbol string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	wait := retryPoll
	if last, ok := l.lastPermit[symbol]; ok {
		if remaining := l.cfg.MinSnapshotInterval - now.Sub(last); remaining > wait {
			wait = remaining
		}
	}
	if l.weightUsed > 0 {
		if untilReset := l.windowReset.Sub(now); untilReset > 0 && untilReset < wait {
			wait = untilReset
		}
	}
	if wait < retryPoll {
		wait = retryPoll
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
