// Package ratelimit paces and retries calls to external market-data APIs.
package ratelimit

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultMinSpacing  = 400 * time.Millisecond
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultJitter      = 250 * time.Millisecond
	DefaultMaxAttempts = 4
)

// Config tunes pacing and backoff.
type Config struct {
	MinSpacing  time.Duration // minimum gap between consecutive call starts
	BaseDelay   time.Duration // first backoff when the server gives no hint
	MaxDelay    time.Duration // backoff cap before jitter; zero disables
	Jitter      time.Duration // random extra wait in [0, Jitter)
	MaxAttempts int           // throttled attempts before the final unguarded one
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{
		MinSpacing:  DefaultMinSpacing,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Gate is a process-wide pacing gate shared by all market-data clients.
// The last-call timestamp is guarded by mu and never exposed.
type Gate struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	last time.Time // reserved start of the most recent call

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// WithSleeper overrides how the gate waits.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) {
		g.sleep = sleep
	}
}

// WithJitter overrides the jitter source.
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(g *Gate) {
		g.jitter = jitter
	}
}

// NewGate creates a Gate. Zero config fields fall back to defaults,
// except MinSpacing and Jitter where zero is meaningful.
func NewGate(cfg Config, opts ...Option) *Gate {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MinSpacing < 0 {
		cfg.MinSpacing = 0
	}

	g := &Gate{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  sleepCtx,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AwaitTurn blocks until the caller may issue its request.
// Each call reserves the next free slot, so concurrent callers are spaced
// by at least MinSpacing.
func (g *Gate) AwaitTurn(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	start := now
	if next := g.last.Add(g.cfg.MinSpacing); !g.last.IsZero() && next.After(now) {
		start = next
	}
	g.last = start
	g.mu.Unlock()

	wait := start.Sub(now)
	if wait <= 0 {
		return nil
	}
	observability.RecordGateWait(wait.Seconds())
	return g.sleep(ctx, wait)
}

// backoff returns the wait after the attempt-th throttled response (0-based).
// Waits never shrink between attempts.
func (g *Gate) backoff(attempt int, retryAfter, prev time.Duration) time.Duration {
	seed := g.cfg.BaseDelay
	if retryAfter > 0 {
		seed = retryAfter
	}

	d := seed
	for i := 0; i < attempt; i++ {
		d *= 2
		if g.cfg.MaxDelay > 0 && d >= g.cfg.MaxDelay {
			break
		}
	}
	if g.cfg.MaxDelay > 0 && d > g.cfg.MaxDelay {
		d = g.cfg.MaxDelay
	}
	if g.cfg.Jitter > 0 {
		d += g.jitter(g.cfg.Jitter)
	}
	if d < prev {
		d = prev
	}
	return d
}

// Do runs fn through the gate. Throttled results are retried with backoff up to
// MaxAttempts times; then one final attempt is made and its result returned
// as is. Any other error is returned immediately.
func Do[T any](ctx context.Context, g *Gate, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var prev time.Duration

	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if err := g.AwaitTurn(ctx); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		var te *ThrottledError
		if !errors.As(err, &te) {
			return v, err
		}

		wait := g.backoff(attempt, te.RetryAfter, prev)
		prev = wait
		observability.RecordGateThrottle(op)
		g.logger.Debug("throttled, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
		)
		if err := g.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	if err := g.AwaitTurn(ctx); err != nil {
		return zero, err
	}
	return fn(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
