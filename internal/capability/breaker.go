package capability

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Breaker defaults: a provider is skipped after three consecutive
// connection failures and probed again five minutes after the last one.
const (
	defaultFailureThreshold = 3
	defaultCooldown         = 5 * time.Minute
)

// ErrBreakerOpen is returned by Allow while a provider is cooling down.
var ErrBreakerOpen = errors.New("capability circuit breaker is open")

// BreakerState describes a provider's position in the breaker lifecycle.
type BreakerState int

const (
	// BreakerClosed allows connections normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen skips all connection attempts until the cooldown ends.
	BreakerOpen
	// BreakerHalfOpen allows a single probe attempt after the cooldown.
	BreakerHalfOpen
)

// String returns the state name for logs.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures the circuit breaker table.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the breaker.
	FailureThreshold int
	// Cooldown is how long an open provider is skipped before one probe
	// attempt is allowed again.
	Cooldown time.Duration
}

// Breaker tracks consecutive connection failures per provider. One Breaker
// is created at startup and shared by every turn; entries disappear as
// soon as their provider connects successfully again.
type Breaker struct {
	mu      sync.Mutex
	cfg     BreakerConfig
	entries map[string]*breakerEntry

	now func() time.Time
}

type breakerEntry struct {
	consecutiveFailures int
	lastFailure         time.Time
}

// NewBreaker creates a breaker table. Zero config values take the package
// defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Breaker{
		cfg:     cfg,
		entries: make(map[string]*breakerEntry),
		now:     time.Now,
	}
}

// Allow reports whether a connection attempt to the provider may proceed.
// It returns ErrBreakerOpen while the provider is open and still cooling
// down. Once the cooldown has elapsed a single probe is allowed; the
// probe's recorded outcome either closes the breaker or re-opens it for
// another full cooldown window.
func (b *Breaker) Allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok || e.consecutiveFailures < b.cfg.FailureThreshold {
		return nil
	}
	if b.now().Sub(e.lastFailure) < b.cfg.Cooldown {
		return fmt.Errorf("%w after %d consecutive failures", ErrBreakerOpen, e.consecutiveFailures)
	}
	return nil
}

// Success resets the provider to a clean slate.
func (b *Breaker) Success(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Failure records one exhausted connection attempt. During a half-open
// probe this re-opens the breaker because the failure count keeps growing
// and the failure time moves to now.
func (b *Breaker) Failure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		e = &breakerEntry{}
		b.entries[key] = e
	}
	e.consecutiveFailures++
	e.lastFailure = b.now()
}

// State reports the provider's current breaker state.
func (b *Breaker) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok || e.consecutiveFailures < b.cfg.FailureThreshold {
		return BreakerClosed
	}
	if b.now().Sub(e.lastFailure) < b.cfg.Cooldown {
		return BreakerOpen
	}
	return BreakerHalfOpen
}

// Failures returns the consecutive failure count recorded for a provider.
func (b *Breaker) Failures(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.entries[key]; ok {
		return e.consecutiveFailures
	}
	return 0
}
