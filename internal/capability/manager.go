package capability

import (
	"context"
	"slices"
	"time"

	"github.com/strand-ai/strand/internal/log"
)

// Connection retry policy: each provider gets two dial attempts with a
// fixed pause between them before its failure is recorded.
const (
	defaultDialAttempts = 2
	defaultDialBackoff  = time.Second

	// releaseTimeout bounds connection shutdown when the turn context is
	// already dead.
	releaseTimeout = 5 * time.Second
)

// Dialer opens a connection to one provider.
type Dialer interface {
	Dial(ctx context.Context, ref Ref) (Conn, error)
}

// Conn is an open provider connection.
type Conn interface {
	Close(ctx context.Context) error
}

// Manager acquires provider connections for a turn. A failing provider
// never aborts the turn: its failure is recorded in the breaker and the
// remaining providers are still acquired.
type Manager struct {
	breaker  *Breaker
	logger   log.Logger
	attempts int
	backoff  time.Duration
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Breaker is the shared failure table. Nil creates a private one with
	// default thresholds.
	Breaker *Breaker
	Logger  log.Logger
	// Attempts is the number of dial attempts per provider.
	Attempts int
	// Backoff is the fixed pause between attempts.
	Backoff time.Duration
}

// NewManager creates a Manager. Zero config values take the package
// defaults.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(BreakerConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultDialAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultDialBackoff
	}
	return &Manager{
		breaker:  cfg.Breaker,
		logger:   cfg.Logger,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
}

// Breaker returns the shared failure table the manager consults.
func (m *Manager) Breaker() *Breaker {
	return m.breaker
}

// Set is the turn-scoped bundle of acquired connections. It records one
// event per distinct provider: "connected:", "skipped:" (breaker open) or
// "failed:" followed by the provider name.
type Set struct {
	conns  []acquiredConn
	events []string
	logger log.Logger
}

type acquiredConn struct {
	ref  Ref
	conn Conn
}

// Acquire connects to every distinct provider in refs, in order. Providers
// whose breaker is open are skipped without an attempt; providers that
// exhaust their attempts are recorded as failed and the acquisition moves
// on. A cancelled context stops the acquisition early; whatever was
// already acquired is returned so the caller can release it.
func (m *Manager) Acquire(ctx context.Context, dialer Dialer, refs []Ref) *Set {
	set := &Set{logger: m.logger}
	seen := make(map[string]struct{}, len(refs))

	for _, ref := range refs {
		if ctx.Err() != nil {
			m.logger.Warn("capability acquisition cut short by cancellation",
				"acquired", len(set.conns))
			break
		}

		key := ref.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if err := ref.Validate(); err != nil {
			m.logger.Warn("skipping invalid capability reference", "error", err)
			set.events = append(set.events, "failed:"+ref.Name)
			continue
		}

		if err := m.breaker.Allow(key); err != nil {
			m.logger.Warn("capability breaker open, skipping connection",
				"capability", ref.Name,
				"failures", m.breaker.Failures(key))
			set.events = append(set.events, "skipped:"+ref.Name)
			continue
		}

		conn, err := m.dial(ctx, dialer, ref)
		if err != nil {
			m.breaker.Failure(key)
			m.logger.Error("capability connection failed",
				"capability", ref.Name,
				"attempts", m.attempts,
				"error", err)
			set.events = append(set.events, "failed:"+ref.Name)
			continue
		}

		m.breaker.Success(key)
		set.conns = append(set.conns, acquiredConn{ref: ref, conn: conn})
		set.events = append(set.events, "connected:"+ref.Name)
		m.logger.Info("capability connected", "capability", ref.Name)
	}

	return set
}

// dial runs the bounded attempt loop for one provider.
func (m *Manager) dial(ctx context.Context, dialer Dialer, ref Ref) (Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		conn, err := dialer.Dial(ctx, ref)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt == m.attempts || ctx.Err() != nil {
			break
		}
		m.logger.Warn("transient capability connection failure, retrying",
			"capability", ref.Name,
			"attempt", attempt,
			"error", err)
		select {
		case <-time.After(m.backoff):
		case <-ctx.Done():
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Release closes every acquired connection in reverse acquisition order.
// It runs even when the turn context is already cancelled by deriving a
// short-lived shutdown context, so providers always get a clean close.
// Release is idempotent.
func (s *Set) Release(ctx context.Context) {
	if len(s.conns) == 0 {
		return
	}
	logger := s.logger
	if logger == nil {
		logger = log.NewNop()
	}

	if ctx == nil || ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
	}

	for i := len(s.conns) - 1; i >= 0; i-- {
		ac := s.conns[i]
		if err := ac.conn.Close(ctx); err != nil {
			logger.Warn("capability release failed",
				"capability", ac.ref.Name,
				"error", err)
			continue
		}
		logger.Debug("capability released", "capability", ac.ref.Name)
	}
	s.conns = nil
}

// Events returns the acquisition log in provider order.
func (s *Set) Events() []string {
	return slices.Clone(s.events)
}

// Names returns the connected provider names in acquisition order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.conns))
	for _, ac := range s.conns {
		names = append(names, ac.ref.Name)
	}
	return names
}

// Len returns the number of open connections.
func (s *Set) Len() int {
	return len(s.conns)
}
