// Package breaker provides a per-resource circuit breaker. After a
// configured number of consecutive failures within a sliding window the
// breaker opens and short-circuits further calls for a cool-down period;
// a single probe is then allowed through (half-open) before the breaker
// fully closes again on success.
package breaker

import (
	"sync"
	"time"
)

// State represents the breaker state machine.
type State int

const (
	// StateClosed allows all calls.
	StateClosed State = iota
	// StateOpen short-circuits all calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen allows a single probe call.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures a breaker.
type Config struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker.
	Threshold int
	// Window bounds how far apart consecutive failures may be and still
	// count as one streak. Failures older than the window are forgotten.
	Window time.Duration
	// CoolDown is how long the breaker stays open before allowing a
	// half-open probe.
	CoolDown time.Duration
}

// DefaultConfig returns the default breaker policy: open after 5
// consecutive failures within 30s, cool down for 10s.
func DefaultConfig() Config {
	return Config{
		Threshold: 5,
		Window:    30 * time.Second,
		CoolDown:  10 * time.Second,
	}
}

// Breaker is a single resource's circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time

	now func() time.Time // replaceable in tests
}

// New creates a breaker, applying defaults for zero config fields.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultConfig().CoolDown
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// Allow reports whether a call may proceed. An open breaker whose
// cool-down has elapsed transitions to half-open and allows one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
			b.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		// Probe already in flight; hold further calls until it reports.
		return false
	default:
		return true
	}
}

// Success records a successful call and closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = StateClosed
}

// Failure records a failed call. Failures separated by more than the
// window restart the streak. Crossing the threshold opens the breaker.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.state == StateHalfOpen {
		// Failed probe re-opens immediately.
		b.state = StateOpen
		b.openedAt = now
		b.lastFailure = now
		return
	}

	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.Window {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now

	if b.failures >= b.cfg.Threshold {
		b.state = StateOpen
		b.openedAt = now
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group manages one breaker per resource name, created lazily with a
// shared config. Safe for concurrent use.
type Group struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group with the given shared config.
func NewGroup(cfg Config) *Group {
	return &Group{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for a resource, creating it on first use.
func (g *Group) Get(resource string) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[resource]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[resource]; ok {
		return b
	}
	b = New(g.cfg)
	g.breakers[resource] = b
	return b
}

// States returns a snapshot of every known resource's breaker state.
func (g *Group) States() map[string]State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]State, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.State()
	}
	return out
}
