package input

import (
	"sync"
	"time"

	"wanderfield/simcore/internal/logging"
)

// Clock exposes the current time for gating decisions.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock for functional adapters.
func (c ClockFunc) Now() time.Time { return c() }

// systemClock relies on time.Now for production code paths.
type systemClock struct{}

// Now implements Clock by delegating to time.Now.
func (systemClock) Now() time.Time { return time.Now() }

// Config controls the freshness and throughput gates applied to intents.
type Config struct {
	MaxAge      time.Duration
	MinInterval time.Duration
}

// DropReason enumerates why an intent was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonStale       DropReason = "stale"
	DropReasonRateLimited DropReason = "rate_limit"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether an intent passed the gate.
type Decision struct {
	Accepted bool
	Reason   DropReason
	Delay    time.Duration
}

// Stamp carries the metadata required to gate one inbound intent.
type Stamp struct {
	SessionID  string
	SequenceID uint64
	SentAt     time.Time
}

type sessionState struct {
	lastSequence uint64
	lastAccepted time.Time
}

// DropCounters aggregates per-reason drop counts.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	Stale       uint64 `json:"stale"`
	RateLimited uint64 `json:"rate_limited"`
}

// Metrics stores per-session drop counters for diagnostics.
type Metrics struct {
	mu    sync.RWMutex
	drops map[string]DropCounters
}

// newMetrics provisions an empty metrics container.
func newMetrics() *Metrics {
	return &Metrics{drops: make(map[string]DropCounters)}
}

// observe increments the counter for the supplied reason.
func (m *Metrics) observe(sessionID string, reason DropReason) {
	if m == nil || sessionID == "" || reason == DropReasonNone {
		return
	}
	//1.- Lock while mutating the counters so concurrent updates stay consistent.
	m.mu.Lock()
	current := m.drops[sessionID]
	switch reason {
	case DropReasonSequence:
		current.Sequence++
	case DropReasonStale:
		current.Stale++
	case DropReasonRateLimited:
		current.RateLimited++
	}
	m.drops[sessionID] = current
	m.mu.Unlock()
}

// snapshot returns a deep copy of the counters for external consumption.
func (m *Metrics) snapshot() map[string]DropCounters {
	if m == nil {
		return nil
	}
	//1.- Hold the read lock while cloning to avoid exposing internal maps.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.drops) == 0 {
		return nil
	}
	clone := make(map[string]DropCounters, len(m.drops))
	for sessionID, counters := range m.drops {
		clone[sessionID] = counters
	}
	return clone
}

// forget removes a session's counters when the connection closes.
func (m *Metrics) forget(sessionID string) {
	if m == nil || sessionID == "" {
		return
	}
	//1.- Drop the entry under lock so future snapshots omit stale sessions.
	m.mu.Lock()
	delete(m.drops, sessionID)
	m.mu.Unlock()
}

// Gate validates sequencing, freshness, and throughput for inbound intents.
type Gate struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	logger   *logging.Logger
	metrics  *Metrics
	sessions map[string]*sessionState
}

// Option customises gate construction.
type Option func(*Gate)

// WithClock overrides the clock used for latency calculations.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithMetrics injects a pre-built metrics container, enabling shared aggregation across gates.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gate) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGate constructs a gate with the supplied configuration and logger.
func NewGate(cfg Config, logger *logging.Logger, opts ...Option) *Gate {
	//1.- Normalise zero or negative intervals to disable the corresponding checks gracefully.
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	gate := &Gate{
		cfg:      cfg,
		clock:    systemClock{},
		logger:   logger,
		metrics:  newMetrics(),
		sessions: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	if gate.clock == nil {
		gate.clock = systemClock{}
	}
	if gate.metrics == nil {
		gate.metrics = newMetrics()
	}
	return gate
}

// Evaluate applies sequencing, freshness, and throughput guards to the intent.
func (g *Gate) Evaluate(stamp Stamp) Decision {
	decision := Decision{Accepted: true}
	if g == nil {
		return decision
	}
	if stamp.SessionID == "" {
		return decision
	}
	now := g.clock.Now()
	if !stamp.SentAt.IsZero() {
		//1.- Compute the wall-clock delay between capture and arrival for diagnostics.
		delay := now.Sub(stamp.SentAt)
		if delay < 0 {
			delay = 0
		}
		decision.Delay = delay
	}

	g.mu.Lock()
	state := g.sessions[stamp.SessionID]
	if state == nil {
		//2.- Track the newly observed session to enforce future sequencing and rate limits.
		state = &sessionState{}
		g.sessions[stamp.SessionID] = state
	}

	switch {
	case stamp.SequenceID == 0:
		decision = Decision{Accepted: false, Reason: DropReasonSequence, Delay: decision.Delay}
	case state.lastSequence == 0:
		//3.- The first intent for a session always passes the baseline checks.
		state.lastSequence = stamp.SequenceID
		state.lastAccepted = now
	default:
		if stamp.SequenceID <= state.lastSequence {
			decision = Decision{Accepted: false, Reason: DropReasonSequence, Delay: decision.Delay}
			break
		}
		interval := now.Sub(state.lastAccepted)
		if g.cfg.MinInterval > 0 && interval < g.cfg.MinInterval {
			decision = Decision{Accepted: false, Reason: DropReasonRateLimited, Delay: decision.Delay}
			break
		}

		if g.cfg.MaxAge > 0 {
			if decision.Delay > g.cfg.MaxAge && decision.Delay > 0 {
				decision = Decision{Accepted: false, Reason: DropReasonStale, Delay: decision.Delay}
				break
			}
			//4.- Estimate extra latency from the previous acceptance when capture timestamps are absent.
			if g.cfg.MinInterval > 0 {
				seqDelta := stamp.SequenceID - state.lastSequence
				expected := time.Duration(seqDelta) * g.cfg.MinInterval
				extra := interval - expected
				if extra > g.cfg.MaxAge {
					decision = Decision{Accepted: false, Reason: DropReasonStale, Delay: decision.Delay}
					break
				}
			}
		}

		//5.- Promote the intent as the latest accepted event when it passes all gates.
		state.lastSequence = stamp.SequenceID
		state.lastAccepted = now
	}
	g.mu.Unlock()

	if !decision.Accepted {
		g.metrics.observe(stamp.SessionID, decision.Reason)
		if g.logger != nil {
			g.logger.Debug("intent dropped",
				logging.String("session_id", stamp.SessionID),
				logging.String("reason", decision.Reason.String()),
				logging.Uint64("sequence_id", stamp.SequenceID),
			)
		}
	}
	return decision
}

// Forget clears cached sequencing and metrics for a closed session.
func (g *Gate) Forget(sessionID string) {
	if g == nil || sessionID == "" {
		return
	}
	//1.- Remove per-session sequencing state so a reconnect starts fresh.
	g.mu.Lock()
	delete(g.sessions, sessionID)
	g.mu.Unlock()
	g.metrics.forget(sessionID)
}

// Metrics returns a snapshot of the latest drop counters.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	return g.metrics.snapshot()
}
