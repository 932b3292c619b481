package input

import (
	"math"
	"sync"
	"time"

	"wanderfield/simcore/internal/logging"
)

// ValidationReason identifies why an intent payload was rejected by the validator.
type ValidationReason string

const (
	ValidationReasonNone           ValidationReason = ""
	ValidationReasonNotFinite      ValidationReason = "not_finite"
	ValidationReasonAnalogRange    ValidationReason = "analog_range"
	ValidationReasonLookRate       ValidationReason = "look_rate"
	ValidationReasonZoomRate       ValidationReason = "zoom_rate"
	ValidationReasonViewportRange  ValidationReason = "viewport_range"
	ValidationReasonCooldownActive ValidationReason = "cooldown_active"
)

// Range defines the inclusive min/max for a floating point channel.
type Range struct {
	Min float64
	Max float64
}

// IntRange defines the inclusive min/max for an integer channel.
type IntRange struct {
	Min int
	Max int
}

// Channels captures the analogue payload of one intent. Absent channels stay
// zero and always pass, so a move intent and a resize intent share the type.
type Channels struct {
	AnalogX        float64
	AnalogZ        float64
	LookYaw        float64
	LookPitch      float64
	ZoomNotches    int
	ViewportWidth  int
	ViewportHeight int
	HasViewport    bool
}

// Constraints configures the validator's range and cooldown policies.
type Constraints struct {
	Analog             Range
	MaxLookDelta       float64
	MaxZoomNotches     int
	Viewport           IntRange
	InvalidBurstLimit  int
	InvalidBurstWindow time.Duration
	CooldownDuration   time.Duration
	MaxCooldownStrikes int
}

// ValidationDecision summarises the result of a Validate call.
type ValidationDecision struct {
	Accepted   bool
	Reason     ValidationReason
	Warn       bool
	Disconnect bool
	Cooldown   time.Duration
}

// ValidationCounters aggregates per-session violation statistics.
type ValidationCounters struct {
	Violations  map[ValidationReason]uint64 `json:"violations,omitempty"`
	Cooldowns   uint64                      `json:"cooldowns"`
	Disconnects uint64                      `json:"disconnects"`
}

// ValidatorOption customises validator construction.
type ValidatorOption func(*Validator)

// Validator enforces payload ranges and escalating cooldown behaviour.
type Validator struct {
	mu       sync.Mutex
	cfg      Constraints
	clock    Clock
	logger   *logging.Logger
	sessions map[string]*validatorSessionState
	metrics  map[string]ValidationCounters
}

type validatorSessionState struct {
	firstInvalid  time.Time
	invalidCount  int
	cooldownUntil time.Time
	strikes       int
}

// DefaultConstraints provides the tuned baseline for browser traffic.
var DefaultConstraints = Constraints{
	Analog:             Range{Min: -1.0, Max: 1.0},
	MaxLookDelta:       0.6,
	MaxZoomNotches:     8,
	Viewport:           IntRange{Min: 1, Max: 16384},
	InvalidBurstLimit:  5,
	InvalidBurstWindow: time.Second,
	CooldownDuration:   500 * time.Millisecond,
	MaxCooldownStrikes: 3,
}

// WithValidatorClock overrides the clock used to determine cooldown windows.
func WithValidatorClock(clock Clock) ValidatorOption {
	return func(v *Validator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewValidator builds a validator with the supplied constraints and logger.
func NewValidator(cfg Constraints, logger *logging.Logger, opts ...ValidatorOption) *Validator {
	//1.- Backfill unset policies from the defaults so callers can configure sparsely.
	if cfg.InvalidBurstLimit <= 0 {
		cfg.InvalidBurstLimit = DefaultConstraints.InvalidBurstLimit
	}
	if cfg.InvalidBurstWindow <= 0 {
		cfg.InvalidBurstWindow = DefaultConstraints.InvalidBurstWindow
	}
	if cfg.CooldownDuration <= 0 {
		cfg.CooldownDuration = DefaultConstraints.CooldownDuration
	}
	if cfg.MaxCooldownStrikes <= 0 {
		cfg.MaxCooldownStrikes = DefaultConstraints.MaxCooldownStrikes
	}
	if cfg.Analog == (Range{}) {
		cfg.Analog = DefaultConstraints.Analog
	}
	if cfg.MaxLookDelta <= 0 {
		cfg.MaxLookDelta = DefaultConstraints.MaxLookDelta
	}
	if cfg.MaxZoomNotches <= 0 {
		cfg.MaxZoomNotches = DefaultConstraints.MaxZoomNotches
	}
	if cfg.Viewport == (IntRange{}) {
		cfg.Viewport = DefaultConstraints.Viewport
	}
	validator := &Validator{
		cfg:      cfg,
		clock:    systemClock{},
		logger:   logger,
		sessions: make(map[string]*validatorSessionState),
		metrics:  make(map[string]ValidationCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(validator)
		}
	}
	if validator.clock == nil {
		validator.clock = systemClock{}
	}
	return validator
}

// Validate checks the supplied channels and records any violations.
func (v *Validator) Validate(sessionID string, channels Channels) ValidationDecision {
	//1.- Assume acceptance when the validator is absent to reduce call sites.
	if v == nil {
		return ValidationDecision{Accepted: true}
	}
	now := v.clock.Now()

	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.ensureStateLocked(sessionID)

	if !state.cooldownUntil.IsZero() && now.Before(state.cooldownUntil) {
		remaining := state.cooldownUntil.Sub(now)
		return ValidationDecision{Accepted: false, Reason: ValidationReasonCooldownActive, Cooldown: remaining}
	}

	if reason := v.checkChannelsLocked(channels); reason != ValidationReasonNone {
		return v.registerViolationLocked(sessionID, state, now, reason)
	}

	//2.- A clean payload resets the burst counter so honest jitter never escalates.
	state.invalidCount = 0
	state.firstInvalid = time.Time{}
	return ValidationDecision{Accepted: true}
}

// Forget clears all state for the specified session.
func (v *Validator) Forget(sessionID string) {
	if v == nil || sessionID == "" {
		return
	}
	v.mu.Lock()
	delete(v.sessions, sessionID)
	delete(v.metrics, sessionID)
	v.mu.Unlock()
}

// Metrics returns a snapshot of per-session counters for diagnostics.
func (v *Validator) Metrics() map[string]ValidationCounters {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.metrics) == 0 {
		return nil
	}
	snapshot := make(map[string]ValidationCounters, len(v.metrics))
	for sessionID, counters := range v.metrics {
		clone := ValidationCounters{Cooldowns: counters.Cooldowns, Disconnects: counters.Disconnects}
		if len(counters.Violations) > 0 {
			clone.Violations = make(map[ValidationReason]uint64, len(counters.Violations))
			for reason, count := range counters.Violations {
				clone.Violations[reason] = count
			}
		}
		snapshot[sessionID] = clone
	}
	return snapshot
}

func (v *Validator) ensureStateLocked(sessionID string) *validatorSessionState {
	state := v.sessions[sessionID]
	if state == nil {
		state = &validatorSessionState{}
		v.sessions[sessionID] = state
	}
	return state
}

func (v *Validator) registerViolationLocked(sessionID string, state *validatorSessionState, now time.Time, reason ValidationReason) ValidationDecision {
	counters := v.metrics[sessionID]
	if counters.Violations == nil {
		counters.Violations = make(map[ValidationReason]uint64)
	}
	counters.Violations[reason]++
	v.metrics[sessionID] = counters

	decision := ValidationDecision{Accepted: false, Reason: reason}

	window := v.cfg.InvalidBurstWindow
	limit := v.cfg.InvalidBurstLimit
	if limit > 0 {
		if state.invalidCount == 0 || now.Sub(state.firstInvalid) > window {
			state.firstInvalid = now
			state.invalidCount = 1
		} else {
			state.invalidCount++
		}
		remaining := limit - state.invalidCount
		if remaining <= 1 {
			decision.Warn = remaining == 1
		}
		if state.invalidCount >= limit {
			state.cooldownUntil = now.Add(v.cfg.CooldownDuration)
			state.invalidCount = 0
			state.firstInvalid = time.Time{}
			state.strikes++
			counters = v.metrics[sessionID]
			counters.Cooldowns++
			if state.strikes >= v.cfg.MaxCooldownStrikes {
				decision.Disconnect = true
				counters.Disconnects++
			}
			v.metrics[sessionID] = counters
			decision.Cooldown = v.cfg.CooldownDuration
			if v.logger != nil {
				v.logger.Debug("intent validator cooldown",
					logging.String("session_id", sessionID),
					logging.String("reason", string(reason)),
					logging.Int64("cooldown_ms", v.cfg.CooldownDuration.Milliseconds()),
				)
			}
		}
	}
	return decision
}

func (v *Validator) checkChannelsLocked(channels Channels) ValidationReason {
	//1.- Reject non-finite floats before range checks; NaN slips past comparisons.
	for _, value := range []float64{channels.AnalogX, channels.AnalogZ, channels.LookYaw, channels.LookPitch} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return ValidationReasonNotFinite
		}
	}
	if r := v.cfg.Analog; channels.AnalogX < r.Min || channels.AnalogX > r.Max || channels.AnalogZ < r.Min || channels.AnalogZ > r.Max {
		return ValidationReasonAnalogRange
	}
	if limit := v.cfg.MaxLookDelta; math.Abs(channels.LookYaw) > limit || math.Abs(channels.LookPitch) > limit {
		return ValidationReasonLookRate
	}
	if limit := v.cfg.MaxZoomNotches; channels.ZoomNotches > limit || channels.ZoomNotches < -limit {
		return ValidationReasonZoomRate
	}
	if channels.HasViewport {
		if r := v.cfg.Viewport; channels.ViewportWidth < r.Min || channels.ViewportWidth > r.Max ||
			channels.ViewportHeight < r.Min || channels.ViewportHeight > r.Max {
			return ValidationReasonViewportRange
		}
	}
	return ValidationReasonNone
}
