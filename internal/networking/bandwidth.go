package networking

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultFrameBudgetBytesPerSecond caps per-session outbound throughput at
	// 64 kB/s, roughly three times the steady-state cost of 30 Hz JSON frames.
	DefaultFrameBudgetBytesPerSecond = 64000.0
)

// Usage captures the throttling state for a single session.
type Usage struct {
	SessionID      string
	AvailableBytes float64
	BytesPerSecond float64
	ObservedSecs   float64
	DeniedFrames   int64
	LastUpdated    time.Time
}

type budgetBucket struct {
	tokens float64
	last   time.Time
	window time.Time
	sent   int64
	denied int64
}

// Regulator enforces a token-bucket byte budget per session so one stalled or
// bursty viewer cannot monopolise the outbound socket. Denied frames are
// dropped, never queued; the next tick produces a fresher one anyway.
type Regulator struct {
	mu       sync.Mutex
	buckets  map[string]*budgetBucket
	capacity float64
	refill   float64
	now      func() time.Time
}

// NewRegulator constructs a regulator enforcing the supplied byte rate. A
// non-positive rate falls back to the default budget.
func NewRegulator(bytesPerSecond float64, clock func() time.Time) *Regulator {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultFrameBudgetBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &Regulator{
		buckets:  make(map[string]*budgetBucket),
		capacity: bytesPerSecond,
		refill:   bytesPerSecond,
		now:      clock,
	}
}

func (r *Regulator) replenish(bucket *budgetBucket, now time.Time) {
	if bucket == nil {
		return
	}
	//1.- Skip negative intervals so clock skew never drains the bucket.
	if now.Before(bucket.last) {
		return
	}
	elapsed := now.Sub(bucket.last).Seconds()
	if elapsed <= 0 {
		bucket.last = now
		return
	}
	bucket.tokens += elapsed * r.refill
	if bucket.tokens > r.capacity {
		bucket.tokens = r.capacity
	}
	bucket.last = now
}

// Allow charges the payload size against the session's byte budget and reports
// whether the frame may be sent.
func (r *Regulator) Allow(sessionID string, payloadBytes int) bool {
	if r == nil || sessionID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket := r.buckets[sessionID]
	if bucket == nil {
		//1.- Seed new sessions with a full bucket so the join burst passes.
		bucket = &budgetBucket{tokens: r.capacity, last: now, window: now}
		r.buckets[sessionID] = bucket
	}
	r.replenish(bucket, now)

	request := float64(payloadBytes)
	if request > bucket.tokens {
		bucket.denied++
		return false
	}

	bucket.tokens -= request
	bucket.sent += int64(payloadBytes)
	if bucket.window.IsZero() {
		bucket.window = now
	}
	return true
}

// Forget removes the token bucket for a closed session.
func (r *Regulator) Forget(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}
	r.mu.Lock()
	delete(r.buckets, sessionID)
	r.mu.Unlock()
}

// SnapshotUsage reports the latest throttling statistics per session.
func (r *Regulator) SnapshotUsage() map[string]Usage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buckets) == 0 {
		return nil
	}

	//1.- Refresh every bucket against the shared clock so the view is consistent.
	now := r.now()
	snapshot := make(map[string]Usage, len(r.buckets))
	for sessionID, bucket := range r.buckets {
		if bucket == nil {
			continue
		}
		r.replenish(bucket, now)

		observed := now.Sub(bucket.window).Seconds()
		if observed < 0 {
			observed = 0
		}
		rate := 0.0
		if observed > 0 {
			rate = float64(bucket.sent) / observed
		}

		snapshot[sessionID] = Usage{
			SessionID:      sessionID,
			AvailableBytes: math.Max(bucket.tokens, 0),
			BytesPerSecond: rate,
			ObservedSecs:   observed,
			DeniedFrames:   bucket.denied,
			LastUpdated:    bucket.last,
		}
	}
	return snapshot
}
