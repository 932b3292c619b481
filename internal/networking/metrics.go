package networking

import "sync"

// DropCause classifies why an outbound frame never reached the viewer.
type DropCause string

const (
	// DropCauseBackpressure marks frames discarded because the socket send
	// queue was full when the tick produced them.
	DropCauseBackpressure DropCause = "backpressure"
	// DropCauseBudget marks frames discarded by the bandwidth regulator.
	DropCauseBudget DropCause = "budget"
)

// DeliverySample reports the frame delivery counters for one session.
type DeliverySample struct {
	Sent      uint64               `json:"sent"`
	LastBytes int                  `json:"last_bytes"`
	Dropped   map[DropCause]uint64 `json:"dropped,omitempty"`
}

// DroppedTotal sums the drop counters across causes.
func (s DeliverySample) DroppedTotal() uint64 {
	var total uint64
	for _, count := range s.Dropped {
		total += count
	}
	return total
}

// DeliveryMetrics tracks per-session frame delivery outcomes for the status
// endpoint and capture tooling.
type DeliveryMetrics struct {
	mu      sync.RWMutex
	samples map[string]*DeliverySample
}

// NewDeliveryMetrics constructs an empty delivery tracker.
func NewDeliveryMetrics() *DeliveryMetrics {
	return &DeliveryMetrics{samples: make(map[string]*DeliverySample)}
}

func (m *DeliveryMetrics) sampleLocked(sessionID string) *DeliverySample {
	sample := m.samples[sessionID]
	if sample == nil {
		sample = &DeliverySample{}
		m.samples[sessionID] = sample
	}
	return sample
}

// ObserveSent records a successfully queued frame and its encoded size.
func (m *DeliveryMetrics) ObserveSent(sessionID string, payloadBytes int) {
	if m == nil || sessionID == "" {
		return
	}
	if payloadBytes < 0 {
		payloadBytes = 0
	}
	m.mu.Lock()
	sample := m.sampleLocked(sessionID)
	sample.Sent++
	sample.LastBytes = payloadBytes
	m.mu.Unlock()
}

// ObserveDrop records a frame discarded for the supplied cause.
func (m *DeliveryMetrics) ObserveDrop(sessionID string, cause DropCause) {
	if m == nil || sessionID == "" || cause == "" {
		return
	}
	m.mu.Lock()
	sample := m.sampleLocked(sessionID)
	if sample.Dropped == nil {
		sample.Dropped = make(map[DropCause]uint64)
	}
	sample.Dropped[cause]++
	m.mu.Unlock()
}

// Forget removes the counters for a closed session.
func (m *DeliveryMetrics) Forget(sessionID string) {
	if m == nil || sessionID == "" {
		return
	}
	m.mu.Lock()
	delete(m.samples, sessionID)
	m.mu.Unlock()
}

// Snapshot returns a deep copy of every session's counters.
func (m *DeliveryMetrics) Snapshot() map[string]DeliverySample {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.samples) == 0 {
		return nil
	}
	//1.- Clone the drop maps so callers cannot mutate live counters.
	out := make(map[string]DeliverySample, len(m.samples))
	for sessionID, sample := range m.samples {
		clone := DeliverySample{Sent: sample.Sent, LastBytes: sample.LastBytes}
		if len(sample.Dropped) > 0 {
			clone.Dropped = make(map[DropCause]uint64, len(sample.Dropped))
			for cause, count := range sample.Dropped {
				clone.Dropped[cause] = count
			}
		}
		out[sessionID] = clone
	}
	return out
}
