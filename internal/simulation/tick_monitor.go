package simulation

import (
	"sync"
	"time"
)

// TickStats summarises observed tick durations for one session.
type TickStats struct {
	Samples  int
	Average  time.Duration
	Max      time.Duration
	Last     time.Duration
	Overruns int
}

// AverageHz derives the tick rate equivalent of the average duration.
func (s TickStats) AverageHz() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// Monitor accumulates tick timing statistics against a per-tick budget.
type Monitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewMonitor constructs an empty monitor. A zero budget disables overrun
// counting.
func NewMonitor(budget time.Duration) *Monitor {
	if budget < 0 {
		budget = 0
	}
	return &Monitor{budget: budget}
}

// Observe records the duration of one completed tick.
func (m *Monitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	//1.- Aggregate the count and total so the average stays one division away.
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	//2.- Ticks that blow the budget are the signal operators watch for.
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *Monitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	stats := TickStats{
		Samples:  m.samples,
		Max:      m.max,
		Last:     m.last,
		Overruns: m.overruns,
	}
	total := m.total
	m.mu.Unlock()

	if stats.Samples > 0 {
		stats.Average = total / time.Duration(stats.Samples)
	}
	return stats
}
