package simulation

import (
	"context"
	"sync"
	"time"
)

// TickFunc receives the wall-clock time elapsed since the previous tick.
type TickFunc func(elapsed time.Duration)

// Loop paces a session at a fixed tick rate. Catching up after a slow tick is
// the physics accumulator's job; the loop only reports real elapsed time.
type Loop struct {
	interval time.Duration
	tick     TickFunc
	ticker   *time.Ticker
	stop     chan struct{}
	done     chan struct{}
	halt     sync.Once
}

// NewLoop configures a loop that fires at the provided ticks per second.
func NewLoop(tickHz float64, tick TickFunc) *Loop {
	if tickHz <= 0 {
		tickHz = 60
	}
	if tick == nil {
		tick = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / tickHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &Loop{interval: interval, tick: tick}
}

// Start begins ticking until the context is cancelled or Stop is invoked.
// Start may be called at most once.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.tick == nil {
		return
	}

	l.ticker = time.NewTicker(l.interval)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer l.ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case now := <-l.ticker.C:
				//1.- Report the real elapsed time; a late tick arrives long instead of stacking.
				l.tick(now.Sub(last))
				last = now
			}
		}
	}()
}

// Stop halts the ticker and waits for the loop goroutine to exit.
func (l *Loop) Stop() {
	if l == nil || l.stop == nil {
		return
	}
	l.halt.Do(func() { close(l.stop) })
	<-l.done
}

// Interval exposes the configured tick interval.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
