package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wanderfield/simcore/internal/capture"
	"wanderfield/simcore/internal/simulation"
)

// errSessionCapacity signals that every visitor slot is taken.
var errSessionCapacity = errors.New("session capacity reached")

// sessionSlot bundles one visitor's isolated session with its connection-time
// metadata and optional capture recorder. close severs the underlying socket
// so shutdown can unblock the connection handler.
type sessionSlot struct {
	session  *simulation.Session
	recorder *capture.Recorder
	subject  string
	joined   time.Time
	close    func()
}

// SessionRegistry tracks per-visitor sessions under a capacity bound. The
// reserve/commit split lets the world build run outside the lock while the
// joining visitor still counts against capacity.
type SessionRegistry struct {
	mu      sync.RWMutex
	limit   int
	slots   map[string]*sessionSlot
	pending map[string]struct{}
}

func newSessionRegistry(limit int) *SessionRegistry {
	if limit < 0 {
		limit = 0
	}
	return &SessionRegistry{
		limit:   limit,
		slots:   make(map[string]*sessionSlot),
		pending: make(map[string]struct{}),
	}
}

// Reserve claims a slot for the session id before its world is built.
func (r *SessionRegistry) Reserve(id string) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("session id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.slots[trimmed]; ok {
		return fmt.Errorf("session %q already active", trimmed)
	}
	if _, ok := r.pending[trimmed]; ok {
		return fmt.Errorf("session %q already joining", trimmed)
	}
	//1.- Reservations count against capacity so parallel joins cannot overshoot.
	if r.limit > 0 && len(r.slots)+len(r.pending) >= r.limit {
		return errSessionCapacity
	}
	r.pending[trimmed] = struct{}{}
	return nil
}

// Commit promotes a reservation into an active slot.
func (r *SessionRegistry) Commit(id string, slot *sessionSlot) {
	if r == nil || slot == nil || slot.session == nil {
		return
	}
	r.mu.Lock()
	delete(r.pending, id)
	r.slots[id] = slot
	r.mu.Unlock()
}

// Abort releases a reservation whose session never materialised.
func (r *SessionRegistry) Abort(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.pending, id)
	r.mu.Unlock()
}

// Remove evicts the slot and returns it so the caller can tear it down
// outside the lock.
func (r *SessionRegistry) Remove(id string) *sessionSlot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	slot := r.slots[id]
	delete(r.slots, id)
	delete(r.pending, id)
	r.mu.Unlock()
	return slot
}

// Get returns the active slot for the session id, if any.
func (r *SessionRegistry) Get(id string) *sessionSlot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[id]
}

// Counts reports the active and joining session totals.
func (r *SessionRegistry) Counts() (active, pending int) {
	if r == nil {
		return 0, 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots), len(r.pending)
}

// Slots returns the active slots ordered by session id so status reports stay
// deterministic.
func (r *SessionRegistry) Slots() []*sessionSlot {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]string, 0, len(r.slots))
	for id := range r.slots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*sessionSlot, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.slots[id])
	}
	r.mu.RUnlock()
	return out
}

// Drain removes every slot at once for shutdown teardown.
func (r *SessionRegistry) Drain() []*sessionSlot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]*sessionSlot, 0, len(r.slots))
	for _, slot := range r.slots {
		out = append(out, slot)
	}
	r.slots = make(map[string]*sessionSlot)
	r.pending = make(map[string]struct{})
	r.mu.Unlock()
	return out
}
