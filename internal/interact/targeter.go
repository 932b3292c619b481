package interact

import (
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultRadius is the interaction reach around the player, in world units.
	DefaultRadius = 5.0
	// DefaultCooldown spaces successful interaction triggers apart.
	DefaultCooldown = 300 * time.Millisecond
	// DefaultFlagDelay controls how long the transient interacting flag stays set.
	DefaultFlagDelay = 100 * time.Millisecond
)

// farPenalty disqualifies candidates more than a quarter turn off the player
// forward without removing them from the nearby set.
const farPenalty = 1000.0

const epsilon = 1e-9

// Metadata describes an interactable for payload building. Portal fields are
// present only on portal markers.
type Metadata struct {
	Kind         string      `json:"kind"`
	ZoneID       string      `json:"zone_id,omitempty"`
	ProjectID    string      `json:"project_id,omitempty"`
	PortalID     string      `json:"portal_id,omitempty"`
	PortalTarget *[3]float64 `json:"portal_target,omitempty"`
}

// Interactable is a world marker the targeter can select. Implementations are
// supplied by the environment; the targeter only reads position and metadata.
type Interactable interface {
	ID() string
	WorldPosition() mgl64.Vec3
	Metadata() Metadata
}

// Payload is emitted when an interaction trigger succeeds.
type Payload struct {
	TargetID string   `json:"target_id"`
	Metadata Metadata `json:"metadata"`
}

// Events carries the observer callbacks fired by the targeter. Nil callbacks
// are skipped. On a target change the order is unhover, hover, target-changed.
type Events struct {
	Hover         func(Interactable)
	Unhover       func(Interactable)
	TargetChanged func(Interactable)
	NearbyChanged func([]Interactable)
	Interact      func(Payload)
}

// Options configure a Targeter.
type Options struct {
	Radius    float64
	Cooldown  time.Duration
	FlagDelay time.Duration
	Now       func() time.Time
	Events    Events
}

// Targeter scores interactables around the player and owns target selection.
type Targeter struct {
	radius    float64
	cooldown  time.Duration
	flagDelay time.Duration
	now       func() time.Time
	events    Events

	candidates       []Interactable
	nearby           []Interactable
	current          Interactable
	lastTrigger      time.Time
	interactingUntil time.Time
}

// NewTargeter constructs a targeter, filling unset options with defaults.
func NewTargeter(opts Options) *Targeter {
	if opts.Radius <= 0 {
		opts.Radius = DefaultRadius
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.FlagDelay <= 0 {
		opts.FlagDelay = DefaultFlagDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Targeter{
		radius:    opts.Radius,
		cooldown:  opts.Cooldown,
		flagDelay: opts.FlagDelay,
		now:       opts.Now,
		events:    opts.Events,
	}
}

// SetInteractables replaces the candidate list wholesale.
func (t *Targeter) SetInteractables(list []Interactable) {
	if t == nil {
		return
	}
	t.candidates = make([]Interactable, 0, len(list))
	for _, item := range list {
		if item != nil {
			t.candidates = append(t.candidates, item)
		}
	}
}

// Radius returns the interaction reach.
func (t *Targeter) Radius() float64 {
	if t == nil {
		return 0
	}
	return t.radius
}

// CurrentTarget returns the selected interactable, or nil when none qualifies.
func (t *Targeter) CurrentTarget() Interactable {
	if t == nil {
		return nil
	}
	return t.current
}

// HasNearby reports whether any interactable sits inside the radius.
func (t *Targeter) HasNearby() bool {
	return t != nil && len(t.nearby) > 0
}

// Nearby returns a copy of the current distance-ordered nearby set.
func (t *Targeter) Nearby() []Interactable {
	if t == nil || len(t.nearby) == 0 {
		return nil
	}
	out := make([]Interactable, len(t.nearby))
	copy(out, t.nearby)
	return out
}

// Interacting reports whether the transient interaction flag is still set.
func (t *Targeter) Interacting() bool {
	if t == nil || t.interactingUntil.IsZero() {
		return false
	}
	return t.now().Before(t.interactingUntil)
}

type candidateEntry struct {
	item     Interactable
	distance float64
}

// Update recomputes the nearby set and the current target for this frame.
func (t *Targeter) Update(playerPos, playerForward mgl64.Vec3) {
	if t == nil {
		return
	}
	//1.- Expire the transient interacting flag by deadline, on the tick.
	if !t.interactingUntil.IsZero() && !t.now().Before(t.interactingUntil) {
		t.interactingUntil = time.Time{}
	}

	//2.- Filter by world distance, then order by distance with a stable sort.
	entries := make([]candidateEntry, 0, len(t.candidates))
	for _, item := range t.candidates {
		distance := item.WorldPosition().Sub(playerPos).Len()
		if distance <= t.radius {
			entries = append(entries, candidateEntry{item: item, distance: distance})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].distance < entries[j].distance })

	//3.- Only announce the nearby set when membership or order actually changed.
	changed := len(entries) != len(t.nearby)
	if !changed {
		for i := range entries {
			if entries[i].item != t.nearby[i] {
				changed = true
				break
			}
		}
	}
	if changed {
		t.nearby = make([]Interactable, len(entries))
		for i, entry := range entries {
			t.nearby[i] = entry.item
		}
		if t.events.NearbyChanged != nil {
			t.events.NearbyChanged(t.Nearby())
		}
	}

	//4.- Score the nearby set and keep the cheapest candidate under the threshold.
	var best Interactable
	bestScore := math.MaxFloat64
	forwardLen := playerForward.Len()
	for _, entry := range entries {
		score := entry.distance + t.penalty(playerPos, playerForward, forwardLen, entry)
		if score < bestScore {
			bestScore = score
			best = entry.item
		}
	}
	if bestScore >= 2*t.radius {
		best = nil
	}

	//5.- Unhover before hover before the change notification.
	if best != t.current {
		if t.current != nil && t.events.Unhover != nil {
			t.events.Unhover(t.current)
		}
		if best != nil && t.events.Hover != nil {
			t.events.Hover(best)
		}
		t.current = best
		if t.events.TargetChanged != nil {
			t.events.TargetChanged(best)
		}
	}
}

func (t *Targeter) penalty(playerPos, playerForward mgl64.Vec3, forwardLen float64, entry candidateEntry) float64 {
	if entry.distance <= epsilon || forwardLen <= epsilon {
		return 0
	}
	direction := entry.item.WorldPosition().Sub(playerPos)
	cos := playerForward.Dot(direction) / (forwardLen * entry.distance)
	//1.- Clamp before acos so opposite vectors cannot produce NaN.
	angle := math.Acos(mgl64.Clamp(cos, -1, 1))
	if angle > math.Pi/2 {
		return farPenalty
	}
	return angle * 2
}

// TryInteract fires the interact payload for the current target, subject to
// the cooldown. It reports whether an interaction was emitted.
func (t *Targeter) TryInteract() bool {
	if t == nil || t.current == nil {
		return false
	}
	now := t.now()
	//1.- Timestamp comparison, not a timer: calls inside the cooldown are rejected.
	if !t.lastTrigger.IsZero() && now.Sub(t.lastTrigger) < t.cooldown {
		return false
	}
	t.lastTrigger = now
	t.interactingUntil = now.Add(t.flagDelay)
	if t.events.Interact != nil {
		t.events.Interact(Payload{TargetID: t.current.ID(), Metadata: t.current.Metadata()})
	}
	return true
}
