package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"wanderfield/simcore/internal/interact"
)

// Kind enumerates the session event payloads carried by the stream.
type Kind string

const (
	KindHover    Kind = "hover"
	KindUnhover  Kind = "unhover"
	KindTarget   Kind = "target"
	KindNearby   Kind = "nearby"
	KindInteract Kind = "interact"
	KindRespawn  Kind = "respawn"
	KindTeleport Kind = "teleport"
)

// TargetPayload names the marker a hover, target, or interact event refers to.
// An empty MarkerID on a target event means the selection was cleared.
type TargetPayload struct {
	MarkerID string            `json:"marker_id,omitempty"`
	Metadata interact.Metadata `json:"metadata"`
}

// NearbyPayload lists the markers currently in range, nearest first.
type NearbyPayload struct {
	MarkerIDs []string `json:"marker_ids"`
}

// MotionPayload reports a forced character relocation.
type MotionPayload struct {
	Position [3]float64 `json:"position"`
	PortalID string     `json:"portal_id,omitempty"`
}

// Envelope carries one event payload together with sequencing metadata.
type Envelope struct {
	Sequence uint64         `json:"sequence"`
	Kind     Kind           `json:"kind"`
	Target   *TargetPayload `json:"target,omitempty"`
	Nearby   *NearbyPayload `json:"nearby,omitempty"`
	Motion   *MotionPayload `json:"motion,omitempty"`
}

// Clone duplicates the envelope so consumers can mutate their copy safely.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Target != nil {
		target := *e.Target
		if e.Target.Metadata.PortalTarget != nil {
			portalTarget := *e.Target.Metadata.PortalTarget
			target.Metadata.PortalTarget = &portalTarget
		}
		clone.Target = &target
	}
	if e.Nearby != nil {
		nearby := NearbyPayload{MarkerIDs: append([]string(nil), e.Nearby.MarkerIDs...)}
		clone.Nearby = &nearby
	}
	if e.Motion != nil {
		motion := *e.Motion
		clone.Motion = &motion
	}
	return &clone
}

// Config controls the retention policy for the stream log and subscriber buffers.
type Config struct {
	Retain int
}

// Default retention keeps the last 256 events if no explicit value is provided.
const defaultRetention = 256

// Stream coordinates ordered event delivery with at-least-once semantics per subscriber.
type Stream struct {
	mu          sync.Mutex
	nextSeq     uint64
	retention   int
	logOrder    []uint64
	logPayloads map[uint64]*Envelope
	subscribers map[string]*subscriberState
}

// subscriberState persists acknowledgement state between transient connections.
type subscriberState struct {
	id      string
	pending []uint64
	lastAck uint64
	ch      chan *Envelope
	active  bool
}

// Subscription exposes the event channel and acknowledgement helpers for a subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events <-chan *Envelope
	once   sync.Once
}

// ErrOutOfOrderAck signals that a subscriber attempted to acknowledge future sequences.
var ErrOutOfOrderAck = errors.New("ack sequence must match the next pending event")

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Stream{
		retention:   retention,
		logPayloads: make(map[uint64]*Envelope),
		subscribers: make(map[string]*subscriberState),
	}
}

// Subscribe attaches the logical subscriber to the stream and replays outstanding events.
func (s *Stream) Subscribe(ctx context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, errors.New("nil stream")
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = 32
	}

	s.mu.Lock()
	state := s.ensureSubscriberLocked(subscriberID)
	replay := s.collectReplayLocked(state)
	ch := make(chan *Envelope, buffer)
	state.ch = ch
	state.active = true
	state.pending = append([]uint64(nil), replay...)
	deliveries := s.prepareDeliveriesLocked(replay)
	s.mu.Unlock()

	go func() {
		// 1.- Replay any outstanding events immediately after subscription.
		for _, env := range deliveries {
			select {
			case <-ctx.Done():
				return
			case ch <- env:
			}
		}
	}()

	return &Subscription{id: subscriberID, stream: s, events: ch}, nil
}

// Events exposes the ordered delivery channel for the subscriber.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// Ack informs the stream that the subscriber processed the given sequence.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close marks the subscription as inactive while preserving acknowledgement state.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() {
		s.stream.deactivateSubscriber(s.id)
	})
}

func (s *Stream) ensureSubscriberLocked(subscriberID string) *subscriberState {
	state, ok := s.subscribers[subscriberID]
	if !ok {
		state = &subscriberState{id: subscriberID}
		s.subscribers[subscriberID] = state
	}
	return state
}

func (s *Stream) collectReplayLocked(state *subscriberState) []uint64 {
	// 1.- When a subscriber reconnects we must replay any sequence greater than lastAck.
	replay := state.pending[:0]
	for _, seq := range s.logOrder {
		if seq <= state.lastAck {
			continue
		}
		replay = append(replay, seq)
	}
	return append([]uint64(nil), replay...)
}

func (s *Stream) prepareDeliveriesLocked(sequences []uint64) []*Envelope {
	deliveries := make([]*Envelope, 0, len(sequences))
	for _, seq := range sequences {
		if payload, ok := s.logPayloads[seq]; ok {
			deliveries = append(deliveries, payload.Clone())
		}
	}
	return deliveries
}

// PublishHover enqueues a hover notification for the named marker.
func (s *Stream) PublishHover(target TargetPayload) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if target.MarkerID == "" {
		return 0, errors.New("hover requires a marker id")
	}
	return s.publishEnvelope(&Envelope{Kind: KindHover, Target: &target})
}

// PublishUnhover enqueues an unhover notification for the named marker.
func (s *Stream) PublishUnhover(target TargetPayload) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if target.MarkerID == "" {
		return 0, errors.New("unhover requires a marker id")
	}
	return s.publishEnvelope(&Envelope{Kind: KindUnhover, Target: &target})
}

// PublishTarget enqueues a selection change; a nil target clears the selection.
func (s *Stream) PublishTarget(target *TargetPayload) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if target == nil {
		target = &TargetPayload{}
	}
	return s.publishEnvelope(&Envelope{Kind: KindTarget, Target: target})
}

// PublishNearby enqueues the in-range marker set, nearest first.
func (s *Stream) PublishNearby(markerIDs []string) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	payload := &NearbyPayload{MarkerIDs: append([]string(nil), markerIDs...)}
	return s.publishEnvelope(&Envelope{Kind: KindNearby, Nearby: payload})
}

// PublishInteract enqueues a triggered interaction on the named marker.
func (s *Stream) PublishInteract(target TargetPayload) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if target.MarkerID == "" {
		return 0, errors.New("interact requires a marker id")
	}
	return s.publishEnvelope(&Envelope{Kind: KindInteract, Target: &target})
}

// PublishRespawn enqueues a fall-recovery relocation to the given position.
func (s *Stream) PublishRespawn(position [3]float64) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	return s.publishEnvelope(&Envelope{Kind: KindRespawn, Motion: &MotionPayload{Position: position}})
}

// PublishTeleport enqueues a portal relocation to the given position.
func (s *Stream) PublishTeleport(position [3]float64, portalID string) (uint64, error) {
	if s == nil {
		return 0, errors.New("nil stream")
	}
	if portalID == "" {
		return 0, errors.New("teleport requires a portal id")
	}
	return s.publishEnvelope(&Envelope{Kind: KindTeleport, Motion: &MotionPayload{Position: position, PortalID: portalID}})
}

func (s *Stream) publishEnvelope(envelope *Envelope) (uint64, error) {
	if envelope == nil {
		return 0, errors.New("envelope required")
	}

	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	envelope.Sequence = seq
	s.logPayloads[seq] = envelope
	s.logOrder = append(s.logOrder, seq)

	deliveries := make([]delivery, 0, len(s.subscribers))
	for _, state := range s.subscribers {
		state.pending = append(state.pending, seq)
		if state.active && state.ch != nil {
			deliveries = append(deliveries, delivery{ch: state.ch, payload: envelope.Clone()})
		}
	}
	s.enforceRetentionLocked()
	s.mu.Unlock()

	for _, item := range deliveries {
		// 1.- Deliver asynchronously to avoid blocking the publisher on slow subscribers.
		select {
		case item.ch <- item.payload:
		default:
		}
	}

	return seq, nil
}

type delivery struct {
	ch      chan<- *Envelope
	payload *Envelope
}

func (s *Stream) enforceRetentionLocked() {
	// 1.- Determine the lowest acknowledgement across subscribers to retain necessary history.
	if len(s.logOrder) <= s.retention {
		return
	}
	minAck := s.nextSeq
	for _, state := range s.subscribers {
		if state.lastAck < minAck {
			minAck = state.lastAck
		}
	}
	cutoff := uint64(0)
	if len(s.logOrder) > s.retention {
		cutoff = s.logOrder[len(s.logOrder)-s.retention]
	}
	pruneBefore := minAck
	if cutoff < pruneBefore {
		pruneBefore = cutoff
	}
	if pruneBefore == 0 {
		return
	}
	idx := sort.Search(len(s.logOrder), func(i int) bool { return s.logOrder[i] > pruneBefore })
	for _, seq := range s.logOrder[:idx] {
		delete(s.logPayloads, seq)
	}
	s.logOrder = append([]uint64(nil), s.logOrder[idx:]...)
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.subscribers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	if len(state.pending) == 0 {
		if sequence <= state.lastAck {
			return nil
		}
		return ErrOutOfOrderAck
	}
	expected := state.pending[0]
	if sequence != expected {
		return ErrOutOfOrderAck
	}
	state.pending = state.pending[1:]
	state.lastAck = sequence
	s.enforceRetentionLocked()
	return nil
}

func (s *Stream) deactivateSubscriber(subscriberID string) {
	s.mu.Lock()
	state, ok := s.subscribers[subscriberID]
	if ok {
		state.active = false
		if state.ch != nil {
			close(state.ch)
			state.ch = nil
		}
	}
	s.mu.Unlock()
}
