package main

import (
	"encoding/json"
	"sync"

	"wanderfield/simcore/internal/capture"
	"wanderfield/simcore/internal/events"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/networking"
	"wanderfield/simcore/internal/simulation"
)

// wireSchemaVersion tags every message exchanged with the viewer. Intents
// carrying a different version are rejected.
const wireSchemaVersion = "wanderfield.v1"

const (
	messageTypeWelcome = "welcome"
	messageTypeFrame   = "frame"
	messageTypeEvent   = "event"
)

// welcomeMessage greets a new viewer with everything required to render the
// first frame and address later intents.
type welcomeMessage struct {
	Type          string     `json:"type"`
	SchemaVersion string     `json:"schema_version"`
	SessionID     string     `json:"session_id"`
	World         string     `json:"world"`
	Spawn         [3]float64 `json:"spawn"`
	TickHz        int        `json:"tick_hz"`
	FrameHz       int        `json:"frame_hz"`
}

// frameMessage wraps one frame snapshot with its wire type tag.
type frameMessage struct {
	Type string `json:"type"`
	simulation.Frame
}

// eventMessage wraps one event envelope with its wire type tag.
type eventMessage struct {
	Type string `json:"type"`
	*events.Envelope
}

// outbox is the single-writer send queue for one viewer connection. Frames go
// through TryEnqueue and drop when the queue is full; ordered messages use
// Enqueue and wait for space.
type outbox struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func newOutbox(depth int) *outbox {
	if depth <= 0 {
		depth = 32
	}
	return &outbox{ch: make(chan []byte, depth), closed: make(chan struct{})}
}

// TryEnqueue queues the payload unless the queue is full or closed.
func (o *outbox) TryEnqueue(payload []byte) bool {
	if o == nil {
		return false
	}
	select {
	case <-o.closed:
		return false
	default:
	}
	select {
	case o.ch <- payload:
		return true
	default:
		return false
	}
}

// Enqueue blocks until the payload is queued or the outbox closes.
func (o *outbox) Enqueue(payload []byte) bool {
	if o == nil {
		return false
	}
	select {
	case <-o.closed:
		return false
	default:
	}
	select {
	case o.ch <- payload:
		return true
	case <-o.closed:
		return false
	}
}

// Close wakes blocked senders and marks the queue dead. Payloads already
// queued stay readable so the write pump can drain them.
func (o *outbox) Close() {
	if o == nil {
		return
	}
	o.once.Do(func() { close(o.closed) })
}

// Messages exposes the queued payloads for the write pump.
func (o *outbox) Messages() <-chan []byte {
	if o == nil {
		return nil
	}
	return o.ch
}

// Done reports when the outbox has been closed.
func (o *outbox) Done() <-chan struct{} {
	if o == nil {
		return nil
	}
	return o.closed
}

// deliverFrame records, encodes, budgets and queues one frame snapshot. The
// session loop calls this inline, so every path must stay non-blocking.
func (s *Server) deliverFrame(sessionID string, frame simulation.Frame, box *outbox, recorder *capture.Recorder) {
	if s == nil {
		return
	}
	if recorder != nil {
		//1.- Captures see every frame, including ones the socket later drops.
		recorder.RecordFrame(frame)
	}
	payload, err := json.Marshal(frameMessage{Type: messageTypeFrame, Frame: frame})
	if err != nil {
		s.log.Warn("frame encode failed", logging.Error(err))
		return
	}
	if s.regulator != nil && !s.regulator.Allow(sessionID, len(payload)) {
		s.delivery.ObserveDrop(sessionID, networking.DropCauseBudget)
		return
	}
	if !box.TryEnqueue(payload) {
		s.delivery.ObserveDrop(sessionID, networking.DropCauseBackpressure)
		return
	}
	s.delivery.ObserveSent(sessionID, len(payload))
}

// forwardEvents relays the session's ordered event stream to the viewer,
// acknowledging each envelope once it is queued behind any pending frames.
func (s *Server) forwardEvents(sub *events.Subscription, box *outbox, logger *logging.Logger) {
	for envelope := range sub.Events() {
		payload, err := json.Marshal(eventMessage{Type: messageTypeEvent, Envelope: envelope})
		if err == nil {
			if !box.Enqueue(payload) {
				//1.- The connection is closing; leave the envelope unacknowledged
				// so a later subscription replays it.
				return
			}
		} else {
			logger.Warn("event encode failed",
				logging.Error(err),
				logging.Uint64("sequence", envelope.Sequence))
		}
		//2.- Ack even when encoding failed; the stream must keep advancing.
		if ackErr := sub.Ack(envelope.Sequence); ackErr != nil {
			logger.Warn("event ack failed",
				logging.Error(ackErr),
				logging.Uint64("sequence", envelope.Sequence))
		}
	}
}
