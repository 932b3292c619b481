package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wanderfield/simcore/internal/input"
	"wanderfield/simcore/internal/logging"
)

var (
	errIntentEmptyPayload   = errors.New("empty intent payload")
	errIntentMissingVersion = errors.New("intent missing schema version")
	errIntentSchemaVersion  = errors.New("unsupported intent schema version")
	errIntentSequence       = errors.New("intent sequence id must be positive")
	errIntentWrongSession   = errors.New("intent session mismatch")
)

// viewportPayload mirrors the viewer's render surface dimensions.
type viewportPayload struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// intentPayload is the JSON layout of one viewer input message. Held state
// (movement keys, analog stick, jump) reports current values; one-shot actions
// (interact, overview toggle) and deltas (look, zoom) accumulate server-side
// until the next tick drains them.
type intentPayload struct {
	SchemaVersion  string           `json:"schema_version"`
	SessionID      string           `json:"session_id,omitempty"`
	SequenceID     uint64           `json:"sequence_id"`
	SentAtMs       int64            `json:"sent_at_ms,omitempty"`
	MoveForward    bool             `json:"move_forward,omitempty"`
	MoveBack       bool             `json:"move_back,omitempty"`
	MoveLeft       bool             `json:"move_left,omitempty"`
	MoveRight      bool             `json:"move_right,omitempty"`
	AnalogX        float64          `json:"analog_x,omitempty"`
	AnalogZ        float64          `json:"analog_z,omitempty"`
	JumpHeld       bool             `json:"jump_held,omitempty"`
	LookYaw        float64          `json:"look_yaw,omitempty"`
	LookPitch      float64          `json:"look_pitch,omitempty"`
	ZoomNotches    int              `json:"zoom_notches,omitempty"`
	Interact       bool             `json:"interact,omitempty"`
	OverviewToggle bool             `json:"overview_toggle,omitempty"`
	Viewport       *viewportPayload `json:"viewport,omitempty"`
}

// decodeIntentPayload parses one websocket message into a structured payload.
func decodeIntentPayload(raw []byte) (*intentPayload, error) {
	if len(raw) == 0 {
		return nil, errIntentEmptyPayload
	}
	var payload intentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// validateIntentPayload enforces the required metadata on the payload.
func validateIntentPayload(payload *intentPayload) error {
	if payload == nil {
		return errors.New("intent payload is nil")
	}
	if payload.SchemaVersion == "" {
		return errIntentMissingVersion
	}
	if payload.SchemaVersion != wireSchemaVersion {
		return fmt.Errorf("%w: %q", errIntentSchemaVersion, payload.SchemaVersion)
	}
	if payload.SequenceID == 0 {
		return errIntentSequence
	}
	return nil
}

// SentAt converts the optional capture timestamp into a time.Time instance.
func (payload *intentPayload) SentAt() time.Time {
	//1.- Treat missing or zero timestamps as unset so freshness derives from arrival time.
	if payload == nil || payload.SentAtMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(payload.SentAtMs)
}

// channels projects the analogue portion of the payload for range validation.
func (payload *intentPayload) channels() input.Channels {
	if payload == nil {
		return input.Channels{}
	}
	channels := input.Channels{
		AnalogX:     payload.AnalogX,
		AnalogZ:     payload.AnalogZ,
		LookYaw:     payload.LookYaw,
		LookPitch:   payload.LookPitch,
		ZoomNotches: payload.ZoomNotches,
	}
	if payload.Viewport != nil {
		channels.ViewportWidth = payload.Viewport.Width
		channels.ViewportHeight = payload.Viewport.Height
		channels.HasViewport = true
	}
	return channels
}

// applyTo writes the accepted payload into the session's shared input state.
func (payload *intentPayload) applyTo(state *input.State) {
	if payload == nil || state == nil {
		return
	}
	state.SetMoveKeys(payload.MoveForward, payload.MoveBack, payload.MoveLeft, payload.MoveRight)
	state.SetAnalog(payload.AnalogX, payload.AnalogZ)
	state.SetJumpHeld(payload.JumpHeld)
	if payload.LookYaw != 0 || payload.LookPitch != 0 {
		state.AddDrag(payload.LookYaw, payload.LookPitch)
	}
	if payload.ZoomNotches != 0 {
		state.AddZoom(payload.ZoomNotches)
	}
	if payload.Interact {
		state.QueueInteract()
	}
	if payload.OverviewToggle {
		state.QueueOverviewToggle()
	}
	if payload.Viewport != nil {
		state.SetViewport(payload.Viewport.Width, payload.Viewport.Height)
	}
}

// processIntent runs validation, gating, and application for one inbound
// intent. The returned bool asks the bridge to disconnect the viewer.
func (s *Server) processIntent(sessionID string, payload *intentPayload, state *input.State, logger *logging.Logger) (bool, error) {
	if s == nil {
		return false, errors.New("server is nil")
	}
	if payload == nil {
		return false, errors.New("intent payload is nil")
	}
	//1.- A stated session id must match the connection that delivered it.
	if payload.SessionID != "" && payload.SessionID != sessionID {
		return false, fmt.Errorf("%w: got %q, want %q", errIntentWrongSession, payload.SessionID, sessionID)
	}

	if validator := s.validator; validator != nil {
		//2.- Range and cooldown checks run before any shared state mutates.
		decision := validator.Validate(sessionID, payload.channels())
		if !decision.Accepted {
			if logger != nil {
				fields := []logging.Field{
					logging.String("reason", string(decision.Reason)),
					logging.String("session_id", sessionID),
					logging.Uint64("sequence_id", payload.SequenceID),
				}
				if decision.Cooldown > 0 {
					fields = append(fields, logging.Int64("cooldown_ms", decision.Cooldown.Milliseconds()))
				}
				if decision.Warn {
					logger.Warn("intent validation warning", fields...)
				} else {
					logger.Debug("dropping intent due to validation", fields...)
				}
			}
			return decision.Disconnect, fmt.Errorf("intent validation rejected: %s", decision.Reason)
		}
	}

	if gate := s.gate; gate != nil {
		//3.- Sequencing and freshness guards run after ranges pass.
		stamp := input.Stamp{SessionID: sessionID, SequenceID: payload.SequenceID}
		if ts := payload.SentAt(); !ts.IsZero() {
			stamp.SentAt = ts
		}
		decision := gate.Evaluate(stamp)
		if !decision.Accepted {
			if logger != nil {
				fields := []logging.Field{
					logging.String("reason", decision.Reason.String()),
					logging.String("session_id", sessionID),
					logging.Uint64("sequence_id", payload.SequenceID),
				}
				if decision.Delay > 0 {
					fields = append(fields, logging.Int64("delay_ms", decision.Delay.Milliseconds()))
				}
				logger.Debug("dropping intent frame", fields...)
			}
			return false, fmt.Errorf("intent gate rejected: %s", decision.Reason)
		}
	}

	payload.applyTo(state)
	return false, nil
}
