// Package roamer is a headless wander client for the viewer bridge. It dials
// the websocket endpoint, walks the world on a fixed intent cadence, and
// reports what the session streamed back.
package roamer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wanderfield/simcore/internal/auth"
	"wanderfield/simcore/internal/logging"
)

const (
	defaultInterval = 100 * time.Millisecond
	readGrace       = 30 * time.Second
	closeGrace      = time.Second
	tokenLifetime   = time.Hour
)

// Options configures one wander through a running world.
type Options struct {
	// URL is the full websocket endpoint, for example ws://localhost:43170/ws.
	URL string
	// Secret enables signed access; the roamer mints its own token from it.
	Secret string
	// Subject names the token holder when Secret is set.
	Subject string
	// Interval is the intent cadence. It must stay well under the bridge's
	// staleness window or the input gate starts dropping intents.
	Interval time.Duration
	Logger   *logging.Logger
}

// Report tallies what the roamer observed while connected.
type Report struct {
	SessionID string         `json:"session_id"`
	World     string         `json:"world"`
	TickHz    int            `json:"tick_hz"`
	FrameHz   int            `json:"frame_hz"`
	Intents   uint64         `json:"intents"`
	Frames    int            `json:"frames"`
	LastTick  uint64         `json:"last_tick"`
	Events    map[string]int `json:"events,omitempty"`
}

// serverMessage is the superset of bridge message fields; Type discriminates.
type serverMessage struct {
	Type          string `json:"type"`
	SchemaVersion string `json:"schema_version,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	World         string `json:"world,omitempty"`
	TickHz        int    `json:"tick_hz,omitempty"`
	FrameHz       int    `json:"frame_hz,omitempty"`
	Tick          uint64 `json:"tick,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

// viewportSize mirrors the viewport block of an intent payload.
type viewportSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// intent is the client-side layout of one input message.
type intent struct {
	SchemaVersion  string        `json:"schema_version"`
	SessionID      string        `json:"session_id"`
	SequenceID     uint64        `json:"sequence_id"`
	SentAtMs       int64         `json:"sent_at_ms"`
	MoveForward    bool          `json:"move_forward,omitempty"`
	MoveBack       bool          `json:"move_back,omitempty"`
	MoveLeft       bool          `json:"move_left,omitempty"`
	MoveRight      bool          `json:"move_right,omitempty"`
	LookYaw        float64       `json:"look_yaw,omitempty"`
	ZoomNotches    int           `json:"zoom_notches,omitempty"`
	Interact       bool          `json:"interact,omitempty"`
	OverviewToggle bool          `json:"overview_toggle,omitempty"`
	Viewport       *viewportSize `json:"viewport,omitempty"`
}

// Roam connects to the bridge, wanders until the context ends, and reports
// what the session streamed back.
func Roam(ctx context.Context, opts Options) (Report, error) {
	report := Report{}
	target, err := dialURL(opts)
	if err != nil {
		return report, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return report, fmt.Errorf("dial %s: %w (status %s)", opts.URL, err, resp.Status)
		}
		return report, fmt.Errorf("dial %s: %w", opts.URL, err)
	}
	defer conn.Close()

	//1.- The welcome is guaranteed first and carries the addressing every intent needs.
	welcome, err := readWelcome(conn)
	if err != nil {
		return report, err
	}
	report.SessionID = welcome.SessionID
	report.World = welcome.World
	report.TickHz = welcome.TickHz
	report.FrameHz = welcome.FrameHz

	//2.- A single writer goroutine owns the socket's send side, including the close frame.
	var wg sync.WaitGroup
	var intents uint64
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				deadline := time.Now().Add(closeGrace)
				message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := conn.WriteControl(websocket.CloseMessage, message, deadline); err != nil {
					logger.Debug("close frame failed", logging.Error(err))
				}
				//3.- Shorten the pending read so the drain below stays bounded.
				conn.SetReadDeadline(time.Now().Add(closeGrace))
				intents = seq
				return
			case <-ticker.C:
				seq++
				payload, err := json.Marshal(step(welcome, seq))
				if err != nil {
					logger.Warn("intent encode failed", logging.Error(err))
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(closeGrace))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					logger.Debug("intent write failed", logging.Error(err))
					intents = seq
					return
				}
			}
		}
	}()

	//4.- Drain frames and events until the bridge closes or the wander winds down.
	kinds := map[string]int{}
	var readErr error
	for {
		grace := readGrace
		if ctx.Err() != nil {
			grace = closeGrace
		}
		conn.SetReadDeadline(time.Now().Add(grace))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				break
			}
			readErr = fmt.Errorf("read: %w", err)
			break
		}
		var message serverMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			logger.Debug("undecodable server message", logging.Error(err))
			continue
		}
		switch message.Type {
		case "frame":
			report.Frames++
			report.LastTick = message.Tick
		case "event":
			kinds[message.Kind]++
		}
	}

	wg.Wait()
	report.Intents = intents
	if len(kinds) > 0 {
		report.Events = kinds
	}
	return report, readErr
}

// dialURL validates the endpoint and appends a signed token when configured.
func dialURL(opts Options) (string, error) {
	target := strings.TrimSpace(opts.URL)
	if target == "" {
		return "", errors.New("websocket url must be provided")
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if opts.Secret == "" {
		return parsed.String(), nil
	}
	subject := strings.TrimSpace(opts.Subject)
	if subject == "" {
		subject = "roamer"
	}
	now := time.Now()
	token, err := auth.SignToken(opts.Secret, auth.TokenClaims{
		Subject:   subject,
		IssuedAt:  now,
		ExpiresAt: now.Add(tokenLifetime),
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	query := parsed.Query()
	query.Set("auth_token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// readWelcome consumes the first message and checks it carries the session addressing.
func readWelcome(conn *websocket.Conn) (serverMessage, error) {
	conn.SetReadDeadline(time.Now().Add(readGrace))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return serverMessage{}, fmt.Errorf("read welcome: %w", err)
	}
	var welcome serverMessage
	if err := json.Unmarshal(raw, &welcome); err != nil {
		return serverMessage{}, fmt.Errorf("decode welcome: %w", err)
	}
	if welcome.Type != "welcome" {
		return serverMessage{}, fmt.Errorf("expected welcome, got %q", welcome.Type)
	}
	if welcome.SessionID == "" || welcome.SchemaVersion == "" {
		return serverMessage{}, errors.New("welcome missing session addressing")
	}
	return welcome, nil
}

// step derives the next intent from the sequence number alone so a wander is
// reproducible run to run. Every value stays inside the bridge's validation
// limits.
func step(welcome serverMessage, seq uint64) intent {
	payload := intent{
		SchemaVersion: welcome.SchemaVersion,
		SessionID:     welcome.SessionID,
		SequenceID:    seq,
		SentAtMs:      time.Now().UnixMilli(),
		MoveForward:   true,
	}
	//1.- The first intent pins the viewport so the camera aspect matches a real client.
	if seq == 1 {
		payload.Viewport = &viewportSize{Width: 1280, Height: 720}
	}
	//2.- A gentle yaw drag every tenth intent walks the spawn plaza in an arc.
	if seq%10 == 0 {
		payload.LookYaw = 0.12
	}
	switch (seq / 30) % 4 {
	case 1:
		payload.MoveRight = true
	case 3:
		payload.MoveLeft = true
	}
	if seq%50 == 0 {
		payload.Interact = true
	}
	switch seq % 80 {
	case 20:
		payload.ZoomNotches = 1
	case 60:
		payload.ZoomNotches = -1
	}
	return payload
}
