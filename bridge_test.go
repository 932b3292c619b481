package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wanderfield/simcore/internal/auth"
	"wanderfield/simcore/internal/config"
	"wanderfield/simcore/internal/websockettest"
)

func bridgeConfig() *config.Config {
	return &config.Config{
		TickHz:          120,
		FrameHz:         60,
		PingInterval:    time.Second,
		MaxPayloadBytes: config.DefaultMaxPayloadBytes,
	}
}

func startBridge(t *testing.T, cfg *config.Config, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = bridgeConfig()
	}
	server := newTestServer(t, cfg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server.Start(ctx)
	waitForReady(t, server)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleViewerSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return server, ts
}

func waitForReady(t *testing.T, server *Server) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !server.Ready() {
		if err := server.StartupError(); err != nil {
			t.Fatalf("startup failed: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("server never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWireMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	return decoded
}

// readUntilType scans past interleaved messages until the wanted type arrives.
// Events and frames share the socket, so ordering between them is not fixed.
func readUntilType(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		message := readWireMessage(t, conn)
		if message["type"] == wantType {
			return message
		}
	}
	t.Fatalf("no %q message before deadline", wantType)
	return nil
}

func sendIntent(t *testing.T, conn *websocket.Conn, payload *intentPayload) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func TestBridgeSendsWelcomeFirst(t *testing.T) {
	server, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	//1.- The welcome must be the very first message on the socket.
	welcome := readWireMessage(t, conn)
	if welcome["type"] != messageTypeWelcome {
		t.Fatalf("first message type = %v, want %q", welcome["type"], messageTypeWelcome)
	}
	if welcome["schema_version"] != wireSchemaVersion {
		t.Fatalf("schema version = %v", welcome["schema_version"])
	}
	if welcome["world"] != "wanderfield" {
		t.Fatalf("world = %v", welcome["world"])
	}
	sessionID, _ := welcome["session_id"].(string)
	if !strings.HasPrefix(sessionID, "visitor-") {
		t.Fatalf("session id = %q", sessionID)
	}
	if welcome["tick_hz"] != float64(120) || welcome["frame_hz"] != float64(60) {
		t.Fatalf("advertised rates = %v / %v", welcome["tick_hz"], welcome["frame_hz"])
	}

	if active, pending := server.SnapshotSessionCounts(); active != 1 || pending != 0 {
		t.Fatalf("session counts = (%d, %d), want (1, 0)", active, pending)
	}
}

func TestBridgeStreamsFramesAndSpawnEvents(t *testing.T) {
	_, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readUntilType(t, conn, messageTypeWelcome)

	frame := readUntilType(t, conn, messageTypeFrame)
	if _, ok := frame["character"].(map[string]any); !ok {
		t.Fatalf("frame missing character block: %v", frame)
	}
	if _, ok := frame["camera"].(map[string]any); !ok {
		t.Fatalf("frame missing camera block: %v", frame)
	}

	//1.- The spawn point sits within reach of the welcome plaque, so the
	// nearby event arrives without any input.
	event := readUntilType(t, conn, messageTypeEvent)
	if event["sequence"] == nil || event["kind"] == nil {
		t.Fatalf("event missing envelope fields: %v", event)
	}
}

func TestBridgeAppliesMovementIntents(t *testing.T) {
	_, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	welcome := readUntilType(t, conn, messageTypeWelcome)
	sessionID, _ := welcome["session_id"].(string)

	intent := validIntent(1)
	intent.SessionID = sessionID
	intent.MoveForward = true
	sendIntent(t, conn, intent)

	//1.- Movement shows up as a nonzero velocity within a few frames.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		frame := readUntilType(t, conn, messageTypeFrame)
		character, _ := frame["character"].(map[string]any)
		if character == nil {
			continue
		}
		velocity, _ := character["velocity"].([]any)
		if len(velocity) == 3 {
			vx, _ := velocity[0].(float64)
			vz, _ := velocity[2].(float64)
			if vx*vx+vz*vz > 0.01 {
				return
			}
		}
	}
	t.Fatal("character never moved after the intent")
}

func TestBridgeIgnoresMalformedIntents(t *testing.T) {
	_, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readUntilType(t, conn, messageTypeWelcome)

	//1.- Garbage and versionless payloads are dropped without closing the socket.
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	sendIntent(t, conn, &intentPayload{SequenceID: 1})

	readUntilType(t, conn, messageTypeFrame)
}

func TestBridgeEnforcesSessionCapacity(t *testing.T) {
	cfg := bridgeConfig()
	cfg.MaxSessions = 1
	_, ts := startBridge(t, cfg)

	first, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer first.Close()
	readUntilType(t, first, messageTypeWelcome)

	//1.- The second visitor is refused during the handshake, not after it.
	_, resp, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err == nil {
		t.Fatal("expected second dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 handshake response, got %+v", resp)
	}
}

func TestBridgeRequiresAuthToken(t *testing.T) {
	cfg := bridgeConfig()
	cfg.AuthSecret = "wanderfield-test-secret"
	_, ts := startBridge(t, cfg)

	if _, resp, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil); err == nil {
		t.Fatal("expected unauthenticated dial to fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}

	token, err := auth.SignToken(cfg.AuthSecret, auth.TokenClaims{
		Subject:   "maya",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	conn, _, err := websockettest.Dial(
		websockettest.ServerURL(ts, "/ws")+"?auth_token="+token, nil)
	if err != nil {
		t.Fatalf("authenticated dial failed: %v", err)
	}
	defer conn.Close()

	//1.- The session id inherits the token subject for log correlation.
	welcome := readUntilType(t, conn, messageTypeWelcome)
	sessionID, _ := welcome["session_id"].(string)
	if !strings.HasPrefix(sessionID, "maya-") {
		t.Fatalf("session id = %q, want maya- prefix", sessionID)
	}
}

func TestBridgeStatusTracksLiveSessions(t *testing.T) {
	server, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readUntilType(t, conn, messageTypeFrame)

	//1.- Ticks and delivery counters accumulate while the viewer stays on.
	deadline := time.Now().Add(5 * time.Second)
	for {
		status := server.Status()
		if len(status.Sessions) == 1 && status.Sessions[0].Ticks > 0 && status.Sessions[0].FramesSent > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never settled: %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if uptime := server.Uptime(); uptime <= 0 {
		t.Fatalf("uptime = %v, want > 0", uptime)
	}
}

func TestBridgeCloseTearsDownSessions(t *testing.T) {
	server, ts := startBridge(t, nil)

	conn, _, err := websockettest.Dial(websockettest.ServerURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	readUntilType(t, conn, messageTypeFrame)

	server.Close()

	if active, pending := server.SnapshotSessionCounts(); active != 0 || pending != 0 {
		t.Fatalf("session counts after close = (%d, %d)", active, pending)
	}

	//1.- The viewer side observes the socket closing shortly after.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestNewSessionIDUsesSubject(t *testing.T) {
	server := newTestServer(t, nil)

	first := server.newSessionID("")
	second := server.newSessionID("maya")
	if !strings.HasPrefix(first, "visitor-") {
		t.Fatalf("anonymous id = %q", first)
	}
	if !strings.HasPrefix(second, "maya-") {
		t.Fatalf("subject id = %q", second)
	}
	if first == second {
		t.Fatal("ids must be unique")
	}
	if want := fmt.Sprintf("visitor-%04d", 1); first != want {
		t.Fatalf("first id = %q, want %q", first, want)
	}
}
