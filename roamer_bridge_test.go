package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/websockettest"
	"wanderfield/simcore/tools/roamer"
)

// The headless wander client speaks the same wire dialect as the bridge, so a
// short roam against a live server exercises the whole loop end to end.
func TestRoamerWandersAgainstLiveBridge(t *testing.T) {
	server, ts := startBridge(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	report, err := roamer.Roam(ctx, roamer.Options{
		URL:      websockettest.ServerURL(ts, "/ws"),
		Interval: 50 * time.Millisecond,
		Logger:   logging.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("Roam: %v", err)
	}

	if !strings.HasPrefix(report.SessionID, "visitor-") {
		t.Fatalf("unexpected session id: %q", report.SessionID)
	}
	if report.World != "wanderfield" {
		t.Fatalf("unexpected world: %q", report.World)
	}
	if report.TickHz != 120 || report.FrameHz != 60 {
		t.Fatalf("welcome rates did not reach the report: %+v", report)
	}
	if report.Frames == 0 || report.LastTick == 0 {
		t.Fatalf("expected streamed frames, got %+v", report)
	}
	if report.Intents == 0 {
		t.Fatalf("expected intents to be sent")
	}
	//1.- The spawn sits within interaction range of the welcome plaque, so a
	// nearby event arrives even before the wander covers any distance.
	if report.Events["nearby"] == 0 {
		t.Fatalf("expected a nearby event, got %#v", report.Events)
	}

	//2.- The close handshake must tear the session down on the bridge side too.
	deadline := time.Now().Add(3 * time.Second)
	for {
		active, pending := server.SnapshotSessionCounts()
		if active == 0 && pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still registered: active=%d pending=%d", active, pending)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
