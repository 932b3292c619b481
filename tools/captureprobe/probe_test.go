package captureprobe

import (
	"path/filepath"
	"testing"
	"time"

	"wanderfield/simcore/internal/capture"
)

func writeBundle(t *testing.T, root, sessionID string, kinds []string, ticks []uint64) string {
	t.Helper()

	now := time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	writer, _, err := capture.NewWriter(root, sessionID, clock)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	writer.SetWorldInfo(capture.WorldInfo{Name: "wanderfield", Spawn: [3]float64{0, 2, 0}})

	//1.- Append events and frames with a moving clock so records carry distinct stamps.
	for i, kind := range kinds {
		now = now.Add(50 * time.Millisecond)
		if err := writer.AppendEvent(uint64(i+1), kind, []byte(`{"target":"welcome-plaque"}`)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	for _, tick := range ticks {
		now = now.Add(50 * time.Millisecond)
		if err := writer.AppendFrame(tick, float64(tick)*16.0, []byte(`{"tick":1}`)); err != nil {
			t.Fatalf("AppendFrame: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return writer.Directory()
}

func TestInspectSummarisesBundle(t *testing.T) {
	root := t.TempDir()
	dir := writeBundle(t, root, "visitor-0001", []string{"hover", "interact", "hover"}, []uint64{10, 12, 18})

	summary, err := Inspect(dir)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if summary.SessionID != "visitor-0001" {
		t.Fatalf("unexpected session id: %q", summary.SessionID)
	}
	if summary.World != "wanderfield" {
		t.Fatalf("unexpected world: %q", summary.World)
	}
	if summary.Events != 3 {
		t.Fatalf("expected 3 events, got %d", summary.Events)
	}
	if summary.EventKinds["hover"] != 2 || summary.EventKinds["interact"] != 1 {
		t.Fatalf("unexpected kind histogram: %#v", summary.EventKinds)
	}
	if summary.Frames != 3 {
		t.Fatalf("expected 3 frames, got %d", summary.Frames)
	}
	if summary.FirstTick != 10 || summary.LastTick != 18 {
		t.Fatalf("unexpected tick range: %d..%d", summary.FirstTick, summary.LastTick)
	}
	//1.- Frames carry sim time at 16 ms per tick, so eight ticks span 128 ms.
	if summary.SimSpanMs != 128 {
		t.Fatalf("unexpected sim span: %v", summary.SimSpanMs)
	}
}

func TestScanSkipsUnfinishedBundles(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "beta", []string{"hover"}, []uint64{1})
	writeBundle(t, root, "alpha", nil, nil)

	//1.- An open writer has no header yet, so the scan must not trip over it.
	open, _, err := capture.NewWriter(root, "gamma", nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	t.Cleanup(func() { open.Close() })

	summaries, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].SessionID != "alpha" || summaries[1].SessionID != "beta" {
		t.Fatalf("expected session order alpha, beta; got %q, %q", summaries[0].SessionID, summaries[1].SessionID)
	}
	if summaries[0].Events != 0 || summaries[0].Frames != 0 {
		t.Fatalf("expected empty bundle counts, got %d events %d frames", summaries[0].Events, summaries[0].Frames)
	}

	payload, err := MarshalSummaries(summaries)
	if err != nil {
		t.Fatalf("MarshalSummaries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestScanValidatesRoot(t *testing.T) {
	if _, err := Scan("   "); err == nil {
		t.Fatalf("expected error for blank root")
	}
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}
