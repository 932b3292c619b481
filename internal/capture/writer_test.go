package capture

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterFlushCadence(t *testing.T) {
	tmp := t.TempDir()
	base := time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	writer, manifest, err := NewWriter(tmp, "Visitor 7", clock)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	//1.- Unsafe characters drop out of the directory name, not the manifest.
	if got := filepath.Base(writer.Directory()); got != "Visitor7-20251103T093000Z" {
		t.Fatalf("unexpected bundle directory %q", got)
	}
	if manifest.SessionID != "Visitor 7" || manifest.FrameIntervalMs != 200 {
		t.Fatalf("unexpected manifest %+v", manifest)
	}

	writer.SetWorldInfo(WorldInfo{Name: "flat", Spawn: [3]float64{0, 2, 0}, Floor: -50})

	if err := writer.AppendEvent(1, "hover", []byte(`{"marker":"plaque-1"}`)); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := writer.AppendEvent(2, "interact", nil); err != nil {
		t.Fatalf("append event: %v", err)
	}

	//2.- The first frame anchors the cadence without flushing.
	if err := writer.AppendFrame(2, 100.5, []byte("frame-2")); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if writer.PendingFrames() != 1 {
		t.Fatalf("expected 1 pending frame, got %d", writer.PendingFrames())
	}
	now = now.Add(100 * time.Millisecond)
	if err := writer.AppendFrame(4, 200.5, []byte("frame-4")); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if writer.PendingFrames() != 2 {
		t.Fatalf("expected 2 pending frames, got %d", writer.PendingFrames())
	}
	//3.- Crossing the 200 ms cadence flushes the whole batch.
	now = now.Add(120 * time.Millisecond)
	if err := writer.AppendFrame(6, 300.5, []byte("frame-6")); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if writer.PendingFrames() != 0 {
		t.Fatalf("expected flushed batch, %d pending", writer.PendingFrames())
	}
	now = now.Add(40 * time.Millisecond)
	if err := writer.AppendFrame(8, 400.5, []byte("frame-8")); err != nil {
		t.Fatalf("append frame: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	bundle, err := OpenBundle(writer.Directory())
	if err != nil {
		t.Fatalf("OpenBundle failed: %v", err)
	}
	if bundle.Header.SessionID != "Visitor 7" || bundle.Header.World.Name != "flat" {
		t.Fatalf("unexpected bundle header %+v", bundle.Header)
	}

	var eventKinds []string
	err = bundle.Events(func(record EventRecord) error {
		eventKinds = append(eventKinds, record.Kind)
		if record.Sequence == 1 {
			payload, err := record.Payload()
			if err != nil {
				return err
			}
			if string(payload) != `{"marker":"plaque-1"}` {
				return fmt.Errorf("unexpected payload %q", payload)
			}
			if _, err := time.Parse(time.RFC3339Nano, record.CapturedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(eventKinds) != 2 || eventKinds[0] != "hover" || eventKinds[1] != "interact" {
		t.Fatalf("unexpected event kinds %v", eventKinds)
	}

	var frames []FrameRecord
	if err := bundle.Frames(func(record FrameRecord) error {
		frames = append(frames, record)
		return nil
	}); err != nil {
		t.Fatalf("read frames: %v", err)
	}
	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}
	wantTicks := []uint64{2, 4, 6, 8}
	wantSim := []float64{100.5, 200.5, 300.5, 400.5}
	for i, frame := range frames {
		if frame.Tick != wantTicks[i] {
			t.Fatalf("frame %d: expected tick %d, got %d", i, wantTicks[i], frame.Tick)
		}
		//4.- Sim time survives the float64 bit round trip exactly.
		if frame.SimMS != wantSim[i] {
			t.Fatalf("frame %d: expected sim %.1f, got %v", i, wantSim[i], frame.SimMS)
		}
		if string(frame.Payload) != fmt.Sprintf("frame-%d", wantTicks[i]) {
			t.Fatalf("frame %d: unexpected payload %q", i, frame.Payload)
		}
	}
	//5.- Captured-at stamps follow the fake clock instants.
	if !frames[0].CapturedAt.Equal(base) {
		t.Fatalf("unexpected first capture time %v", frames[0].CapturedAt)
	}
	if !frames[3].CapturedAt.Equal(base.Add(260 * time.Millisecond)) {
		t.Fatalf("unexpected last capture time %v", frames[3].CapturedAt)
	}
}

func TestWriterManualFlush(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	writer, _, err := NewWriter(tmp, "manual", func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := writer.AppendFrame(1, 16.5, []byte{0xAA}); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if err := writer.AppendFrame(2, 33, []byte{0xBB}); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if writer.PendingFrames() != 2 {
		t.Fatalf("expected 2 staged frames, got %d", writer.PendingFrames())
	}
	//1.- A stalled clock never reaches the cadence, so Flush forces the write.
	if err := writer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if writer.PendingFrames() != 0 {
		t.Fatalf("expected drained staging, got %d", writer.PendingFrames())
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	bundle, err := OpenBundle(writer.Directory())
	if err != nil {
		t.Fatalf("OpenBundle failed: %v", err)
	}
	count := 0
	if err := bundle.Frames(func(FrameRecord) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("read frames: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 frames, got %d", count)
	}
}

func TestWriterRequiresRoot(t *testing.T) {
	if _, _, err := NewWriter("", "visitor", nil); err == nil {
		t.Fatalf("expected error for empty capture root")
	}
}
