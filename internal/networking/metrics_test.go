package networking

import "testing"

func TestDeliveryMetricsCountsAndClones(t *testing.T) {
	metrics := NewDeliveryMetrics()

	metrics.ObserveSent("visitor-1", 512)
	metrics.ObserveSent("visitor-1", 480)
	metrics.ObserveDrop("visitor-1", DropCauseBackpressure)
	metrics.ObserveDrop("visitor-1", DropCauseBudget)
	metrics.ObserveDrop("visitor-1", DropCauseBudget)
	metrics.ObserveSent("visitor-2", 300)

	snapshot := metrics.Snapshot()
	sample, ok := snapshot["visitor-1"]
	if !ok {
		t.Fatalf("expected sample for visitor-1")
	}
	if sample.Sent != 2 {
		t.Fatalf("expected 2 sent frames, got %d", sample.Sent)
	}
	if sample.LastBytes != 480 {
		t.Fatalf("expected last frame size 480, got %d", sample.LastBytes)
	}
	if got := sample.DroppedTotal(); got != 3 {
		t.Fatalf("expected 3 dropped frames, got %d", got)
	}
	if sample.Dropped[DropCauseBudget] != 2 {
		t.Fatalf("expected 2 budget drops, got %d", sample.Dropped[DropCauseBudget])
	}

	//1.- Mutating the snapshot must not leak into the live counters.
	sample.Dropped[DropCauseBudget] = 99
	fresh := metrics.Snapshot()["visitor-1"]
	if fresh.Dropped[DropCauseBudget] != 2 {
		t.Fatalf("snapshot mutation leaked into the tracker")
	}
}

func TestDeliveryMetricsForget(t *testing.T) {
	metrics := NewDeliveryMetrics()
	metrics.ObserveSent("visitor-1", 100)
	metrics.Forget("visitor-1")

	if snapshot := metrics.Snapshot(); snapshot != nil {
		t.Fatalf("expected empty snapshot after forget, got %+v", snapshot)
	}

	//1.- Nil receivers and blank ids are ignored rather than panicking.
	var nilMetrics *DeliveryMetrics
	nilMetrics.ObserveSent("visitor-1", 10)
	nilMetrics.ObserveDrop("visitor-1", DropCauseBudget)
	metrics.ObserveDrop("", DropCauseBudget)
	metrics.ObserveDrop("visitor-1", "")
	if snapshot := metrics.Snapshot(); snapshot != nil {
		t.Fatalf("expected ignored observations to leave tracker empty, got %+v", snapshot)
	}
}
