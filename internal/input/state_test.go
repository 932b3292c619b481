package input

import "testing"

func TestStateMergesKeysAndAnalog(t *testing.T) {
	state := NewState()

	//1.- Keyboard and stick steer together; the merged axis stays clamped.
	state.SetMoveKeys(true, false, false, true)
	state.SetAnalog(0.5, 0.25)

	sample := state.Drain()
	if sample.MoveX != 1 {
		t.Fatalf("expected clamped strafe axis, got %v", sample.MoveX)
	}
	if sample.MoveZ != 1 {
		t.Fatalf("expected clamped forward axis, got %v", sample.MoveZ)
	}
	if !sample.Moving() {
		t.Fatal("expected the sample to report movement")
	}
}

func TestStateOpposedKeysCancel(t *testing.T) {
	state := NewState()
	state.SetMoveKeys(true, true, true, true)

	sample := state.Drain()
	if sample.MoveX != 0 || sample.MoveZ != 0 {
		t.Fatalf("opposed keys should cancel, got %+v", sample)
	}
	if sample.Moving() {
		t.Fatal("cancelled input should not count as movement")
	}
}

func TestStateDrainClearsOneShots(t *testing.T) {
	state := NewState()
	state.QueueInteract()
	state.QueueInteract()
	state.QueueOverviewToggle()
	state.AddDrag(0.1, -0.05)
	state.AddZoom(-2)
	state.AddZoom(1)
	state.SetViewport(800, 600)

	first := state.Drain()
	if first.Interacts != 2 || first.OverviewToggles != 1 {
		t.Fatalf("one-shot counts wrong: %+v", first)
	}
	if first.DragYaw != 0.1 || first.DragPitch != -0.05 {
		t.Fatalf("drag deltas wrong: %+v", first)
	}
	if first.ZoomNotches != -1 {
		t.Fatalf("zoom notches should accumulate, got %d", first.ZoomNotches)
	}
	if first.Viewport == nil || first.Viewport.Width != 800 {
		t.Fatalf("viewport missing from drain: %+v", first.Viewport)
	}

	second := state.Drain()
	if second.Interacts != 0 || second.OverviewToggles != 0 || second.ZoomNotches != 0 || second.Viewport != nil {
		t.Fatalf("one-shots leaked into the next drain: %+v", second)
	}
}

func TestStateHeldChannelsSurviveDrain(t *testing.T) {
	state := NewState()
	state.SetMoveKeys(true, false, false, false)
	state.SetJumpHeld(true)
	state.SetAnalog(-0.3, 0)

	state.Drain()
	second := state.Drain()
	if second.MoveZ != 1 || second.MoveX != -0.3 {
		t.Fatalf("held channels should persist, got %+v", second)
	}
	if !second.JumpHeld {
		t.Fatal("jump hold should persist across drains")
	}
}

func TestStateAnalogClampsAtWrite(t *testing.T) {
	state := NewState()
	state.SetAnalog(4, -9)

	sample := state.Drain()
	if sample.MoveX != 1 || sample.MoveZ != -1 {
		t.Fatalf("analog writes should clamp, got %+v", sample)
	}
}

func TestStateResetClearsEverything(t *testing.T) {
	state := NewState()
	state.SetMoveKeys(true, false, true, false)
	state.SetJumpHeld(true)
	state.QueueInteract()
	state.AddZoom(3)
	state.Reset()

	sample := state.Drain()
	if sample.Moving() || sample.JumpHeld || sample.Interacts != 0 || sample.ZoomNotches != 0 {
		t.Fatalf("reset left residue: %+v", sample)
	}
}

func TestStateNilReceiversAreSafe(t *testing.T) {
	var state *State
	state.SetMoveKeys(true, true, true, true)
	state.QueueInteract()
	state.Reset()
	if sample := state.Drain(); sample.Moving() {
		t.Fatalf("nil state should drain empty, got %+v", sample)
	}
}
