package camera

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/input"
)

func TestRigFirstUpdateSnaps(t *testing.T) {
	rig := NewRig()
	target := mgl64.Vec3{3, 0, -2}

	rig.Update(target)
	pose := rig.Pose()
	if pose.Position != rig.desiredPosition(target) {
		t.Fatalf("first update should snap the position, got %+v", pose.Position)
	}
	if pose.LookAt != (mgl64.Vec3{3, lookAtLift, -2}) {
		t.Fatalf("first update should snap the aim, got %+v", pose.LookAt)
	}

	//1.- The second update only covers a fraction of a target jump.
	moved := mgl64.Vec3{13, 0, -2}
	rig.Update(moved)
	after := rig.Pose()
	full := rig.desiredPosition(moved)
	if math.Abs(after.Position.X()-full.X()) < 1 {
		t.Fatalf("smoothing should trail the target, got %+v vs %+v", after.Position, full)
	}
}

func TestRigDragClampsPitchAtInput(t *testing.T) {
	rig := NewRig()

	rig.ApplyDrag(0, 99)
	if got := rig.Pose().Pitch; got != maxPitch {
		t.Fatalf("pitch should clamp high immediately, got %v", got)
	}
	rig.ApplyDrag(0, -99)
	if got := rig.Pose().Pitch; got != minPitch {
		t.Fatalf("pitch should clamp low immediately, got %v", got)
	}

	//1.- Yaw never clamps; full turns accumulate.
	before := rig.Yaw()
	rig.ApplyDrag(10, 0)
	if got := rig.Yaw(); math.Abs(got-before-10) > 1e-12 {
		t.Fatalf("yaw should accumulate freely, got %v", got)
	}
}

func TestRigZoomClampsEveryNotch(t *testing.T) {
	//1.- Zooming out saturates at the far limit notch by notch.
	rig := NewRig(WithDistance(58))
	rig.ApplyZoom(3)
	rig.Update(mgl64.Vec3{})
	if got := rig.Pose().Distance; got != maxDistance {
		t.Fatalf("zoom out should saturate at %v, got %v", maxDistance, got)
	}

	//2.- Zooming in saturates at the near limit the same way.
	rig = NewRig(WithDistance(6.2))
	rig.ApplyZoom(-2)
	rig.Update(mgl64.Vec3{})
	if got := rig.Pose().Distance; got != minDistance {
		t.Fatalf("zoom in should saturate at %v, got %v", minDistance, got)
	}
}

func TestRigZoomStepIsProportional(t *testing.T) {
	rig := NewRig()
	rig.ApplyZoom(1)
	rig.Update(mgl64.Vec3{})
	if got, want := rig.Pose().Distance, defaultDistance*(1+zoomStep); math.Abs(got-want) > 1e-12 {
		t.Fatalf("one notch out = %v, want %v", got, want)
	}
}

func TestRigOverviewToggleRestoresDistance(t *testing.T) {
	rig := NewRig()

	rig.ToggleOverview()
	if !rig.Overview() {
		t.Fatal("toggle should enter overview")
	}
	rig.Update(mgl64.Vec3{})
	pose := rig.Pose()
	if pose.Distance != overviewDistance || pose.Pitch != overviewPitch {
		t.Fatalf("overview framing wrong: %+v", pose)
	}

	//1.- Toggling back restores the saved follow distance.
	rig.ToggleOverview()
	if rig.Overview() {
		t.Fatal("second toggle should leave overview")
	}
	fresh := NewRig()
	fresh.ToggleOverview()
	fresh.ToggleOverview()
	fresh.Update(mgl64.Vec3{})
	if got := fresh.Pose().Distance; got != defaultDistance {
		t.Fatalf("exit should restore the saved distance, got %v", got)
	}
}

func TestRigOverviewExitsByZoomingIn(t *testing.T) {
	rig := NewRig()
	rig.ToggleOverview()

	//1.- Thirteen notches stay above the exit threshold.
	rig.ApplyZoom(-13)
	if !rig.Overview() {
		t.Fatal("zooming above the threshold should stay in overview")
	}

	//2.- One more notch crosses half the overview distance and exits.
	rig.ApplyZoom(-1)
	if rig.Overview() {
		t.Fatal("zooming past half the overview distance should exit")
	}
}

func TestRigOverviewFreezesPitch(t *testing.T) {
	rig := NewRig()
	rig.ToggleOverview()

	rig.ApplyDrag(0.5, 0.7)
	rig.ToggleOverview()
	if got := rig.Pose().Pitch; got != defaultPitch {
		t.Fatalf("pitch drags during overview should be ignored, got %v", got)
	}
}

func TestRigSmoothingConvergesOnTarget(t *testing.T) {
	rig := NewRig()
	rig.Update(mgl64.Vec3{})

	target := mgl64.Vec3{10, 0, 4}
	for i := 0; i < 200; i++ {
		rig.Update(target)
	}
	pose := rig.Pose()
	want := rig.desiredPosition(target)
	if pose.Position.Sub(want).Len() > 0.05 {
		t.Fatalf("position failed to converge: %+v vs %+v", pose.Position, want)
	}
	aim := mgl64.Vec3{10, lookAtLift, 4}
	if pose.LookAt.Sub(aim).Len() > 0.05 {
		t.Fatalf("aim failed to converge: %+v vs %+v", pose.LookAt, aim)
	}
}

func TestRigResizeIgnoresDegenerateViewports(t *testing.T) {
	rig := NewRig()
	rig.Resize(1280, 720)
	if got := rig.Pose().Aspect; math.Abs(got-1280.0/720.0) > 1e-12 {
		t.Fatalf("aspect = %v", got)
	}
	rig.Resize(0, 720)
	if got := rig.Pose().Aspect; math.Abs(got-1280.0/720.0) > 1e-12 {
		t.Fatalf("degenerate resize should be ignored, got %v", got)
	}
}

func TestRigApplyConsumesDrainedSample(t *testing.T) {
	rig := NewRig()
	yawBefore := rig.Yaw()

	rig.Apply(input.Sample{
		DragYaw:         0.25,
		ZoomNotches:     1,
		OverviewToggles: 1,
		Viewport:        &input.Viewport{Width: 800, Height: 600},
	})

	if math.Abs(rig.Yaw()-yawBefore-0.25) > 1e-12 {
		t.Fatalf("drag not applied, yaw %v", rig.Yaw())
	}
	if !rig.Overview() {
		t.Fatal("overview toggle not applied")
	}
	if got := rig.Pose().Aspect; math.Abs(got-800.0/600.0) > 1e-12 {
		t.Fatalf("viewport not applied, aspect %v", got)
	}
}
