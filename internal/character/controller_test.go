package character

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/input"
	"wanderfield/simcore/internal/physics"
)

const testDt = 1.0 / 60.0

func newGroundedRig(t *testing.T, opts ...Option) (*physics.World, *Controller) {
	t.Helper()
	world := physics.NewWorld()
	ground := physics.NewBody("ground", physics.Plane{}, 0, physics.MaterialDefault)
	world.AddBody(ground)

	controller := NewController(world, mgl64.Vec3{0, 1.5, 0}, -50, opts...)
	//1.- Let the character drop onto the plane so contacts restore the jump.
	for i := 0; i < 240 && !controller.Grounded(); i++ {
		world.Step(testDt, testDt, 3)
	}
	if !controller.Grounded() {
		t.Fatal("character never landed on the ground plane")
	}
	return world, controller
}

func TestControllerWalksCameraRelative(t *testing.T) {
	_, controller := newGroundedRig(t)

	//1.- With the camera at yaw zero, forward input walks into -z.
	controller.Apply(input.Sample{MoveZ: 1}, 0)
	velocity := controller.Body().Velocity
	if math.Abs(velocity.X()) > 1e-6 || math.Abs(velocity.Z()+moveSpeed) > 1e-6 {
		t.Fatalf("expected -z walk at full speed, got %+v", velocity)
	}

	//2.- Rotating the camera a quarter turn rotates the walk direction with it.
	controller.Apply(input.Sample{MoveZ: 1}, math.Pi/2)
	velocity = controller.Body().Velocity
	if math.Abs(velocity.X()+moveSpeed) > 1e-6 || math.Abs(velocity.Z()) > 1e-6 {
		t.Fatalf("expected -x walk after camera turn, got %+v", velocity)
	}
}

func TestControllerDiagonalSpeedIsClamped(t *testing.T) {
	_, controller := newGroundedRig(t)

	controller.Apply(input.Sample{MoveX: 1, MoveZ: 1}, 0)
	velocity := controller.Body().Velocity
	speed := math.Hypot(velocity.X(), velocity.Z())
	if math.Abs(speed-moveSpeed) > 1e-6 {
		t.Fatalf("diagonal input should not exceed the walk speed, got %v", speed)
	}
}

func TestControllerAnalogScalesSpeed(t *testing.T) {
	_, controller := newGroundedRig(t)

	controller.Apply(input.Sample{MoveZ: 0.5}, 0)
	velocity := controller.Body().Velocity
	if math.Abs(velocity.Z()+moveSpeed*0.5) > 1e-6 {
		t.Fatalf("half stick should walk at half speed, got %+v", velocity)
	}
}

func TestControllerDecaysWhenIdle(t *testing.T) {
	_, controller := newGroundedRig(t)

	controller.Apply(input.Sample{MoveZ: 1}, 0)
	for i := 0; i < 3; i++ {
		controller.Apply(input.Sample{}, 0)
	}
	want := -moveSpeed * velocityDecay * velocityDecay * velocityDecay
	if got := controller.Body().Velocity.Z(); math.Abs(got-want) > 1e-9 {
		t.Fatalf("idle decay wrong: got %v want %v", got, want)
	}
}

func TestControllerJumpRequiresGround(t *testing.T) {
	world := physics.NewWorld()
	world.AddBody(physics.NewBody("ground", physics.Plane{}, 0, physics.MaterialDefault))
	controller := NewController(world, mgl64.Vec3{0, 8, 0}, -50)

	//1.- Airborne characters cannot jump.
	controller.Apply(input.Sample{JumpHeld: true}, 0)
	if controller.Body().Velocity.Y() > 0 {
		t.Fatalf("airborne jump should be ignored, got %+v", controller.Body().Velocity)
	}

	//2.- After landing, a fresh press takes off at full speed.
	controller.Apply(input.Sample{}, 0)
	for i := 0; i < 600 && !controller.Grounded(); i++ {
		world.Step(testDt, testDt, 3)
	}
	if !controller.Grounded() {
		t.Fatal("character never landed")
	}
	controller.Apply(input.Sample{JumpHeld: true}, 0)
	if got := controller.Body().Velocity.Y(); math.Abs(got-jumpSpeed) > 1e-9 {
		t.Fatalf("standing jump speed = %v, want %v", got, jumpSpeed)
	}
	if controller.Grounded() {
		t.Fatal("jump should spend the grounded state")
	}

	//3.- Holding the key does not re-jump until a release and a new landing.
	controller.Apply(input.Sample{JumpHeld: true}, 0)
	for i := 0; i < 600 && !controller.Grounded(); i++ {
		world.Step(testDt, testDt, 3)
		controller.Apply(input.Sample{JumpHeld: true}, 0)
	}
	if !controller.Grounded() {
		t.Fatal("character never relanded while holding jump")
	}
}

func TestControllerMovingJumpIsHalved(t *testing.T) {
	_, controller := newGroundedRig(t)

	controller.Apply(input.Sample{MoveZ: 1, JumpHeld: true}, 0)
	if got := controller.Body().Velocity.Y(); math.Abs(got-jumpSpeed*movingJumpScale) > 1e-9 {
		t.Fatalf("moving jump speed = %v, want %v", got, jumpSpeed*movingJumpScale)
	}
}

func TestControllerYawEasesTowardHeading(t *testing.T) {
	_, controller := newGroundedRig(t)

	//1.- Strafing right targets a heading of pi/2; the first tick covers 15%.
	controller.Apply(input.Sample{MoveX: 1}, 0)
	if got := controller.Yaw(); math.Abs(got-yawEase*math.Pi/2) > 1e-9 {
		t.Fatalf("first easing step = %v, want %v", got, yawEase*math.Pi/2)
	}

	//2.- Repeated input converges onto the heading.
	for i := 0; i < 60; i++ {
		controller.Apply(input.Sample{MoveX: 1}, 0)
	}
	if got := controller.Yaw(); math.Abs(got-math.Pi/2) > 0.01 {
		t.Fatalf("yaw failed to converge: %v", got)
	}
}

func TestControllerRespawnsOnceBelowFloor(t *testing.T) {
	respawns := 0
	var reported mgl64.Vec3
	_, controller := newGroundedRig(t, WithOnRespawn(func(position mgl64.Vec3) {
		respawns++
		reported = position
	}))

	//1.- Push the character below the floor and apply a tick.
	controller.Body().Position = mgl64.Vec3{0, -60, 0}
	controller.Apply(input.Sample{}, 0)
	if respawns != 1 {
		t.Fatalf("respawns = %d, want 1", respawns)
	}
	if reported != (mgl64.Vec3{0, 1.5, 0}) {
		t.Fatalf("respawn reported wrong position: %+v", reported)
	}
	if controller.Position() != (mgl64.Vec3{0, 1.5, 0}) {
		t.Fatalf("character not back at spawn: %+v", controller.Position())
	}
	if controller.Body().Velocity != (mgl64.Vec3{}) {
		t.Fatalf("respawn should cancel momentum: %+v", controller.Body().Velocity)
	}

	//2.- The following tick, safely above the floor, must not fire again.
	controller.Apply(input.Sample{}, 0)
	if respawns != 1 {
		t.Fatalf("respawn fired twice: %d", respawns)
	}
}

func TestControllerTeleportCancelsMomentum(t *testing.T) {
	_, controller := newGroundedRig(t)
	controller.Apply(input.Sample{MoveZ: 1}, 0)

	controller.Teleport(mgl64.Vec3{5, 3, 5})
	if controller.Position() != (mgl64.Vec3{5, 3, 5}) {
		t.Fatalf("teleport missed: %+v", controller.Position())
	}
	if controller.Body().Velocity != (mgl64.Vec3{}) {
		t.Fatalf("teleport should cancel momentum: %+v", controller.Body().Velocity)
	}
	if controller.Grounded() {
		t.Fatal("teleport should clear the grounded state until relanding")
	}
}

func TestControllerPoseAnchorsFeet(t *testing.T) {
	_, controller := newGroundedRig(t)

	//1.- Settled on the plane at y=0, the visual anchor's feet touch the surface.
	pose := controller.Pose()
	if math.Abs(pose.Position.Y()) > 1e-6 {
		t.Fatalf("feet should rest on the plane, got y=%v", pose.Position.Y())
	}
	if !pose.Grounded {
		t.Fatal("settled pose should report grounded")
	}
}
