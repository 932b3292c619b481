package character

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/input"
	"wanderfield/simcore/internal/physics"
)

const (
	// moveSpeed is the horizontal speed while a movement input is active.
	moveSpeed = 15.0
	// velocityDecay slows the character each tick once the input releases.
	velocityDecay = 0.85
	// yawEase is the per-tick fraction of the remaining turn toward the
	// movement heading.
	yawEase = 0.15
	// groundedCos is the minimum upward cosine for a contact to restore the
	// jump. Slopes steeper than ~72 degrees do not count as ground.
	groundedCos = 0.3
	// jumpSpeed is the vertical takeoff speed from a standstill.
	jumpSpeed = 10.0
	// movingJumpScale halves the takeoff while a movement input is active.
	movingJumpScale = 0.5

	defaultRadius = 1.0
	defaultMass   = 5.0
)

var worldUp = mgl64.Vec3{0, 1, 0}

// Pose is the renderable state of the character. Position is the visual
// anchor with the feet on the surface, one collider radius under the body
// centre.
type Pose struct {
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Yaw      float64
	Grounded bool
}

// Controller drives a single character body from drained input samples. It is
// bound to the same session goroutine as its physics world.
type Controller struct {
	world  *physics.World
	body   *physics.Body
	spawn  mgl64.Vec3
	floor  float64
	radius float64

	yaw       float64
	canJump   bool
	jumpHeld  bool
	fellUnder bool

	onRespawn func(mgl64.Vec3)
}

// Option customises controller construction.
type Option func(*Controller)

// WithRadius overrides the collider radius.
func WithRadius(radius float64) Option {
	return func(c *Controller) {
		if radius > 0 {
			c.radius = radius
		}
	}
}

// WithYaw sets the initial facing angle in radians.
func WithYaw(yaw float64) Option {
	return func(c *Controller) {
		c.yaw = normaliseAngle(yaw)
	}
}

// WithOnRespawn registers a callback fired after a fall recovery teleport.
func WithOnRespawn(fn func(mgl64.Vec3)) Option {
	return func(c *Controller) {
		c.onRespawn = fn
	}
}

// NewController creates the character body, registers it with the world, and
// hooks the contact stream for grounding.
func NewController(world *physics.World, spawn mgl64.Vec3, floor float64, opts ...Option) *Controller {
	controller := &Controller{
		world:  world,
		spawn:  spawn,
		floor:  floor,
		radius: defaultRadius,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(controller)
		}
	}

	body := physics.NewBody("character", physics.Sphere{Radius: controller.radius}, defaultMass, physics.MaterialPlayer)
	//1.- The character must keep colliding while idle, so it never sleeps.
	body.AllowSleep = false
	body.Position = spawn
	controller.body = body

	if world != nil {
		world.AddBody(body)
		world.OnContact(controller.handleContact)
	}
	return controller
}

// handleContact restores the jump when the character rests on walkable ground.
func (c *Controller) handleContact(event physics.ContactEvent) {
	normal := event.Normal
	switch {
	case event.BodyA == c.body:
		//1.- Contact normals point from A into B; flip so it faces the character.
		normal = normal.Mul(-1)
	case event.BodyB == c.body:
	default:
		return
	}
	if normal.Dot(worldUp) > groundedCos {
		c.canJump = true
	}
}

// Apply consumes one drained input sample. cameraYaw orients the movement
// axes so forward always walks away from the viewer. Call once per tick,
// after the physics step so fresh contacts inform grounding.
func (c *Controller) Apply(sample input.Sample, cameraYaw float64) {
	if c == nil || c.body == nil {
		return
	}

	velocity := c.body.Velocity
	if sample.Moving() {
		direction, magnitude := c.moveDirection(sample, cameraYaw)
		//1.- Overwrite the horizontal velocity; the solver keeps the vertical axis.
		velocity[0] = direction.X() * moveSpeed * magnitude
		velocity[2] = direction.Z() * moveSpeed * magnitude
		c.turnToward(direction)
	} else {
		//2.- No input: bleed the horizontal velocity off over a few ticks.
		velocity[0] *= velocityDecay
		velocity[2] *= velocityDecay
	}

	//3.- Jump on the press edge, spending the grounded state until relanding.
	if sample.JumpHeld && !c.jumpHeld && c.canJump {
		takeoff := jumpSpeed
		if sample.Moving() {
			takeoff *= movingJumpScale
		}
		velocity[1] = takeoff
		c.canJump = false
	}
	c.jumpHeld = sample.JumpHeld

	c.body.SetVelocity(velocity)
	c.recoverFromFall()
}

// moveDirection maps the input axes through the camera yaw onto the ground
// plane. The magnitude preserves analog walk speeds but never exceeds one.
func (c *Controller) moveDirection(sample input.Sample, cameraYaw float64) (mgl64.Vec3, float64) {
	sin, cos := math.Sincos(cameraYaw)
	forward := mgl64.Vec3{-sin, 0, -cos}
	right := mgl64.Vec3{cos, 0, -sin}

	direction := forward.Mul(sample.MoveZ).Add(right.Mul(sample.MoveX))
	length := direction.Len()
	if length < 1e-9 {
		return mgl64.Vec3{}, 0
	}
	magnitude := length
	if magnitude > 1 {
		magnitude = 1
	}
	return direction.Mul(1 / length), magnitude
}

// turnToward eases the facing angle toward the movement heading along the
// shortest arc.
func (c *Controller) turnToward(direction mgl64.Vec3) {
	heading := math.Atan2(direction.X(), direction.Z())
	delta := normaliseAngle(heading - c.yaw)
	c.yaw = normaliseAngle(c.yaw + delta*yawEase)
}

// recoverFromFall teleports the character back to spawn after it drops below
// the world floor, firing the respawn callback exactly once per fall.
func (c *Controller) recoverFromFall() {
	if c.body.Position.Y() >= c.floor {
		c.fellUnder = false
		return
	}
	if c.fellUnder {
		return
	}
	c.fellUnder = true
	c.body.Teleport(c.spawn)
	c.canJump = false
	if c.onRespawn != nil {
		c.onRespawn(c.spawn)
	}
}

// Teleport relocates the character, cancelling all momentum.
func (c *Controller) Teleport(position mgl64.Vec3) {
	if c == nil || c.body == nil {
		return
	}
	c.body.Teleport(position)
	c.canJump = false
}

// Pose reports the renderable state for the current tick.
func (c *Controller) Pose() Pose {
	if c == nil || c.body == nil {
		return Pose{}
	}
	centre := c.body.Position
	return Pose{
		Position: mgl64.Vec3{centre.X(), centre.Y() - c.radius, centre.Z()},
		Velocity: c.body.Velocity,
		Yaw:      c.yaw,
		Grounded: c.canJump,
	}
}

// Body exposes the physics body for camera tracking and targeting.
func (c *Controller) Body() *physics.Body {
	if c == nil {
		return nil
	}
	return c.body
}

// Position returns the body centre.
func (c *Controller) Position() mgl64.Vec3 {
	if c == nil || c.body == nil {
		return mgl64.Vec3{}
	}
	return c.body.Position
}

// Forward returns the facing direction on the ground plane.
func (c *Controller) Forward() mgl64.Vec3 {
	if c == nil {
		return mgl64.Vec3{0, 0, 1}
	}
	sin, cos := math.Sincos(c.yaw)
	return mgl64.Vec3{sin, 0, cos}
}

// Yaw returns the current facing angle in radians.
func (c *Controller) Yaw() float64 {
	if c == nil {
		return 0
	}
	return c.yaw
}

// Grounded reports whether a jump is currently available.
func (c *Controller) Grounded() bool {
	return c != nil && c.canJump
}

// Radius returns the collider radius.
func (c *Controller) Radius() float64 {
	if c == nil {
		return 0
	}
	return c.radius
}

// normaliseAngle wraps an angle into (-pi, pi].
func normaliseAngle(angle float64) float64 {
	for angle > math.Pi {
		angle -= 2 * math.Pi
	}
	for angle <= -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}
