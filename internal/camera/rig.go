package camera

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/input"
)

const (
	minPitch    = 0.1
	maxPitch    = 1.4
	minDistance = 6.0
	maxDistance = 60.0
	// zoomStep scales the follow distance by five percent per wheel notch.
	zoomStep = 0.05

	overviewDistance = 45.0
	overviewPitch    = 1.35
	// overviewExitDistance is the zoom-in depth that leaves overview mode.
	overviewExitDistance = overviewDistance / 2

	// heightAddend lifts the camera above the pure orbit offset.
	heightAddend = 2.0
	// lookAtLift aims the camera at the character's head rather than its feet.
	lookAtLift = 1.5

	positionLerp      = 0.1
	overviewLerpBoost = 3.0
	distanceLerp      = 0.2
	lookAtLerp        = 0.08

	defaultDistance = 12.0
	defaultPitch    = 0.45
	defaultAspect   = 16.0 / 9.0
)

// Pose is the renderable camera state for one frame.
type Pose struct {
	Position mgl64.Vec3
	LookAt   mgl64.Vec3
	Yaw      float64
	Pitch    float64
	Distance float64
	Aspect   float64
	Overview bool
}

// Rig is a smoothed third-person orbit camera. Orbit angles and zoom respond
// to input immediately and are clamped there; the rendered position and aim
// trail behind through per-frame easing. Bound to its session goroutine.
type Rig struct {
	yaw   float64
	pitch float64

	distance       float64
	targetDistance float64

	position mgl64.Vec3
	lookAt   mgl64.Vec3
	aspect   float64

	overview      bool
	savedDistance float64

	snapped bool
}

// Option customises rig construction.
type Option func(*Rig)

// WithYaw sets the initial orbit angle in radians.
func WithYaw(yaw float64) Option {
	return func(r *Rig) {
		r.yaw = yaw
	}
}

// WithDistance sets the initial follow distance, clamped to the orbit range.
func WithDistance(distance float64) Option {
	return func(r *Rig) {
		r.targetDistance = clamp(distance, minDistance, maxDistance)
		r.distance = r.targetDistance
	}
}

// NewRig builds a rig trailing behind a character that spawns facing +z.
func NewRig(opts ...Option) *Rig {
	rig := &Rig{
		yaw:            math.Pi,
		pitch:          defaultPitch,
		distance:       defaultDistance,
		targetDistance: defaultDistance,
		aspect:         defaultAspect,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rig)
		}
	}
	return rig
}

// Apply feeds one drained input sample into the rig: drag, zoom notches,
// overview toggles, and viewport changes. Clamping happens here, against the
// state each individual notch sees.
func (r *Rig) Apply(sample input.Sample) {
	if r == nil {
		return
	}
	r.ApplyDrag(sample.DragYaw, sample.DragPitch)
	r.ApplyZoom(sample.ZoomNotches)
	for i := 0; i < sample.OverviewToggles; i++ {
		r.ToggleOverview()
	}
	if sample.Viewport != nil {
		r.Resize(sample.Viewport.Width, sample.Viewport.Height)
	}
}

// ApplyDrag adds pointer deltas to the orbit angles. Pitch is frozen while
// the overview framing owns it.
func (r *Rig) ApplyDrag(dYaw, dPitch float64) {
	if r == nil {
		return
	}
	r.yaw += dYaw
	if !r.overview {
		r.pitch = clamp(r.pitch+dPitch, minPitch, maxPitch)
	}
}

// ApplyZoom scales the follow distance by one step per notch, clamping after
// every notch. Zooming deep enough while in overview drops back to the orbit
// view at the zoomed distance.
func (r *Rig) ApplyZoom(notches int) {
	if r == nil || notches == 0 {
		return
	}
	step := 1
	if notches < 0 {
		step = -1
		notches = -notches
	}
	for i := 0; i < notches; i++ {
		factor := 1 + zoomStep
		if step < 0 {
			factor = 1 - zoomStep
		}
		r.targetDistance = clamp(r.targetDistance*factor, minDistance, maxDistance)
		if r.overview && r.targetDistance < overviewExitDistance {
			r.overview = false
		}
	}
}

// ToggleOverview switches between the orbit view and the raised overview
// framing, restoring the previous follow distance on the way back.
func (r *Rig) ToggleOverview() {
	if r == nil {
		return
	}
	if !r.overview {
		r.savedDistance = r.targetDistance
		r.targetDistance = overviewDistance
		r.overview = true
		return
	}
	r.overview = false
	r.targetDistance = clamp(r.savedDistance, minDistance, maxDistance)
}

// Resize updates the projection aspect ratio; the rig ignores degenerate sizes.
func (r *Rig) Resize(width, height int) {
	if r == nil || width <= 0 || height <= 0 {
		return
	}
	r.aspect = float64(width) / float64(height)
}

// Update eases the rendered camera toward the orbit around the target. The
// first update snaps so a fresh session never sweeps across the world.
func (r *Rig) Update(target mgl64.Vec3) {
	if r == nil {
		return
	}
	aim := target
	aim[1] += lookAtLift

	if !r.snapped {
		//1.- Snap everything on the first frame of the session.
		r.distance = r.targetDistance
		r.position = r.desiredPosition(target)
		r.lookAt = aim
		r.snapped = true
		return
	}

	//2.- The distance eases first so the desired orbit breathes with the zoom.
	r.distance = lerp(r.distance, r.targetDistance, distanceLerp)

	//3.- Position easing runs faster in overview to sell the mode switch.
	posLerp := positionLerp
	if r.overview {
		posLerp = positionLerp * overviewLerpBoost
	}
	desired := r.desiredPosition(target)
	r.position = lerpVec(r.position, desired, posLerp)

	//4.- The aim trails on its own, slower curve.
	r.lookAt = lerpVec(r.lookAt, aim, lookAtLerp)
}

// desiredPosition computes the unsmoothed orbit position for the target.
func (r *Rig) desiredPosition(target mgl64.Vec3) mgl64.Vec3 {
	pitch := r.effectivePitch()
	sinYaw, cosYaw := math.Sincos(r.yaw)
	cosPitch := math.Cos(pitch)
	offset := mgl64.Vec3{
		sinYaw * cosPitch,
		math.Sin(pitch),
		cosYaw * cosPitch,
	}.Mul(r.distance)
	desired := target.Add(offset)
	desired[1] += heightAddend
	return desired
}

func (r *Rig) effectivePitch() float64 {
	if r.overview {
		return overviewPitch
	}
	return r.pitch
}

// Pose reports the renderable camera state.
func (r *Rig) Pose() Pose {
	if r == nil {
		return Pose{}
	}
	return Pose{
		Position: r.position,
		LookAt:   r.lookAt,
		Yaw:      r.yaw,
		Pitch:    r.effectivePitch(),
		Distance: r.distance,
		Aspect:   r.aspect,
		Overview: r.overview,
	}
}

// Yaw returns the orbit angle used to orient character movement.
func (r *Rig) Yaw() float64 {
	if r == nil {
		return 0
	}
	return r.yaw
}

// Overview reports whether the raised framing is active.
func (r *Rig) Overview() bool {
	return r != nil && r.overview
}

func clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpVec(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}
