package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

// stepCap bounds how much wall-clock time one Step call may simulate, keeping
// a stalled host from triggering a catch-up spiral.
const stepCap = 0.1

const (
	sleepSpeedLimit = 0.1
	sleepTimeLimit  = 1.0
)

// restitutionThreshold is the impact speed below which contacts resolve as
// fully inelastic, letting bodies come to rest instead of jittering.
const restitutionThreshold = 0.5

// ContactEvent reports a resolved contact pair. Normal points from BodyA into
// BodyB, so consumers comparing against their own body must negate it when
// they are BodyA.
type ContactEvent struct {
	BodyA  *Body
	BodyB  *Body
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

// ContactHandler receives contact events raised while stepping.
type ContactHandler func(ContactEvent)

// World owns the rigid bodies and advances them with a fixed-step solver.
// A world belongs to exactly one session goroutine and is not safe for
// concurrent use.
type World struct {
	gravity     mgl64.Vec3
	bodies      []*Body
	materials   *MaterialTable
	handlers    []ContactHandler
	accumulator float64
}

// Option mutates world construction defaults.
type Option func(*World)

// WithGravity overrides the default gravity vector.
func WithGravity(gravity mgl64.Vec3) Option {
	return func(w *World) { w.gravity = gravity }
}

// WithMaterialTable overrides the default contact material table.
func WithMaterialTable(table *MaterialTable) Option {
	return func(w *World) {
		if table != nil {
			w.materials = table
		}
	}
}

// NewWorld builds an empty world with default gravity and materials.
func NewWorld(opts ...Option) *World {
	w := &World{
		gravity:   mgl64.Vec3{0, -9.82, 0},
		materials: NewMaterialTable(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Gravity returns the acceleration applied to dynamic bodies.
func (w *World) Gravity() mgl64.Vec3 {
	if w == nil {
		return mgl64.Vec3{}
	}
	return w.gravity
}

// AddBody registers a body with the world without taking ownership of it.
func (w *World) AddBody(body *Body) {
	if w == nil || body == nil {
		return
	}
	w.bodies = append(w.bodies, body)
}

// RemoveBody detaches a body from the world. Unknown bodies are ignored.
func (w *World) RemoveBody(body *Body) {
	if w == nil || body == nil {
		return
	}
	for idx, candidate := range w.bodies {
		if candidate == body {
			w.bodies = append(w.bodies[:idx], w.bodies[idx+1:]...)
			return
		}
	}
}

// Bodies returns a copy of the registered body list.
func (w *World) Bodies() []*Body {
	if w == nil {
		return nil
	}
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// OnContact registers a handler invoked for every resolved contact pair.
func (w *World) OnContact(handler ContactHandler) {
	if w == nil || handler == nil {
		return
	}
	w.handlers = append(w.handlers, handler)
}

// SurfaceHeight reports the static ground height at (x, z), preferring the
// heightfield when one is registered and falling back to the ground plane.
func (w *World) SurfaceHeight(x, z float64) (float64, bool) {
	if w == nil {
		return 0, false
	}
	planeY := 0.0
	planeFound := false
	for _, body := range w.bodies {
		switch shape := body.Shape.(type) {
		case *Heightfield:
			local := mgl64.Vec3{x, 0, z}.Sub(body.Position)
			if height, ok := shape.HeightAt(local.X(), local.Z()); ok {
				return body.Position.Y() + height, true
			}
		case Plane:
			planeY = body.Position.Y()
			planeFound = true
		}
	}
	return planeY, planeFound
}

// Step advances the simulation by up to maxSubsteps fixed slices covering
// min(realDt, cap) of elapsed wall-clock time. Leftover time carries into the
// next call through an internal accumulator.
func (w *World) Step(fixedDt, realDt float64, maxSubsteps int) {
	if w == nil || fixedDt <= 0 || realDt <= 0 {
		return
	}
	if maxSubsteps <= 0 {
		maxSubsteps = 1
	}
	if realDt > stepCap {
		realDt = stepCap
	}
	w.accumulator += realDt
	//1.- Drop debt beyond the substep budget instead of simulating a backlog.
	if limit := float64(maxSubsteps) * fixedDt; w.accumulator > limit {
		w.accumulator = limit
	}
	for executed := 0; executed < maxSubsteps && w.accumulator >= fixedDt; executed++ {
		w.substep(fixedDt)
		w.accumulator -= fixedDt
	}
}

func (w *World) substep(dt float64) {
	//1.- Semi-implicit Euler: integrate velocity before position.
	for _, body := range w.bodies {
		if body == nil || body.Static() || body.Sleeping() {
			continue
		}
		body.Velocity = body.Velocity.Add(w.gravity.Mul(dt))
		body.Position = body.Position.Add(body.Velocity.Mul(dt))
	}
	w.resolveContacts()
	w.updateSleep(dt)
}

func (w *World) resolveContacts() {
	for i, a := range w.bodies {
		if a == nil || a.Static() || a.Sleeping() {
			continue
		}
		for j, b := range w.bodies {
			if i == j || b == nil {
				continue
			}
			//1.- Dynamic pairs resolve once, keyed on index order.
			if !b.Static() && j < i {
				continue
			}
			if b.Static() {
				w.resolveDynamicStatic(a, b)
			} else {
				w.resolveDynamicPair(a, b)
			}
		}
	}
}

func (w *World) resolveDynamicStatic(body, static *Body) {
	sphere, ok := body.Shape.(Sphere)
	if !ok {
		if box, isBox := body.Shape.(Box); isBox {
			w.resolveBoxPlane(body, box, static)
		}
		return
	}
	normal, depth, point, ok := contactSphereStatic(body.Position, sphere.Radius, static)
	if !ok {
		return
	}
	//1.- Push the body out of the surface along the support normal.
	body.Position = body.Position.Add(normal.Mul(depth))
	vn := body.Velocity.Dot(normal)
	if vn < 0 {
		props := w.materials.Lookup(body.Material, static.Material)
		restitution := props.Restitution
		if -vn < restitutionThreshold {
			restitution = 0
		}
		//2.- Cancel the approach speed and add the restitution bounce.
		impulse := -vn * (1 + restitution)
		body.Velocity = body.Velocity.Add(normal.Mul(impulse))
		//3.- Coulomb friction clamps the tangential correction by the normal impulse.
		tangent := body.Velocity.Sub(normal.Mul(body.Velocity.Dot(normal)))
		if speed := tangent.Len(); speed > epsilon {
			reduce := math.Min(props.Friction*impulse, speed)
			body.Velocity = body.Velocity.Sub(tangent.Mul(reduce / speed))
		}
	}
	w.emit(ContactEvent{BodyA: body, BodyB: static, Point: point, Normal: normal.Mul(-1)})
}

func (w *World) resolveBoxPlane(body *Body, box Box, static *Body) {
	if _, ok := static.Shape.(Plane); !ok {
		return
	}
	depth := static.Position.Y() - (body.Position.Y() - box.HalfExtents.Y())
	if depth <= 0 {
		return
	}
	body.Position = body.Position.Add(mgl64.Vec3{0, depth, 0})
	if body.Velocity.Y() < 0 {
		props := w.materials.Lookup(body.Material, static.Material)
		restitution := props.Restitution
		if -body.Velocity.Y() < restitutionThreshold {
			restitution = 0
		}
		body.Velocity = mgl64.Vec3{body.Velocity.X(), -body.Velocity.Y() * restitution, body.Velocity.Z()}
	}
	point := mgl64.Vec3{body.Position.X(), static.Position.Y(), body.Position.Z()}
	w.emit(ContactEvent{BodyA: body, BodyB: static, Point: point, Normal: mgl64.Vec3{0, -1, 0}})
}

func (w *World) resolveDynamicPair(a, b *Body) {
	sphereA, okA := a.Shape.(Sphere)
	sphereB, okB := b.Shape.(Sphere)
	if !okA || !okB {
		return
	}
	delta := b.Position.Sub(a.Position)
	dist := delta.Len()
	depth := sphereA.Radius + sphereB.Radius - dist
	if depth <= 0 {
		return
	}
	var normal mgl64.Vec3
	if dist > epsilon {
		normal = delta.Mul(1 / dist)
	} else {
		normal = mgl64.Vec3{0, 1, 0}
	}
	total := a.Mass + b.Mass
	//1.- Separate in proportion to mass so heavy bodies barely move.
	a.Position = a.Position.Sub(normal.Mul(depth * b.Mass / total))
	b.Position = b.Position.Add(normal.Mul(depth * a.Mass / total))
	b.WakeUp()
	rel := b.Velocity.Sub(a.Velocity).Dot(normal)
	if rel < 0 {
		props := w.materials.Lookup(a.Material, b.Material)
		restitution := props.Restitution
		if -rel < restitutionThreshold {
			restitution = 0
		}
		impulse := -(1 + restitution) * rel / (1/a.Mass + 1/b.Mass)
		a.Velocity = a.Velocity.Sub(normal.Mul(impulse / a.Mass))
		b.Velocity = b.Velocity.Add(normal.Mul(impulse / b.Mass))
	}
	point := a.Position.Add(normal.Mul(sphereA.Radius))
	w.emit(ContactEvent{BodyA: a, BodyB: b, Point: point, Normal: normal})
}

// contactSphereStatic computes the support normal (pointing toward the
// sphere), penetration depth and contact point against a static body.
func contactSphereStatic(pos mgl64.Vec3, radius float64, static *Body) (mgl64.Vec3, float64, mgl64.Vec3, bool) {
	switch shape := static.Shape.(type) {
	case Plane:
		depth := static.Position.Y() + radius - pos.Y()
		if depth <= 0 {
			return mgl64.Vec3{}, 0, mgl64.Vec3{}, false
		}
		point := mgl64.Vec3{pos.X(), static.Position.Y(), pos.Z()}
		return mgl64.Vec3{0, 1, 0}, depth, point, true
	case Box:
		return contactSphereBox(pos, radius, static.Position, shape.HalfExtents)
	case *Heightfield:
		local := pos.Sub(static.Position)
		height, ok := shape.HeightAt(local.X(), local.Z())
		if !ok {
			return mgl64.Vec3{}, 0, mgl64.Vec3{}, false
		}
		surface := static.Position.Y() + height
		depth := surface - (pos.Y() - radius)
		if depth <= 0 {
			return mgl64.Vec3{}, 0, mgl64.Vec3{}, false
		}
		normal := shape.NormalAt(local.X(), local.Z())
		point := mgl64.Vec3{pos.X(), surface, pos.Z()}
		return normal, depth, point, true
	default:
		return mgl64.Vec3{}, 0, mgl64.Vec3{}, false
	}
}

func contactSphereBox(pos mgl64.Vec3, radius float64, center, half mgl64.Vec3) (mgl64.Vec3, float64, mgl64.Vec3, bool) {
	closest := mgl64.Vec3{
		mgl64.Clamp(pos.X(), center.X()-half.X(), center.X()+half.X()),
		mgl64.Clamp(pos.Y(), center.Y()-half.Y(), center.Y()+half.Y()),
		mgl64.Clamp(pos.Z(), center.Z()-half.Z(), center.Z()+half.Z()),
	}
	delta := pos.Sub(closest)
	distSq := delta.LenSqr()
	if distSq > radius*radius {
		return mgl64.Vec3{}, 0, mgl64.Vec3{}, false
	}
	if distSq > epsilon {
		dist := math.Sqrt(distSq)
		return delta.Mul(1 / dist), radius - dist, closest, true
	}
	//1.- Sphere centre inside the box: escape along the axis of least overlap.
	overlapX := half.X() - math.Abs(pos.X()-center.X())
	overlapY := half.Y() - math.Abs(pos.Y()-center.Y())
	overlapZ := half.Z() - math.Abs(pos.Z()-center.Z())
	normal := mgl64.Vec3{0, 1, 0}
	depth := overlapY
	if pos.Y() < center.Y() {
		normal = mgl64.Vec3{0, -1, 0}
	}
	if overlapX < depth {
		depth = overlapX
		normal = mgl64.Vec3{1, 0, 0}
		if pos.X() < center.X() {
			normal = mgl64.Vec3{-1, 0, 0}
		}
	}
	if overlapZ < depth {
		depth = overlapZ
		normal = mgl64.Vec3{0, 0, 1}
		if pos.Z() < center.Z() {
			normal = mgl64.Vec3{0, 0, -1}
		}
	}
	return normal, depth + radius, closest, true
}

func (w *World) emit(event ContactEvent) {
	for _, handler := range w.handlers {
		handler(event)
	}
}

func (w *World) updateSleep(dt float64) {
	for _, body := range w.bodies {
		if body == nil || body.Static() || !body.AllowSleep || body.Sleeping() {
			continue
		}
		if body.Velocity.Len() < sleepSpeedLimit {
			body.idleTime += dt
			if body.idleTime > sleepTimeLimit {
				body.sleeping = true
				body.Velocity = mgl64.Vec3{}
			}
			continue
		}
		body.idleTime = 0
	}
}
