package physics

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// Shape is implemented by every collision shape the world understands.
type Shape interface {
	// ShapeName identifies the shape kind for logging and capture metadata.
	ShapeName() string
}

// Sphere is a collision sphere centred on the owning body position.
type Sphere struct {
	Radius float64
}

// ShapeName identifies the shape kind.
func (Sphere) ShapeName() string { return "sphere" }

// Box is an axis-aligned collision box centred on the owning body position.
type Box struct {
	HalfExtents mgl64.Vec3
}

// ShapeName identifies the shape kind.
func (Box) ShapeName() string { return "box" }

// Plane is an infinite horizontal plane with an upward-facing normal. The
// owning body position supplies the plane height.
type Plane struct{}

// ShapeName identifies the shape kind.
func (Plane) ShapeName() string { return "plane" }

var bodyIDCounter atomic.Uint64

// Body is a rigid body tracked by the world. Mass zero marks the body static.
type Body struct {
	id       uint64
	Name     string
	Shape    Shape
	Material string

	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Mass     float64

	// AllowSleep permits the solver to park the body once it comes to rest.
	// The player body is created with AllowSleep=false so velocity writes
	// always take effect.
	AllowSleep bool

	sleeping bool
	idleTime float64
}

// NewBody constructs a rigid body with a fresh identity.
func NewBody(name string, shape Shape, mass float64, material string) *Body {
	return &Body{
		id:         bodyIDCounter.Add(1),
		Name:       name,
		Shape:      shape,
		Material:   normaliseMaterial(material),
		Mass:       mass,
		AllowSleep: true,
	}
}

// ID returns the unique identity assigned at construction.
func (b *Body) ID() uint64 {
	if b == nil {
		return 0
	}
	return b.id
}

// Static reports whether the body participates as immovable geometry.
func (b *Body) Static() bool {
	return b == nil || b.Mass <= 0
}

// Sleeping reports whether the solver has parked the body.
func (b *Body) Sleeping() bool {
	return b != nil && b.sleeping
}

// WakeUp clears the sleep state so the next step integrates the body again.
func (b *Body) WakeUp() {
	if b == nil {
		return
	}
	b.sleeping = false
	b.idleTime = 0
}

// SetVelocity overwrites the linear velocity and forces the body awake.
func (b *Body) SetVelocity(v mgl64.Vec3) {
	if b == nil {
		return
	}
	b.Velocity = v
	b.WakeUp()
}

// Teleport overwrites the position, zeroes the velocity and wakes the body.
func (b *Body) Teleport(position mgl64.Vec3) {
	if b == nil {
		return
	}
	b.Position = position
	b.Velocity = mgl64.Vec3{}
	b.WakeUp()
}
