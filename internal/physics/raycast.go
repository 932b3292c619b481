package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Hit describes the result of a ray query against the world.
type Hit struct {
	Hit      bool
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Body     *Body
	Distance float64
}

// groundProbeLift raises the ground-check origin to avoid starting inside the
// surface the player is standing on.
const groundProbeLift = 0.1

// Raycast finds the closest body intersected by the normalised ray direction.
// A miss returns Hit{Hit: false, Distance: maxDistance}. The ignore body, when
// non-nil, is excluded so callers can cast from inside their own collider.
func (w *World) Raycast(origin, direction mgl64.Vec3, maxDistance float64, ignore *Body) Hit {
	miss := Hit{Distance: maxDistance}
	if w == nil || maxDistance <= 0 {
		return miss
	}
	if direction.LenSqr() < epsilon {
		return miss
	}
	dir := direction.Normalize()
	best := miss
	for _, body := range w.bodies {
		if body == nil || body == ignore {
			continue
		}
		t, normal, ok := rayBody(origin, dir, maxDistance, body)
		if !ok {
			continue
		}
		//1.- Keep the nearest hit so overlapping colliders resolve deterministically.
		if !best.Hit || t < best.Distance {
			best = Hit{Hit: true, Point: origin.Add(dir.Mul(t)), Normal: normal, Body: body, Distance: t}
		}
	}
	return best
}

// GroundCheck casts a short downward ray from slightly above position.
func (w *World) GroundCheck(position mgl64.Vec3, distance float64, ignore *Body) Hit {
	origin := position.Add(mgl64.Vec3{0, groundProbeLift, 0})
	return w.Raycast(origin, mgl64.Vec3{0, -1, 0}, distance+groundProbeLift, ignore)
}

func rayBody(origin, dir mgl64.Vec3, maxDistance float64, body *Body) (float64, mgl64.Vec3, bool) {
	switch shape := body.Shape.(type) {
	case Sphere:
		return raySphere(origin, dir, maxDistance, body.Position, shape.Radius)
	case Box:
		return rayBox(origin, dir, maxDistance, body.Position, shape.HalfExtents)
	case Plane:
		return rayPlane(origin, dir, maxDistance, body.Position.Y())
	case *Heightfield:
		return rayHeightfield(origin, dir, maxDistance, body.Position, shape)
	default:
		return 0, mgl64.Vec3{}, false
	}
}

func raySphere(origin, dir mgl64.Vec3, maxDistance float64, center mgl64.Vec3, radius float64) (float64, mgl64.Vec3, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.LenSqr() - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, mgl64.Vec3{}, false
	}
	root := math.Sqrt(disc)
	t := -b - root
	if t < epsilon {
		t = -b + root
	}
	if t < epsilon || t > maxDistance {
		return 0, mgl64.Vec3{}, false
	}
	point := origin.Add(dir.Mul(t))
	return t, point.Sub(center).Mul(1 / radius), true
}

func rayBox(origin, dir mgl64.Vec3, maxDistance float64, center, half mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	tMin, tMax := 0.0, maxDistance
	var normal mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		lo := center[axis] - half[axis]
		hi := center[axis] + half[axis]
		if math.Abs(dir[axis]) < epsilon {
			if origin[axis] < lo || origin[axis] > hi {
				return 0, mgl64.Vec3{}, false
			}
			continue
		}
		inv := 1 / dir[axis]
		t0 := (lo - origin[axis]) * inv
		t1 := (hi - origin[axis]) * inv
		sign := -1.0
		if t0 > t1 {
			t0, t1 = t1, t0
			sign = 1.0
		}
		if t0 > tMin {
			tMin = t0
			normal = mgl64.Vec3{}
			normal[axis] = sign
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMin > tMax {
			return 0, mgl64.Vec3{}, false
		}
	}
	//1.- A ray starting inside the box never raised tMin, so treat it as a miss.
	if tMin < epsilon {
		return 0, mgl64.Vec3{}, false
	}
	return tMin, normal, true
}

func rayPlane(origin, dir mgl64.Vec3, maxDistance float64, height float64) (float64, mgl64.Vec3, bool) {
	if math.Abs(dir.Y()) < epsilon {
		return 0, mgl64.Vec3{}, false
	}
	t := (height - origin.Y()) / dir.Y()
	if t < epsilon || t > maxDistance {
		return 0, mgl64.Vec3{}, false
	}
	normal := mgl64.Vec3{0, 1, 0}
	if origin.Y() < height {
		normal = mgl64.Vec3{0, -1, 0}
	}
	return t, normal, true
}

func rayHeightfield(origin, dir mgl64.Vec3, maxDistance float64, bodyPos mgl64.Vec3, hf *Heightfield) (float64, mgl64.Vec3, bool) {
	if hf == nil {
		return 0, mgl64.Vec3{}, false
	}
	step := float64(hf.cell) * 0.25
	if step <= 0 {
		return 0, mgl64.Vec3{}, false
	}
	clearance := func(t float64) float64 {
		p := origin.Add(dir.Mul(t))
		local := p.Sub(bodyPos)
		surface, ok := hf.HeightAt(local.X(), local.Z())
		if !ok {
			return math.MaxFloat64
		}
		return p.Y() - surface
	}
	if clearance(0) <= 0 {
		//1.- Rays starting under the surface report no hit, matching the box rule.
		return 0, mgl64.Vec3{}, false
	}
	prevT := 0.0
	for t := step; t <= maxDistance; t += step {
		if clearance(t) > 0 {
			prevT = t
			continue
		}
		//2.- Bisect the crossing interval to settle on the surface point.
		lo, hi := prevT, t
		for i := 0; i < 16; i++ {
			mid := (lo + hi) / 2
			if clearance(mid) > 0 {
				lo = mid
			} else {
				hi = mid
			}
		}
		point := origin.Add(dir.Mul(hi))
		local := point.Sub(bodyPos)
		return hi, hf.NormalAt(local.X(), local.Z()), true
	}
	return 0, mgl64.Vec3{}, false
}
