package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"wanderfield/simcore/internal/interact"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/physics"
)

const (
	// markerLift keeps markers hovering above the surface they decorate.
	markerLift = 1.0
	// zoneElevationEpsilon is the smallest elevation that earns a zone its
	// own platform collider in a flat world.
	zoneElevationEpsilon = 0.01
)

// Marker is a placed interactable in the assembled scene.
type Marker struct {
	id       string
	position mgl64.Vec3
	meta     interact.Metadata
}

// ID returns the marker identifier.
func (m *Marker) ID() string {
	if m == nil {
		return ""
	}
	return m.id
}

// WorldPosition returns the resolved world-space position of the marker.
func (m *Marker) WorldPosition() mgl64.Vec3 {
	if m == nil {
		return mgl64.Vec3{}
	}
	return m.position
}

// Metadata returns the interaction metadata attached to the marker.
func (m *Marker) Metadata() interact.Metadata {
	if m == nil {
		return interact.Metadata{}
	}
	return m.meta
}

// Scene is the assembled static world for one session. Sessions never share a
// scene; every connection builds its own so physics state stays isolated.
type Scene struct {
	Definition *Definition
	World      *physics.World
	Terrain    *physics.Heightfield
	Spawn      mgl64.Vec3
	Floor      float64
	Markers    []*Marker
}

// Interactables returns the marker set as targeter candidates.
func (s *Scene) Interactables() []interact.Interactable {
	if s == nil {
		return nil
	}
	out := make([]interact.Interactable, 0, len(s.Markers))
	for _, marker := range s.Markers {
		out = append(out, marker)
	}
	return out
}

// Build assembles a fresh physics world and marker set from the definition.
func Build(def *Definition, logger *logging.Logger) (*Scene, error) {
	if def == nil {
		def = Default()
	}
	if logger == nil {
		logger = logging.L()
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	scene := &Scene{
		Definition: def,
		World:      physics.NewWorld(),
		Spawn:      mgl64.Vec3{def.Spawn.X, def.Spawn.Y, def.Spawn.Z},
		Floor:      def.Floor,
	}

	if def.Terrain != nil {
		//1.- A terrain world carves zones into the heightfield, so the zones
		// need no colliders of their own.
		heights := GenerateHeights(*def.Terrain, def.Zones)
		field, err := physics.NewHeightfield(heights, def.Terrain.Size, def.Terrain.Segments)
		if err != nil {
			return nil, fmt.Errorf("build terrain: %w", err)
		}
		scene.Terrain = field
		scene.World.AddBody(physics.NewBody("terrain", field, 0, def.Terrain.Material))
	} else {
		//2.- A flat world rests on an infinite plane with box platforms for
		// every raised zone.
		scene.World.AddBody(physics.NewBody("ground", physics.Plane{}, 0, physics.MaterialDefault))
		for _, zone := range def.Zones {
			if zone.Elevation < zoneElevationEpsilon {
				continue
			}
			box := physics.NewBody("zone:"+zone.ID, physics.Box{
				HalfExtents: mgl64.Vec3{zone.Radius, zone.Elevation / 2, zone.Radius},
			}, 0, zone.Material)
			box.Position = mgl64.Vec3{zone.Center.X, zone.Elevation / 2, zone.Center.Z}
			scene.World.AddBody(box)
		}
	}

	for _, markerDef := range def.Markers {
		marker, ok := buildMarker(def, scene, markerDef, logger)
		if !ok {
			continue
		}
		scene.Markers = append(scene.Markers, marker)
	}

	logger.Info("world assembled",
		logging.String("world", def.Name),
		logging.Int("zones", len(def.Zones)),
		logging.Int("markers", len(scene.Markers)),
		logging.Bool("terrain", def.Terrain != nil),
	)
	return scene, nil
}

// buildMarker resolves one marker placement. Markers with incomplete
// kind-specific metadata are dropped rather than served half-formed.
func buildMarker(def *Definition, scene *Scene, markerDef MarkerDef, logger *logging.Logger) (*Marker, bool) {
	meta := interact.Metadata{Kind: markerDef.Kind, ZoneID: markerDef.Zone, ProjectID: markerDef.Project, PortalID: markerDef.Portal}
	switch markerDef.Kind {
	case "project":
		if markerDef.Project == "" {
			logger.Warn("marker dropped: project marker without a project id", logging.String("marker", markerDef.ID))
			return nil, false
		}
	case "portal":
		if markerDef.Portal == "" || markerDef.Target == nil {
			logger.Warn("marker dropped: portal marker without a destination", logging.String("marker", markerDef.ID))
			return nil, false
		}
		meta.PortalTarget = &[3]float64{markerDef.Target.X, markerDef.Target.Y, markerDef.Target.Z}
	}

	var position mgl64.Vec3
	switch {
	case markerDef.Position != nil:
		position = mgl64.Vec3{markerDef.Position.X, markerDef.Position.Y, markerDef.Position.Z}
	default:
		zone, ok := def.Zone(markerDef.Zone)
		if !ok {
			return nil, false
		}
		x := zone.Center.X + markerDef.Offset.X
		z := zone.Center.Z + markerDef.Offset.Z
		surface := zone.Elevation
		if scene.Terrain != nil {
			if h, ok := scene.World.SurfaceHeight(x, z); ok {
				surface = h
			}
		}
		position = mgl64.Vec3{x, surface + markerLift, z}
	}

	return &Marker{id: markerDef.ID, position: position, meta: meta}, true
}
