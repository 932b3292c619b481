package world

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFloor is the respawn threshold used when the file leaves it unset.
	DefaultFloor = -50.0
	// DefaultSpawnHeight lifts an unset spawn point clear of the surface.
	DefaultSpawnHeight = 2.0

	// maxTerrainSegments bounds the generated grid so a hostile world file
	// cannot allocate unbounded memory.
	maxTerrainSegments = 512
)

// Vec is a world-space point in the definition file.
type Vec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// PlanarVec is a ground-plane point; the height comes from the surface.
type PlanarVec struct {
	X float64 `yaml:"x"`
	Z float64 `yaml:"z"`
}

// TerrainDef describes the procedural heightfield terrain, when present.
type TerrainDef struct {
	Size      float64 `yaml:"size"`
	Segments  int     `yaml:"segments"`
	Seed      int64   `yaml:"seed"`
	Amplitude float64 `yaml:"amplitude"`
	Material  string  `yaml:"material"`
}

// ZoneDef describes a named circular area of the world.
type ZoneDef struct {
	ID        string    `yaml:"id"`
	Center    PlanarVec `yaml:"center"`
	Radius    float64   `yaml:"radius"`
	Elevation float64   `yaml:"elevation"`
	Material  string    `yaml:"material"`
}

// MarkerDef describes an interactable marker placement. Markers anchor either
// to a zone (center plus offset, height from the surface) or to an absolute
// position.
type MarkerDef struct {
	ID       string    `yaml:"id"`
	Kind     string    `yaml:"kind"`
	Zone     string    `yaml:"zone,omitempty"`
	Offset   PlanarVec `yaml:"offset,omitempty"`
	Position *Vec      `yaml:"position,omitempty"`
	Project  string    `yaml:"project,omitempty"`
	Portal   string    `yaml:"portal,omitempty"`
	Target   *Vec      `yaml:"target,omitempty"`
}

// Definition is the full world description loaded from YAML.
type Definition struct {
	Name    string      `yaml:"name"`
	Spawn   Vec         `yaml:"spawn"`
	Floor   float64     `yaml:"floor"`
	Terrain *TerrainDef `yaml:"terrain,omitempty"`
	Zones   []ZoneDef   `yaml:"zones,omitempty"`
	Markers []MarkerDef `yaml:"markers,omitempty"`
}

// Zone looks up a zone definition by id.
func (d *Definition) Zone(id string) (ZoneDef, bool) {
	if d == nil {
		return ZoneDef{}, false
	}
	for _, zone := range d.Zones {
		if zone.ID == id {
			return zone, true
		}
	}
	return ZoneDef{}, false
}

// Load reads, defaults and validates a world definition file.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world definition: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	//1.- Unknown keys are almost always typos in hand-written world files.
	decoder.KnownFields(true)
	def := &Definition{}
	if err := decoder.Decode(def); err != nil {
		return nil, fmt.Errorf("parse world definition: %w", err)
	}
	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func (d *Definition) applyDefaults() {
	if strings.TrimSpace(d.Name) == "" {
		d.Name = "wanderfield"
	}
	if d.Floor == 0 {
		d.Floor = DefaultFloor
	}
	if d.Spawn == (Vec{}) {
		d.Spawn = Vec{Y: DefaultSpawnHeight}
	}
	if d.Terrain != nil {
		if d.Terrain.Amplitude == 0 {
			d.Terrain.Amplitude = 12
		}
		if d.Terrain.Seed == 0 {
			d.Terrain.Seed = 1
		}
	}
}

// Validate accumulates every structural problem into a single error.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("world definition must not be nil")
	}
	var problems []string

	if d.Floor >= d.Spawn.Y {
		problems = append(problems, fmt.Sprintf("floor %v must sit below the spawn height %v", d.Floor, d.Spawn.Y))
	}
	if t := d.Terrain; t != nil {
		if t.Size <= 0 {
			problems = append(problems, fmt.Sprintf("terrain size must be positive, got %v", t.Size))
		}
		if t.Segments < 1 || t.Segments > maxTerrainSegments {
			problems = append(problems, fmt.Sprintf("terrain segments must be in [1, %d], got %d", maxTerrainSegments, t.Segments))
		}
		if t.Amplitude < 0 {
			problems = append(problems, fmt.Sprintf("terrain amplitude must be non-negative, got %v", t.Amplitude))
		}
	}

	zoneIDs := make(map[string]struct{}, len(d.Zones))
	for _, zone := range d.Zones {
		if strings.TrimSpace(zone.ID) == "" {
			problems = append(problems, "zone id must not be empty")
			continue
		}
		if _, dup := zoneIDs[zone.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate zone id %q", zone.ID))
		}
		zoneIDs[zone.ID] = struct{}{}
		if zone.Radius <= 0 {
			problems = append(problems, fmt.Sprintf("zone %q radius must be positive, got %v", zone.ID, zone.Radius))
		}
		if zone.Elevation < 0 {
			problems = append(problems, fmt.Sprintf("zone %q elevation must be non-negative, got %v", zone.ID, zone.Elevation))
		}
	}

	markerIDs := make(map[string]struct{}, len(d.Markers))
	for _, marker := range d.Markers {
		if strings.TrimSpace(marker.ID) == "" {
			problems = append(problems, "marker id must not be empty")
			continue
		}
		if _, dup := markerIDs[marker.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate marker id %q", marker.ID))
		}
		markerIDs[marker.ID] = struct{}{}
		if strings.TrimSpace(marker.Kind) == "" {
			problems = append(problems, fmt.Sprintf("marker %q needs a kind", marker.ID))
		}
		if marker.Zone == "" && marker.Position == nil {
			problems = append(problems, fmt.Sprintf("marker %q needs a zone or a position", marker.ID))
		}
		if marker.Zone != "" {
			if _, ok := zoneIDs[marker.Zone]; !ok {
				problems = append(problems, fmt.Sprintf("marker %q references unknown zone %q", marker.ID, marker.Zone))
			}
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Default returns the built-in world used when no definition file is given.
func Default() *Definition {
	def := &Definition{
		Name:  "wanderfield",
		Spawn: Vec{X: 0, Y: 2, Z: 0},
		Floor: DefaultFloor,
		Terrain: &TerrainDef{
			Size:      240,
			Segments:  96,
			Seed:      7,
			Amplitude: 12,
			Material:  "default",
		},
		Zones: []ZoneDef{
			{ID: "atrium", Center: PlanarVec{X: 0, Z: 0}, Radius: 18, Elevation: 0, Material: "default"},
			{ID: "gallery", Center: PlanarVec{X: 60, Z: -40}, Radius: 22, Elevation: 3.5, Material: "default"},
			{ID: "workshop", Center: PlanarVec{X: -70, Z: -30}, Radius: 20, Elevation: 2, Material: "slippery"},
			{ID: "belvedere", Center: PlanarVec{X: 20, Z: 85}, Radius: 16, Elevation: 6, Material: "bouncy"},
		},
		Markers: []MarkerDef{
			{ID: "welcome-plaque", Kind: "plaque", Zone: "atrium", Offset: PlanarVec{X: 0, Z: 4}},
			{ID: "project-aurora", Kind: "project", Zone: "gallery", Project: "aurora", Offset: PlanarVec{X: -3, Z: 2}},
			{ID: "project-ember", Kind: "project", Zone: "gallery", Project: "ember", Offset: PlanarVec{X: 4, Z: -1}},
			{ID: "project-tidal", Kind: "project", Zone: "workshop", Project: "tidal", Offset: PlanarVec{X: 1, Z: 3}},
			{ID: "portal-belvedere", Kind: "portal", Zone: "atrium", Portal: "belvedere", Offset: PlanarVec{X: -5, Z: -5}, Target: &Vec{X: 20, Y: 9, Z: 85}},
			{ID: "portal-return", Kind: "portal", Zone: "belvedere", Portal: "atrium", Offset: PlanarVec{X: 0, Z: -4}, Target: &Vec{X: 0, Y: 2, Z: 0}},
		},
	}
	return def
}
