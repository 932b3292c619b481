package world

import "math"

// edgeFadeStart is the normalised distance from the centre line at which the
// terrain starts fading toward sea level, so the playfield rim stays walkable.
const edgeFadeStart = 0.75

// GenerateHeights builds the vertex grid for a terrain definition in visual
// mesh order: row 0 holds the far edge (z = +size/2) and columns run from
// x = -size/2 to x = +size/2. Zones flatten the terrain toward their own
// elevation so their floors stay navigable.
func GenerateHeights(def TerrainDef, zones []ZoneDef) []float32 {
	rows := def.Segments + 1
	data := make([]float32, rows*rows)
	half := def.Size / 2
	cell := def.Size / float64(def.Segments)
	for row := 0; row < rows; row++ {
		for col := 0; col < rows; col++ {
			x := -half + float64(col)*cell
			z := half - float64(row)*cell
			data[row*rows+col] = float32(sampleHeight(def, zones, x, z, half))
		}
	}
	return data
}

func sampleHeight(def TerrainDef, zones []ZoneDef, x, z, half float64) float64 {
	nx := (x + half) / def.Size
	nz := (z + half) / def.Size

	//1.- Stack five octaves of value noise, halving amplitude each octave.
	height := 0.0
	amplitude := 0.5
	scale := 1.0
	for octave := 0; octave < 5; octave++ {
		height += latticeNoise(nx*scale*8, nz*scale*8, def.Seed) * amplitude
		scale *= 2
		amplitude *= 0.5
	}

	//2.- Re-centre the accumulated noise around zero and apply the amplitude.
	height = (height - 0.484375) * 2 * def.Amplitude

	//3.- Fade toward sea level near the border so the rim stays reachable.
	edge := math.Max(math.Abs(x), math.Abs(z)) / half
	if edge > edgeFadeStart {
		fade := 1 - (edge-edgeFadeStart)/(1-edgeFadeStart)
		if fade < 0 {
			fade = 0
		}
		height *= fade
	}

	//4.- Blend toward each zone's elevation inside its radius, flat at the centre.
	for _, zone := range zones {
		dx := x - zone.Center.X
		dz := z - zone.Center.Z
		dist := math.Sqrt(dx*dx + dz*dz)
		if dist >= zone.Radius {
			continue
		}
		blend := smoothstep(dist / zone.Radius)
		height = zone.Elevation*(1-blend) + height*blend
	}
	return height
}

// latticeNoise interpolates seeded hash values across the unit lattice.
func latticeNoise(x, z float64, seed int64) float64 {
	x0 := math.Floor(x)
	z0 := math.Floor(z)
	sx := smoothstep(x - x0)
	sz := smoothstep(z - z0)
	n00 := hashNoise(x0, z0, seed)
	n10 := hashNoise(x0+1, z0, seed)
	n01 := hashNoise(x0, z0+1, seed)
	n11 := hashNoise(x0+1, z0+1, seed)
	return lerp(lerp(n00, n10, sx), lerp(n01, n11, sx), sz)
}

// hashNoise maps a lattice point to a deterministic value in [0, 1).
func hashNoise(x, z float64, seed int64) float64 {
	h := x*12.9898 + z*78.233 + float64(seed)*0.7312
	s := math.Sin(h) * 43758.5453
	return s - math.Floor(s)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}
