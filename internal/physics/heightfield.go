package physics

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl64"
)

// Heightfield is a square terrain collider sampled from a vertex grid.
//
// The source grid arrives in visual-mesh vertex order: row-major, row 0 at
// z=+half, last row at z=-half, columns from x=-half to x=+half. Internally
// samples are stored column-major with rows counted from z=-half upward, so
// construction must invert the source row index. Sampling the collider at a
// grid vertex must return the exact source height; the collider and the
// rendered mesh share vertices.
type Heightfield struct {
	size     float64
	segments int
	cell     float32
	half     float32
	columns  [][]float32
	minH     float32
	maxH     float32
}

// ShapeName identifies the shape kind.
func (*Heightfield) ShapeName() string { return "heightfield" }

// NewHeightfield builds the collider from a row-major (segments+1)x(segments+1) vertex grid.
func NewHeightfield(data []float32, size float64, segments int) (*Heightfield, error) {
	if segments < 1 {
		return nil, fmt.Errorf("heightfield needs at least one segment, got %d", segments)
	}
	if size <= 0 {
		return nil, fmt.Errorf("heightfield size must be positive, got %v", size)
	}
	rows := segments + 1
	if len(data) != rows*rows {
		return nil, fmt.Errorf("heightfield grid must hold %d samples, got %d", rows*rows, len(data))
	}
	hf := &Heightfield{
		size:     size,
		segments: segments,
		cell:     float32(size) / float32(segments),
		half:     float32(size) / 2,
		columns:  make([][]float32, rows),
		minH:     data[0],
		maxH:     data[0],
	}
	//1.- Re-index the source grid through sourceIndex so the inversion lives in one place.
	for col := 0; col < rows; col++ {
		column := make([]float32, rows)
		for row := 0; row < rows; row++ {
			sample := data[hf.sourceIndex(col, row)]
			column[row] = sample
			if sample < hf.minH {
				hf.minH = sample
			}
			if sample > hf.maxH {
				hf.maxH = sample
			}
		}
		hf.columns[col] = column
	}
	return hf, nil
}

// sourceIndex maps an internal (col,row) vertex to its offset in the source
// grid. Internal row 0 sits at z=-half while source row 0 sits at z=+half,
// hence the inversion.
func (h *Heightfield) sourceIndex(col, row int) int {
	rows := h.segments + 1
	return (rows-1-row)*rows + col
}

// Size returns the world-space edge length of the heightfield square.
func (h *Heightfield) Size() float64 {
	if h == nil {
		return 0
	}
	return h.size
}

// Segments returns the cell subdivision count along each edge.
func (h *Heightfield) Segments() int {
	if h == nil {
		return 0
	}
	return h.segments
}

// MinHeight returns the lowest vertex height in the grid.
func (h *Heightfield) MinHeight() float64 {
	if h == nil {
		return 0
	}
	return float64(h.minH)
}

// MaxHeight returns the highest vertex height in the grid.
func (h *Heightfield) MaxHeight() float64 {
	if h == nil {
		return 0
	}
	return float64(h.maxH)
}

// HeightAt samples the surface height at local (x,z). The second return is
// false outside the heightfield bounds. The bilinear blend is exact at grid
// vertices, which keeps the collider aligned with the visual mesh.
func (h *Heightfield) HeightAt(x, z float64) (float64, bool) {
	if h == nil {
		return 0, false
	}
	fx := (float32(x) + h.half) / h.cell
	fz := (float32(z) + h.half) / h.cell
	last := float32(h.segments)
	if fx < 0 || fz < 0 || fx > last || fz > last {
		return 0, false
	}
	col := int(math32.Floor(fx))
	row := int(math32.Floor(fz))
	if col > h.segments-1 {
		col = h.segments - 1
	}
	if row > h.segments-1 {
		row = h.segments - 1
	}
	tx := fx - float32(col)
	tz := fz - float32(row)
	h00 := h.columns[col][row]
	h10 := h.columns[col+1][row]
	h01 := h.columns[col][row+1]
	h11 := h.columns[col+1][row+1]
	height := h00*(1-tx)*(1-tz) + h10*tx*(1-tz) + h01*(1-tx)*tz + h11*tx*tz
	return float64(height), true
}

// NormalAt estimates the surface normal at local (x,z) via central differences.
func (h *Heightfield) NormalAt(x, z float64) mgl64.Vec3 {
	up := mgl64.Vec3{0, 1, 0}
	if h == nil {
		return up
	}
	e := float64(h.cell) * 0.25
	hx0, ok := h.HeightAt(h.clampLocal(x-e), h.clampLocal(z))
	if !ok {
		return up
	}
	hx1, _ := h.HeightAt(h.clampLocal(x+e), h.clampLocal(z))
	hz0, _ := h.HeightAt(h.clampLocal(x), h.clampLocal(z-e))
	hz1, _ := h.HeightAt(h.clampLocal(x), h.clampLocal(z+e))
	normal := mgl64.Vec3{-(hx1 - hx0) / (2 * e), 1, -(hz1 - hz0) / (2 * e)}
	return normal.Normalize()
}

func (h *Heightfield) clampLocal(v float64) float64 {
	half := float64(h.half)
	return mgl64.Clamp(v, -half, half)
}
