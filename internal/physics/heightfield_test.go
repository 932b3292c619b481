package physics

import (
	"math"
	"testing"
)

func TestHeightfieldRoundTrip(t *testing.T) {
	//1.- Source grid in visual-mesh order: row 0 at z=+10, columns from x=-10.
	data := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	hf, err := NewHeightfield(data, 20, 2)
	if err != nil {
		t.Fatalf("NewHeightfield: %v", err)
	}

	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			x := -10.0 + float64(col)*10
			z := 10.0 - float64(row)*10
			want := float64(data[row*3+col])
			got, ok := hf.HeightAt(x, z)
			if !ok {
				t.Fatalf("HeightAt(%v, %v) reported out of bounds", x, z)
			}
			if got != want {
				t.Fatalf("HeightAt(%v, %v) = %v, want exact %v", x, z, got, want)
			}
		}
	}
}

func TestHeightfieldBilinearBetweenVertices(t *testing.T) {
	data := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	hf, err := NewHeightfield(data, 20, 2)
	if err != nil {
		t.Fatalf("NewHeightfield: %v", err)
	}

	got, ok := hf.HeightAt(-5, -10)
	if !ok {
		t.Fatal("expected in-bounds sample")
	}
	if math.Abs(got-7.5) > 1e-6 {
		t.Fatalf("expected midpoint blend 7.5, got %v", got)
	}
}

func TestHeightfieldRejectsMalformedGrid(t *testing.T) {
	if _, err := NewHeightfield(make([]float32, 8), 20, 2); err == nil {
		t.Fatal("expected error for short grid")
	}
	if _, err := NewHeightfield(make([]float32, 9), 0, 2); err == nil {
		t.Fatal("expected error for zero size")
	}
	if _, err := NewHeightfield(nil, 20, 0); err == nil {
		t.Fatal("expected error for zero segments")
	}
}

func TestHeightfieldOutOfBounds(t *testing.T) {
	hf, err := NewHeightfield(make([]float32, 9), 20, 2)
	if err != nil {
		t.Fatalf("NewHeightfield: %v", err)
	}
	if _, ok := hf.HeightAt(10.5, 0); ok {
		t.Fatal("expected sample past +half to be out of bounds")
	}
	if _, ok := hf.HeightAt(0, -10.5); ok {
		t.Fatal("expected sample past -half to be out of bounds")
	}
}

func TestHeightfieldNormalOnFlatGrid(t *testing.T) {
	hf, err := NewHeightfield(make([]float32, 9), 20, 2)
	if err != nil {
		t.Fatalf("NewHeightfield: %v", err)
	}
	normal := hf.NormalAt(0, 0)
	if math.Abs(normal.Y()-1) > 1e-9 {
		t.Fatalf("expected upward normal on flat grid, got %+v", normal)
	}
}

func TestHeightfieldTracksExtremes(t *testing.T) {
	data := []float32{
		0, 0, 0,
		0, -3, 0,
		0, 0, 12,
	}
	hf, err := NewHeightfield(data, 20, 2)
	if err != nil {
		t.Fatalf("NewHeightfield: %v", err)
	}
	if hf.MinHeight() != -3 || hf.MaxHeight() != 12 {
		t.Fatalf("unexpected extremes min=%v max=%v", hf.MinHeight(), hf.MaxHeight())
	}
}
