package registrar

import (
	"math"
	"testing"

	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
)

func gaussianBlob(shape mesh.Shape, cx, cy, sigma float64) *imagefield.Image {
	im, _ := imagefield.New(shape, mesh.Partitioning{Ranks: 1})
	for k := 0; k < shape[2]; k++ {
		for j := 0; j < shape[1]; j++ {
			for i := 0; i < shape[0]; i++ {
				dx, dy := float64(i)-cx, float64(j)-cy
				v := math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
				im.Global().Set(i, j, k, v)
			}
		}
	}
	return im
}

func TestCalculateNodeSpacingsMonotonicAndBounded(t *testing.T) {
	shape := mesh.Shape{32, 32, 1}
	spacings := calculateNodeSpacings(shape, [3]float64{8, 8, 1})
	if len(spacings) == 0 {
		t.Fatal("expected at least one generation")
	}
	for g := 0; g < len(spacings)-1; g++ {
		if spacings[g][0] <= spacings[g+1][0] {
			t.Fatalf("generation %d spacing %v should be strictly coarser than %v", g, spacings[g], spacings[g+1])
		}
	}
	last := spacings[len(spacings)-1]
	if last != [3]float64{8, 8, 1} {
		t.Fatalf("final generation should use the user-supplied spacing, got %v", last)
	}
	for g := 0; g < len(spacings)-1; g++ {
		s := spacings[g]
		for d := 0; d < 2; d++ {
			if float64(shape[d])/s[d] <= 2 {
				t.Fatalf("generation %d spacing %v violates Ni/si > 2 on axis %d", g, s, d)
			}
		}
	}
}

func TestCalculateNodeSpacingsSingleGenerationAtImageExtent(t *testing.T) {
	shape := mesh.Shape{16, 16, 1}
	spacings := calculateNodeSpacings(shape, [3]float64{16, 16, 1})
	if len(spacings) != 1 {
		t.Fatalf("expected exactly one generation when spacing equals image extent, got %d", len(spacings))
	}
}

func TestIdenticalImagesConvergeImmediately(t *testing.T) {
	fixed := gaussianBlob(mesh.Shape{16, 16, 1}, 8, 8, 3)
	moved := gaussianBlob(mesh.Shape{16, 16, 1}, 8, 8, 3)

	r, err := New(fixed, moved, [3]float64{8, 8, 1}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Autoregister(); err != nil {
		t.Fatalf("Autoregister: %v", err)
	}
	if r.State() != Done {
		t.Fatalf("state = %v, want Done", r.State())
	}

	reg := r.Registered()
	if reg.Shape() != fixed.Shape() {
		t.Fatalf("registered shape = %v, want %v", reg.Shape(), fixed.Shape())
	}
	for i, v := range reg.Global().Data {
		if math.Abs(v-fixed.Global().Data[i]) > 1e-6 {
			t.Fatalf("registered[%d] = %v, want %v (identical inputs should need no correction)", i, v, fixed.Global().Data[i])
		}
	}
}

func TestNewRejectsShapeMismatch(t *testing.T) {
	fixed, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	moved, _ := imagefield.New(mesh.Shape{16, 16, 1}, mesh.Partitioning{Ranks: 1})
	if _, err := New(fixed, moved, [3]float64{4, 4, 1}, Options{}); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestNewRejectsNonPositiveSpacing(t *testing.T) {
	fixed, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	moved, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	if _, err := New(fixed, moved, [3]float64{0, 4, 1}, Options{}); err == nil {
		t.Fatal("expected configuration error for non-positive spacing")
	}
}

func TestDefaultOptionsAppliedWhenZeroValued(t *testing.T) {
	fixed, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	moved, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	r, err := New(fixed, moved, [3]float64{8, 8, 1}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if r.opts.MaxIter != 50 || r.opts.ConvergenceThreshold != 0.1 || r.opts.Lambda != 20.0 || r.opts.Solver == nil {
		t.Fatalf("defaults not applied: %+v", r.opts)
	}
}
