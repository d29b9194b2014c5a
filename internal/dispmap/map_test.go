package dispmap

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
)

func TestBasisRowsSumToOne(t *testing.T) {
	shape := mesh.Shape{10, 10, 1}
	b, err := BuildBasis(shape, [3]float64{3, 3, 1})
	if err != nil {
		t.Fatalf("BuildBasis: %v", err)
	}
	for p := 0; p < b.NumPixels(); p++ {
		if got := b.RowSum(p); math.Abs(got-1) > 1e-9 {
			t.Fatalf("row %d sums to %v, want 1", p, got)
		}
	}
}

func TestBasisHasAtMostFourNonzerosIn2D(t *testing.T) {
	shape := mesh.Shape{10, 10, 1}
	b, err := BuildBasis(shape, [3]float64{3, 3, 1})
	if err != nil {
		t.Fatalf("BuildBasis: %v", err)
	}
	for p := 0; p < b.NumPixels(); p++ {
		n := 0
		for _, w := range b.Dense().RawRowView(p) {
			if w != 0 {
				n++
			}
		}
		if n > 4 {
			t.Fatalf("row %d has %d nonzeros, want at most 4 (2^2) in 2-D", p, n)
		}
	}
}

func TestLaplacianSymmetricZeroRowSum(t *testing.T) {
	L := BuildLaplacian(mesh.Shape{5, 5, 1})
	n, _ := L.Dims()
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += L.At(i, j)
			if L.At(i, j) != L.At(j, i) {
				t.Fatalf("Laplacian not symmetric at (%d,%d)", i, j)
			}
		}
		if math.Abs(sum) > 1e-9 {
			t.Fatalf("row %d sums to %v, want 0", i, sum)
		}
	}
}

func TestLaplacianDiagonalNonNegative(t *testing.T) {
	L := BuildLaplacian(mesh.Shape{5, 5, 1})
	n, _ := L.Dims()
	for i := 0; i < n; i++ {
		if L.At(i, i) < 0 {
			t.Fatalf("diagonal %d = %v, want >= 0 (PSD)", i, L.At(i, i))
		}
	}
}

func TestWarpThroughZeroMapIsIdentity(t *testing.T) {
	im, err := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 2})
	if err != nil {
		t.Fatalf("New image: %v", err)
	}
	for k := 0; k < 1; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				im.Global().Set(i, j, k, float64(i*i+j))
			}
		}
	}

	m, err := New(im, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("New map: %v", err)
	}

	warped, err := m.Warp(im, im)
	if err != nil {
		t.Fatalf("Warp: %v", err)
	}
	for idx, v := range warped.Global().Data {
		if math.Abs(v-im.Global().Data[idx]) > 1e-9 {
			t.Fatalf("zero-displacement warp mismatch at %d: got %v want %v", idx, v, im.Global().Data[idx])
		}
	}
}

func TestUpdateRejectsWrongLength(t *testing.T) {
	im, err := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	if err != nil {
		t.Fatalf("New image: %v", err)
	}
	m, err := New(im, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("New map: %v", err)
	}
	bad := mat.NewVecDense(1, nil)
	if err := m.Update(bad); err == nil {
		t.Fatal("expected error for mismatched delta length")
	}
}

func TestInterpolatePreservesFieldAtSharedNodes(t *testing.T) {
	im, err := imagefield.New(mesh.Shape{16, 16, 1}, mesh.Partitioning{Ranks: 1})
	if err != nil {
		t.Fatalf("New image: %v", err)
	}
	m, err := New(im, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("New map: %v", err)
	}
	// A linear displacement field along x is exactly representable by the
	// tent basis, so refining the node grid should reproduce it exactly.
	nodeShape := m.NodeShape()
	for n := 0; n < nodeShape.Total(); n++ {
		i, _, _ := mesh.Coords(nodeShape, n)
		m.block(0)[n] = float64(i) * 4 * 0.1
	}

	finer, err := m.Interpolate([3]float64{2, 2, 1})
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	finerShape := finer.NodeShape()
	for n := 0; n < finerShape.Total(); n++ {
		i, j, k := mesh.Coords(finerShape, n)
		want := float64(i) * 2 * 0.1
		got := finer.block(0)[n]
		_ = j
		_ = k
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("node %d: got %v want %v", n, got, want)
		}
	}
}
