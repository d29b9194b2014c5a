package workspace

import (
	"math"
	"testing"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
)

func buildPair(t *testing.T) (*imagefield.Image, *imagefield.Image) {
	t.Helper()
	fixed, err := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 2})
	if err != nil {
		t.Fatalf("New fixed: %v", err)
	}
	for k := 0; k < 1; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				fixed.Global().Set(i, j, k, float64(i))
			}
		}
	}
	moved := fixed.Copy()
	return fixed, moved
}

func TestScatterGradsToStackedPopulatesAllBlocks(t *testing.T) {
	fixed, moved := buildPair(t)
	m, err := dispmap.New(fixed, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("dispmap.New: %v", err)
	}
	w, err := New(fixed, moved, m)
	if err != nil {
		t.Fatalf("New workspace: %v", err)
	}

	if err := w.ScatterGradsToStacked(); err != nil {
		t.Fatalf("ScatterGradsToStacked: %v", err)
	}

	npix := fixed.Shape().Total()
	xGradBlock := w.Stacked().RawVector().Data[0:npix]
	for j := 1; j < 7; j++ {
		got := xGradBlock[mesh.Index(fixed.Shape(), 4, j, 0)]
		if math.Abs(got-1.0) > 1e-9 {
			t.Fatalf("x-gradient block at interior point = %v, want 1.0", got)
		}
	}

	intensityBlock := w.Stacked().RawVector().Data[w.ndim*npix : (w.ndim+1)*npix]
	for i, v := range intensityBlock {
		want := 1 - fixed.Global().Data[i]
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("intensity block at %d = %v, want %v", i, v, want)
		}
	}
}

func TestCalculateTmatMatchesStackedScaling(t *testing.T) {
	fixed, moved := buildPair(t)
	m, err := dispmap.New(fixed, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("dispmap.New: %v", err)
	}
	w, err := New(fixed, moved, m)
	if err != nil {
		t.Fatalf("New workspace: %v", err)
	}
	if err := w.ScatterGradsToStacked(); err != nil {
		t.Fatalf("ScatterGradsToStacked: %v", err)
	}

	w.CalculateTmat(m)

	npix := fixed.Shape().Total()
	nnodes := m.Basis().NumNodes()
	v := w.Stacked().RawVector().Data[0:npix]
	basis := m.Basis().Dense()
	for p := 0; p < npix; p++ {
		for n := 0; n < nnodes; n++ {
			want := v[p] * basis.At(p, n)
			got := w.Tmat().At(p, n)
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("Tmat[%d,%d] = %v, want %v", p, n, got, want)
			}
		}
	}
}

func TestReallocateEphemeralResizesToNewMap(t *testing.T) {
	fixed, moved := buildPair(t)
	m, err := dispmap.New(fixed, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("dispmap.New: %v", err)
	}
	w, err := New(fixed, moved, m)
	if err != nil {
		t.Fatalf("New workspace: %v", err)
	}

	finer, err := m.Interpolate([3]float64{2, 2, 1})
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if err := w.ReallocateEphemeral(finer); err != nil {
		t.Fatalf("ReallocateEphemeral: %v", err)
	}

	wantLen := finer.NumBlocks() * finer.Basis().NumNodes()
	if w.RHS().Len() != wantLen {
		t.Fatalf("RHS length = %d, want %d", w.RHS().Len(), wantLen)
	}
	if w.Delta().Len() != wantLen {
		t.Fatalf("Delta length = %d, want %d", w.Delta().Len(), wantLen)
	}
}
