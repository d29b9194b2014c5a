package mesh

import (
	"math"
	"testing"
)

func TestCreatePartitionsWithoutOverlap(t *testing.T) {
	m, err := Create(Shape{17, 13, 1}, Partitioning{Ranks: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	seen := make([]int, m.Shape().Total())
	m.ForEachOwned(NewGlobalField(m), func(rank, i, j, k int, _ float64) {
		seen[idx(m.shape, i, j, k)]++
	})
	for idx, count := range seen {
		if count != 1 {
			t.Fatalf("cell %d owned %d times, want exactly 1", idx, count)
		}
	}
}

func TestCreateRejectsBadShape(t *testing.T) {
	if _, err := Create(Shape{0, 4, 1}, Partitioning{Ranks: 1}); err == nil {
		t.Fatal("expected error for zero axis")
	}
}

func TestGlobalToLocalReflectsAtDomainEdge(t *testing.T) {
	m, err := Create(Shape{8, 8, 1}, Partitioning{Ranks: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g := NewGlobalField(m)
	for k := 0; k < 1; k++ {
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				g.Set(i, j, k, float64(i))
			}
		}
	}
	l := NewLocalField(m)
	if err := m.GlobalToLocal(g, l); err != nil {
		t.Fatalf("GlobalToLocal: %v", err)
	}
	// Any rank owning the i=0 edge should see ghost cell i=-1 replicate i=0.
	for rank := 0; rank < m.NumRanks(); rank++ {
		box := m.Box(rank)
		if box.Lo[0] != 0 {
			continue
		}
		got := l.At(rank, -1, box.Lo[1], box.Lo[2])
		want := l.At(rank, 0, box.Lo[1], box.Lo[2])
		if math.Abs(got-want) > 1e-12 {
			t.Fatalf("reflect ghost mismatch: got %v want %v", got, want)
		}
	}
}

func TestGlobalToLocalMatchesNeighbourAcrossRankBoundary(t *testing.T) {
	m, err := Create(Shape{8, 1, 1}, Partitioning{Ranks: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g := NewGlobalField(m)
	for i := 0; i < 8; i++ {
		g.Set(i, 0, 0, float64(i)*float64(i))
	}
	l := NewLocalField(m)
	if err := m.GlobalToLocal(g, l); err != nil {
		t.Fatalf("GlobalToLocal: %v", err)
	}
	box0 := m.Box(0)
	box1 := m.Box(1)
	// rank 0's high ghost cell should equal rank 1's first owned cell.
	got := l.At(0, box0.Hi[0], 0, 0)
	want := g.At(box1.Lo[0], 0, 0)
	if got != want {
		t.Fatalf("cross-rank ghost mismatch: got %v want %v", got, want)
	}
}

func TestPartitionAutoRespectsMinimumOneCellPerRank(t *testing.T) {
	dims := PartitionAuto(Shape{4, 1, 1}, 8)
	if dims[0] > 4 {
		t.Fatalf("partition over-split a 4-cell axis: %v", dims)
	}
}
