package fdgrad

import (
	"math"
	"testing"

	"elasticreg/internal/mesh"
)

func TestGradientOfLinearRampIsConstant(t *testing.T) {
	m, err := mesh.Create(mesh.Shape{16, 16, 1}, mesh.Partitioning{Ranks: 4})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g := mesh.NewGlobalField(m)
	for k := 0; k < 1; k++ {
		for j := 0; j < 16; j++ {
			for i := 0; i < 16; i++ {
				g.Set(i, j, k, 2.0*float64(i))
			}
		}
	}
	local := mesh.NewLocalField(m)
	if err := m.GlobalToLocal(g, local); err != nil {
		t.Fatalf("GlobalToLocal: %v", err)
	}

	dx, err := Gradient(m, local, 0)
	if err != nil {
		t.Fatalf("Gradient: %v", err)
	}
	for j := 1; j < 15; j++ {
		got := dx.At(8, j, 0)
		if math.Abs(got-2.0) > 1e-9 {
			t.Fatalf("d/dx at interior point = %v, want 2.0", got)
		}
	}

	dz, err := Gradient(m, local, 2)
	if err != nil {
		t.Fatalf("Gradient: %v", err)
	}
	for _, v := range dz.Data {
		if v != 0 {
			t.Fatalf("gradient along collapsed z axis should be exactly 0, got %v", v)
		}
	}
}
