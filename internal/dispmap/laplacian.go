package dispmap

import (
	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/mesh"
)

// BuildLaplacian constructs the node-grid Laplacian: the standard graph
// Laplacian of the 5-point (2-D) or 7-point (3-D) stencil, Neumann
// (zero-flux) at the domain boundary by simply omitting the missing
// neighbour rather than reflecting it, so every row sums to exactly zero
// and the matrix is symmetric positive semi-definite by construction.
func BuildLaplacian(nodeShape mesh.Shape) *mat.SymDense {
	n := nodeShape.Total()
	L := mat.NewSymDense(n, nil)

	for k := 0; k < nodeShape[2]; k++ {
		for j := 0; j < nodeShape[1]; j++ {
			for i := 0; i < nodeShape[0]; i++ {
				p := mesh.Index(nodeShape, i, j, k)
				degree := 0.0
				neighbours := [][3]int{
					{i - 1, j, k}, {i + 1, j, k},
					{i, j - 1, k}, {i, j + 1, k},
					{i, j, k - 1}, {i, j, k + 1},
				}
				for _, nb := range neighbours {
					if nb[0] < 0 || nb[0] >= nodeShape[0] {
						continue
					}
					if nb[1] < 0 || nb[1] >= nodeShape[1] {
						continue
					}
					if nb[2] < 0 || nb[2] >= nodeShape[2] {
						continue
					}
					q := mesh.Index(nodeShape, nb[0], nb[1], nb[2])
					if q > p {
						L.SetSym(p, q, -1)
					}
					degree++
				}
				L.SetSym(p, p, degree)
			}
		}
	}
	return L
}
