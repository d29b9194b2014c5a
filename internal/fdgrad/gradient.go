// Package fdgrad computes central-difference spatial gradients of a
// GridMesh-resident scalar field, grounded on the stencil in
// original_source/src/fd_routines.cpp (gradient_to_global_unique): a
// second-order central difference along one axis, read out of a buffer
// that already carries a fresh ghost halo.
package fdgrad

import "elasticreg/internal/mesh"

// Gradient computes dst[i,j,k] = 0.5*(local[i+1,...] - local[i-1,...])
// along axis dim, for every owned cell, and returns the result as a new
// global field. local must have a fresh halo (mesh.GlobalToLocal run
// immediately beforehand) since the stencil reads one cell beyond each
// rank's owned box. For an axis where Ni == 1 (a collapsed 2-D image), the
// gradient is defined to be zero everywhere rather than dividing by a
// meaningless spacing.
func Gradient(m *mesh.GridMesh, local *mesh.LocalField, dim int) (*mesh.GlobalField, error) {
	dst := mesh.NewGlobalField(m)
	if m.Shape()[dim] == 1 {
		return dst, nil
	}

	var off [3]int
	off[dim] = 1

	err := m.RunOverRanks(func(rank int) {
		box := m.Box(rank)
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				for i := box.Lo[0]; i < box.Hi[0]; i++ {
					hi := local.At(rank, i+off[0], j+off[1], k+off[2])
					lo := local.At(rank, i-off[0], j-off[1], k-off[2])
					dst.Set(i, j, k, 0.5*(hi-lo))
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}
