package mesh

import (
	"fmt"

	"elasticreg/internal/regerr"
)

// GridMesh is a distributed 3-D axis-aligned grid of scalar samples,
// partitioned into disjoint owned sub-boxes ("ranks"). It is the shared
// domain-decomposition descriptor underlying every Image and
// DisplacementMap built over the same physical grid; instances are safe to
// share (read-only after construction) the way a PETSc DM is shared across
// multiple Vecs.
type GridMesh struct {
	shape Shape
	dims  [3]int
	boxes []Box
}

// Create returns a mesh with the given shape, split across ranks per part.
// A shape/partition mismatch (zero or over-large rank grid) is a fatal
// configuration error.
func Create(shape Shape, part Partitioning) (*GridMesh, error) {
	if err := shape.validate(); err != nil {
		return nil, err
	}

	dims := part.Dims
	if dims == ([3]int{}) {
		ranks := part.Ranks
		if ranks < 1 {
			ranks = 1
		}
		dims = PartitionAuto(shape, ranks)
	}
	for d := 0; d < 3; d++ {
		if dims[d] < 1 {
			return nil, fmt.Errorf("%w: rank grid axis %d must be >= 1", regerr.ErrConfiguration, d)
		}
		if shape[d] < dims[d] {
			return nil, fmt.Errorf("%w: shape axis %d (%d) smaller than rank count %d", regerr.ErrConfiguration, d, shape[d], dims[d])
		}
	}

	boxes := buildBoxes(shape, dims)
	return &GridMesh{shape: shape, dims: dims, boxes: boxes}, nil
}

func buildBoxes(shape Shape, dims [3]int) []Box {
	bx := splitAxis(shape[0], dims[0])
	by := splitAxis(shape[1], dims[1])
	bz := splitAxis(shape[2], dims[2])

	boxes := make([]Box, 0, dims[0]*dims[1]*dims[2])
	for kz := 0; kz < dims[2]; kz++ {
		for ky := 0; ky < dims[1]; ky++ {
			for kx := 0; kx < dims[0]; kx++ {
				boxes = append(boxes, Box{
					Lo: [3]int{bx[kx], by[ky], bz[kz]},
					Hi: [3]int{bx[kx+1], by[ky+1], bz[kz+1]},
				})
			}
		}
	}
	return boxes
}

// Shape returns the mesh's (Nx, Ny, Nz).
func (m *GridMesh) Shape() Shape { return m.shape }

// NDim returns 2 or 3 per the Nz==1 collapse rule.
func (m *GridMesh) NDim() int { return m.shape.NDim() }

// NumRanks returns the number of owned sub-boxes the mesh was split into.
func (m *GridMesh) NumRanks() int { return len(m.boxes) }

// Box returns the owned global sub-box for the given rank.
func (m *GridMesh) Box(rank int) Box { return m.boxes[rank] }

// SameShape reports whether two meshes describe the same global shape,
// the equality required before reusing one Image's mesh for another
// (load with a template).
func (m *GridMesh) SameShape(other *GridMesh) bool {
	return m.shape == other.shape
}

// ForEachOwned iterates every owned cell of field in a fixed rank-then-
// row-major order, calling fn(rank, i, j, k, value). The order is fixed but
// otherwise unspecified.
func (m *GridMesh) ForEachOwned(field *GlobalField, fn func(rank, i, j, k int, v float64)) {
	for r, b := range m.boxes {
		for k := b.Lo[2]; k < b.Hi[2]; k++ {
			for j := b.Lo[1]; j < b.Hi[1]; j++ {
				for i := b.Lo[0]; i < b.Hi[0]; i++ {
					fn(r, i, j, k, field.At(i, j, k))
				}
			}
		}
	}
}
