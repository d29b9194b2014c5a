// Package mesh implements GridMesh: a domain-decomposed 3-D scalar-field
// grid with ghost cells. A "rank" here is a goroutine-owned sub-box of a
// single process's shared backing array rather than an MPI rank, but the
// collective operations (ghost exchange, owned-cell iteration) keep the
// same two-phase begin/end shape and barrier semantics, following the
// goroutine+WaitGroup fan-out pattern used for quadrant/subset processing
// in reconstruction.go's parallel pipeline.
package mesh

import (
	"fmt"

	"elasticreg/internal/regerr"
)

// Shape is the (Nx, Ny, Nz) extent of a grid. A 2-D image is represented
// with Nz == 1.
type Shape [3]int

// Total returns Nx*Ny*Nz.
func (s Shape) Total() int { return s[0] * s[1] * s[2] }

// NDim returns 2 when Nz == 1, otherwise 3.
func (s Shape) NDim() int {
	if s[2] == 1 {
		return 2
	}
	return 3
}

func (s Shape) validate() error {
	for d, n := range s {
		if n < 1 {
			return fmt.Errorf("%w: shape axis %d must be >= 1, got %d", regerr.ErrConfiguration, d, n)
		}
	}
	return nil
}

func idx(shape Shape, i, j, k int) int {
	return i + j*shape[0] + k*shape[0]*shape[1]
}

// Index returns the flat row-major pixel index for global coordinates
// (i, j, k), the canonical ordering used everywhere a "pixel index p" is
// referenced (stacked vectors, basis rows, samplers).
func Index(shape Shape, i, j, k int) int { return idx(shape, i, j, k) }

// Coords inverts Index.
func Coords(shape Shape, p int) (i, j, k int) {
	i = p % shape[0]
	j = (p / shape[0]) % shape[1]
	k = p / (shape[0] * shape[1])
	return
}

// Box is an axis-aligned half-open sub-box [Lo, Hi) in global grid
// coordinates.
type Box struct {
	Lo, Hi [3]int
}

// Size returns the number of owned cells in the box.
func (b Box) Size() int {
	n := 1
	for d := 0; d < 3; d++ {
		n *= b.Hi[d] - b.Lo[d]
	}
	return n
}
