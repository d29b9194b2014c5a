// Package dispmap implements DisplacementMap: a node-spaced displacement
// field over an Image's grid, grounded on original_source/src/basis.hpp
// (calculate_basis_coefficient, the separable tent product) and
// original_source/src/elastic.cpp/elastic.hpp for the (D+1) block
// coefficient layout.
package dispmap

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
)

// Basis is the sparse-per-row mapping from node coefficients to per-pixel
// interpolation weights: each pixel row receives one entry per surrounding
// node-grid corner (2^NDim of them), weighted by the separable tent function
// prod_i (1 - |u_i|). It is rendered as a dense matrix since registration
// grids at this scale are small, so a corner whose tent weight is 0 (a
// pixel lying on a node line) leaves a zero and a row can hold fewer than
// 2^NDim nonzero values. RowDot evaluates a single row against one
// coefficient block without a full matrix-vector product.
type Basis struct {
	pixShape  mesh.Shape
	nodeShape mesh.Shape
	spacing   [3]float64
	m         *mat.Dense
}

// nodeShapeFor computes Mi = ceil(Ni/spacing_i) + 1 for active axes and 1
// for a collapsed axis.
func nodeShapeFor(shape mesh.Shape, spacing [3]float64) (mesh.Shape, error) {
	var ns mesh.Shape
	for d := 0; d < 3; d++ {
		if shape[d] == 1 {
			ns[d] = 1
			continue
		}
		if spacing[d] <= 0 {
			return mesh.Shape{}, fmt.Errorf("%w: node_spacing axis %d must be > 0, got %v", regerr.ErrConfiguration, d, spacing[d])
		}
		m := float64(shape[d]) / spacing[d]
		mi := int(m)
		if float64(mi) < m {
			mi++
		}
		ns[d] = mi + 1
	}
	return ns, nil
}

// cornerWeights locates the node-grid cell containing a continuous
// position pos (in the node grid's own axis units) and returns, for every
// corner of that cell, the corner's node-grid coordinates and its tent
// weight. Axes where nodeShape[d] == 1 contribute a single "corner" with
// weight 1 on that axis (nothing to interpolate).
func cornerWeights(pos [3]float64, spacing [3]float64, nodeShape mesh.Shape) ([][3]int, []float64) {
	var lo [3]int
	var frac [3]float64
	var active [3]bool
	for d := 0; d < 3; d++ {
		if nodeShape[d] == 1 {
			continue
		}
		active[d] = true
		u := pos[d] / spacing[d]
		l := int(u)
		if l > nodeShape[d]-2 {
			l = nodeShape[d] - 2
		}
		if l < 0 {
			l = 0
		}
		f := u - float64(l)
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		lo[d] = l
		frac[d] = f
	}

	corners := [][3]int{{0, 0, 0}}
	weights := []float64{1}
	for d := 0; d < 3; d++ {
		if !active[d] {
			continue
		}
		var nc [][3]int
		var nw []float64
		for ci, c := range corners {
			c0, c1 := c, c
			c0[d] = lo[d]
			c1[d] = lo[d] + 1
			nc = append(nc, c0, c1)
			nw = append(nw, weights[ci]*(1-frac[d]), weights[ci]*frac[d])
		}
		corners, weights = nc, nw
	}
	for i, c := range corners {
		for d := 0; d < 3; d++ {
			if !active[d] {
				c[d] = 0
			}
		}
		corners[i] = c
	}
	return corners, weights
}

// BuildBasis constructs the basis matrix over an image of shape pixShape
// for a displacement map node-spaced at spacing.
func BuildBasis(pixShape mesh.Shape, spacing [3]float64) (*Basis, error) {
	nodeShape, err := nodeShapeFor(pixShape, spacing)
	if err != nil {
		return nil, err
	}

	npix, nnodes := pixShape.Total(), nodeShape.Total()
	m := mat.NewDense(npix, nnodes, nil)
	for k := 0; k < pixShape[2]; k++ {
		for j := 0; j < pixShape[1]; j++ {
			for i := 0; i < pixShape[0]; i++ {
				p := mesh.Index(pixShape, i, j, k)
				corners, weights := cornerWeights([3]float64{float64(i), float64(j), float64(k)}, spacing, nodeShape)
				for ci, c := range corners {
					n := mesh.Index(nodeShape, c[0], c[1], c[2])
					m.Set(p, n, m.At(p, n)+weights[ci])
				}
			}
		}
	}

	return &Basis{pixShape: pixShape, nodeShape: nodeShape, spacing: spacing, m: m}, nil
}

// NumPixels returns the number of basis rows (image pixels).
func (b *Basis) NumPixels() int { return b.pixShape.Total() }

// NumNodes returns the number of basis columns (node-grid points).
func (b *Basis) NumNodes() int { return b.nodeShape.Total() }

// NodeShape returns the node grid's (Mx, My, Mz).
func (b *Basis) NodeShape() mesh.Shape { return b.nodeShape }

// Dense exposes the underlying matrix as a read-only reference.
func (b *Basis) Dense() *mat.Dense { return b.m }

// RowDot computes the dot product of pixel row p against block, a slice
// of length NumNodes() (one coefficient block of a DisplacementMap's
// stacked vector).
func (b *Basis) RowDot(p int, block []float64) float64 {
	row := b.m.RawRowView(p)
	sum := 0.0
	for n, w := range row {
		if w != 0 {
			sum += w * block[n]
		}
	}
	return sum
}

// RowSum returns the sum of basis weights in row p, which should be
// exactly 1 for every pixel by construction of the tent basis.
func (b *Basis) RowSum(p int) float64 {
	sum := 0.0
	for _, w := range b.m.RawRowView(p) {
		sum += w
	}
	return sum
}
