package dispmap

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
)

// Map is a node-spaced displacement field over the same physical domain as
// an Image. Its coefficient vector is laid out as D spatial-dimension
// blocks followed by one intensity block, each of length NumNodes(),
// matching original_source/src/elastic.cpp's block layout.
type Map struct {
	pixShape  mesh.Shape
	ndim      int
	spacing   [3]float64
	basis     *Basis
	laplacian *mat.SymDense
	coeffs    *mat.VecDense
}

// New constructs a Map at the coarsest node spacing over image's grid, with
// a zero coefficient vector.
func New(image *imagefield.Image, spacing [3]float64) (*Map, error) {
	basis, err := BuildBasis(image.Shape(), spacing)
	if err != nil {
		return nil, err
	}
	laplacian := BuildLaplacian(basis.NodeShape())
	ndim := image.NDim()
	coeffs := mat.NewVecDense((ndim+1)*basis.NumNodes(), nil)
	return &Map{
		pixShape:  image.Shape(),
		ndim:      ndim,
		spacing:   spacing,
		basis:     basis,
		laplacian: laplacian,
		coeffs:    coeffs,
	}, nil
}

// NDim returns the number of spatial blocks (2 or 3).
func (m *Map) NDim() int { return m.ndim }

// NumBlocks returns D+1, the number of coefficient blocks.
func (m *Map) NumBlocks() int { return m.ndim + 1 }

// Spacing returns the node spacing this map was built at.
func (m *Map) Spacing() [3]float64 { return m.spacing }

// NodeShape returns the node grid's (Mx, My, Mz).
func (m *Map) NodeShape() mesh.Shape { return m.basis.NodeShape() }

// Basis exposes the basis matrix as a read-only reference.
func (m *Map) Basis() *Basis { return m.basis }

// Laplacian exposes the node-grid Laplacian as a read-only reference.
func (m *Map) Laplacian() *mat.SymDense { return m.laplacian }

// Coeffs exposes the stacked coefficient vector as a read-only reference.
func (m *Map) Coeffs() *mat.VecDense { return m.coeffs }

// block returns the backing slice for coefficient block b (0..D-1 are
// spatial, D is the intensity block).
func (m *Map) block(b int) []float64 {
	n := m.basis.NumNodes()
	return m.coeffs.RawVector().Data[b*n : (b+1)*n]
}

// Update adds delta element-wise to the coefficient vector.
func (m *Map) Update(delta *mat.VecDense) error {
	if delta.Len() != m.coeffs.Len() {
		return fmt.Errorf("%w: delta has length %d, map has %d coefficients", regerr.ErrShapeMismatch, delta.Len(), m.coeffs.Len())
	}
	m.coeffs.AddVec(m.coeffs, delta)
	return nil
}

// DisplacedPosition implements imagefield.Sampler: it evaluates the
// spatial coefficient blocks at pixel's basis row to produce the
// displaced sampling position. The intensity block plays no part in the
// geometric warp; it only participates in the linear system built by
// WorkSpace/Registrar.
func (m *Map) DisplacedPosition(pixel int) (x, y, z float64) {
	i, j, k := mesh.Coords(m.pixShape, pixel)
	pos := [3]float64{float64(i), float64(j), float64(k)}
	for d := 0; d < m.ndim; d++ {
		pos[d] += m.basis.RowDot(pixel, m.block(d))
	}
	return pos[0], pos[1], pos[2]
}

// Warp delegates to imagefield.NewWarped using this map's basis for
// interpolation positions.
func (m *Map) Warp(template *imagefield.Image, source *imagefield.Image) (*imagefield.Image, error) {
	return imagefield.NewWarped(template, source, m)
}

// Interpolate returns a new Map at newSpacing whose coefficient vector
// represents the same physical displacement field as m, obtained by
// evaluating m's basis at the new node positions (each new node's physical
// position is looked up against m's existing node grid exactly the way an
// image pixel would be, yielding the interpolated coefficient value there).
func (m *Map) Interpolate(newSpacing [3]float64) (*Map, error) {
	newNodeShape, err := nodeShapeFor(m.pixShape, newSpacing)
	if err != nil {
		return nil, err
	}

	out := &Map{
		pixShape: m.pixShape,
		ndim:     m.ndim,
		spacing:  newSpacing,
	}
	out.basis, err = BuildBasis(m.pixShape, newSpacing)
	if err != nil {
		return nil, err
	}
	out.laplacian = BuildLaplacian(newNodeShape)
	out.coeffs = mat.NewVecDense((m.ndim+1)*newNodeShape.Total(), nil)

	for k := 0; k < newNodeShape[2]; k++ {
		for j := 0; j < newNodeShape[1]; j++ {
			for i := 0; i < newNodeShape[0]; i++ {
				pos := [3]float64{float64(i) * newSpacing[0], float64(j) * newSpacing[1], float64(k) * newSpacing[2]}
				corners, weights := cornerWeights(pos, m.spacing, m.basis.NodeShape())
				newNode := mesh.Index(newNodeShape, i, j, k)
				for b := 0; b < m.ndim+1; b++ {
					oldBlock := m.block(b)
					v := 0.0
					for ci, c := range corners {
						oldNode := mesh.Index(m.basis.NodeShape(), c[0], c[1], c[2])
						v += weights[ci] * oldBlock[oldNode]
					}
					out.block(b)[newNode] = v
				}
			}
		}
	}
	return out, nil
}
