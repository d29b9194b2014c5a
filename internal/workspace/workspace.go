// Package workspace implements WorkSpace: the per-resolution pool of
// distributed buffers an inner registration iteration needs, grounded on
// original_source/src/elastic.cpp (create_scatterers, do_scatter_to_stacked,
// create_t_matrix) and reconstruction.go's scratch-buffer-pool idiom.
package workspace

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/fdgrad"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
)

// WorkSpace holds every buffer an inner iteration needs: D gradient
// temporaries and one average-image temporary (all global, image
// sized), a shared local scratch buffer, the stacked (D+1)*Npix block
// vector they scatter into, the current system matrix Tmat, and the
// node-coefficient-sized right-hand-side and solution-increment vectors.
type WorkSpace struct {
	m       *mesh.GridMesh
	ndim    int
	npix    int
	fixed   *imagefield.Image
	moved   *imagefield.Image
	grads   []*mesh.GlobalField
	avg     *imagefield.Image
	local   *mesh.LocalField
	stacked *mat.VecDense
	tmat    *mat.Dense
	rhs     *mat.VecDense
	delta   *mat.VecDense
}

// New allocates a WorkSpace sized to fixed/moved (which must share a mesh)
// and the DisplacementMap's current node grid. moved may be updated by the
// caller between calls to ScatterGradsToStacked (e.g. re-warped each
// inner iteration); WorkSpace always recomputes the average image from
// the current fixed/moved contents.
func New(fixed, moved *imagefield.Image, m *dispmap.Map) (*WorkSpace, error) {
	if fixed.Mesh() != moved.Mesh() {
		return nil, fmt.Errorf("%w: fixed and moved images must share a mesh", regerr.ErrShapeMismatch)
	}
	gm := fixed.Mesh()
	ndim := fixed.NDim()
	npix := gm.Shape().Total()

	avg := fixed.Duplicate()

	grads := make([]*mesh.GlobalField, ndim)
	for d := range grads {
		grads[d] = mesh.NewGlobalField(gm)
	}

	w := &WorkSpace{
		m:       gm,
		ndim:    ndim,
		npix:    npix,
		fixed:   fixed,
		moved:   moved,
		grads:   grads,
		avg:     avg,
		local:   mesh.NewLocalField(gm),
		stacked: mat.NewVecDense((ndim+1)*npix, nil),
	}
	if err := w.reallocateNodeVectors(m); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *WorkSpace) reallocateNodeVectors(m *dispmap.Map) error {
	n := m.NumBlocks() * m.Basis().NumNodes()
	w.rhs = mat.NewVecDense(n, nil)
	w.delta = mat.NewVecDense(n, nil)
	rows := (w.ndim + 1) * w.npix
	cols := n
	w.tmat = mat.NewDense(rows, cols, nil)
	return nil
}

// ReallocateEphemeral resizes RHS, delta, and Tmat when the DisplacementMap
// has changed resolution between generations. The gradient/intensity/local
// buffers are unaffected since they remain image-sized.
func (w *WorkSpace) ReallocateEphemeral(m *dispmap.Map) error {
	return w.reallocateNodeVectors(m)
}

// RHS exposes the right-hand-side vector.
func (w *WorkSpace) RHS() *mat.VecDense { return w.rhs }

// Delta exposes the solution-increment vector.
func (w *WorkSpace) Delta() *mat.VecDense { return w.delta }

// Tmat exposes the current system matrix.
func (w *WorkSpace) Tmat() *mat.Dense { return w.tmat }

// Stacked exposes the (D+1)*Npix stacked block vector.
func (w *WorkSpace) Stacked() *mat.VecDense { return w.stacked }

// AverageImage exposes 0.5*(fixed+moved) as of the last ScatterGradsToStacked.
func (w *WorkSpace) AverageImage() *imagefield.Image { return w.avg }

// SetMoved updates the moved image WorkSpace averages against, e.g. after
// each inner-iteration re-warp.
func (w *WorkSpace) SetMoved(moved *imagefield.Image) { w.moved = moved }

// ScatterGradsToStacked recomputes the average image 0.5*(fixed+moved),
// its gradients and the intensity offset 1 - average, then scatters the D
// gradient blocks and the intensity block into their slots of the stacked
// vector, one goroutine
// per block joined with a WaitGroup, mirroring VecScatterBegin/End's
// begin/end shape over per-dimension scatterers.
func (w *WorkSpace) ScatterGradsToStacked() error {
	for i := range w.avg.Global().Data {
		w.avg.Global().Data[i] = 0.5 * (w.fixed.Global().Data[i] + w.moved.Global().Data[i])
	}
	if err := w.m.GlobalToLocal(w.avg.Global(), w.local); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var first error
	wg.Add(w.ndim + 1)

	for d := 0; d < w.ndim; d++ {
		d := d
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if first == nil {
						first = fmt.Errorf("%w: gradient scatter dim %d: %v", regerr.ErrCollective, d, r)
					}
					mu.Unlock()
				}
			}()
			g, err := fdgrad.Gradient(w.m, w.local, d)
			if err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
				return
			}
			copy(w.grads[d].Data, g.Data)
			w.copyGradIntoOwnBlock(d)
		}()
	}
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				mu.Lock()
				if first == nil {
					first = fmt.Errorf("%w: intensity scatter: %v", regerr.ErrCollective, r)
				}
				mu.Unlock()
			}
		}()
		block := w.stacked.RawVector().Data[w.ndim*w.npix : (w.ndim+1)*w.npix]
		for i, v := range w.avg.Global().Data {
			block[i] = 1 - v
		}
	}()

	wg.Wait()
	return first
}

// copyGradIntoOwnBlock copies the already-computed gradient for dimension
// d into its own slot of the stacked vector only, without recomputing the
// gradient or touching any other block. This is a per-dimension scatter,
// not the broadcast-to-every-block operation; the residual block's
// broadcast (all D+1 slots get the same f-r value) is done separately,
// inline in the registrar's inner step.
func (w *WorkSpace) copyGradIntoOwnBlock(d int) {
	block := w.stacked.RawVector().Data[d*w.npix : (d+1)*w.npix]
	copy(block, w.grads[d].Data)
}

// CalculateTmat rebuilds the block-diagonal system matrix T = diag(v)*B
// for the current stacked vector v and displacement map m: each of the
// D+1 row blocks is m's basis matrix scaled on the left by that block's
// slice of the stacked vector.
func (w *WorkSpace) CalculateTmat(m *dispmap.Map) {
	basis := m.Basis().Dense()
	nnodes := m.Basis().NumNodes()
	for b := 0; b <= w.ndim; b++ {
		vblock := w.stacked.RawVector().Data[b*w.npix : (b+1)*w.npix]
		for p := 0; p < w.npix; p++ {
			row := basis.RawRowView(p)
			for n, wgt := range row {
				if wgt == 0 {
					continue
				}
				w.tmat.Set(b*w.npix+p, b*nnodes+n, vblock[p]*wgt)
			}
		}
	}
}
