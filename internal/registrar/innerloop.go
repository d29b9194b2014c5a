package registrar

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/workspace"
)

// Autoregister runs the node-spacing cascade to completion, transitioning
// Idle -> GenerationInit -> InnerLoop -> ... -> Done.
func (r *Registrar) Autoregister() error {
	// registered starts as a copy of moved's samples laid over fixed's
	// mesh, since WorkSpace requires both images to share one mesh.
	r.registered = imagefield.NewLike(r.fixed)
	copy(r.registered.Global().Data, r.moved.Global().Data)
	r.registered.Normalize()
	r.fixed.Normalize()

	for gen, spacing := range r.spacings {
		r.gen = gen
		r.state = GenerationInit
		if err := r.initGeneration(gen, spacing); err != nil {
			return err
		}

		lambda := r.opts.Lambda
		if r.opts.LambdaForGeneration != nil {
			lambda = r.opts.LambdaForGeneration(gen, spacing)
		}

		r.state = InnerLoop
		amax := math.Inf(1)
		iter := 0
		for ; iter < r.opts.MaxIter; iter++ {
			var err error
			amax, err = r.innerstep(lambda)
			if err != nil {
				return err
			}
			if r.opts.DebugFrames {
				log.Printf("registrar: generation %d iteration %d amax=%v", gen, iter, amax)
			}
			if amax < r.opts.ConvergenceThreshold {
				break
			}
		}
		iters := iter
		if iter < r.opts.MaxIter {
			iters++
		}
		log.Printf("registrar: generation %d done after %d iterations, spacing=%v amax=%v", gen, iters, spacing, amax)
	}

	r.state = Done
	return nil
}

// initGeneration allocates (gen == 0) or interpolates and re-warps (gen > 0)
// the DisplacementMap and WorkSpace for the given generation.
func (r *Registrar) initGeneration(gen int, spacing [3]float64) error {
	if gen == 0 {
		m, err := dispmap.New(r.fixed, spacing)
		if err != nil {
			return err
		}
		r.m = m
		ws, err := workspace.New(r.fixed, r.registered, r.m)
		if err != nil {
			return err
		}
		r.ws = ws
		return nil
	}

	finer, err := r.m.Interpolate(spacing)
	if err != nil {
		return err
	}
	r.m = finer
	if err := r.ws.ReallocateEphemeral(r.m); err != nil {
		return err
	}

	registered, err := r.m.Warp(r.fixed, r.moved)
	if err != nil {
		return err
	}
	registered.Normalize()
	r.registered = registered
	r.ws.SetMoved(r.registered)
	return nil
}

// innerstep runs one inner-iteration: build T, form and precondition the
// normal-equation system, solve for Δa, update the map, re-warp, and
// return the new amax.
func (r *Registrar) innerstep(lambda float64) (float64, error) {
	if err := r.ws.ScatterGradsToStacked(); err != nil {
		return 0, err
	}
	r.ws.CalculateTmat(r.m)

	tmat := r.ws.Tmat()
	rows, cols := tmat.Dims()

	var n mat.Dense
	n.Mul(tmat.T(), tmat)

	nSym := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			nSym.SetSym(i, j, n.At(i, j))
		}
	}

	scale := blockPreconditionScale(nSym, r.m.Basis().NumNodes(), r.m.NDim())
	addScaledLaplacian(nSym, r.m.Laplacian(), r.m.NumBlocks(), lambda)
	applyCongruence(nSym, scale)

	// g = f - r, broadcast to all D+1 stacked slots.
	g := make([]float64, rows/r.m.NumBlocks())
	npix := len(g)
	fixedData := r.fixed.Global().Data
	registeredData := r.registered.Global().Data
	for i := range g {
		g[i] = fixedData[i] - registeredData[i]
	}
	stackedG := mat.NewVecDense(rows, nil)
	for b := 0; b < r.m.NumBlocks(); b++ {
		copy(stackedG.RawVector().Data[b*npix:(b+1)*npix], g)
	}

	rhs := mat.NewVecDense(cols, nil)
	rhs.MulVec(tmat.T(), stackedG)
	for i := 0; i < cols; i++ {
		rhs.SetVec(i, rhs.AtVec(i)*scale[i])
	}

	y, converged, err := r.opts.Solver.Solve(nSym, rhs, nil, 1e-6, 200)
	if err != nil {
		return 0, err
	}
	if !converged {
		log.Printf("registrar: warning: generation %d linear solve did not converge, using best-effort increment", r.gen)
	}
	delta := mat.NewVecDense(cols, nil)
	for i := 0; i < cols; i++ {
		delta.SetVec(i, y.AtVec(i)*scale[i])
	}

	if err := r.m.Update(delta); err != nil {
		return 0, err
	}

	warped, err := r.m.Warp(r.fixed, r.moved)
	if err != nil {
		return 0, err
	}
	warped.Normalize()
	r.registered = warped
	r.ws.SetMoved(r.registered)

	amax := 0.0
	for _, v := range delta.RawVector().Data {
		if math.Abs(v) > amax {
			amax = math.Abs(v)
		}
	}
	return amax, nil
}

// blockPreconditionScale measures the mean diagonal magnitude of N = TᵀT's
// spatial rows (first D·Mnodes) versus its intensity rows (last Mnodes)
// and returns the per-row scale vector (1 on spatial rows,
// sqrt(avg_spatial/avg_lum) on intensity rows) that balances them. A
// literal left-multiply-only row scaling would break N's symmetry, so
// the scale is applied as a symmetric congruence D·N·D by applyCongruence
// instead: a sqrt ratio on both sides of the intensity block reaches the
// same mean-diagonal ratio a one-sided scaling would while keeping N
// symmetric positive semi-definite for the Krylov solver.
func blockPreconditionScale(n *mat.SymDense, nnodes, ndim int) []float64 {
	cols, _ := n.Dims()
	spatialRows := ndim * nnodes

	spatialSum, lumSum := 0.0, 0.0
	for i := 0; i < spatialRows; i++ {
		spatialSum += n.At(i, i)
	}
	for i := spatialRows; i < cols; i++ {
		lumSum += n.At(i, i)
	}
	avgSpatial := spatialSum / float64(spatialRows)
	avgLum := lumSum / float64(cols-spatialRows)

	ratio := 1.0
	if avgLum != 0 {
		ratio = avgSpatial / avgLum
	}
	scaleLum := math.Sqrt(ratio)

	d := make([]float64, cols)
	for i := 0; i < cols; i++ {
		if i < spatialRows {
			d[i] = 1
		} else {
			d[i] = scaleLum
		}
	}
	return d
}

// applyCongruence scales n in place by n[i][j] *= d[i]*d[j], the
// symmetric congruence D·N·D.
func applyCongruence(n *mat.SymDense, d []float64) {
	cols, _ := n.Dims()
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			n.SetSym(i, j, n.At(i, j)*d[i]*d[j])
		}
	}
}

// addScaledLaplacian adds λ·L to N, where L is block-diagonal with one
// copy of the node-grid Laplacian per coefficient block (spatial and
// intensity alike), matching a DIFFERENT-nonzero-pattern AXPY since N's
// pattern (dense, from TᵀT) and L's pattern (sparse stencil) don't align.
func addScaledLaplacian(n *mat.SymDense, laplacian *mat.SymDense, numBlocks int, lambda float64) {
	nnodes, _ := laplacian.Dims()
	for b := 0; b < numBlocks; b++ {
		off := b * nnodes
		for i := 0; i < nnodes; i++ {
			for j := i; j < nnodes; j++ {
				lv := laplacian.At(i, j)
				if lv == 0 {
					continue
				}
				n.SetSym(off+i, off+j, n.At(off+i, off+j)+lambda*lv)
			}
		}
	}
}
