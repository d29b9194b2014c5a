// Package solver implements LinearSolver: the Gauss-Newton normal-equation
// solve (TᵀT + λL)Δa = Tᵀρ at the heart of each inner iteration, grounded
// algorithmically on the conjugate-gradient shape used in
// jvlmdr-shift-invar/go/circcov/invmul_pcg.go and
// jvlmdr-shift-invar/go/toepcov/invmul_cg.go (algorithm-only grounding:
// that tree carries no go.mod, so it cannot be a dependency, only a shape
// to imitate) rendered directly over gonum's dense linear algebra types.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"elasticreg/internal/regerr"
)

// LinearSolver solves A x = b for a symmetric positive (semi-)definite A,
// starting from x0, to relative residual tolerance tol or maxIts
// iterations, whichever comes first. The returned bool reports whether
// tol was reached; a false return is a convergence warning, not an error.
type LinearSolver interface {
	Solve(A mat.Symmetric, b, x0 *mat.VecDense, tol float64, maxIts int) (*mat.VecDense, bool, error)
}

// CG is a Jacobi-preconditioned conjugate gradient solver.
type CG struct{}

// Solve implements LinearSolver.
func (CG) Solve(A mat.Symmetric, b, x0 *mat.VecDense, tol float64, maxIts int) (*mat.VecDense, bool, error) {
	n := A.SymmetricDim()
	if b.Len() != n {
		return nil, false, fmt.Errorf("%w: rhs has length %d, matrix is %dx%d", regerr.ErrShapeMismatch, b.Len(), n, n)
	}

	x := mat.NewVecDense(n, nil)
	if x0 != nil {
		if x0.Len() != n {
			return nil, false, fmt.Errorf("%w: initial guess has length %d, matrix is %dx%d", regerr.ErrShapeMismatch, x0.Len(), n, n)
		}
		x.CopyVec(x0)
	}

	jacobi := make([]float64, n)
	for i := 0; i < n; i++ {
		d := A.At(i, i)
		if d == 0 {
			d = 1
		}
		jacobi[i] = 1 / d
	}
	precondition := func(dst, src *mat.VecDense) {
		for i := 0; i < n; i++ {
			dst.SetVec(i, jacobi[i]*src.AtVec(i))
		}
	}

	r := mat.NewVecDense(n, nil)
	r.MulVec(A, x)
	r.SubVec(b, r)

	bNorm := mat.Norm(b, 2)
	if bNorm == 0 {
		bNorm = 1
	}
	if mat.Norm(r, 2)/bNorm <= tol {
		return x, true, nil
	}

	z := mat.NewVecDense(n, nil)
	precondition(z, r)
	p := mat.NewVecDense(n, nil)
	p.CopyVec(z)

	rz := mat.Dot(r, z)
	Ap := mat.NewVecDense(n, nil)

	for it := 0; it < maxIts; it++ {
		Ap.MulVec(A, p)
		denom := mat.Dot(p, Ap)
		if denom == 0 || math.IsNaN(denom) {
			return x, false, nil
		}
		alpha := rz / denom

		x.AddScaledVec(x, alpha, p)
		r.AddScaledVec(r, -alpha, Ap)

		if mat.Norm(r, 2)/bNorm <= tol {
			return x, true, nil
		}

		precondition(z, r)
		rzNew := mat.Dot(r, z)
		beta := rzNew / rz
		p.AddScaledVec(z, beta, p)
		rz = rzNew
	}

	return x, false, nil
}
