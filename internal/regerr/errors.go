// Package regerr defines the sentinel error kinds shared across the
// registration core, matching the error taxonomy of the distilled spec:
// configuration, input-shape, collective/transport, and allocation errors
// are all fatal to the caller; non-convergence is reported separately as a
// plain warning (see internal/solver and internal/registrar) rather than an
// error of this kind.
package regerr

import "errors"

var (
	// ErrConfiguration covers missing required keys, mismatched node-spacing
	// dimensionality, and non-positive spacing.
	ErrConfiguration = errors.New("configuration error")

	// ErrShapeMismatch covers a moved image whose shape differs from the
	// fixed image, or any other structural shape mismatch.
	ErrShapeMismatch = errors.New("input shape mismatch")

	// ErrCollective covers a failure inside a collective operation (ghost
	// exchange, scatter, reduction). It is always fatal.
	ErrCollective = errors.New("collective transport error")

	// ErrAllocation covers failure to allocate a buffer or matrix.
	ErrAllocation = errors.New("allocation failure")
)
