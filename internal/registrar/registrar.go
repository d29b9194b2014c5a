// Package registrar implements ElasticRegistrar: the coarse-to-fine
// driver that runs the node-spacing cascade, the per-generation inner
// iteration, and the block preconditioner, grounded on
// original_source/src/elastic.cpp/elastic.hpp and reconstruction.go's
// Process() staged-pipeline logging idiom.
package registrar

import (
	"fmt"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
	"elasticreg/internal/solver"
	"elasticreg/internal/workspace"
)

// State is a position in the Registrar's generation/inner-loop state
// machine: Idle -> GenerationInit -> InnerLoop -> GenerationInit -> ... -> Done.
type State int

const (
	Idle State = iota
	GenerationInit
	InnerLoop
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case GenerationInit:
		return "GenerationInit"
	case InnerLoop:
		return "InnerLoop"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Options configures Autoregister. Zero-value fields are replaced by
// DefaultOptions' defaults in New.
type Options struct {
	MaxIter              int
	ConvergenceThreshold float64
	Lambda               float64
	// LambdaForGeneration, when set, overrides Lambda per generation; the
	// default (nil) reproduces the original's constant-20.0 policy exactly
	// (see DESIGN.md's Open Question resolution).
	LambdaForGeneration func(gen int, spacing [3]float64) float64
	DebugFrames         bool
	DebugFramesPrefix   string
	Solver              solver.LinearSolver
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxIter:              50,
		ConvergenceThreshold: 0.1,
		Lambda:               20.0,
		Solver:               solver.CG{},
	}
}

// Registrar drives multi-resolution elastic registration of moved onto
// fixed.
type Registrar struct {
	opts  Options
	state State

	fixed      *imagefield.Image
	moved      *imagefield.Image
	registered *imagefield.Image

	spacings [][3]float64
	gen      int

	m  *dispmap.Map
	ws *workspace.WorkSpace
}

// New validates fixed and moved share a shape and constructs a Registrar
// ready for Autoregister.
func New(fixed, moved *imagefield.Image, finalSpacing [3]float64, opts Options) (*Registrar, error) {
	if fixed.Shape() != moved.Shape() {
		return nil, fmt.Errorf("%w: fixed has shape %v, moved has %v", regerr.ErrShapeMismatch, fixed.Shape(), moved.Shape())
	}
	for d, s := range finalSpacing {
		if s <= 0 {
			return nil, fmt.Errorf("%w: node_spacing axis %d must be > 0, got %v", regerr.ErrConfiguration, d, s)
		}
	}

	def := DefaultOptions()
	if opts.MaxIter == 0 {
		opts.MaxIter = def.MaxIter
	}
	if opts.ConvergenceThreshold == 0 {
		opts.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if opts.Lambda == 0 {
		opts.Lambda = def.Lambda
	}
	if opts.Solver == nil {
		opts.Solver = def.Solver
	}

	return &Registrar{
		opts:     opts,
		state:    Idle,
		fixed:    fixed,
		moved:    moved,
		spacings: calculateNodeSpacings(fixed.Shape(), finalSpacing),
	}, nil
}

// Registered returns the current best registered image (valid once at
// least one generation has run).
func (r *Registrar) Registered() *imagefield.Image { return r.registered }

// State returns the Registrar's current state-machine position.
func (r *Registrar) State() State { return r.state }

// Map returns the current finest-generation DisplacementMap (valid once
// at least one generation has run).
func (r *Registrar) Map() *dispmap.Map { return r.m }

// calculateNodeSpacings starts from the user-supplied final spacing and
// produces a strictly decreasing-in-refinement list by repeatedly
// doubling the spacing as long as the doubled value still satisfies
// Ni/si > 2 for every axis that isn't collapsed, then reverses it so the
// cascade runs coarsest to finest. Checking the *doubled* spacing (rather
// than the current one) before accepting it keeps every generation but
// the finest strictly above the Ni/si > 2 threshold; a collapsed axis
// keeps its spacing fixed at 1 rather than being doubled.
func calculateNodeSpacings(shape mesh.Shape, final [3]float64) [][3]float64 {
	spacings := [][3]float64{final}
	cur := final
	for {
		var next [3]float64
		for d := 0; d < 3; d++ {
			if shape[d] == 1 {
				next[d] = 1
			} else {
				next[d] = cur[d] * 2
			}
		}

		coarsenFurther := true
		for d := 0; d < 3; d++ {
			if shape[d] == 1 {
				continue
			}
			if float64(shape[d])/next[d] <= 2 {
				coarsenFurther = false
				break
			}
		}
		if !coarsenFurther {
			break
		}
		spacings = append(spacings, next)
		cur = next
	}
	for i, j := 0, len(spacings)-1; i < j; i, j = i+1, j-1 {
		spacings[i], spacings[j] = spacings[j], spacings[i]
	}
	return spacings
}
