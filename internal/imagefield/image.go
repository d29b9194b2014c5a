// Package imagefield implements Image: an intensity field on a GridMesh
// with load, normalise, gradient, and warp-target operations, grounded on
// the Volume/Slice load-normalize-gradient-duplicate contract
// (internal/models/slice.go, before it was dropped) generalised from a
// fixed MRI slice stack to an arbitrary GridMesh-resident scalar field.
package imagefield

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"elasticreg/internal/fdgrad"
	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
)

// Image is an intensity field: a GridMesh plus the two buffers the mesh
// package distinguishes, a global (one-sample-per-owner) buffer and a
// local (owned + halo) scratch buffer refreshed on demand.
type Image struct {
	m      *mesh.GridMesh
	global *mesh.GlobalField
	local  *mesh.LocalField
}

// New allocates a zero-filled Image over a fresh mesh of the given shape.
func New(shape mesh.Shape, part mesh.Partitioning) (*Image, error) {
	m, err := mesh.Create(shape, part)
	if err != nil {
		return nil, err
	}
	return fromMesh(m), nil
}

// NewLike allocates a zero-filled Image sharing template's mesh.
func NewLike(template *Image) *Image {
	return fromMesh(template.m)
}

func fromMesh(m *mesh.GridMesh) *Image {
	return &Image{m: m, global: mesh.NewGlobalField(m)}
}

// Load reads path through loader. If template is non-nil its mesh is
// reused (shapes must match exactly); otherwise a new mesh is created from
// the loader's probed shape.
func Load(path string, template *Image, part mesh.Partitioning, loader Loader) (*Image, error) {
	shape, err := loader.Probe(path)
	if err != nil {
		return nil, err
	}

	var im *Image
	if template != nil {
		if template.Shape() != shape {
			return nil, fmt.Errorf("%w: %s has shape %v, template has %v", regerr.ErrShapeMismatch, path, shape, template.Shape())
		}
		im = fromMesh(template.m)
	} else {
		m, err := mesh.Create(shape, part)
		if err != nil {
			return nil, err
		}
		im = fromMesh(m)
	}

	if err := loader.CopyScaledChunk(path, im.global); err != nil {
		return nil, err
	}
	return im, nil
}

// Mesh returns the image's owning mesh.
func (im *Image) Mesh() *mesh.GridMesh { return im.m }

// Shape returns the image's (Nx, Ny, Nz).
func (im *Image) Shape() mesh.Shape { return im.m.Shape() }

// NDim returns 2 or 3 per the Nz==1 collapse rule.
func (im *Image) NDim() int { return im.m.NDim() }

// Global exposes the backing global buffer.
func (im *Image) Global() *mesh.GlobalField { return im.global }

// Duplicate returns a new, zero-filled Image sharing im's mesh.
func (im *Image) Duplicate() *Image { return fromMesh(im.m) }

// Copy returns an independent Image with the same mesh and sample values.
func (im *Image) Copy() *Image {
	out := fromMesh(im.m)
	copy(out.global.Data, im.global.Data)
	return out
}

// Normalize rescales the global buffer so its mean is 1.0 and returns the
// scale factor applied.
func (im *Image) Normalize() float64 {
	sum := floats.Sum(im.global.Data)
	if sum == 0 {
		return 1
	}
	s := float64(len(im.global.Data)) / sum
	floats.Scale(s, im.global.Data)
	return s
}

// RefreshLocal exchanges a fresh halo into im's cached local buffer,
// allocating it on first use, and returns it.
func (im *Image) RefreshLocal() (*mesh.LocalField, error) {
	if im.local == nil {
		im.local = mesh.NewLocalField(im.m)
	}
	if err := im.m.GlobalToLocal(im.global, im.local); err != nil {
		return nil, err
	}
	return im.local, nil
}

// Gradient is a convenience for FDGradient on the image's own buffer along
// axis dim; it refreshes the halo before differentiating.
func (im *Image) Gradient(dim int) (*mesh.GlobalField, error) {
	local, err := im.RefreshLocal()
	if err != nil {
		return nil, err
	}
	return fdgrad.Gradient(im.m, local, dim)
}
