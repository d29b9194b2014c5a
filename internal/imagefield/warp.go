package imagefield

import "elasticreg/internal/mesh"

// Sampler maps a fixed-grid pixel index (mesh.Index(shape, i, j, k)) to the
// displaced position, in global grid coordinates, it should be sampled
// from. DisplacementMap implements Sampler; Image depends only on this
// interface rather than on DisplacementMap directly, so that dispmap can
// import imagefield without imagefield importing dispmap back.
type Sampler interface {
	DisplacedPosition(pixel int) (x, y, z float64)
}

// NewWarped produces an image, over template's mesh, whose value at each
// fixed-grid node is source sampled (trilinear, or bilinear when collapsed
// to 2-D) at the position sampler reports for that node, clamped to the
// nearest edge when the displaced position falls outside source's domain.
func NewWarped(template *Image, source *Image, sampler Sampler) (*Image, error) {
	out := fromMesh(template.m)
	shape := source.Shape()

	err := template.m.RunOverRanks(func(rank int) {
		box := template.m.Box(rank)
		for k := box.Lo[2]; k < box.Hi[2]; k++ {
			for j := box.Lo[1]; j < box.Hi[1]; j++ {
				for i := box.Lo[0]; i < box.Hi[0]; i++ {
					p := mesh.Index(template.Shape(), i, j, k)
					x, y, z := sampler.DisplacedPosition(p)
					v := sampleTrilinear(source.global, shape, x, y, z)
					out.global.Set(i, j, k, v)
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sampleTrilinear(g *mesh.GlobalField, shape mesh.Shape, x, y, z float64) float64 {
	x = clampf(x, 0, float64(shape[0]-1))
	y = clampf(y, 0, float64(shape[1]-1))

	if shape[2] == 1 {
		return sampleBilinear(g, shape, x, y)
	}
	z = clampf(z, 0, float64(shape[2]-1))

	x0, y0, z0 := int(x), int(y), int(z)
	x1, y1, z1 := minInt(x0+1, shape[0]-1), minInt(y0+1, shape[1]-1), minInt(z0+1, shape[2]-1)
	fx, fy, fz := x-float64(x0), y-float64(y0), z-float64(z0)

	c000 := g.At(x0, y0, z0)
	c100 := g.At(x1, y0, z0)
	c010 := g.At(x0, y1, z0)
	c110 := g.At(x1, y1, z0)
	c001 := g.At(x0, y0, z1)
	c101 := g.At(x1, y0, z1)
	c011 := g.At(x0, y1, z1)
	c111 := g.At(x1, y1, z1)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx

	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy

	return c0*(1-fz) + c1*fz
}

func sampleBilinear(g *mesh.GlobalField, shape mesh.Shape, x, y float64) float64 {
	x0, y0 := int(x), int(y)
	x1, y1 := minInt(x0+1, shape[0]-1), minInt(y0+1, shape[1]-1)
	fx, fy := x-float64(x0), y-float64(y0)

	c00 := g.At(x0, y0, 0)
	c10 := g.At(x1, y0, 0)
	c01 := g.At(x0, y1, 0)
	c11 := g.At(x1, y1, 0)

	c0 := c00*(1-fx) + c10*fx
	c1 := c01*(1-fx) + c11*fx
	return c0*(1-fy) + c1*fy
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
