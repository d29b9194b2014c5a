package imagefield

import (
	"bufio"
	"encoding/binary"
	"fmt"
	stdimage "image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"elasticreg/internal/mesh"
	"elasticreg/internal/regerr"
)

// Loader is the image-loader collaborator: probe reports a file's shape
// without necessarily decoding its full contents, and CopyScaledChunk
// fills dst (already sized to that shape) with samples normalised to
// [0, 1]. Format support is entirely the collaborator's concern; the core
// only depends on this call surface.
//
// The spec's copy_scaled_chunk takes a destination view plus a subregion
// shape/offset, for loaders that stream a distributed buffer directly. In
// this single-process rendering every rank shares one backing array, so
// CopyScaledChunk always fills the whole GlobalField in one call; there is
// no subregion to distinguish.
type Loader interface {
	Probe(path string) (mesh.Shape, error)
	CopyScaledChunk(path string, dst *mesh.GlobalField) error
}

// FileLoader reads common 2-D image formats (PNG, JPEG, decoded via the
// stdlib image registry) and a raw float32 plane format consisting of a
// ".hdr" text sidecar ("Nx Ny Nz") next to a ".f32" file of Nx*Ny*Nz
// little-endian float32 samples in row-major (x fastest) order.
type FileLoader struct{}

// Probe reports the on-disk shape of path.
func (FileLoader) Probe(path string) (mesh.Shape, error) {
	if isRawPlane(path) {
		return probeRawPlane(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return mesh.Shape{}, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	defer f.Close()

	cfg, _, err := stdimage.DecodeConfig(f)
	if err != nil {
		return mesh.Shape{}, fmt.Errorf("%w: decoding %s: %v", regerr.ErrConfiguration, path, err)
	}
	return mesh.Shape{cfg.Width, cfg.Height, 1}, nil
}

// CopyScaledChunk fills dst with path's samples rescaled to [0, 1] by
// min/max over the whole image.
func (FileLoader) CopyScaledChunk(path string, dst *mesh.GlobalField) error {
	if isRawPlane(path) {
		return copyRawPlane(path, dst)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	defer f.Close()

	img, _, err := stdimage.Decode(f)
	if err != nil {
		return fmt.Errorf("%w: decoding %s: %v", regerr.ErrConfiguration, path, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	shape := dst.Mesh().Shape()
	if shape[0] != w || shape[1] != h || shape[2] != 1 {
		return fmt.Errorf("%w: %s is %dx%d, destination expects %v", regerr.ErrShapeMismatch, path, w, h, shape)
	}

	raw := make([]float64, w*h)
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16).Y
			v := float64(gray)
			raw[x+y*w] = v
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	scaleInto(raw, lo, hi, dst)
	return nil
}

func isRawPlane(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".f32")
}

func hdrPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".hdr"
}

func probeRawPlane(path string) (mesh.Shape, error) {
	f, err := os.Open(hdrPath(path))
	if err != nil {
		return mesh.Shape{}, fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	defer f.Close()

	var shape mesh.Shape
	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for d := 0; d < 3; d++ {
		if !sc.Scan() {
			return mesh.Shape{}, fmt.Errorf("%w: %s: expected 3 integers", regerr.ErrConfiguration, hdrPath(path))
		}
		n, err := strconv.Atoi(sc.Text())
		if err != nil {
			return mesh.Shape{}, fmt.Errorf("%w: %s: %v", regerr.ErrConfiguration, hdrPath(path), err)
		}
		shape[d] = n
	}
	return shape, nil
}

func copyRawPlane(path string, dst *mesh.GlobalField) error {
	shape, err := probeRawPlane(path)
	if err != nil {
		return err
	}
	if shape != dst.Mesh().Shape() {
		return fmt.Errorf("%w: %s is %v, destination expects %v", regerr.ErrShapeMismatch, path, shape, dst.Mesh().Shape())
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", regerr.ErrConfiguration, err)
	}
	defer f.Close()

	n := shape.Total()
	raw := make([]float64, n)
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("%w: reading %s: %v", regerr.ErrConfiguration, path, err)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(buf[4*i : 4*i+4])
		v := float64(math.Float32frombits(bits))
		raw[i] = v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scaleInto(raw, lo, hi, dst)
	return nil
}

func scaleInto(raw []float64, lo, hi float64, dst *mesh.GlobalField) {
	span := hi - lo
	for i, v := range raw {
		if span == 0 {
			dst.Data[i] = 0
		} else {
			dst.Data[i] = (v - lo) / span
		}
	}
}
