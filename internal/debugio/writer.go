// Package debugio implements the Image/Map writer collaborator: a
// deliberately simple persistence format (16-bit grayscale PNG for
// images, a YAML sidecar plus a raw float32 dump for displacement
// maps), in the spirit of pkg/visualization/viewer.go's
// SaveSlice/jpeg.Encode idiom but swapped to PNG for lossless
// round-trip and wired to DisplacementMap instead of MRI slices.
package debugio

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/regerr"
)

// WriteImage persists img as a 16-bit grayscale PNG at path, clamping
// values to [0, 1] before scaling to the 16-bit range.
func WriteImage(img *imagefield.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", regerr.ErrAllocation, err)
	}

	shape := img.Shape()
	w, h := shape[0], shape[1]
	gray := image.NewGray16(image.Rect(0, 0, w, h))
	data := img.Global().Data
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			v := data[i+j*w]
			v = math.Max(0, math.Min(1, v))
			gray.SetGray16(i, j, color.Gray16{Y: uint16(v * 65535)})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", regerr.ErrAllocation, path, err)
	}
	defer f.Close()

	if err := png.Encode(f, gray); err != nil {
		return fmt.Errorf("%w: encoding %s: %v", regerr.ErrAllocation, path, err)
	}
	return nil
}

// mapSidecar is the YAML document describing a DisplacementMap's shape
// and spacing; the coefficient values themselves live in the adjacent
// raw float32 file named by DataFile.
type mapSidecar struct {
	NDim      int        `yaml:"ndim"`
	NumBlocks int        `yaml:"numBlocks"`
	NodeShape [3]int     `yaml:"nodeShape"`
	Spacing   [3]float64 `yaml:"spacing"`
	DataFile  string     `yaml:"dataFile"`
}

// WriteMap persists m as a YAML sidecar at path plus a raw little-endian
// float32 coefficient dump at the same name with a ".f32" extension
// appended. The samples use the same encoding as internal/imagefield's
// raw-plane format, but no ".hdr" sidecar is written, so that loader
// cannot read the dump back as is.
func WriteMap(m *dispmap.Map, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", regerr.ErrAllocation, err)
	}

	dataFile := path + ".f32"
	side := mapSidecar{
		NDim:      m.NDim(),
		NumBlocks: m.NumBlocks(),
		Spacing:   m.Spacing(),
		DataFile:  filepath.Base(dataFile),
	}
	ns := m.NodeShape()
	side.NodeShape = [3]int{ns[0], ns[1], ns[2]}

	doc, err := yaml.Marshal(side)
	if err != nil {
		return fmt.Errorf("%w: marshaling map sidecar: %v", regerr.ErrAllocation, err)
	}
	if err := os.WriteFile(path, doc, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", regerr.ErrAllocation, path, err)
	}

	f, err := os.Create(dataFile)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", regerr.ErrAllocation, dataFile, err)
	}
	defer f.Close()

	coeffs := m.Coeffs().RawVector().Data
	buf := make([]byte, 4)
	for _, v := range coeffs {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("%w: writing %s: %v", regerr.ErrAllocation, dataFile, err)
		}
	}
	return nil
}

// DebugFramePaths returns the (image path, map path) pair for a debug
// frame dumped at the given generation/iteration under prefix, matching
// the original's debug_frames_prefix naming convention.
func DebugFramePaths(prefix string, generation, iteration int) (imagePath, mapPath string) {
	base := fmt.Sprintf("%s_gen%02d_iter%03d", prefix, generation, iteration)
	return base + ".png", base + ".yaml"
}
