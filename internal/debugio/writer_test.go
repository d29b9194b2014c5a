package debugio

import (
	"os"
	"path/filepath"
	"testing"

	"elasticreg/internal/dispmap"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
)

func TestWriteImageProducesReadablePNG(t *testing.T) {
	img, err := imagefield.New(mesh.Shape{4, 4, 1}, mesh.Partitioning{Ranks: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range img.Global().Data {
		img.Global().Data[i] = 0.5
	}

	path := filepath.Join(t.TempDir(), "out.png")
	if err := WriteImage(img, path); err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty PNG file")
	}
}

func TestWriteMapProducesSidecarAndDataFile(t *testing.T) {
	img, _ := imagefield.New(mesh.Shape{8, 8, 1}, mesh.Partitioning{Ranks: 1})
	m, err := dispmap.New(img, [3]float64{4, 4, 1})
	if err != nil {
		t.Fatalf("dispmap.New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "map.yaml")
	if err := WriteMap(m, path); err != nil {
		t.Fatalf("WriteMap: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if _, err := os.Stat(path + ".f32"); err != nil {
		t.Fatalf("data file missing: %v", err)
	}
}

func TestDebugFramePathsAreDeterministic(t *testing.T) {
	imgPath, mapPath := DebugFramePaths("debug", 2, 7)
	if imgPath != "debug_gen02_iter007.png" {
		t.Fatalf("imgPath = %q", imgPath)
	}
	if mapPath != "debug_gen02_iter007.yaml" {
		t.Fatalf("mapPath = %q", mapPath)
	}
}
