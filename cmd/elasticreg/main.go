// Command elasticreg runs Barber-Hose elastic image registration of a
// moved image onto a fixed image, driven by a single YAML configuration
// file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"elasticreg/internal/debugio"
	"elasticreg/internal/imagefield"
	"elasticreg/internal/mesh"
	"elasticreg/internal/registrar"
	"elasticreg/pkg/config"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	configPath := flag.Arg(0)

	if err := run(configPath); err != nil {
		log.Printf("elasticreg: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fixedPath, err := config.Grab[string](cfg, "fixed")
	if err != nil {
		return err
	}
	movedPath, err := config.Grab[string](cfg, "moved")
	if err != nil {
		return err
	}
	spacingValues, err := config.GrabFloatSlice(cfg, "nodespacing")
	if err != nil {
		return err
	}
	spacing, err := broadcastSpacing(spacingValues)
	if err != nil {
		return err
	}

	part := mesh.Partitioning{Ranks: runtime.NumCPU()}
	loader := imagefield.FileLoader{}

	fixed, err := imagefield.Load(fixedPath, nil, part, loader)
	if err != nil {
		return fmt.Errorf("loading fixed image: %w", err)
	}
	moved, err := imagefield.Load(movedPath, fixed, part, loader)
	if err != nil {
		return fmt.Errorf("loading moved image: %w", err)
	}

	opts := registrar.DefaultOptions()
	if v, err := config.Grab[bool](cfg, "debug_frames"); err == nil {
		opts.DebugFrames = v
	}
	if v, err := config.Grab[string](cfg, "debug_frames_prefix"); err == nil {
		opts.DebugFramesPrefix = v
	}

	reg, err := registrar.New(fixed, moved, spacing, opts)
	if err != nil {
		return err
	}
	if err := reg.Autoregister(); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	registeredPath, err := config.Grab[string](cfg, "registered")
	if err != nil {
		return err
	}
	if err := debugio.WriteImage(reg.Registered(), registeredPath); err != nil {
		return fmt.Errorf("writing registered image: %w", err)
	}

	mapPath, err := config.Grab[string](cfg, "map")
	if err != nil {
		return err
	}
	if err := debugio.WriteMap(reg.Map(), mapPath); err != nil {
		return fmt.Errorf("writing displacement map: %w", err)
	}

	log.Printf("elasticreg: registration complete, wrote %s and %s", registeredPath, mapPath)
	return nil
}

// broadcastSpacing expands a 1- or 3-element spacing slice into the
// per-axis [3]float64 the registrar expects; a single value is shared
// across every axis, matching the original's scalar-or-vector
// nodespacing convention.
func broadcastSpacing(values []float64) ([3]float64, error) {
	var out [3]float64
	switch len(values) {
	case 1:
		out = [3]float64{values[0], values[0], values[0]}
	case 3:
		out = [3]float64{values[0], values[1], values[2]}
	default:
		return out, fmt.Errorf("nodespacing must have 1 or 3 values, got %d", len(values))
	}
	return out, nil
}
