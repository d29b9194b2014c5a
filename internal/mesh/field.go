package mesh

// GlobalField is the "each sample stored on exactly one rank" buffer: a
// flat row-major array over the whole grid. Distinct
// ranks write disjoint index ranges (their owned Box), so concurrent
// writes from per-rank goroutines never race as long as each goroutine
// only touches its own box.
type GlobalField struct {
	m    *GridMesh
	Data []float64
}

// NewGlobalField allocates a zeroed global buffer sized to m.
func NewGlobalField(m *GridMesh) *GlobalField {
	return &GlobalField{m: m, Data: make([]float64, m.shape.Total())}
}

// Mesh returns the field's owning mesh.
func (f *GlobalField) Mesh() *GridMesh { return f.m }

// At returns the sample at global coordinates (i, j, k).
func (f *GlobalField) At(i, j, k int) float64 { return f.Data[idx(f.m.shape, i, j, k)] }

// Set stores v at global coordinates (i, j, k).
func (f *GlobalField) Set(i, j, k int, v float64) { f.Data[idx(f.m.shape, i, j, k)] = v }

// Clone returns an independent copy of f.
func (f *GlobalField) Clone() *GlobalField {
	out := NewGlobalField(f.m)
	copy(out.Data, f.Data)
	return out
}

// Fill sets every sample to v.
func (f *GlobalField) Fill(v float64) {
	for i := range f.Data {
		f.Data[i] = v
	}
}

// localLayout describes one rank's ghosted local buffer: its owned Box,
// the ghost width on the low/high side of each axis (0 for an axis with a
// single plane, since there is nothing to derive a ghost cell from, 1
// otherwise), the full buffer dims including ghost, and the offset of this
// rank's slice within LocalField.Data.
type localLayout struct {
	box              Box
	ghostLo, ghostHi [3]int
	dims             [3]int
	offset           int
}

// LocalField is the "owned + halo" per-rank scratch buffer. Unlike
// GlobalField it is logically partitioned: each rank has its own ghosted
// sub-array, concatenated into one backing slice for a single allocation
// per generation, mirroring WorkSpace's "allocated once per generation"
// lifecycle.
type LocalField struct {
	m       *GridMesh
	layouts []localLayout
	Data    []float64
}

// NewLocalField allocates one ghosted buffer per rank of m.
func NewLocalField(m *GridMesh) *LocalField {
	layouts := make([]localLayout, len(m.boxes))
	total := 0
	for r, b := range m.boxes {
		var ghostLo, ghostHi, dims [3]int
		for d := 0; d < 3; d++ {
			size := b.Hi[d] - b.Lo[d]
			if m.shape[d] > 1 {
				ghostLo[d] = 1
				ghostHi[d] = 1
			}
			dims[d] = size + ghostLo[d] + ghostHi[d]
		}
		layouts[r] = localLayout{box: b, ghostLo: ghostLo, ghostHi: ghostHi, dims: dims, offset: total}
		total += dims[0] * dims[1] * dims[2]
	}
	return &LocalField{m: m, layouts: layouts, Data: make([]float64, total)}
}

func (f *LocalField) localIndex(rank, i, j, k int) int {
	l := f.layouts[rank]
	li := i - l.box.Lo[0] + l.ghostLo[0]
	lj := j - l.box.Lo[1] + l.ghostLo[1]
	lk := k - l.box.Lo[2] + l.ghostLo[2]
	return l.offset + li + lj*l.dims[0] + lk*l.dims[0]*l.dims[1]
}

// At returns the sample at coordinates (i, j, k) relative to the global
// grid, which may reach into rank's ghost region (one cell beyond its
// owned Box on axes with more than one plane).
func (f *LocalField) At(rank, i, j, k int) float64 { return f.Data[f.localIndex(rank, i, j, k)] }

// Set stores v at coordinates (i, j, k) relative to the global grid.
func (f *LocalField) Set(rank, i, j, k int, v float64) { f.Data[f.localIndex(rank, i, j, k)] = v }

// Layout exposes rank's owned Box and ghost widths, needed by FDGradient
// and other consumers that walk the local buffer directly.
func (f *LocalField) Layout(rank int) (box Box, ghostLo, ghostHi [3]int) {
	l := f.layouts[rank]
	return l.box, l.ghostLo, l.ghostHi
}
