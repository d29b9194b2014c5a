package mesh

import (
	"fmt"
	"sync"

	"elasticreg/internal/regerr"
)

// Exchange is a handle to an in-flight collective started by
// BeginGlobalToLocal. Multiple Exchanges on distinct buffer pairs may be
// in flight at once; each must be End()ed before its destination buffer is
// read.
type Exchange struct {
	wg  sync.WaitGroup
	mu  sync.Mutex
	err error
}

// End blocks until every rank's copy of this exchange has completed and
// returns the first error observed, if any.
func (e *Exchange) End() error {
	e.wg.Wait()
	return e.err
}

func (e *Exchange) fail(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
}

// BeginGlobalToLocal starts the "begin" phase of copying owned cells of
// src into both the owned and ghost regions of dst, one goroutine per
// rank. Ghost cells at the true domain edge are replicated from the owned
// edge (zero-flux/reflect); ghost cells at an internal rank boundary
// are the neighbouring rank's owned value, which falls out for free here
// because every rank's ghost fill reads directly from the single shared
// GlobalField rather than through simulated message passing.
func (m *GridMesh) BeginGlobalToLocal(src *GlobalField, dst *LocalField) *Exchange {
	ex := &Exchange{}
	ex.wg.Add(len(m.boxes))
	for r := range m.boxes {
		r := r
		go func() {
			defer ex.wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					ex.fail(fmt.Errorf("%w: rank %d: %v", regerr.ErrCollective, r, rec))
				}
			}()
			fillLocalRank(m, src, dst, r)
		}()
	}
	return ex
}

// GlobalToLocal runs BeginGlobalToLocal and waits for it to complete.
func (m *GridMesh) GlobalToLocal(src *GlobalField, dst *LocalField) error {
	return m.BeginGlobalToLocal(src, dst).End()
}

func fillLocalRank(m *GridMesh, src *GlobalField, dst *LocalField, rank int) {
	box, ghostLo, ghostHi := dst.Layout(rank)
	loI, hiI := box.Lo[0]-ghostLo[0], box.Hi[0]+ghostHi[0]
	loJ, hiJ := box.Lo[1]-ghostLo[1], box.Hi[1]+ghostHi[1]
	loK, hiK := box.Lo[2]-ghostLo[2], box.Hi[2]+ghostHi[2]

	shape := m.shape
	for k := loK; k < hiK; k++ {
		gk := clamp(k, 0, shape[2]-1)
		for j := loJ; j < hiJ; j++ {
			gj := clamp(j, 0, shape[1]-1)
			for i := loI; i < hiI; i++ {
				gi := clamp(i, 0, shape[0]-1)
				dst.Set(rank, i, j, k, src.At(gi, gj, gk))
			}
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RunOverRanks fans fn out over every rank in m concurrently and waits for
// all of them, converting any panic into ErrCollective. This is the
// shared-memory rank-parallel building block FDGradient and Image use for
// their per-owned-cell kernels, in the goroutine+WaitGroup shape the
// teacher uses for its quadrant/subset fan-out.
func (m *GridMesh) RunOverRanks(fn func(rank int)) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var first error
	wg.Add(len(m.boxes))
	for r := range m.boxes {
		r := r
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					mu.Lock()
					if first == nil {
						first = fmt.Errorf("%w: rank %d: %v", regerr.ErrCollective, r, rec)
					}
					mu.Unlock()
				}
			}()
			fn(r)
		}()
	}
	wg.Wait()
	return first
}
