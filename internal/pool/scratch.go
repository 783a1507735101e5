package pool

import (
	"sync"

	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/RoaringBitmap/roaring/v2"
)

// Scratch owns the transient buffers of the hash grid pipeline: cell ids,
// sort scratch, the per-element cell range slabs and their occupancy bitmaps.
//
// Buffers grow to the largest (batch, n) requested and never shrink. Nothing
// in Scratch carries meaning from one call to the next; the occupancy bitmaps
// only let a slab be cleared in O(occupied cells) instead of O(slab).
//
// The buffer methods do no locking. Holders of a shared Scratch, such as
// several engines, serialise their calls with Lock and Unlock.
type Scratch struct {
	mu              sync.Mutex
	cellsPerElement int

	keys    []int32
	perm    []int32
	tmpKeys []int32
	tmpPerm []int32
	counts  [][256]int32
	seen    []bool

	starts   []int32
	ends     []int32
	occupied []*roaring.Bitmap

	bytes int64
}

// NewScratch creates an empty pool whose cell range slabs hold
// cellsPerElement entries per batch element.
func NewScratch(cellsPerElement int) *Scratch {
	return &Scratch{cellsPerElement: cellsPerElement}
}

// Lock acquires exclusive use of the pool's buffers.
func (s *Scratch) Lock() { s.mu.Lock() }

// Unlock releases the pool acquired by Lock.
func (s *Scratch) Unlock() { s.mu.Unlock() }

// CellsPerElement returns the slab width.
func (s *Scratch) CellsPerElement() int { return s.cellsPerElement }

// Bytes returns the bytes currently held.
func (s *Scratch) Bytes() int64 { return s.bytes }

// EnsureCapacity grows the pool so that batch elements of n particles fit.
func (s *Scratch) EnsureCapacity(batch, n int) {
	total := batch * n
	s.keys = s.growInt32(s.keys, total, "keys")
	s.perm = s.growInt32(s.perm, total, "perm")
	s.tmpKeys = s.growInt32(s.tmpKeys, total, "sort")
	s.tmpPerm = s.growInt32(s.tmpPerm, total, "sort")
	if cap(s.seen) < n {
		s.grew("seen", int64(n-cap(s.seen)))
		s.seen = make([]bool, n)
	}

	slab := batch * s.cellsPerElement
	if cap(s.starts) < slab {
		// Fresh slabs are zero, so stale occupancy must be forgotten.
		s.starts = s.growInt32(s.starts, slab, "cell_starts")
		s.ends = s.growInt32(s.ends, slab, "cell_ends")
		for _, bm := range s.occupied {
			bm.Clear()
		}
	}
	for len(s.occupied) < batch {
		s.occupied = append(s.occupied, occupancyBitmaps.Get())
	}
}

// Release drops every buffer and recycles the occupancy bitmaps. The pool
// stays usable and regrows on the next EnsureCapacity.
func (s *Scratch) Release() {
	for _, bm := range s.occupied {
		occupancyBitmaps.Put(bm)
	}
	metrics.ScratchBytes.Sub(float64(s.bytes))
	s.keys, s.perm, s.tmpKeys, s.tmpPerm = nil, nil, nil, nil
	s.counts, s.seen = nil, nil
	s.starts, s.ends, s.occupied = nil, nil, nil
	s.bytes = 0
}

// SortBuffers returns keys, perm and their scratch twins sized batch×n.
func (s *Scratch) SortBuffers(batch, n int) (keys, perm, tmpKeys, tmpPerm []int32) {
	total := batch * n
	return s.keys[:total], s.perm[:total], s.tmpKeys[:total], s.tmpPerm[:total]
}

// Counts returns retained radix histogram storage.
func (s *Scratch) Counts() [][256]int32 { return s.counts }

// KeepCounts retains histogram storage allocated by a sort plan.
func (s *Scratch) KeepCounts(counts [][256]int32) {
	if cap(counts) > cap(s.counts) {
		s.grew("counts", int64(cap(counts)-cap(s.counts))*256*4)
		s.counts = counts[:cap(counts)]
	}
}

// Seen returns a cleared bool slice of length n for permutation checks.
func (s *Scratch) Seen(n int) []bool { return s.seen[:n] }

// Ranges returns the cell range slab of batch element b.
func (s *Scratch) Ranges(b int) hashgrid.CellRanges {
	lo, hi := b*s.cellsPerElement, (b+1)*s.cellsPerElement
	return hashgrid.CellRanges{Starts: s.starts[lo:hi], Ends: s.ends[lo:hi]}
}

// Occupied returns the occupancy bitmap of batch element b.
func (s *Scratch) Occupied(b int) *roaring.Bitmap { return s.occupied[b] }

// ResetRanges clears the cells batch element b wrote on its previous build.
func (s *Scratch) ResetRanges(b int) {
	hashgrid.ResetCellRanges(s.Ranges(b), s.occupied[b])
}

func (s *Scratch) growInt32(buf []int32, n int, name string) []int32 {
	if cap(buf) >= n {
		return buf[:cap(buf)]
	}
	s.grew(name, int64(n-cap(buf))*4)
	return make([]int32, n)
}

func (s *Scratch) grew(name string, delta int64) {
	s.bytes += delta
	metrics.ScratchGrowsTotal.WithLabelValues(name).Inc()
	metrics.ScratchBytes.Add(float64(delta))
}
