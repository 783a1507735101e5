package hashgrid

import (
	"math/bits"
)

const (
	radixBits = 8
	radixSize = 1 << radixBits
	radixMask = radixSize - 1
)

// Launch runs kernel over lanes [0, lanes). The kernel receives contiguous
// sub-ranges and may be invoked concurrently for disjoint ranges. Launch
// returns only after every range has completed.
type Launch func(lanes int, kernel func(lo, hi int)) error

// SortPlan orders the particles of every batch element by local cell id.
//
// The sort is a stable LSD radix sort over 8-bit digits. Each element is cut
// into Chunks contiguous chunks; a pass is a per-chunk histogram, a prefix sum
// over (digit, chunk) per element and a per-chunk scatter. Histogram and
// scatter are independent per (element, chunk) lane, so they run as lane
// launches. Ties keep their original relative order, which makes the output
// deterministic regardless of how lanes are scheduled.
type SortPlan struct {
	Batch  int
	N      int
	Chunks int
	Passes int

	// Keys holds batch×n local cell ids and receives them in sorted order.
	Keys []int32
	// Perm receives, per element, the original index of each sorted position.
	Perm []int32

	tmpKeys []int32
	tmpPerm []int32
	counts  [][radixSize]int32
}

// NewSortPlan prepares a sort of batch×n keys whose values are below maxKey.
// tmpKeys and tmpPerm are scratch of the same length as keys; counts is
// reused when it has room for batch×chunks histograms.
func NewSortPlan(batch, n, maxKey, chunks int, keys, perm, tmpKeys, tmpPerm []int32, counts [][radixSize]int32) *SortPlan {
	if chunks < 1 {
		chunks = 1
	}
	if n > 0 && chunks > n {
		chunks = n
	}
	lanes := batch * chunks
	if cap(counts) < lanes {
		counts = make([][radixSize]int32, lanes)
	}
	return &SortPlan{
		Batch:   batch,
		N:       n,
		Chunks:  chunks,
		Passes:  RadixPasses(maxKey),
		Keys:    keys,
		Perm:    perm,
		tmpKeys: tmpKeys,
		tmpPerm: tmpPerm,
		counts:  counts[:lanes],
	}
}

// RadixPasses returns the number of 8-bit digit passes needed for keys below maxKey.
func RadixPasses(maxKey int) int {
	if maxKey <= 1 {
		return 0
	}
	return (bits.Len32(uint32(maxKey-1)) + radixBits - 1) / radixBits
}

// Counts exposes the histogram storage so callers can keep it across plans.
func (p *SortPlan) Counts() [][radixSize]int32 { return p.counts }

func (p *SortPlan) chunkRange(c int) (lo, hi int) {
	size := (p.N + p.Chunks - 1) / p.Chunks
	lo = c * size
	hi = lo + size
	if lo > p.N {
		lo = p.N
	}
	if hi > p.N {
		hi = p.N
	}
	return lo, hi
}

// Run executes the plan. On return Keys is sorted within each element and
// Perm holds the new-to-old permutation.
func (p *SortPlan) Run(launch Launch) error {
	lanes := p.Batch * p.Chunks

	if err := launch(lanes, func(lo, hi int) {
		for lane := lo; lane < hi; lane++ {
			b, c := lane/p.Chunks, lane%p.Chunks
			base := b * p.N
			from, to := p.chunkRange(c)
			for i := from; i < to; i++ {
				p.Perm[base+i] = int32(i)
			}
		}
	}); err != nil {
		return err
	}

	srcK, srcP, dstK, dstP := p.Keys, p.Perm, p.tmpKeys, p.tmpPerm
	for pass := 0; pass < p.Passes; pass++ {
		shift := uint(pass * radixBits)

		if err := launch(lanes, func(lo, hi int) {
			for lane := lo; lane < hi; lane++ {
				p.histogram(lane, srcK, shift)
			}
		}); err != nil {
			return err
		}

		if err := launch(p.Batch, func(lo, hi int) {
			for b := lo; b < hi; b++ {
				p.prefix(b)
			}
		}); err != nil {
			return err
		}

		if err := launch(lanes, func(lo, hi int) {
			for lane := lo; lane < hi; lane++ {
				p.scatter(lane, srcK, srcP, dstK, dstP, shift)
			}
		}); err != nil {
			return err
		}

		srcK, srcP, dstK, dstP = dstK, dstP, srcK, srcP
	}

	if p.Passes%2 == 1 {
		return launch(lanes, func(lo, hi int) {
			for lane := lo; lane < hi; lane++ {
				b, c := lane/p.Chunks, lane%p.Chunks
				from, to := p.chunkRange(c)
				from, to = b*p.N+from, b*p.N+to
				copy(p.Keys[from:to], srcK[from:to])
				copy(p.Perm[from:to], srcP[from:to])
			}
		})
	}
	return nil
}

func (p *SortPlan) histogram(lane int, keys []int32, shift uint) {
	b, c := lane/p.Chunks, lane%p.Chunks
	counts := &p.counts[lane]
	*counts = [radixSize]int32{}
	from, to := p.chunkRange(c)
	for _, k := range keys[b*p.N+from : b*p.N+to] {
		counts[(uint32(k)>>shift)&radixMask]++
	}
}

// prefix turns the element's per-chunk counts into scatter offsets. Digits
// are ordered first, then chunks, which keeps equal digits in input order.
func (p *SortPlan) prefix(b int) {
	var total int32
	lanes := p.counts[b*p.Chunks : (b+1)*p.Chunks]
	for d := 0; d < radixSize; d++ {
		for c := range lanes {
			n := lanes[c][d]
			lanes[c][d] = total
			total += n
		}
	}
}

func (p *SortPlan) scatter(lane int, srcK, srcP, dstK, dstP []int32, shift uint) {
	b, c := lane/p.Chunks, lane%p.Chunks
	base := b * p.N
	offsets := &p.counts[lane]
	from, to := p.chunkRange(c)
	for i := base + from; i < base+to; i++ {
		k := srcK[i]
		d := (uint32(k) >> shift) & radixMask
		pos := base + int(offsets[d])
		offsets[d]++
		dstK[pos] = k
		dstP[pos] = srcP[i]
	}
}

// SerialLaunch runs the whole lane range on the calling goroutine.
func SerialLaunch(lanes int, kernel func(lo, hi int)) error {
	if lanes > 0 {
		kernel(0, lanes)
	}
	return nil
}
