package hashgrid

import (
	"math/rand"
	"sync"
)

// element is one batch element pushed through the full single-element pipeline.
type element struct {
	grid     Grid
	perm     []int32
	sorted   []float32
	sortedID []int32
	ranges   CellRanges
}

func buildElement(locs []float32, dim int, radius float32, maxGridDim int) element {
	n := len(locs) / dim
	g, _ := ComputeGrid(locs, dim, radius, maxGridDim)

	keys := make([]int32, n)
	AssignCells(g, locs, keys, 0, n)

	perm := make([]int32, n)
	plan := NewSortPlan(1, n, g.NumCells(), 1, keys, perm, make([]int32, n), make([]int32, n), nil)
	if err := plan.Run(SerialLaunch); err != nil {
		panic(err)
	}

	sorted := make([]float32, len(locs))
	ReorderRows(sorted, locs, dim, perm, Forward, 0, n)

	ranges := CellRanges{Starts: make([]int32, g.NumCells()), Ends: make([]int32, g.NumCells())}
	BuildCellRanges(keys, ranges, nil)

	return element{grid: g, perm: perm, sorted: sorted, sortedID: keys, ranges: ranges}
}

func randomLocs(rng *rand.Rand, n, dim int, scale float32) []float32 {
	locs := make([]float32, n*dim)
	for i := range locs {
		locs[i] = (rng.Float32()*2 - 1) * scale
	}
	return locs
}

// bruteForce returns the indices of rows in locs within radius of q.
func bruteForce(locs []float32, dim int, q []float32, radius float32) map[int32]bool {
	out := make(map[int32]bool)
	for i := 0; i < len(locs)/dim; i++ {
		if dist2(q, locs[i*dim:(i+1)*dim]) <= radius*radius {
			out[int32(i)] = true
		}
	}
	return out
}

// goroutineLaunch splits lanes into fixed-size ranges, one goroutine each.
func goroutineLaunch(rangeSize int) Launch {
	return func(lanes int, kernel func(lo, hi int)) error {
		var wg sync.WaitGroup
		for lo := 0; lo < lanes; lo += rangeSize {
			hi := min(lo+rangeSize, lanes)
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				kernel(lo, hi)
			}(lo, hi)
		}
		wg.Wait()
		return nil
	}
}
