package hashgrid

// Sentinel pads the unused tail of a neighbor list.
const Sentinel int32 = -1

// Searcher answers radius queries against one cell-sorted batch element.
// A Searcher only reads its fields; any number of goroutines may call Query
// on the same value.
type Searcher struct {
	Grid   Grid
	Locs   []float32 // n×dim coordinates in cell-sorted order
	Ranges CellRanges
	Radius float32
}

// Query writes into out the indices of the sorted particles within Radius of
// q and pads the rest of out with Sentinel. The query's own cell and its
// 3^D-1 neighbors are visited in lexicographic offset order from (-1,..,-1)
// to (+1,..,+1), last axis fastest, and particles within a cell in sorted
// order. Enumeration stops as soon as out is full; further neighbors are
// dropped. A particle index equal to skip is never reported.
//
// It returns the number of neighbors written and whether the list filled up.
func (s *Searcher) Query(q []float32, skip int32, out []int32) (n int, full bool) {
	k := len(out)
	dim := s.Grid.Dim()
	r2 := s.Radius * s.Radius

	var centerBuf, offBuf, cellBuf [MaxCartesianDim]int32
	center := centerBuf[:dim]
	off := offBuf[:dim]
	cell := cellBuf[:dim]
	s.Grid.CellCoord(q, center)
	for a := range off {
		off[a] = -1
	}

	if k == 0 {
		return 0, true
	}

scan:
	for {
		inside := true
		for a := 0; a < dim; a++ {
			c := center[a] + off[a]
			if c < 0 || c >= s.Grid.Extent[a] {
				inside = false
				break
			}
			cell[a] = c
		}

		if inside {
			start, end := s.Ranges.Range(s.Grid.Flatten(cell))
			for j := start; j < end; j++ {
				if j == skip {
					continue
				}
				if dist2(q, s.Locs[int(j)*dim:int(j+1)*dim]) <= r2 {
					out[n] = j
					n++
					if n == k {
						break scan
					}
				}
			}
		}

		// Advance the odometer, last axis fastest.
		a := dim - 1
		for ; a >= 0; a-- {
			if off[a] < 1 {
				off[a]++
				break
			}
			off[a] = -1
		}
		if a < 0 {
			break
		}
	}

	for i := n; i < k; i++ {
		out[i] = Sentinel
	}
	return n, n == k
}

func dist2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
