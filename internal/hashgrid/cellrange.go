package hashgrid

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// CellRanges maps each local cell id of one batch element to the half-open
// run [Starts[id], Ends[id]) of the cell-sorted particle array. Cells without
// particles have Starts[id] == Ends[id] == 0.
type CellRanges struct {
	Starts []int32
	Ends   []int32
}

// Range returns the run of cell id. Ids outside the index are empty.
func (r CellRanges) Range(id int32) (start, end int32) {
	if id < 0 || int(id) >= len(r.Starts) {
		return 0, 0
	}
	return r.Starts[id], r.Ends[id]
}

// Len returns the number of particles in cell id.
func (r CellRanges) Len(id int32) int {
	s, e := r.Range(id)
	return int(e - s)
}

// BuildCellRanges records the run of every id in sortedIDs with one linear
// scan. Entries for ids that do not occur are left untouched, so r must be
// zeroed beforehand for those cells. When occupied is non-nil every id that
// has a run is added to it. It returns the number of runs.
func BuildCellRanges(sortedIDs []int32, r CellRanges, occupied *roaring.Bitmap) int {
	runs := 0
	n := len(sortedIDs)
	for i := 0; i < n; {
		id := sortedIDs[i]
		j := i + 1
		for j < n && sortedIDs[j] == id {
			j++
		}
		r.Starts[id] = int32(i)
		r.Ends[id] = int32(j)
		if occupied != nil {
			occupied.Add(uint32(id))
		}
		runs++
		i = j
	}
	return runs
}

// ResetCellRanges zeroes the entries listed in occupied and clears it.
func ResetCellRanges(r CellRanges, occupied *roaring.Bitmap) {
	it := occupied.Iterator()
	for it.HasNext() {
		id := it.Next()
		r.Starts[id] = 0
		r.Ends[id] = 0
	}
	occupied.Clear()
}
