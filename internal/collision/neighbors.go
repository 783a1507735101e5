package collision

import (
	"context"
	"fmt"
	"sync/atomic"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/23skdu/particlegrid/internal/tensor"
)

// FindNeighbors returns, for every query point, the indices of the particles
// of sortedLocs within Radius of it, as a B×M×MaxNeighbors buffer padded with
// -1. sortedLocs must already be in the cell order of grids, as produced by
// HashgridOrder and a Forward Reorder. A nil qlocs queries sortedLocs itself,
// in which case IncludeSelf decides whether a particle lists itself.
//
// Lists that fill up stop at the first MaxNeighbors particles found in cell
// traversal order.
func (e *Engine) FindNeighbors(ctx context.Context, qlocs, sortedLocs *tensor.Float32, grids []hashgrid.Grid) (nbrs *tensor.Int32, err error) {
	_, c := e.begin(ctx, OpFindNeighbors)
	defer func() { c.done(err) }()

	defer e.acquire()()

	if err = e.checkCoords(OpFindNeighbors, "sorted_locs", sortedLocs, -1); err != nil {
		return nil, err
	}
	self := qlocs == nil || qlocs == sortedLocs
	if self {
		qlocs = sortedLocs
	} else if err = e.checkCoords(OpFindNeighbors, "qlocs", qlocs, sortedLocs.Batch); err != nil {
		return nil, err
	}
	if err = e.checkGrids(OpFindNeighbors, grids, sortedLocs.Batch); err != nil {
		return nil, err
	}
	be, err := e.backendFor(OpFindNeighbors, sortedLocs.Placement, qlocs.Placement)
	if err != nil {
		return nil, err
	}
	c.use(be, qlocs.Batch, qlocs.Rows, qlocs.Width)

	launch := e.launcher(OpFindNeighbors, be)
	batch, n := sortedLocs.Batch, sortedLocs.Rows
	e.scratch.EnsureCapacity(batch, n)
	keys, _, _, _ := e.scratch.SortBuffers(batch, n)
	if err = e.assignCells(launch, sortedLocs, grids, keys); err != nil {
		return nil, err
	}
	for b := 0; b < batch; b++ {
		if i := unsortedAt(keys[b*n : (b+1)*n]); i >= 0 {
			return nil, gerrors.NewShapeError(OpFindNeighbors,
				fmt.Sprintf("sorted_locs of batch element %d leave cell order at row %d", b, i)).
				WithContext("argument", "sorted_locs").
				WithContext("batch", b)
		}
	}
	return e.searchAll(launch, sortedLocs, qlocs, grids, keys, self)
}

func unsortedAt(ids []int32) int {
	for i := 1; i < len(ids); i++ {
		if ids[i] < ids[i-1] {
			return i
		}
	}
	return -1
}

// searchAll builds the cell range index of every batch element from the
// sorted local ids and runs one query lane per query point.
func (e *Engine) searchAll(launch hashgrid.Launch, sorted, queries *tensor.Float32, grids []hashgrid.Grid, keys []int32, self bool) (*tensor.Int32, error) {
	batch, n, m := sorted.Batch, sorted.Rows, queries.Rows
	k := e.cfg.MaxNeighbors

	err := launch(batch, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			e.scratch.ResetRanges(b)
			hashgrid.BuildCellRanges(keys[b*n:(b+1)*n], e.scratch.Ranges(b), e.scratch.Occupied(b))
		}
	})
	if err != nil {
		return nil, err
	}

	searchers := make([]hashgrid.Searcher, batch)
	for b := range searchers {
		metrics.OccupiedCells.Observe(float64(e.scratch.Occupied(b).GetCardinality()))
		searchers[b] = hashgrid.Searcher{
			Grid:   grids[b],
			Locs:   sorted.Element(b),
			Ranges: e.scratch.Ranges(b),
			Radius: e.cfg.Radius,
		}
	}

	skipSelf := self && !e.cfg.IncludeSelf
	nbrs := tensor.NewInt32(batch, m, k)
	nbrs.Placement = sorted.Placement
	var saturated atomic.Int64
	err = launch(batch*m, func(lo, hi int) {
		var full int64
		forEachElement(lo, hi, m, func(b, from, to int) {
			s := &searchers[b]
			for i := from; i < to; i++ {
				skip := hashgrid.Sentinel
				if skipSelf {
					skip = int32(i)
				}
				if _, capped := s.Query(queries.Row(b, i), skip, nbrs.Row(b, i)); capped {
					full++
				}
			}
		})
		saturated.Add(full)
	})
	if err != nil {
		return nil, err
	}
	if sat := saturated.Load(); sat > 0 {
		metrics.NeighborListsSaturatedTotal.Add(float64(sat))
		e.logger.Debug().Int64("lists", sat).Int("max_neighbors", k).Msg("Neighbor lists reached the cap")
	}
	return nbrs, nil
}
