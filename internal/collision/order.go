package collision

import (
	"context"
	"fmt"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/tensor"
)

// HashgridOrder returns, per batch element, the permutation (B×N×1, new
// position to original position) that sorts the particles of locs into the
// cell order of grids. Particles sharing a cell keep their input order.
func (e *Engine) HashgridOrder(ctx context.Context, locs *tensor.Float32, grids []hashgrid.Grid) (perm *tensor.Int32, err error) {
	_, c := e.begin(ctx, OpHashgridOrder)
	defer func() { c.done(err) }()

	defer e.acquire()()

	if err = e.checkCoords(OpHashgridOrder, "locs", locs, -1); err != nil {
		return nil, err
	}
	if err = e.checkGrids(OpHashgridOrder, grids, locs.Batch); err != nil {
		return nil, err
	}
	be, err := e.backendFor(OpHashgridOrder, locs.Placement)
	if err != nil {
		return nil, err
	}
	c.use(be, locs.Batch, locs.Rows, locs.Width)

	e.scratch.EnsureCapacity(locs.Batch, locs.Rows)
	_, order, err := e.sortByCell(e.launcher(OpHashgridOrder, be), be, locs, grids)
	if err != nil {
		return nil, err
	}
	perm = tensor.NewInt32(locs.Batch, locs.Rows, 1)
	perm.Placement = locs.Placement
	copy(perm.Data, order)
	return perm, nil
}

// sortByCell hashes every particle and radix sorts each batch element by
// local cell id. It returns scratch views of the sorted ids and of the
// new-to-old permutation, valid until the next scratch use.
func (e *Engine) sortByCell(launch hashgrid.Launch, be Backend, locs *tensor.Float32, grids []hashgrid.Grid) (keys, perm []int32, err error) {
	batch, n := locs.Batch, locs.Rows
	keys, perm, tmpKeys, tmpPerm := e.scratch.SortBuffers(batch, n)

	if err := e.assignCells(launch, locs, grids, keys); err != nil {
		return nil, nil, err
	}

	maxKey := 1
	for _, g := range grids {
		maxKey = max(maxKey, g.NumCells())
	}
	plan := hashgrid.NewSortPlan(batch, n, maxKey, be.Parallelism(), keys, perm, tmpKeys, tmpPerm, e.scratch.Counts())
	if err := plan.Run(launch); err != nil {
		return nil, nil, err
	}
	e.scratch.KeepCounts(plan.Counts())
	return keys, perm, nil
}

func (e *Engine) assignCells(launch hashgrid.Launch, locs *tensor.Float32, grids []hashgrid.Grid, ids []int32) error {
	n := locs.Rows
	return launch(locs.Batch*n, func(lo, hi int) {
		forEachElement(lo, hi, n, func(b, from, to int) {
			hashgrid.AssignCells(grids[b], locs.Element(b), ids[b*n:(b+1)*n], from, to)
		})
	})
}

// Reorder applies perm (B×N×1) to every buffer. Forward gathers, so row i of
// a result is row perm[i] of the input; Backward scatters and undoes Forward
// exactly. Buffers share perm's batch and row counts and may have any width,
// including zero. A nil buffer yields a nil result.
func (e *Engine) Reorder(ctx context.Context, perm *tensor.Int32, dir hashgrid.Direction, buffers ...*tensor.Float32) (out []*tensor.Float32, err error) {
	_, c := e.begin(ctx, OpReorder)
	defer func() { c.done(err) }()

	defer e.acquire()()

	if err = perm.Validate(OpReorder, "perm"); err != nil {
		return nil, err
	}
	if err = tensor.Check(OpReorder, "perm", perm.Shape, tensor.Expect{Batch: -1, Rows: -1, Width: 1}); err != nil {
		return nil, err
	}
	if dir != hashgrid.Forward && dir != hashgrid.Backward {
		return nil, gerrors.NewConfigurationError(OpReorder, fmt.Sprintf("unknown direction %d", dir))
	}
	placements := []tensor.Placement{perm.Placement}
	for i, buf := range buffers {
		if buf == nil {
			continue
		}
		name := fmt.Sprintf("buffers[%d]", i)
		if err = buf.Validate(OpReorder, name); err != nil {
			return nil, err
		}
		if err = tensor.Check(OpReorder, name, buf.Shape, tensor.Expect{Batch: perm.Batch, Rows: perm.Rows, Width: -1}); err != nil {
			return nil, err
		}
		placements = append(placements, buf.Placement)
	}
	be, err := e.backendFor(OpReorder, placements...)
	if err != nil {
		return nil, err
	}
	c.use(be, perm.Batch, perm.Rows, 1)

	e.scratch.EnsureCapacity(perm.Batch, perm.Rows)
	seen := e.scratch.Seen(perm.Rows)
	for b := 0; b < perm.Batch; b++ {
		if !hashgrid.ValidPermutation(perm.Element(b), seen) {
			return nil, gerrors.NewShapeError(OpReorder, fmt.Sprintf("perm of batch element %d is not a permutation of [0, %d)", b, perm.Rows)).
				WithContext("argument", "perm").
				WithContext("batch", b)
		}
	}

	launch := e.launcher(OpReorder, be)
	out = make([]*tensor.Float32, len(buffers))
	for i, buf := range buffers {
		if buf == nil {
			continue
		}
		dst := tensor.NewFloat32(buf.Batch, buf.Rows, buf.Width)
		dst.Placement = buf.Placement
		if err = reorderInto(launch, perm.Data, dir, dst, buf); err != nil {
			return nil, err
		}
		out[i] = dst
	}
	return out, nil
}

// reorderInto moves the rows of src into dst along perm, one lane per row.
func reorderInto(launch hashgrid.Launch, perm []int32, dir hashgrid.Direction, dst, src *tensor.Float32) error {
	n := src.Rows
	return launch(src.Batch*n, func(lo, hi int) {
		forEachElement(lo, hi, n, func(b, from, to int) {
			hashgrid.ReorderRows(dst.Element(b), src.Element(b), src.Width, perm[b*n:(b+1)*n], dir, from, to)
		})
	})
}

// forEachElement splits the flat lane range [lo, hi) over batch elements of
// n lanes each and calls fn with element-local bounds.
func forEachElement(lo, hi, n int, fn func(b, from, to int)) {
	for lo < hi {
		b := lo / n
		end := min(hi, (b+1)*n)
		fn(b, lo-b*n, end-b*n)
		lo = end
	}
}
