package collision

import (
	"context"
	"fmt"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/tensor"
)

// Result is the output of one Forward call.
type Result struct {
	// Locs are the input coordinates in cell order, B×N×D.
	Locs *tensor.Float32
	// Data are the input features in the same order, B×N×C; nil without data.
	Data *tensor.Float32
	// Idxs maps each sorted row to its input row, B×N×1.
	Idxs *tensor.Int32
	// Neighbors holds, per query point, indices into the sorted rows, B×M×K.
	Neighbors *tensor.Int32
	// Grids are the per-element grids the particles were sorted on.
	Grids []hashgrid.Grid
	// Diagnostics lists CapacityErrors for grids whose extent was clamped.
	Diagnostics []error
}

// Forward runs the whole pipeline: grid bounds, cell ordering, reordering of
// locs and data, and the neighbor search of qlocs against the reordered
// particles. data may be nil. A nil qlocs queries the reordered particles
// themselves; a non-nil qlocs is used as given (B×M×D, not reordered).
func (e *Engine) Forward(ctx context.Context, locs, data, qlocs *tensor.Float32) (res *Result, err error) {
	_, c := e.begin(ctx, OpForward)
	defer func() { c.done(err) }()

	defer e.acquire()()

	if err = e.checkCoords(OpForward, "locs", locs, -1); err != nil {
		return nil, err
	}
	placements := []tensor.Placement{locs.Placement}
	if data != nil {
		if err = data.Validate(OpForward, "data"); err != nil {
			return nil, err
		}
		if err = tensor.Check(OpForward, "data", data.Shape, tensor.Expect{Batch: locs.Batch, Rows: locs.Rows, Width: -1}); err != nil {
			return nil, err
		}
		placements = append(placements, data.Placement)
	}
	if qlocs != nil {
		if err = e.checkCoords(OpForward, "qlocs", qlocs, locs.Batch); err != nil {
			return nil, err
		}
		placements = append(placements, qlocs.Placement)
	}
	be, err := e.backendFor(OpForward, placements...)
	if err != nil {
		return nil, err
	}
	c.use(be, locs.Batch, locs.Rows, locs.Width)

	launch := e.launcher(OpForward, be)
	res = &Result{}
	res.Grids, res.Diagnostics, err = e.computeGrids(OpForward, launch, locs)
	if err != nil {
		return nil, err
	}

	e.scratch.EnsureCapacity(locs.Batch, locs.Rows)
	keys, perm, err := e.sortByCell(launch, be, locs, res.Grids)
	if err != nil {
		return nil, err
	}
	res.Idxs = tensor.NewInt32(locs.Batch, locs.Rows, 1)
	res.Idxs.Placement = locs.Placement
	copy(res.Idxs.Data, perm)

	res.Locs = tensor.NewFloat32(locs.Batch, locs.Rows, locs.Width)
	res.Locs.Placement = locs.Placement
	if err = reorderInto(launch, res.Idxs.Data, hashgrid.Forward, res.Locs, locs); err != nil {
		return nil, err
	}
	if data != nil {
		res.Data = tensor.NewFloat32(data.Batch, data.Rows, data.Width)
		res.Data.Placement = data.Placement
		if err = reorderInto(launch, res.Idxs.Data, hashgrid.Forward, res.Data, data); err != nil {
			return nil, err
		}
	}

	queries, self := qlocs, qlocs == nil
	if self {
		queries = res.Locs
	}
	res.Neighbors, err = e.searchAll(launch, res.Locs, queries, res.Grids, keys, self)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// InvertOrder returns the old-to-new inverse of a new-to-old permutation
// such as Result.Idxs. Gathering with the inverse equals a Backward reorder
// with the original.
func InvertOrder(perm *tensor.Int32) (*tensor.Int32, error) {
	const op = "invert_order"
	if err := perm.Validate(op, "perm"); err != nil {
		return nil, err
	}
	if err := tensor.Check(op, "perm", perm.Shape, tensor.Expect{Batch: -1, Rows: -1, Width: 1}); err != nil {
		return nil, err
	}
	inv := tensor.NewInt32(perm.Batch, perm.Rows, 1)
	inv.Placement = perm.Placement
	seen := make([]bool, perm.Rows)
	for b := 0; b < perm.Batch; b++ {
		if !hashgrid.ValidPermutation(perm.Element(b), seen) {
			return nil, gerrors.NewShapeError(op, fmt.Sprintf("perm of batch element %d is not a permutation of [0, %d)", b, perm.Rows)).
				WithContext("argument", "perm").
				WithContext("batch", b)
		}
		hashgrid.InvertPermutation(perm.Element(b), inv.Element(b))
	}
	return inv, nil
}
