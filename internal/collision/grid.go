package collision

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/23skdu/particlegrid/internal/tensor"
)

// ComputeGrid derives the grid of every batch element of locs (B×N×Dim).
// Axes whose extent had to be capped at MaxGridDim are reported in
// diagnostics as CapacityErrors; they are not failures.
func (e *Engine) ComputeGrid(ctx context.Context, locs *tensor.Float32) (grids []hashgrid.Grid, diagnostics []error, err error) {
	_, c := e.begin(ctx, OpComputeGrid)
	defer func() { c.done(err) }()

	defer e.acquire()()

	if err = e.checkCoords(OpComputeGrid, "locs", locs, -1); err != nil {
		return nil, nil, err
	}
	be, err := e.backendFor(OpComputeGrid, locs.Placement)
	if err != nil {
		return nil, nil, err
	}
	c.use(be, locs.Batch, locs.Rows, locs.Width)
	return e.computeGrids(OpComputeGrid, e.launcher(OpComputeGrid, be), locs)
}

func (e *Engine) computeGrids(op string, launch hashgrid.Launch, locs *tensor.Float32) ([]hashgrid.Grid, []error, error) {
	dim := e.cfg.Dim
	grids := make([]hashgrid.Grid, locs.Batch)
	masks := make([]uint32, locs.Batch)
	for b := range grids {
		grids[b] = hashgrid.Grid{Lower: make([]float32, dim), Extent: make([]int32, dim)}
	}

	err := launch(locs.Batch, func(lo, hi int) {
		for b := lo; b < hi; b++ {
			masks[b] = hashgrid.ComputeGridInto(&grids[b], locs.Element(b), dim, e.cfg.Radius, e.cfg.MaxGridDim)
		}
	})
	if err != nil {
		return nil, nil, err
	}

	var diagnostics []error
	for b, mask := range masks {
		if mask == 0 {
			continue
		}
		axes := bits.OnesCount32(mask)
		metrics.GridClampsTotal.Add(float64(axes))
		e.logger.Debug().
			Int("batch", b).
			Uint32("clamped_axes", mask).
			Int("max_grid_dim", e.cfg.MaxGridDim).
			Floats32("lower", grids[b].Lower).
			Floats32("upper", grids[b].Upper()).
			Msg("Grid extent clamped")
		diagnostics = append(diagnostics, gerrors.NewCapacityError(op,
			fmt.Sprintf("batch element %d: extent clamped to %d cells on %d axes", b, e.cfg.MaxGridDim, axes)).
			WithContext("batch", b).
			WithContext("axes", mask))
	}
	return grids, diagnostics, nil
}

// GridTensors packs grids into the (lower bound, extent) pair, each B×1×D.
func GridTensors(grids []hashgrid.Grid) (*tensor.Float32, *tensor.Int32) {
	dim := 0
	if len(grids) > 0 {
		dim = grids[0].Dim()
	}
	lower := tensor.NewFloat32(len(grids), 1, dim)
	extent := tensor.NewInt32(len(grids), 1, dim)
	for b, g := range grids {
		copy(lower.Element(b), g.Lower)
		copy(extent.Element(b), g.Extent)
	}
	return lower, extent
}

// GridsFromTensors unpacks a (lower bound, extent) pair produced by
// GridTensors. The result shares storage with the tensors.
func GridsFromTensors(lower *tensor.Float32, extent *tensor.Int32, cellEdge float32) ([]hashgrid.Grid, error) {
	const op = "grids_from_tensors"
	if err := lower.Validate(op, "lower"); err != nil {
		return nil, err
	}
	if err := extent.Validate(op, "extent"); err != nil {
		return nil, err
	}
	if err := tensor.Check(op, "extent", extent.Shape, tensor.Expect{Batch: lower.Batch, Rows: 1, Width: lower.Width}); err != nil {
		return nil, err
	}
	if err := tensor.Check(op, "lower", lower.Shape, tensor.Expect{Batch: -1, Rows: 1, Width: -1}); err != nil {
		return nil, err
	}
	grids := make([]hashgrid.Grid, lower.Batch)
	for b := range grids {
		grids[b] = hashgrid.Grid{Lower: lower.Element(b), Extent: extent.Element(b), CellEdge: cellEdge}
	}
	return grids, nil
}

// checkGrids rejects grids that this engine could not have produced for a
// batch of the given size.
func (e *Engine) checkGrids(op string, grids []hashgrid.Grid, batch int) error {
	bad := func(b int, msg string) error {
		return gerrors.NewShapeError(op, fmt.Sprintf("grid %d: %s", b, msg)).
			WithContext("argument", "grids").
			WithContext("batch", b)
	}
	if len(grids) != batch {
		return gerrors.NewShapeError(op, fmt.Sprintf("%d grids for batch of %d", len(grids), batch)).
			WithContext("argument", "grids").
			WithContext("axis", "batch")
	}
	for b, g := range grids {
		if g.Dim() != e.cfg.Dim || len(g.Lower) != e.cfg.Dim {
			return bad(b, fmt.Sprintf("dimensionality %d, expected %d", g.Dim(), e.cfg.Dim))
		}
		if g.CellEdge != e.cfg.Radius {
			return bad(b, fmt.Sprintf("cell edge %g differs from radius %g", g.CellEdge, e.cfg.Radius))
		}
		for a, ext := range g.Extent {
			if ext < 1 || int(ext) > e.cfg.MaxGridDim {
				return bad(b, fmt.Sprintf("axis %d extent %d outside [1, %d]", a, ext, e.cfg.MaxGridDim))
			}
			if l := float64(g.Lower[a]); math.IsNaN(l) || math.IsInf(l, 0) {
				return bad(b, fmt.Sprintf("axis %d lower bound is not finite", a))
			}
		}
	}
	return nil
}

// checkCoords validates a B×rows×Dim coordinate buffer. batch < 0 accepts any
// batch size.
func (e *Engine) checkCoords(op, name string, t *tensor.Float32, batch int) error {
	if err := t.Validate(op, name); err != nil {
		return err
	}
	return tensor.Check(op, name, t.Shape, tensor.Expect{Batch: batch, Rows: -1, Width: e.cfg.Dim})
}
