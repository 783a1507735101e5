package hashgrid

import "math"

// CellCoord writes the integer cell coordinate of point p into out:
// floor((p-lower)/edge) per axis, clamped into [0, extent-1]. Points outside
// the grid land in the nearest boundary cell; NaN components map to 0.
func (g Grid) CellCoord(p []float32, out []int32) {
	for a, e := range g.Extent {
		out[a] = axisCell(p[a], g.Lower[a], g.CellEdge, e)
	}
}

func axisCell(x, lower, edge float32, extent int32) int32 {
	f := math.Floor(float64((x - lower) / edge))
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f >= float64(extent):
		return extent - 1
	default:
		return int32(f)
	}
}

// Flatten composes a cell coordinate into a local cell id in row-major order,
// last axis fastest. The result is in [0, NumCells()).
func (g Grid) Flatten(coord []int32) int32 {
	var id int32
	for a, e := range g.Extent {
		id = id*e + coord[a]
	}
	return id
}

// CellID hashes point p to its local cell id. coord is scratch of length Dim().
func (g Grid) CellID(p []float32, coord []int32) int32 {
	g.CellCoord(p, coord)
	return g.Flatten(coord)
}

// AssignCells writes the local cell id of rows [lo, hi) of the n×dim
// coordinates locs into ids. Each row is independent.
func AssignCells(g Grid, locs []float32, ids []int32, lo, hi int) {
	dim := g.Dim()
	var buf [MaxCartesianDim]int32
	coord := buf[:dim]
	for i := lo; i < hi; i++ {
		ids[i] = g.CellID(locs[i*dim:(i+1)*dim], coord)
	}
}

// BiasedCellID lifts a local cell id of batch element b into the batch-wide id
// space. cellsPerElement is the fixed per-element id range (maxGridDim^D), so
// ids of different batch elements never interleave when sorted.
func BiasedCellID(b int, local int32, cellsPerElement int) int64 {
	return int64(b)*int64(cellsPerElement) + int64(local)
}
