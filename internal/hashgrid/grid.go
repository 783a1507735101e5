// Package hashgrid implements the uniform spatial hash grid used to find the
// particles within a fixed radius of each query point.
//
// A batch element's particles are hashed to cells whose side equals the
// search radius, sorted into cell order, and indexed by cell so that a radius
// query only inspects the 3^D cells around the query's own cell.
//
// Every function in this package works on one batch element or one lane and
// keeps no state between calls. Batching, backend dispatch and scratch
// ownership live in the collision package.
package hashgrid

import (
	"math"
)

// MaxCartesianDim bounds the coordinate dimensionality any grid supports.
const MaxCartesianDim = 8

// Grid is the partition of one batch element's coordinate space.
type Grid struct {
	// Lower is the grid's lower corner, one value per axis.
	Lower []float32
	// Extent is the number of cells along each axis, each in [1, maxGridDim].
	Extent []int32
	// CellEdge is the side length of every cell; it equals the search radius.
	CellEdge float32
}

// Dim returns the dimensionality of the grid.
func (g Grid) Dim() int { return len(g.Extent) }

// NumCells returns the product of the per-axis extents.
func (g Grid) NumCells() int {
	n := 1
	for _, e := range g.Extent {
		n *= int(e)
	}
	return n
}

// Upper returns the grid's upper corner.
func (g Grid) Upper() []float32 {
	up := make([]float32, len(g.Lower))
	for a := range g.Lower {
		up[a] = g.Lower[a] + float32(g.Extent[a])*g.CellEdge
	}
	return up
}

// ComputeGrid derives the grid of one batch element from its n×dim row-major
// coordinates. Bounds are taken over finite coordinates only. The per-axis
// extent is ceil(clamp(span/radius, 0, maxGridDim)), raised to 1 for
// degenerate axes, and the grid is centred on the bounding box.
//
// The returned mask has bit a set when axis a needed more than maxGridDim cells
// and was capped.
func ComputeGrid(locs []float32, dim int, radius float32, maxGridDim int) (Grid, uint32) {
	g := Grid{
		Lower:  make([]float32, dim),
		Extent: make([]int32, dim),
	}
	mask := ComputeGridInto(&g, locs, dim, radius, maxGridDim)
	return g, mask
}

// ComputeGridInto is ComputeGrid writing into caller-owned Lower and Extent
// slices of length dim.
func ComputeGridInto(g *Grid, locs []float32, dim int, radius float32, maxGridDim int) uint32 {
	var mask uint32
	g.CellEdge = radius
	for a := 0; a < dim; a++ {
		lo, hi, ok := axisBounds(locs, dim, a)
		if !ok {
			lo, hi = 0, 0
		}
		span := (hi - lo) / radius
		if span > float32(maxGridDim) {
			mask |= 1 << uint(a)
		}
		cells := float32(math.Ceil(float64(clampf(span, 0, float32(maxGridDim)))))
		if cells < 1 {
			cells = 1
		}
		// Halving first keeps the midpoint of large same-sign bounds finite.
		center := float64(lo)/2 + float64(hi)/2
		g.Extent[a] = int32(cells)
		g.Lower[a] = finite32(center - float64(cells)*float64(radius)/2)
	}
	return mask
}

func axisBounds(locs []float32, dim, axis int) (lo, hi float32, ok bool) {
	lo = float32(math.Inf(1))
	hi = float32(math.Inf(-1))
	for i := axis; i < len(locs); i += dim {
		v := locs[i]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		ok = true
	}
	return lo, hi, ok
}

// finite32 narrows v to float32, saturating at the largest finite magnitude.
func finite32(v float64) float32 {
	return float32(math.Max(-math.MaxFloat32, math.Min(v, math.MaxFloat32)))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
