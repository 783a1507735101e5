package collision

import (
	"fmt"
	"math"
	"runtime"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/hashgrid"
)

// CPU backend names accepted by Config.Backend.
const (
	BackendSerial   = "serial"
	BackendParallel = "parallel"
)

// Config holds the construction parameters of an Engine. It is checked once
// by NewEngine; operations never re-validate it.
type Config struct {
	// Dim is the coordinate dimensionality D.
	Dim int
	// Radius is the search radius and the side of every grid cell.
	Radius float32
	// MaxGridDim caps the number of cells along each axis.
	MaxGridDim int
	// MaxNeighbors is the neighbor list width K.
	MaxNeighbors int
	// MaxDim is the largest Dim this engine accepts.
	MaxDim int
	// Backend runs host-resident work: "serial" or "parallel".
	Backend string
	// Workers bounds the parallel backend. Zero means GOMAXPROCS.
	Workers int
	// DeviceID picks the accelerator used for device-resident buffers.
	DeviceID int
	// IncludeSelf keeps a query's own index in its neighbor list when the
	// query set is the source set.
	IncludeSelf bool
}

// DefaultConfig returns a configuration for 3-D coordinates and a unit radius
// with self hits kept in the neighbor lists.
func DefaultConfig() Config {
	return Config{
		Dim:          3,
		Radius:       1,
		MaxGridDim:   96,
		MaxNeighbors: 128,
		MaxDim:       3,
		Backend:      BackendSerial,
		IncludeSelf:  true,
	}
}

// Validate reports the first invalid field as a ConfigurationError.
func (c Config) Validate() error {
	invalid := func(field string, value any, why string) error {
		return gerrors.NewConfigurationError("validate_config", fmt.Sprintf("%s %v: %s", field, value, why)).
			WithContext("field", field)
	}

	switch {
	case c.MaxDim < 1 || c.MaxDim > hashgrid.MaxCartesianDim:
		return invalid("max_dim", c.MaxDim, fmt.Sprintf("must be in [1, %d]", hashgrid.MaxCartesianDim))
	case c.Dim < 1 || c.Dim > c.MaxDim:
		return invalid("dim", c.Dim, fmt.Sprintf("must be in [1, %d]", c.MaxDim))
	case !(c.Radius > 0) || math.IsInf(float64(c.Radius), 1):
		return invalid("radius", c.Radius, "must be positive and finite")
	case c.MaxGridDim < 1:
		return invalid("max_grid_dim", c.MaxGridDim, "must be positive")
	case c.MaxNeighbors < 1:
		return invalid("max_neighbors", c.MaxNeighbors, "must be positive")
	case c.Workers < 0:
		return invalid("workers", c.Workers, "must not be negative")
	case c.Backend != BackendSerial && c.Backend != BackendParallel:
		return invalid("backend", c.Backend, "must be serial or parallel")
	}
	if cellsPerElement(c.MaxGridDim, c.Dim) > math.MaxInt32 {
		return invalid("max_grid_dim", c.MaxGridDim,
			fmt.Sprintf("max_grid_dim^%d cells do not fit a 32-bit cell id", c.Dim))
	}
	return nil
}

// CellsPerElement is the size of one batch element's cell id range,
// MaxGridDim^Dim.
func (c Config) CellsPerElement() int {
	return int(cellsPerElement(c.MaxGridDim, c.Dim))
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// cellsPerElement saturates just above MaxInt32 so the caller can reject it.
func cellsPerElement(maxGridDim, dim int) int64 {
	n := int64(1)
	for i := 0; i < dim; i++ {
		n *= int64(maxGridDim)
		if n > math.MaxInt32 {
			return math.MaxInt32 + 1
		}
	}
	return n
}
