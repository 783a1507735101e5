// Package collision runs the batched hash grid pipeline: grid bounds, cell
// ordering, buffer reordering and fixed-radius neighbor search.
//
// An Engine owns the scratch pool and the backends. Host-resident buffers
// run on the configured CPU backend, device-resident buffers on the
// accelerator. All shape checks happen before any kernel is launched, so a
// rejected call leaves nothing half written.
package collision

import (
	"context"
	"fmt"
	"sync"
	"time"

	gerrors "github.com/23skdu/particlegrid/internal/errors"
	"github.com/23skdu/particlegrid/internal/gpu"
	"github.com/23skdu/particlegrid/internal/hashgrid"
	"github.com/23skdu/particlegrid/internal/metrics"
	"github.com/23skdu/particlegrid/internal/pool"
	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/23skdu/particlegrid/internal/tracing"
	"github.com/rs/zerolog"
)

// Operation names used in errors, metrics and spans.
const (
	OpComputeGrid   = "compute_grid"
	OpHashgridOrder = "hashgrid_order"
	OpReorder       = "reorder"
	OpFindNeighbors = "find_neighbors"
	OpForward       = "forward"
)

// Engine is safe for concurrent use; calls are serialised on the engine and on
// its scratch pool.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	scratch    *pool.Scratch
	ownScratch bool
	host       Backend
	device     *deviceBackend
}

// NewEngine validates cfg and builds an engine with an empty scratch pool.
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        cfg,
		logger:     logger.With().Str("component", "collision").Logger(),
		scratch:    pool.NewScratch(cfg.CellsPerElement()),
		ownScratch: true,
		host:       newHostBackend(cfg),
	}
	e.logger.Debug().
		Int("dim", cfg.Dim).
		Float32("radius", cfg.Radius).
		Int("max_grid_dim", cfg.MaxGridDim).
		Int("max_neighbors", cfg.MaxNeighbors).
		Str("backend", e.host.Name()).
		Msg("Collision engine created")
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// WithScratch makes the engine use a caller-owned scratch pool, for example
// one shared with other engines of the same configuration. The pool's cell
// range slab must match CellsPerElement. Engines sharing a pool take turns
// on it, so their calls run one at a time.
func (e *Engine) WithScratch(s *pool.Scratch) (*Engine, error) {
	if s.CellsPerElement() != e.cfg.CellsPerElement() {
		return nil, gerrors.NewConfigurationError("with_scratch",
			fmt.Sprintf("scratch holds %d cells per element, engine needs %d", s.CellsPerElement(), e.cfg.CellsPerElement()))
	}
	e.mu.Lock()
	if e.ownScratch {
		e.scratch.Lock()
		e.scratch.Release()
		e.scratch.Unlock()
	}
	e.scratch, e.ownScratch = s, false
	e.mu.Unlock()
	return e, nil
}

// WithDevice attaches an already opened accelerator for device-resident
// buffers. Without one the engine opens cfg.DeviceID on first use.
func (e *Engine) WithDevice(dev gpu.Device) *Engine {
	e.mu.Lock()
	e.device = &deviceBackend{dev: dev}
	e.mu.Unlock()
	return e
}

// Scratch returns the pool the engine currently uses.
func (e *Engine) Scratch() *pool.Scratch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scratch
}

// Close releases the engine's own scratch pool and the accelerator, if one
// was opened. A caller-supplied pool is left alone.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ownScratch {
		e.scratch.Lock()
		e.scratch.Release()
		e.scratch.Unlock()
	}
	if e.device == nil {
		return nil
	}
	err := e.device.dev.Close()
	e.device = nil
	return err
}

// acquire locks the engine and then its scratch pool, which other engines
// may share. The returned function releases both.
func (e *Engine) acquire() func() {
	e.mu.Lock()
	s := e.scratch
	s.Lock()
	return func() {
		s.Unlock()
		e.mu.Unlock()
	}
}

// backendFor picks the backend from the placement of the operation's
// buffers. Mixing placements is a ShapeError. Callers hold e.mu.
func (e *Engine) backendFor(op string, placements ...tensor.Placement) (Backend, error) {
	if len(placements) == 0 {
		return e.host, nil
	}
	p := placements[0]
	for _, q := range placements[1:] {
		if q != p {
			return nil, gerrors.NewShapeError(op, fmt.Sprintf("buffers mix %s and %s placement", p, q))
		}
	}
	if p == tensor.Host {
		return e.host, nil
	}

	if e.device == nil {
		dev, err := gpu.Open(gpu.Config{DeviceID: e.cfg.DeviceID})
		if err != nil {
			metrics.DeviceErrorsTotal.WithLabelValues("device").Inc()
			e.logger.Error().Err(err).Int("device_id", e.cfg.DeviceID).Msg("Failed to open device")
			return nil, gerrors.WrapDeviceError(err, op, "open device").
				WithContext("device_id", e.cfg.DeviceID)
		}
		e.device = &deviceBackend{dev: dev}
	}
	return e.device, nil
}

// launcher adapts a backend to hashgrid.Launch and turns kernel failures
// into DeviceErrors.
func (e *Engine) launcher(op string, be Backend) hashgrid.Launch {
	return func(lanes int, kernel func(lo, hi int)) error {
		if err := be.Launch(lanes, kernel); err != nil {
			metrics.DeviceErrorsTotal.WithLabelValues(be.Name()).Inc()
			e.logger.Error().Err(err).Str("op", op).Str("backend", be.Name()).Int("lanes", lanes).Msg("Kernel launch failed")
			return gerrors.WrapDeviceError(err, op, "kernel did not complete").
				WithContext("backend", be.Name())
		}
		return nil
	}
}

// call tracks one external operation for metrics, tracing and logging.
type call struct {
	e       *Engine
	op      string
	backend string
	start   time.Time
	span    *tracing.TraceSpan
}

func (e *Engine) begin(ctx context.Context, op string) (context.Context, *call) {
	ctx, span := tracing.CreateSpan(ctx, op)
	return ctx, &call{e: e, op: op, backend: "none", start: time.Now(), span: span}
}

func (c *call) use(be Backend, batch, n, dim int) {
	c.backend = be.Name()
	c.span.SetBackend(c.backend)
	c.span.SetShape(batch, n, dim)
	metrics.ParticlesProcessedTotal.WithLabelValues(c.op).Add(float64(batch * n))
}

func (c *call) done(err error) {
	elapsed := time.Since(c.start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(c.op, c.backend, status).Inc()
	metrics.OperationDurationSeconds.WithLabelValues(c.op).Observe(elapsed.Seconds())
	c.span.Finish(err)

	if err != nil {
		// Device failures were already logged by the launcher.
		if !gerrors.IsType(err, gerrors.ErrorTypeDevice) {
			c.e.logger.Debug().Err(err).Str("op", c.op).Str("trace_id", c.span.GetTraceID()).Msg("Operation rejected")
		}
		return
	}
	c.e.logger.Debug().
		Str("op", c.op).
		Str("backend", c.backend).
		Dur("duration", elapsed).
		Str("trace_id", c.span.GetTraceID()).
		Msg("Operation completed")
}
