package collision

import (
	"fmt"

	"github.com/23skdu/particlegrid/internal/gpu"
	"golang.org/x/sync/errgroup"
)

// Backend executes lane kernels. Every hash grid stage is expressed as a
// kernel over independent lanes, so the stages are backend-agnostic and a
// backend only decides where and how wide the lanes run.
//
// Launch must not return before every lane has completed. A kernel that
// fails (panics, or a device launch error) makes Launch return an error; the
// engine reports it as a DeviceError and never retries.
type Backend interface {
	Name() string
	// Parallelism is the number of lane ranges worth running at once. The
	// sorter cuts each batch element into this many chunks.
	Parallelism() int
	Launch(lanes int, kernel func(lo, hi int)) error
}

type serialBackend struct{}

func (serialBackend) Name() string     { return BackendSerial }
func (serialBackend) Parallelism() int { return 1 }

func (serialBackend) Launch(lanes int, kernel func(lo, hi int)) error {
	if lanes <= 0 {
		return nil
	}
	return runKernel(kernel, 0, lanes)
}

// parallelBackend splits the lanes into one contiguous range per worker and
// runs them on an errgroup limited to the worker count.
type parallelBackend struct {
	workers int
}

func (p *parallelBackend) Name() string     { return BackendParallel }
func (p *parallelBackend) Parallelism() int { return p.workers }

func (p *parallelBackend) Launch(lanes int, kernel func(lo, hi int)) error {
	if lanes <= 0 {
		return nil
	}
	if lanes == 1 || p.workers == 1 {
		return runKernel(kernel, 0, lanes)
	}

	size := (lanes + p.workers - 1) / p.workers
	var g errgroup.Group
	g.SetLimit(p.workers)
	for lo := 0; lo < lanes; lo += size {
		hi := min(lo+size, lanes)
		g.Go(func() error {
			return runKernel(kernel, lo, hi)
		})
	}
	return g.Wait()
}

// deviceBackend runs kernels on an accelerator.
type deviceBackend struct {
	dev gpu.Device
}

func (d *deviceBackend) Name() string     { return "device:" + d.dev.Name() }
func (d *deviceBackend) Parallelism() int { return max(1, d.dev.Parallelism()) }

func (d *deviceBackend) Launch(lanes int, kernel func(lo, hi int)) error {
	if lanes <= 0 {
		return nil
	}
	return d.dev.Launch(lanes, kernel)
}

func newHostBackend(cfg Config) Backend {
	if cfg.Backend == BackendParallel {
		return &parallelBackend{workers: cfg.workers()}
	}
	return serialBackend{}
}

func runKernel(kernel func(lo, hi int), lo, hi int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel panicked on lanes [%d, %d): %v", lo, hi, r)
		}
	}()
	kernel(lo, hi)
	return nil
}
