package collision

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/23skdu/particlegrid/internal/logging"
	"github.com/23skdu/particlegrid/internal/tensor"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t testing.TB, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, logging.DiscardLogger())
	require.NoError(t, err)
	return e
}

func randomCloud(rng *rand.Rand, batch, n, width int, scale float32) *tensor.Float32 {
	t := tensor.NewFloat32(batch, n, width)
	for i := range t.Data {
		t.Data[i] = (rng.Float32()*2 - 1) * scale
	}
	return t
}

// bruteNeighbors returns the set of rows of locs (element b) within radius of q.
func bruteNeighbors(locs *tensor.Float32, b int, q []float32, radius float32) map[int32]bool {
	out := map[int32]bool{}
	for i := 0; i < locs.Rows; i++ {
		var d2 float32
		for a, v := range locs.Row(b, i) {
			d := v - q[a]
			d2 += d * d
		}
		if d2 <= radius*radius {
			out[int32(i)] = true
		}
	}
	return out
}

// listSet collects the non-sentinel entries of one neighbor list.
func listSet(list []int32) map[int32]bool {
	out := map[int32]bool{}
	for _, v := range list {
		if v >= 0 {
			out[v] = true
		}
	}
	return out
}

var errLaunchFailed = errors.New("launch failed")

// fakeDevice runs kernels on the calling goroutine and counts launches.
type fakeDevice struct {
	fail     bool
	launches atomic.Int64
	closed   atomic.Bool
}

func (d *fakeDevice) Name() string     { return "fake" }
func (d *fakeDevice) Parallelism() int { return 4 }

func (d *fakeDevice) Launch(lanes int, kernel func(lo, hi int)) error {
	d.launches.Add(1)
	if d.fail {
		return errLaunchFailed
	}
	// Uneven ranges exercise the lane splitting of every stage.
	for lo := 0; lo < lanes; lo += 3 {
		kernel(lo, min(lo+3, lanes))
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed.Store(true)
	return nil
}
