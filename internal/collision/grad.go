package collision

import "github.com/23skdu/particlegrid/internal/tensor"

// ZeroGradients is the gradient contract of every grid operation: ordering,
// reordering and neighbor search are piecewise constant in their inputs, so
// the gradient with respect to each input is zero. It returns a zeroed
// buffer shaped and placed like each input; nil inputs yield nil.
func ZeroGradients(inputs ...*tensor.Float32) []*tensor.Float32 {
	grads := make([]*tensor.Float32, len(inputs))
	for i, in := range inputs {
		if in == nil {
			continue
		}
		g := tensor.NewFloat32(in.Batch, in.Rows, in.Width)
		g.Placement = in.Placement
		grads[i] = g
	}
	return grads
}
