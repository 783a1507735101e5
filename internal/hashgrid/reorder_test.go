package hashgrid

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestReorderRows_Forward(t *testing.T) {
	src := []float32{
		0, 0,
		1, 1,
		2, 2,
	}
	dst := make([]float32, 6)
	ReorderRows(dst, src, 2, []int32{2, 0, 1}, Forward, 0, 3)
	assert.Equal(t, []float32{2, 2, 0, 0, 1, 1}, dst)

	back := make([]float32, 6)
	ReorderRows(back, dst, 2, []int32{2, 0, 1}, Backward, 0, 3)
	assert.Equal(t, src, back)
}

func TestReorderRows_IntegerAndZeroWidth(t *testing.T) {
	src := []int32{10, 11, 12, 13}
	dst := make([]int32, 4)
	ReorderRows(dst, src, 1, []int32{3, 2, 1, 0}, Forward, 0, 4)
	assert.Equal(t, []int32{13, 12, 11, 10}, dst)

	var empty []float32
	ReorderRows(empty, empty, 0, []int32{1, 0}, Forward, 0, 2)
}

func TestReorderRows_SplitRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n, width := 100, 3
	src := make([]float32, n*width)
	for i := range src {
		src[i] = rng.Float32()
	}
	perm := make([]int32, n)
	for i, j := range rng.Perm(n) {
		perm[i] = int32(j)
	}

	whole := make([]float32, len(src))
	ReorderRows(whole, src, width, perm, Forward, 0, n)

	parts := make([]float32, len(src))
	for lo := 0; lo < n; lo += 17 {
		ReorderRows(parts, src, width, perm, Forward, lo, min(lo+17, n))
	}
	assert.Equal(t, whole, parts)
}

func TestPermutationHelpers(t *testing.T) {
	seen := make([]bool, 4)
	assert.True(t, ValidPermutation([]int32{2, 0, 3, 1}, seen))
	assert.False(t, ValidPermutation([]int32{2, 0, 2, 1}, seen))
	assert.False(t, ValidPermutation([]int32{2, 0, 4, 1}, seen))
	assert.False(t, ValidPermutation([]int32{-1, 0, 2, 1}, seen))
	// Scratch is left clean for the next call.
	assert.Equal(t, make([]bool, 4), seen)

	inv := make([]int32, 4)
	InvertPermutation([]int32{2, 0, 3, 1}, inv)
	assert.Equal(t, []int32{1, 3, 0, 2}, inv)

	assert.Equal(t, "backward", Backward.String())
}

// TestReorderProperties validates reorder invertibility with property-based testing.
func TestReorderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("forward then backward restores the buffer", prop.ForAll(
		func(n, width int, seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			src := make([]float32, n*width)
			for i := range src {
				src[i] = rng.Float32()*200 - 100
			}
			perm := make([]int32, n)
			for i, j := range rng.Perm(n) {
				perm[i] = int32(j)
			}

			mid := make([]float32, len(src))
			out := make([]float32, len(src))
			ReorderRows(mid, src, width, perm, Forward, 0, n)
			ReorderRows(out, mid, width, perm, Backward, 0, n)
			return FingerprintFloat32(out) == FingerprintFloat32(src)
		},
		gen.IntRange(0, 300),
		gen.IntRange(0, 6),
		gen.Int64(),
	))

	properties.Property("inverse permutation gathers what backward scatters", prop.ForAll(
		func(n int, seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			src := make([]int32, n)
			for i := range src {
				src[i] = rng.Int31()
			}
			perm := make([]int32, n)
			for i, j := range rng.Perm(n) {
				perm[i] = int32(j)
			}
			inv := make([]int32, n)
			InvertPermutation(perm, inv)

			a := make([]int32, n)
			b := make([]int32, n)
			ReorderRows(a, src, 1, perm, Backward, 0, n)
			ReorderRows(b, src, 1, inv, Forward, 0, n)
			return Fingerprint(a) == Fingerprint(b)
		},
		gen.IntRange(0, 300),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
