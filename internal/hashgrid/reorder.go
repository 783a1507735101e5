package hashgrid

// Direction selects how a permutation is applied.
type Direction uint8

const (
	// Forward gathers: row i of the output is row perm[i] of the input.
	Forward Direction = iota
	// Backward scatters: row perm[i] of the output is row i of the input.
	// It exactly undoes Forward with the same permutation.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// ReorderRows moves rows [lo, hi) of one batch element between src and dst,
// both holding n rows of the given width. Width 0 is a no-op. No arithmetic is
// performed, so the result is bit-identical to the input values.
func ReorderRows[T any](dst, src []T, width int, perm []int32, dir Direction, lo, hi int) {
	if width == 0 {
		return
	}
	for i := lo; i < hi; i++ {
		j := int(perm[i])
		if dir == Forward {
			copy(dst[i*width:(i+1)*width], src[j*width:(j+1)*width])
		} else {
			copy(dst[j*width:(j+1)*width], src[i*width:(i+1)*width])
		}
	}
}

// ValidPermutation reports whether perm is a bijection on [0, len(perm)).
// seen is scratch of at least len(perm) entries; it is cleared on return.
func ValidPermutation(perm []int32, seen []bool) bool {
	n := len(perm)
	seen = seen[:n]
	ok := true
	for _, v := range perm {
		if v < 0 || int(v) >= n || seen[v] {
			ok = false
			break
		}
		seen[v] = true
	}
	clear(seen)
	return ok
}

// InvertPermutation writes the old-to-new inverse of the new-to-old perm.
func InvertPermutation(perm, inv []int32) {
	for i, j := range perm {
		inv[j] = int32(i)
	}
}
