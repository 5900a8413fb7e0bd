package motion

// Weighted pairs a variant with its probability weight.
type Weighted[T any] struct {
	Weight float32
	Value  T
}

// Choose walks the cumulative weights with a single uniform draw r in [0, 1)
// and returns the first option whose cumulative weight exceeds r. Draws past
// the last cumulative weight land in remainder, so weights need not sum to 1.
func Choose[T any](r float32, options []Weighted[T], remainder T) T {
	var cumulative float32
	for _, opt := range options {
		if opt.Weight <= 0 {
			continue
		}
		cumulative += opt.Weight
		if r < cumulative {
			return opt.Value
		}
	}
	return remainder
}

// pickUniform returns a uniformly chosen element of items other than skip.
// When skip is the only candidate it is returned anyway.
func pickUniform[T comparable](rng Rand, items []T, skip T) (T, bool) {
	candidates := make([]T, 0, len(items))
	for _, it := range items {
		if it != skip {
			candidates = append(candidates, it)
		}
	}
	if len(candidates) == 0 {
		var zero T
		if len(items) == 0 {
			return zero, false
		}
		return items[0], true
	}
	idx := int(rng.Float32() * float32(len(candidates)))
	if idx >= len(candidates) {
		idx = len(candidates) - 1
	}
	return candidates[idx], true
}
