package strategy

import "math/rand"

// WeightedItem pairs a value with a selection weight.
type WeightedItem[T any] struct {
	Value  T
	Weight float64
}

// WeightedChoice picks one item with probability proportional to its weight.
// Items with non-positive weight are never picked unless all weights are
// non-positive, in which case the first item wins. rng must not be nil.
func WeightedChoice[T any](rng *rand.Rand, items []WeightedItem[T]) T {
	var zero T
	if len(items) == 0 {
		return zero
	}

	total := 0.0
	for _, item := range items {
		if item.Weight > 0 {
			total += item.Weight
		}
	}
	if total <= 0 {
		return items[0].Value
	}

	r := rng.Float64() * total
	for _, item := range items {
		if item.Weight <= 0 {
			continue
		}
		r -= item.Weight
		if r < 0 {
			return item.Value
		}
	}
	return items[len(items)-1].Value
}
