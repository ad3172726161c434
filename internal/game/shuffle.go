package game

import "math/rand"

// shuffledIndexes returns an unbiased Fisher-Yates permutation of [0, n).
// The play order is picked by index so catalog song records are never
// mutated.
func shuffledIndexes(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
