package game

import "math/rand"

// DrawNext picks uniformly from the numbers in [1,75] not present in drawn.
// It returns false once every number has been drawn.
func DrawNext(r *rand.Rand, drawn []int) (int, bool) {
	taken := make([]bool, MaxNumber+1)
	for _, n := range drawn {
		if n >= MinNumber && n <= MaxNumber {
			taken[n] = true
		}
	}

	available := make([]int, 0, MaxNumber)
	for n := MinNumber; n <= MaxNumber; n++ {
		if !taken[n] {
			available = append(available, n)
		}
	}
	if len(available) == 0 {
		return 0, false
	}
	return available[intn(r, len(available))], true
}

// Remaining counts the numbers still available to draw.
func Remaining(drawn []int) int {
	seen := make(map[int]bool, len(drawn))
	for _, n := range drawn {
		if n >= MinNumber && n <= MaxNumber {
			seen[n] = true
		}
	}
	return MaxNumber - len(seen)
}
