package volume

// WindowSize is the number of turns kept per key.
const WindowSize = 6

// push prepends v and drops the oldest entries beyond size. The input slice
// is never modified.
func push(window []int, v int, size int) []int {
	n := len(window) + 1
	if n > size {
		n = size
	}
	out := make([]int, n)
	out[0] = v
	copy(out[1:], window)
	return out
}

func mean(window []int) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum int
	for _, v := range window {
		sum += v
	}
	return float64(sum) / float64(len(window))
}
