package utils

import (
	"math/rand"
	"time"
)

// Sleep pauses for exactly the requested number of milliseconds.
func Sleep(milliseconds int) {
	time.Sleep(time.Duration(milliseconds) * time.Millisecond)
}

// SleepRange pauses for a uniformly random duration between minMs and maxMs
// milliseconds. Every humanization pause in the input layer and the flows is
// drawn from a uniform range like this one; no state is carried between calls.
func SleepRange(minMs, maxMs int) {
	Sleep(RandRange(minMs, maxMs))
}

// RandRange returns a uniformly random integer in [min, max]. When max <= min
// it returns min.
func RandRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.Intn(max-min+1)
}

// RandFloat returns a uniformly random float64 in [lo, hi).
func RandFloat(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}
