package domain

import "math/rand/v2"

// Rand is the random source the simulation draws from. *rand.Rand from
// math/rand/v2 satisfies it; tests can plug in scripted sources.
type Rand interface {
	Float64() float64
	IntN(n int) int
	NormFloat64() float64
}

// NewRand returns a seeded PCG generator.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ChildSeed derives an independent seed for component i from a master
// seed, so every agent owns a reproducible stream.
func ChildSeed(master uint64, i int) uint64 {
	z := master + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
