package world

import (
	"hash/fnv"
	"math/rand"

	"swaphouse/server/internal/state"
)

// DeterministicSeedValue derives a stable seed from a root seed and a label
// such as a room code.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG returns a generator seeded from rootSeed and label.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

// Jitter offsets p by a uniform amount in [-spread, spread) on each axis.
func Jitter(rng *rand.Rand, p state.Vec2, spread float64) state.Vec2 {
	if rng == nil || spread <= 0 {
		return p
	}
	return state.Vec2{
		X: p.X + (rng.Float64()*2-1)*spread,
		Y: p.Y + (rng.Float64()*2-1)*spread,
	}
}
