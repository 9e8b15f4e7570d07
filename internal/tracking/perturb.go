package tracking

import (
	"math/rand"
	"sync"
)

// Perturber produces the per-tick position offset in degrees.
type Perturber interface {
	Offset() (dLat, dLon float64)
}

// RandomPerturber draws each axis uniformly from [-MaxDegrees, MaxDegrees].
type RandomPerturber struct {
	mu         sync.Mutex
	rng        *rand.Rand
	maxDegrees float64
}

// NewRandomPerturber returns a RandomPerturber seeded with seed.
func NewRandomPerturber(maxDegrees float64, seed int64) *RandomPerturber {
	return &RandomPerturber{
		rng:        rand.New(rand.NewSource(seed)),
		maxDegrees: maxDegrees,
	}
}

// Offset draws a new offset for both axes.
func (p *RandomPerturber) Offset() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dLat := (p.rng.Float64()*2 - 1) * p.maxDegrees
	dLon := (p.rng.Float64()*2 - 1) * p.maxDegrees
	return dLat, dLon
}

// FixedPerturber returns the same offset on every tick.
type FixedPerturber struct {
	DLat float64
	DLon float64
}

func (p FixedPerturber) Offset() (float64, float64) {
	return p.DLat, p.DLon
}
