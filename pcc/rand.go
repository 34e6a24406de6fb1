package pcc

import (
	"math/rand"
	"time"
)

// RandSource is the sole nondeterministic seam in the controller: the coin
// flip that picks the first direction of each PROBING pair (section 4.3.3).
// Grounded on congestion_bbr1/bbr_sender.go, which stores its RNG as an
// instance field (`random *rand.Rand`) rather than calling the math/rand
// package-level functions, precisely so tests can substitute it.
type RandSource interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

// defaultRandSource wraps a *rand.Rand seeded from the current time, the
// same seeding the teacher uses (`rand.New(rand.NewSource(time.Now().
// UnixNano()))`).
type defaultRandSource struct {
	r *rand.Rand
}

// NewDefaultRandSource returns the controller's default RNG.
func NewDefaultRandSource() RandSource {
	return &defaultRandSource{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (d *defaultRandSource) Float64() float64 { return d.r.Float64() }

// coinFlip reports true with probability 1/2, used to randomize the first
// direction of a new PROBING pair.
func coinFlip(src RandSource) bool {
	return src.Float64() < 0.5
}
