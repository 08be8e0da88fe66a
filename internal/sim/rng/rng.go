// Package rng provides the random generator handle that clusters draw from.
//
// A Source is passed explicitly to every operation that consumes randomness so
// that tests can inject a seeded stream and independent clusters can be given
// independent streams.
package rng

import (
	"math/rand"
	"sync"
)

type Source interface {
	// Uniform returns a value in [lo, hi).
	Uniform(lo, hi float64) float64
	// Normal returns a normally distributed value.
	Normal(mean, stddev float64) float64
}

type Rand struct {
	r *rand.Rand
}

func New(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

func (g *Rand) Uniform(lo, hi float64) float64 {
	return lo + g.r.Float64()*(hi-lo)
}

func (g *Rand) Normal(mean, stddev float64) float64 {
	return mean + g.r.NormFloat64()*stddev
}

// Locked serializes draws on a Source shared between goroutines.
type Locked struct {
	mu  sync.Mutex
	src Source
}

func NewLocked(src Source) *Locked { return &Locked{src: src} }

func (l *Locked) Uniform(lo, hi float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Uniform(lo, hi)
}

func (l *Locked) Normal(mean, stddev float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Normal(mean, stddev)
}

// Counting wraps a Source and records how many draws of each kind were made.
type Counting struct {
	Src      Source
	Uniforms int
	Normals  int
}

func (c *Counting) Uniform(lo, hi float64) float64 {
	c.Uniforms++
	return c.Src.Uniform(lo, hi)
}

func (c *Counting) Normal(mean, stddev float64) float64 {
	c.Normals++
	return c.Src.Normal(mean, stddev)
}
