// Package prng exposes a process-wide random source, used for the
// self-play fast/full search coin flip (§4.3). Move sampling in mcts and
// minibatch sampling in trainer draw from their own math/rand sources.
// §9's Design Notes call for "a process-wide PRNG accessor" with a single
// lazy init and no teardown until exit.
package prng

import (
	"sync"
	"time"

	"github.com/leesper/go_rng"
)

var (
	once sync.Once
	gen  *rng.UniformGenerator
	mu   sync.Mutex
)

func generator() *rng.UniformGenerator {
	once.Do(func() {
		gen = rng.NewUniformGenerator(time.Now().UnixNano())
	})
	return gen
}

// Bernoulli reports true with probability p, using the process-wide source.
// Concurrent callers are serialized, matching §9's "concurrent use must be
// serialized" note.
func Bernoulli(p float64) bool {
	mu.Lock()
	defer mu.Unlock()
	return generator().Float64Range(0, 1) < p
}

// Float64 returns a uniform sample in [0, 1) from the process-wide source.
func Float64() float64 {
	mu.Lock()
	defer mu.Unlock()
	return generator().Float64Range(0, 1)
}
