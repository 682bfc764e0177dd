package workproof

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/tolelom/latticenode/core"
)

// CPUGenerator searches for a satisfying work value by brute-force nonce
// increment across all available CPUs. It exists only as a working
// default so the wallet and node can produce real blocks; the optimized
// GPU/ASIC search an operational node would use stays out of scope (spec
// §1 Non-goals).
type CPUGenerator struct {
	Validator Validator
	Workers   int
}

// NewCPUGenerator builds a generator using runtime.NumCPU workers unless
// workers is positive.
func NewCPUGenerator(workers int) *CPUGenerator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPUGenerator{Validator: Blake2Validator{}, Workers: workers}
}

// Generate searches for a work value meeting threshold for subject,
// partitioning the nonce space across Workers goroutines and returning as
// soon as any of them finds a hit.
func (g *CPUGenerator) Generate(subject core.Hash, threshold uint64) (core.Work, error) {
	if g.Validator == nil {
		g.Validator = Blake2Validator{}
	}
	workers := g.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		once   sync.Once
		found  core.Work
		foundErr error = fmt.Errorf("workproof: no solution found")
	)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		start := core.Work(uint64(i))
		stride := core.Work(uint64(workers))
		go func(nonce core.Work) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if g.Validator.Validate(subject, nonce, threshold) {
					once.Do(func() {
						found = nonce
						foundErr = nil
						cancel()
					})
					return
				}
				nonce += stride
			}
		}(start)
	}
	wg.Wait()
	return found, foundErr
}
