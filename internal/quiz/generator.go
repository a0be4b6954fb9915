package quiz

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultHistory is how many recent problem hashes a Generator remembers.
const DefaultHistory = 100

const (
	minOperators = 3
	maxOperators = 4
	maxOperand   = 50

	// maxAttempts bounds retries on a history collision.
	maxAttempts = 10
)

// Source produces problems. Implementations must be safe for concurrent use.
type Source interface {
	Generate() Problem
}

// Generator is the default Source. It avoids repeating any of the last
// history problems by content hash.
//
// Thread-safety: Generate is safe for concurrent use via internal mutex.
type Generator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	history int
	recent  []string
	seen    map[string]struct{}
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithHistory sets how many recent problems are remembered.
func WithHistory(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.history = n
		}
	}
}

// WithSeed makes generation reproducible.
func WithSeed(seed uint64) GeneratorOption {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// NewGenerator creates a Generator seeded from the wall clock unless WithSeed is given.
func NewGenerator(opts ...GeneratorOption) *Generator {
	now := uint64(time.Now().UnixNano())
	g := &Generator{
		rng:     rand.New(rand.NewPCG(now, now>>1)),
		history: DefaultHistory,
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a problem whose hash is not among the recent history,
// unless maxAttempts consecutive candidates all collide.
func (g *Generator) Generate() Problem {
	g.mu.Lock()
	defer g.mu.Unlock()

	var p Problem
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p = g.random()
		if _, dup := g.seen[p.Hash()]; !dup {
			break
		}
	}
	g.remember(p.Hash())
	return p
}

// Recent reports whether a problem with this hash is in the history window.
func (g *Generator) Recent(hash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.seen[hash]
	return ok
}

// random draws candidates until one folds to a finite answer.
func (g *Generator) random() Problem {
	for {
		opCount := minOperators + g.rng.IntN(maxOperators-minOperators+1)
		numbers := make([]int, opCount+1)
		for i := range numbers {
			numbers[i] = 1 + g.rng.IntN(maxOperand)
		}
		ops := make([]Operator, opCount)
		for i := range ops {
			ops[i] = Operators[g.rng.IntN(len(Operators))]
		}
		p, err := NewProblem(numbers, ops)
		if err == nil {
			return p
		}
	}
}

func (g *Generator) remember(hash string) {
	if _, ok := g.seen[hash]; ok {
		return
	}
	g.seen[hash] = struct{}{}
	g.recent = append(g.recent, hash)
	for len(g.recent) > g.history {
		delete(g.seen, g.recent[0])
		g.recent[0] = ""
		g.recent = g.recent[1:]
	}
}
