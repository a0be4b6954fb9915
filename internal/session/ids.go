package session

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator mints opaque identifiers for sessions and connections.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-ordered UUIDv7 strings. The zero value is ready
// to use.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence mints prefix1, prefix2, ... and is safe for concurrent use.
// Scenario runs and tests use it for stable, readable ids.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

func (s *Sequence) Generate() string {
	return s.prefix + strconv.FormatUint(s.n.Add(1), 10)
}
