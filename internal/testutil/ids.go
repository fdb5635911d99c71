package testutil

import (
	"strconv"
	"sync"
)

// SequentialIDGenerator generates "1", "2", "3", ... for deterministic
// tests and golden dumps.
//
// Unlike orm.UUIDv7Generator, SequentialIDGenerator can be reset for test
// reuse, so the same scenario produces the same ids on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu  sync.Mutex
	seq int64
}

// NewSequentialIDGenerator creates a generator whose first id is "1".
func NewSequentialIDGenerator() *SequentialIDGenerator {
	return &SequentialIDGenerator{}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return strconv.FormatInt(g.seq, 10)
}

// Current returns the last id handed out as a number, 0 before the first.
func (g *SequentialIDGenerator) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset starts the sequence over.
func (g *SequentialIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// FixedIDGenerator returns the same id every time.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed generator. If id is empty,
// Generate returns "test-id-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-id-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
