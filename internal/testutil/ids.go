// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator returns "<prefix>-0001", "<prefix>-0002", ...
//
// It replaces the UUIDv7 run id generator in tests so archived runs have
// predictable ids.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDGenerator creates a generator. If prefix is empty,
// "test-run" is used.
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "test-run"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
