package testfixtures

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator produces deterministic identifiers such as "id-1", "id-2".
type IDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGenerator returns a generator for prefix, defaulting to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.counter.Add(1))
}

// NextFunc exposes Next for dependency injection.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Reset restarts the sequence.
func (g *IDGenerator) Reset() {
	g.counter.Store(0)
}
