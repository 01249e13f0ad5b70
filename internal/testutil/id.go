// Package testutil holds the deterministic collaborators tests inject in
// place of the production id source and jitter, so repeated runs of the
// same scenario produce byte-identical records.
package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDSource mints "prefix-0001", "prefix-0002", ... in call order.
//
// Same scenario, same construction, same ids: golden snapshot comparison
// depends on this.
//
// Thread-safety: safe for concurrent use via internal mutex, though engine
// passes are single-threaded by design.
type SequenceIDSource struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDSource creates an id source with the given prefix. An empty
// prefix defaults to "test".
func NewSequenceIDSource(prefix string) *SequenceIDSource {
	if prefix == "" {
		prefix = "test"
	}
	return &SequenceIDSource{prefix: prefix}
}

// NewID returns the next id in the sequence.
func (s *SequenceIDSource) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n)
}

// Reset restarts the sequence. After Reset the next id ends in -0001.
func (s *SequenceIDSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
