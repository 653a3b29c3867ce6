// Package depdb implements the Dependency Store: the {block -> checksum} and
// {test -> dependency snapshot} tables that drive incremental test selection.
package depdb

import (
	"sync"

	"github.com/taut-run/taut/src/cli/logging"
	"github.com/taut-run/taut/src/core"
)

var log = logging.Log

// testDependency is one test's recorded view of the world as of its last
// execution: every block it touched, and what that block hashed to then.
type testDependency struct {
	Dependencies map[string]string `json:"dependencies"`
	PassedLast   bool              `json:"passed_last"`
}

// Store is the in-memory dependency database. All methods are safe for
// concurrent use: the collector in the worker pool records results from
// multiple completions arriving in any order.
type Store struct {
	mu     sync.RWMutex
	blocks map[string]string
	tests  map[string]testDependency
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		blocks: map[string]string{},
		tests:  map[string]testDependency{},
	}
}

// UpdateBlocks records the current checksum of every block in fb. Stale entries
// for blocks no longer present in the file are left behind; this is tolerated
// per the data model (it only costs memory, never correctness, since needs_run
// only ever looks up keys that a test's own dependency row names).
func (s *Store) UpdateBlocks(fb core.FileBlocks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range fb.Blocks {
		s.blocks[b.ID.Key()] = b.Checksum
	}
}

// Record builds and stores the dependency row for a completed test execution.
// coverage maps source path to the lines touched; index supplies each file's
// current FileBlocks so coverage lines can be resolved to blocks. Empty coverage
// is legal: it records a row with no dependencies, so the test is at least known
// to the store (NeverRun won't apply to it again).
func (s *Store) Record(id core.TestId, coverage map[string][]int, passed bool, index map[string]core.FileBlocks) {
	deps := map[string]string{}
	for file, lines := range coverage {
		fb, ok := index[file]
		if !ok {
			continue
		}
		for _, line := range lines {
			if block, ok := fb.BlockForLine(line); ok {
				deps[block.ID.Key()] = block.Checksum
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[id.Key()] = testDependency{Dependencies: deps, PassedLast: passed}
}

// NeedsRun evaluates the five-way decision in priority order, returning at the
// first positive signal: NeverRun > FailedLastTime > DependencyDeleted >
// DependencyChanged > CanSkip.
func (s *Store) NeedsRun(id core.TestId) core.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, ok := s.tests[id.Key()]
	if !ok {
		return core.NeverRun
	}
	if !dep.PassedLast {
		return core.FailedLastTime
	}
	changed := false
	for blockKey, expected := range dep.Dependencies {
		current, ok := s.blocks[blockKey]
		if !ok {
			return core.DependencyDeleted
		}
		if current != expected {
			changed = true
		}
	}
	if changed {
		return core.DependencyChanged
	}
	return core.CanSkip
}

// Stats summarizes the store's current contents for the `cache info` command.
type Stats struct {
	TotalBlocks  int
	TotalTests   int
	PassedTests  int
	FailedTests  int
}

// Stats returns a snapshot of the store's size and pass/fail breakdown.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	passed := 0
	for _, t := range s.tests {
		if t.PassedLast {
			passed++
		}
	}
	return Stats{
		TotalBlocks: len(s.blocks),
		TotalTests:  len(s.tests),
		PassedTests: passed,
		FailedTests: len(s.tests) - passed,
	}
}
