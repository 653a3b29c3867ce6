// Package selector walks a set of root paths, discovers test_*.py files,
// extracts their blocks and tests, and folds the results into a dependency
// store, producing the candidate set that the decision layer filters down to
// what actually needs to run.
package selector

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/taut-run/taut/src/blocks"
	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/depdb"
	"github.com/taut-run/taut/src/fs"
)

// Index is one indexing pass's complete view of the target tree: every
// discovered test plus the per-file block tables needed to resolve coverage
// lines back to blocks when recording results.
type Index struct {
	Tests    []core.TestItem
	FileBlocks map[string]core.FileBlocks
}

// Selector discovers tests under a set of roots and keeps a store's block
// table in sync with what it finds.
type Selector struct {
	extractor *blocks.Extractor
	store     *depdb.Store
}

// New returns a Selector that extracts blocks and tests with extractor and
// records block checksums into store as it walks.
func New(extractor *blocks.Extractor, store *depdb.Store) *Selector {
	return &Selector{extractor: extractor, store: store}
}

// isTestFile reports whether name matches the target language's test file
// convention: test_*.py.
func isTestFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py")
}

// FindTestFiles walks roots (each either a file or a directory) and returns
// every test_*.py file found, sorted for deterministic ordering across runs.
func FindTestFiles(roots []string) ([]string, error) {
	var files []string
	for _, root := range roots {
		err := fs.Walk(root, func(name string, isDir bool) error {
			if !isDir && isTestFile(name) {
				files = append(files, name)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Index walks roots, extracts blocks and tests from every test_*.py file
// found, and updates the store's block table as it goes. Per-file parse
// failures are aggregated rather than aborting the walk: one unparseable file
// should not hide every other test in the tree.
func (s *Selector) Index(roots []string) (Index, error) {
	files, err := FindTestFiles(roots)
	if err != nil {
		return Index{}, err
	}

	idx := Index{FileBlocks: map[string]core.FileBlocks{}}
	var errs *multierror.Error

	for _, file := range files {
		fb, err := s.extractor.ExtractFile(file)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		idx.FileBlocks[file] = fb
		s.store.UpdateBlocks(fb)

		tests, err := s.extractor.DiscoverTests(file)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		idx.Tests = append(idx.Tests, tests...)
	}

	return idx, errs.ErrorOrNil()
}

// Filter narrows name to test names whose function or class contains substr,
// case-insensitively, mirroring the substring match used to target a subset of
// a large suite from the command line.
func Filter(tests []core.TestItem, substr string) []core.TestItem {
	if substr == "" {
		return tests
	}
	needle := strings.ToLower(substr)
	var out []core.TestItem
	for _, t := range tests {
		if strings.Contains(strings.ToLower(t.ID.Function), needle) ||
			strings.Contains(strings.ToLower(t.ID.Class), needle) {
			out = append(out, t)
		}
	}
	return out
}
