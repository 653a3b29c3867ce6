package depdb

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// depdbFile is the name of the single on-disk document under the project's
// cache root, matching the original implementation's layout exactly.
const depdbFile = "depdb.json"

// document is the on-disk shape: two string-keyed maps, as described in §6 of
// the specification. Keys are BlockId.Key() / TestId.Key() strings.
type document struct {
	Blocks map[string]string          `json:"blocks"`
	Tests  map[string]testDependency  `json:"tests"`
}

// Load reads the dependency database from dir/depdb.json. A missing file or any
// read/parse failure yields an empty Store rather than an error: the spec treats
// LoadFailure as non-fatal, the run simply starts cold.
func Load(dir string) *Store {
	path := filepath.Join(dir, depdbFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return New()
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warning("Discarding corrupt dependency database at %s: %s", path, err)
		return New()
	}
	s := New()
	if doc.Blocks != nil {
		s.blocks = doc.Blocks
	}
	if doc.Tests != nil {
		s.tests = doc.Tests
	}
	return s
}

// Save writes the dependency database to dir/depdb.json. Failures are logged
// and ignored: the spec treats SaveFailure as non-fatal since the next run just
// recomputes everything.
func (s *Store) Save(dir string) {
	s.mu.RLock()
	doc := document{Blocks: s.blocks, Tests: s.tests}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Error("Failed to serialize dependency database: %s", err)
		return
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		log.Error("Failed to create cache directory %s: %s", dir, err)
		return
	}
	path := filepath.Join(dir, depdbFile)
	if err := os.WriteFile(path, data, 0664); err != nil {
		log.Error("Failed to save dependency database to %s: %s", path, err)
	}
}
