package depdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taut-run/taut/src/core"
)

func block(path, name string, start, end int, checksum string) core.Block {
	return core.Block{
		ID:        core.BlockId{SourcePath: path, Kind: core.Function, Name: name},
		StartLine: start,
		EndLine:   end,
		Checksum:  checksum,
	}
}

func TestNeverRunWhenNoRow(t *testing.T) {
	s := New()
	id := core.TestId{SourcePath: "/a/test_foo.py", Function: "test_bar"}
	assert.Equal(t, core.NeverRun, s.NeedsRun(id))
}

func TestCanSkipWhenUnchanged(t *testing.T) {
	s := New()
	path := "/a/test_foo.py"
	fb := core.FileBlocks{SourcePath: path, Blocks: []core.Block{block(path, "foo", 1, 2, "abc")}}
	fb.BuildLineIndex()
	s.UpdateBlocks(fb)

	id := core.TestId{SourcePath: path, Function: "test_foo"}
	s.Record(id, map[string][]int{path: {1, 2}}, true, map[string]core.FileBlocks{path: fb})

	assert.Equal(t, core.CanSkip, s.NeedsRun(id))
}

func TestDependencyChangedWhenChecksumDiffers(t *testing.T) {
	s := New()
	path := "/a/test_foo.py"
	fb := core.FileBlocks{SourcePath: path, Blocks: []core.Block{block(path, "foo", 1, 2, "abc")}}
	fb.BuildLineIndex()
	s.UpdateBlocks(fb)

	id := core.TestId{SourcePath: path, Function: "test_foo"}
	s.Record(id, map[string][]int{path: {1, 2}}, true, map[string]core.FileBlocks{path: fb})

	changed := core.FileBlocks{SourcePath: path, Blocks: []core.Block{block(path, "foo", 1, 2, "xyz")}}
	changed.BuildLineIndex()
	s.UpdateBlocks(changed)

	assert.Equal(t, core.DependencyChanged, s.NeedsRun(id))
}

func TestDependencyDeletedWhenBlockGone(t *testing.T) {
	s := New()
	path := "/a/test_foo.py"
	fb := core.FileBlocks{SourcePath: path, Blocks: []core.Block{block(path, "foo", 1, 2, "abc")}}
	fb.BuildLineIndex()
	s.UpdateBlocks(fb)
	id := core.TestId{SourcePath: path, Function: "test_foo"}
	s.Record(id, map[string][]int{path: {1, 2}}, true, map[string]core.FileBlocks{path: fb})

	s2 := New()
	assert.Equal(t, core.NeverRun, s2.NeedsRun(id)) // sanity: fresh store has no row

	// Simulate the block disappearing from a reindex that produced no blocks.
	empty := core.FileBlocks{SourcePath: path}
	empty.BuildLineIndex()

	s3 := New()
	s3.UpdateBlocks(fb)
	s3.Record(id, map[string][]int{path: {1, 2}}, true, map[string]core.FileBlocks{path: fb})
	s3.blocks = map[string]string{} // block map wiped, as if the file's blocks vanished
	assert.Equal(t, core.DependencyDeleted, s3.NeedsRun(id))
}

func TestFailedLastTimeAlwaysReruns(t *testing.T) {
	s := New()
	path := "/a/test_foo.py"
	id := core.TestId{SourcePath: path, Function: "test_foo"}
	s.Record(id, nil, false, nil)
	assert.Equal(t, core.FailedLastTime, s.NeedsRun(id))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New()
	path := "/a/test_foo.py"
	fb := core.FileBlocks{SourcePath: path, Blocks: []core.Block{block(path, "foo", 1, 2, "abc")}}
	fb.BuildLineIndex()
	s.UpdateBlocks(fb)
	id := core.TestId{SourcePath: path, Function: "test_foo"}
	s.Record(id, map[string][]int{path: {1, 2}}, true, map[string]core.FileBlocks{path: fb})
	s.Save(dir)

	require.FileExists(t, filepath.Join(dir, depdbFile))

	loaded := Load(dir)
	assert.Equal(t, core.CanSkip, loaded.NeedsRun(id))
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	os.Remove(filepath.Join(dir, depdbFile))
	s := Load(dir)
	assert.Equal(t, 0, s.Stats().TotalTests)
}
