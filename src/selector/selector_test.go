package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taut-run/taut/src/blocks"
	"github.com/taut-run/taut/src/depdb"
)

const sampleSource = `import os


def test_alpha():
    assert True


class TestThings:
    def test_beta(self):
        assert True

    def helper(self):
        pass
`

func writeSample(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sampleSource), 0644))
	return path
}

func TestIsTestFileMatchesConvention(t *testing.T) {
	assert.True(t, isTestFile("test_foo.py"))
	assert.True(t, isTestFile("/a/b/test_foo.py"))
	assert.False(t, isTestFile("foo_test.py"))
	assert.False(t, isTestFile("test_foo.txt"))
}

func TestFindTestFilesWalksDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "test_one.py")
	writeSample(t, dir, "test_two.py")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helpers.py"), []byte("x = 1\n"), 0644))

	files, err := FindTestFiles([]string{dir})
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestIndexDiscoversTestsAndUpdatesStore(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "test_sample.py")

	extractor, err := blocks.New()
	require.NoError(t, err)
	defer extractor.Close()

	store := depdb.New()
	sel := New(extractor, store)

	idx, err := sel.Index([]string{dir})
	require.NoError(t, err)
	assert.Len(t, idx.Tests, 2)
	assert.Equal(t, 1, len(idx.FileBlocks))
	assert.Greater(t, store.Stats().TotalBlocks, 0)
}

func TestFilterMatchesSubstringCaseInsensitively(t *testing.T) {
	extractor, err := blocks.New()
	require.NoError(t, err)
	defer extractor.Close()

	dir := t.TempDir()
	path := writeSample(t, dir, "test_sample.py")
	tests, err := extractor.DiscoverTests(path)
	require.NoError(t, err)

	filtered := Filter(tests, "BETA")
	require.Len(t, filtered, 1)
	assert.Equal(t, "test_beta", filtered[0].ID.Function)
}
