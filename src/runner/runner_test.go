package runner

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/process"
)

func TestRunTestsOnEmptyInputReturnsEmptyResults(t *testing.T) {
	r := New(process.New())
	results, err := r.RunTests(nil, 4)
	assert.NoError(t, err)
	assert.Empty(t, results.Results)
}

func TestScriptNeverCollectsCoverage(t *testing.T) {
	assert.NotContains(t, script, "settrace")
	assert.Contains(t, script, "setUp")
	assert.Contains(t, script, "tearDown")
}

func requirePython3(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on PATH")
	}
}

// TestRunTestsDrivesRealPythonProcess spawns an actual python3 interpreter per
// test through the embedded script, rather than only asserting on the script
// text, so a regression in the spawn/argv/stdout-parsing path would fail here.
func TestRunTestsDrivesRealPythonProcess(t *testing.T) {
	requirePython3(t)

	dir := t.TempDir()
	testFile := filepath.Join(dir, "test_sample.py")
	src := `
class TestArithmetic:
    def setUp(self):
        self.base = 1

    def tearDown(self):
        self.base = None

    def test_pass(self):
        assert self.base + 1 == 2

    def test_fail(self):
        assert self.base + 1 == 99
`
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	r := New(process.New())
	items := []core.TestItem{
		{ID: core.TestId{SourcePath: testFile, Function: "test_pass", Class: "TestArithmetic"}},
		{ID: core.TestId{SourcePath: testFile, Function: "test_fail", Class: "TestArithmetic"}},
	}
	results, err := r.RunTests(items, 2)
	assert.NoError(t, err)
	require.Len(t, results.Results, 2)
	assert.True(t, results.Results[0].Passed)
	assert.False(t, results.Results[1].Passed)
	require.NotNil(t, results.Results[1].Error)
	assert.Contains(t, results.Results[1].Error.Message, "AssertionError")
}
