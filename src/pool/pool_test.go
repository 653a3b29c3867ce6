package pool

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/process"
)

func TestRunTestsOnEmptyInputReturnsNil(t *testing.T) {
	p := New(4, nil)
	results, err := p.RunTests(nil, false, func(core.TestResult) {})
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestNewClampsSizeToAtLeastOne(t *testing.T) {
	p := New(0, nil)
	assert.Equal(t, 1, p.size)
}

func TestNotExecutedResultReportsFailure(t *testing.T) {
	item := core.TestItem{ID: core.TestId{SourcePath: "/a/test_x.py", Function: "test_x"}}
	result := notExecutedResult(item)
	assert.False(t, result.Passed)
	require := result.Error
	assert.NotNil(t, require)
	assert.Contains(t, require.Message, "not executed")
}

func TestWorkerErrorResultWrapsMessage(t *testing.T) {
	item := core.TestItem{ID: core.TestId{SourcePath: "/a/test_x.py", Function: "test_x"}}
	result := workerErrorResult(item, assertError{"boom"})
	assert.False(t, result.Passed)
	assert.Equal(t, "boom", result.Error.Message)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

// TestRunTestsDrivesRealWorkerProcess spawns a real python3 worker through
// process.Executor and drives two tests through the actual framed-protocol
// round trip, including a crash-free pass/fail pair and coverage collection,
// rather than only exercising the empty-input and helper-function paths.
func TestRunTestsDrivesRealWorkerProcess(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on PATH")
	}

	dir := t.TempDir()
	testFile := filepath.Join(dir, "test_sample.py")
	src := "def test_pass():\n    assert 1 + 1 == 2\n\n\ndef test_fail():\n    assert 1 + 1 == 99\n"
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	p := New(2, process.New())
	items := []core.TestItem{
		{ID: core.TestId{SourcePath: testFile, Function: "test_pass"}},
		{ID: core.TestId{SourcePath: testFile, Function: "test_fail"}},
	}

	var mu sync.Mutex
	callbacks := 0
	results, err := p.RunTests(items, true, func(core.TestResult) {
		mu.Lock()
		callbacks++
		mu.Unlock()
	})
	assert.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, callbacks)
	assert.True(t, results[0].Passed)
	assert.Contains(t, results[0].Coverage, testFile)
	assert.False(t, results[1].Passed)
	require.NotNil(t, results[1].Error)
	assert.Contains(t, results[1].Error.Message, "AssertionError")
}
