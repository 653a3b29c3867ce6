package embedrunner

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taut-run/taut/src/workerproto"
)

func TestScriptImplementsFullProtocol(t *testing.T) {
	assert.NotEmpty(t, Script)
	assert.Contains(t, Script, "def main()")
	assert.Contains(t, Script, "setUp")
	assert.Contains(t, Script, "tearDown")
	assert.Contains(t, Script, "shutdown")
}

func TestStdlibMarkersMatchScript(t *testing.T) {
	for _, marker := range StdlibMarkers {
		assert.True(t, strings.Contains(Script, marker), "script should filter %s", marker)
	}
}

// TestWorkerDrivesAsyncTestsAndSiblingImports spawns the embedded script under
// a real python3 interpreter and drives it through the framed protocol
// directly, covering exactly the two bugs a script-text assertion can't see:
// an `async def` test silently "passing" without its body ever running, and a
// sibling `import helper` failing because the test file's directory was never
// put on sys.path.
func TestWorkerDrivesAsyncTestsAndSiblingImports(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available on PATH")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "helper.py"), []byte("def add(a, b):\n    return a + b\n"), 0o644))

	testFile := filepath.Join(dir, "test_async_sample.py")
	src := `
import asyncio
import helper


async def test_async_executes():
    await asyncio.sleep(0)
    print("executed-async")
    assert helper.add(2, 3) == 5


async def test_async_fails():
    await asyncio.sleep(0)
    assert False, "should fail"
`
	require.NoError(t, os.WriteFile(testFile, []byte(src), 0o644))

	cmd := exec.Command("python3", "-u", "-c", Script)
	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	cmd.Stderr = os.Stderr
	require.NoError(t, cmd.Start())
	defer cmd.Wait()

	req := workerproto.Request{ID: 1, File: testFile, Function: "test_async_executes", CollectCoverage: true}
	require.NoError(t, workerproto.WriteFrame(stdin, req))
	var resp workerproto.Response
	require.NoError(t, workerproto.ReadFrame(stdout, &resp))
	assert.True(t, resp.Passed)
	assert.Nil(t, resp.Error)
	assert.Contains(t, resp.Stdout, "executed-async")
	assert.NotEmpty(t, resp.Coverage)

	req2 := workerproto.Request{ID: 2, File: testFile, Function: "test_async_fails"}
	require.NoError(t, workerproto.WriteFrame(stdin, req2))
	var resp2 workerproto.Response
	require.NoError(t, workerproto.ReadFrame(stdout, &resp2))
	assert.False(t, resp2.Passed)
	require.NotNil(t, resp2.Error)
	assert.Contains(t, resp2.Error.Message, "should fail")

	require.NoError(t, workerproto.WriteShutdown(stdin))
}
