// Package runner implements the single-shot execution engine: one process per
// test, spawned in parallel and never reused, trading interpreter-startup cost
// for the strongest isolation between tests.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/process"
)

// script is the self-contained program handed to every spawned process: load
// the test module fresh, run setUp/test/tearDown, and print one JSON result
// line. It never collects coverage — that's the warm pool's job.
const script = `
import sys
import json
import traceback
import importlib.util


def run_test(test_file, test_name, class_name=None):
    result = {"passed": False, "error": None}
    try:
        spec = importlib.util.spec_from_file_location("test_module", test_file)
        module = importlib.util.module_from_spec(spec)
        sys.modules["test_module"] = module
        spec.loader.exec_module(module)

        if class_name:
            instance = getattr(module, class_name)()
            set_up = getattr(instance, "setUp", None)
            tear_down = getattr(instance, "tearDown", None)
            try:
                if set_up is not None:
                    set_up()
                getattr(instance, test_name)()
            finally:
                if tear_down is not None:
                    tear_down()
            result["passed"] = True
        else:
            getattr(module, test_name)()
            result["passed"] = True
    except AssertionError as e:
        result["error"] = {"message": f"AssertionError: {e}" if str(e) else "AssertionError", "traceback": traceback.format_exc()}
    except Exception as e:
        result["error"] = {"message": f"{type(e).__name__}: {e}", "traceback": traceback.format_exc()}

    print(json.dumps(result))


if __name__ == "__main__":
    info = json.loads(sys.argv[1])
    run_test(info["file"], info["function"], info.get("class"))
`

type wireResult struct {
	Passed bool `json:"passed"`
	Error  *struct {
		Message   string `json:"message"`
		Traceback string `json:"traceback"`
	} `json:"error"`
}

// Runner spawns one process per test via executor.
type Runner struct {
	executor *process.Executor
}

// New returns a Runner that spawns processes through executor.
func New(executor *process.Executor) *Runner {
	return &Runner{executor: executor}
}

// RunTests runs every item in its own process, at most jobs concurrently, and
// returns results in input order. jobs <= 0 means unbounded.
func (r *Runner) RunTests(items []core.TestItem, jobs int) (core.TestResults, error) {
	start := time.Now()
	if len(items) == 0 {
		return core.TestResults{TotalDuration: time.Since(start)}, nil
	}

	var sem chan struct{}
	if jobs > 0 {
		sem = make(chan struct{}, jobs)
	}

	results := make([]core.TestResult, len(items))
	var wg sync.WaitGroup
	wg.Add(len(items))
	for i, item := range items {
		i, item := i, item
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i] = r.runOne(item)
		}()
	}
	wg.Wait()

	return core.TestResults{Results: results, TotalDuration: time.Since(start)}, nil
}

func (r *Runner) runOne(item core.TestItem) core.TestResult {
	start := time.Now()

	argv := map[string]interface{}{
		"file":     item.ID.SourcePath,
		"function": item.ID.Function,
	}
	if item.ID.Class != "" {
		argv["class"] = item.ID.Class
	}
	arg, err := json.Marshal(argv)
	if err != nil {
		return spawnFailure(item, start, err)
	}

	cmd := r.executor.Command("", nil, "python3", "-c", script, string(arg))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := r.executor.Start(cmd); err != nil {
		return spawnFailure(item, start, err)
	}
	waitErr := r.executor.Wait(context.Background(), cmd)
	duration := time.Since(start)

	var wire wireResult
	if jsonErr := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &wire); jsonErr != nil {
		return core.TestResult{
			Item:     item,
			Passed:   false,
			Duration: duration,
			Error: &core.TestError{
				Message:   "failed to parse test output",
				Traceback: fmt.Sprintf("stdout: %s\nstderr: %s\nwait error: %v", stdout.String(), stderr.String(), waitErr),
			},
			Stdout: stdout.String(),
			Stderr: stderr.String(),
		}
	}

	result := core.TestResult{
		Item:     item,
		Passed:   wire.Passed,
		Duration: duration,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if wire.Error != nil {
		result.Error = &core.TestError{Message: wire.Error.Message, Traceback: wire.Error.Traceback}
	}
	return result
}

func spawnFailure(item core.TestItem, start time.Time, err error) core.TestResult {
	return core.TestResult{
		Item:     item,
		Passed:   false,
		Duration: time.Since(start),
		Error:    &core.TestError{Message: fmt.Sprintf("failed to spawn python3: %s", err)},
	}
}
