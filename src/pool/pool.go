// Package pool implements the warm worker pool execution engine: a fixed
// number of long-lived target-language processes pulling tests from a shared
// queue over the framed protocol in src/workerproto, respawning once on crash
// before giving up on a test.
package pool

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taut-run/taut/src/cli/logging"
	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/embedrunner"
	"github.com/taut-run/taut/src/process"
	"github.com/taut-run/taut/src/workerproto"
)

var log = logging.Log

// task is one unit of work pulled from the shared queue, tagged with its
// position in the original input so results can be placed back in order.
type task struct {
	idx             int
	item            core.TestItem
	collectCoverage bool
}

// Pool runs tests across a fixed number of warm worker processes.
type Pool struct {
	size     int
	executor *process.Executor
}

// New returns a Pool of size warm workers, using executor to spawn and
// supervise the worker processes.
func New(size int, executor *process.Executor) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, executor: executor}
}

// RunTests runs every item, distributing them across the pool's workers, and
// invokes onResult as each completes (in completion order, not input order).
// The returned slice is in input order; any task a worker never managed to
// finish (both the attempt and the single retry failed) is reported as a
// failing result rather than silently dropped.
func (p *Pool) RunTests(items []core.TestItem, collectCoverage bool, onResult func(core.TestResult)) ([]core.TestResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	numWorkers := p.size
	if numWorkers > len(items) {
		numWorkers = len(items)
	}

	tasks := make(chan task, len(items))
	for i, item := range items {
		tasks <- task{idx: i, item: item, collectCoverage: collectCoverage}
	}
	close(tasks)

	type completed struct {
		idx    int
		result core.TestResult
	}
	results := make(chan completed, len(items))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			p.workerLoop(tasks, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]core.TestResult, len(items))
	filled := make([]bool, len(items))
	for c := range results {
		out[c.idx] = c.result
		filled[c.idx] = true
		onResult(c.result)
	}

	for i, item := range items {
		if !filled[i] {
			out[i] = notExecutedResult(item)
		}
	}
	return out, nil
}

// workerLoop spawns one worker process and drains tasks until the channel is
// closed, shutting the worker down cleanly before returning.
func (p *Pool) workerLoop(tasks <-chan task, results chan<- struct {
	idx    int
	result core.TestResult
}) {
	w, err := spawnWorker(p.executor)
	if err != nil {
		log.Error("Failed to spawn worker: %s", err)
		for t := range tasks {
			results <- struct {
				idx    int
				result core.TestResult
			}{t.idx, notExecutedResult(t.item)}
		}
		return
	}
	// w may be replaced by a respawned worker below, so shut down whichever
	// worker is current when the loop ends.
	defer func() { w.shutdown() }()

	for t := range tasks {
		result, err := w.runTest(t.item, t.collectCoverage)
		if err != nil {
			if w.alive() {
				result = workerErrorResult(t.item, fmt.Errorf("worker error: %w", err))
			} else if respawned, rerr := spawnWorker(p.executor); rerr == nil {
				w.shutdown()
				w = respawned
				result, err = w.runTest(t.item, t.collectCoverage)
				if err != nil {
					result = workerErrorResult(t.item, fmt.Errorf("worker error after respawn: %w", err))
				}
			} else {
				result = workerErrorResult(t.item, fmt.Errorf("worker crashed and respawn failed: %w", rerr))
			}
		}
		results <- struct {
			idx    int
			result core.TestResult
		}{t.idx, result}
	}
}

// worker is a single long-lived target-process connection. id is an opaque
// identifier used only to correlate log lines across a worker's respawns.
type worker struct {
	id       string
	executor *process.Executor
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *bufio.Reader
}

func spawnWorker(executor *process.Executor) (*worker, error) {
	id := uuid.New().String()
	cmd := executor.Command("", nil, "python3", "-u", "-c", embedrunner.Script)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr // worker tracebacks go straight to the terminal
	if err := executor.Start(cmd); err != nil {
		return nil, err
	}
	log.Debug("Spawned worker %s (pid %d)", id, cmd.Process.Pid)
	return &worker{id: id, executor: executor, cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

func (w *worker) runTest(item core.TestItem, collectCoverage bool) (core.TestResult, error) {
	start := time.Now()
	req := workerproto.Request{
		ID:              workerproto.NextRequestID(),
		File:            item.ID.SourcePath,
		Function:        item.ID.Function,
		CollectCoverage: collectCoverage,
	}
	if item.ID.Class != "" {
		class := item.ID.Class
		req.Class = &class
	}
	if err := workerproto.WriteFrame(w.stdin, req); err != nil {
		return core.TestResult{}, fmt.Errorf("sending request: %w", err)
	}

	var resp workerproto.Response
	if err := workerproto.ReadFrame(w.stdout, &resp); err != nil {
		return core.TestResult{}, fmt.Errorf("reading response: %w", err)
	}

	result := core.TestResult{
		Item:     item,
		Passed:   resp.Passed,
		Duration: time.Since(start),
		Coverage: resp.Coverage,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}
	if resp.Error != nil {
		result.Error = &core.TestError{Message: resp.Error.Message, Traceback: resp.Error.Traceback}
	}
	return result, nil
}

func (w *worker) shutdown() {
	_ = workerproto.WriteShutdown(w.stdin)
	_ = w.executor.Wait(context.Background(), w.cmd)
}

func (w *worker) alive() bool {
	return w.cmd.ProcessState == nil
}

func workerErrorResult(item core.TestItem, err error) core.TestResult {
	return core.TestResult{
		Item:  item,
		Error: &core.TestError{Message: err.Error()},
	}
}

func notExecutedResult(item core.TestItem) core.TestResult {
	return core.TestResult{
		Item:  item,
		Error: &core.TestError{Message: "test was not executed (worker pool error)"},
	}
}
