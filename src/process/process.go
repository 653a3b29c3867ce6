// Package process implements generic subprocess management for the test runner.
// It underlies both the single-shot runner (one process per test) and the worker
// pool (long-lived worker processes), which both need to start, kill and clean up
// after child processes in the same way.
package process

import (
	"context"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/taut-run/taut/src/cli"
	"github.com/taut-run/taut/src/cli/logging"
)

var log = logging.Log

// An Executor starts and supervises a set of subprocesses, and registers as an
// AtExit handler so they all get terminated if we are killed ourselves.
type Executor struct {
	processes map[*exec.Cmd]<-chan error
	mutex     sync.Mutex
}

// New returns a new Executor.
func New() *Executor {
	e := &Executor{
		processes: map[*exec.Cmd]<-chan error{},
	}
	cli.AtExit(e.killAll)
	return e
}

// Command builds an *exec.Cmd for argv, set up in its own process group so that
// KillProcess can terminate it along with anything it spawned.
func (e *Executor) Command(dir string, env []string, argv ...string) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	setpgid(cmd)
	return cmd
}

// Start starts cmd and registers it with the executor so it can be killed later.
func (e *Executor) Start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	ch := make(chan error, 1)
	e.registerProcess(cmd, ch)
	go func() {
		ch <- cmd.Wait()
	}()
	return nil
}

// Wait blocks until cmd has exited, honouring ctx's deadline. On timeout it kills
// cmd and returns ctx.Err(). Either way the process is deregistered before returning.
func (e *Executor) Wait(ctx context.Context, cmd *exec.Cmd) error {
	defer e.removeProcess(cmd)
	ch := e.processChan(cmd)
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		e.KillProcess(cmd)
		return ctx.Err()
	}
}

// KillProcess kills a process, sending SIGTERM first and escalating to SIGKILL
// shortly after if it hasn't exited by then.
func (e *Executor) KillProcess(cmd *exec.Cmd) {
	e.killProcess(cmd, e.processChan(cmd))
}

func (e *Executor) killProcess(cmd *exec.Cmd, ch <-chan error) {
	if ch == nil {
		return
	}
	success := sendSignal(cmd, ch, syscall.SIGTERM, 50*time.Millisecond)
	if !sendSignal(cmd, ch, syscall.SIGKILL, time.Second) && !success {
		log.Error("Failed to kill worker process %d", pid(cmd))
	}
	e.removeProcess(cmd)
}

func (e *Executor) registerProcess(cmd *exec.Cmd, ch <-chan error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.processes[cmd] = ch
}

func (e *Executor) removeProcess(cmd *exec.Cmd) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.processes, cmd)
}

func (e *Executor) processChan(cmd *exec.Cmd) <-chan error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.processes[cmd]
}

// sendSignal sends sig to cmd's process group and reports whether it exited within timeout.
func sendSignal(cmd *exec.Cmd, ch <-chan error, sig syscall.Signal, timeout time.Duration) bool {
	if cmd.Process == nil {
		return false
	}
	killGroup(cmd, sig)
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// killAll kills every subprocess this executor currently knows about.
func (e *Executor) killAll() {
	e.mutex.Lock()
	var wg sync.WaitGroup
	procs := make(map[*exec.Cmd]<-chan error, len(e.processes))
	for cmd, ch := range e.processes {
		procs[cmd] = ch
	}
	e.mutex.Unlock()
	wg.Add(len(procs))
	for cmd, ch := range procs {
		go func(cmd *exec.Cmd, ch <-chan error) {
			defer wg.Done()
			e.killProcess(cmd, ch)
		}(cmd, ch)
	}
	wg.Wait()
}

func pid(cmd *exec.Cmd) int {
	if cmd.Process == nil {
		return -1
	}
	return cmd.Process.Pid
}
