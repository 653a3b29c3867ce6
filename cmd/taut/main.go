package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	flags "github.com/thought-machine/go-flags"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/taut-run/taut/src/blocks"
	"github.com/taut-run/taut/src/cachedir"
	"github.com/taut-run/taut/src/cli"
	"github.com/taut-run/taut/src/cli/logging"
	"github.com/taut-run/taut/src/core"
	"github.com/taut-run/taut/src/depdb"
	"github.com/taut-run/taut/src/pool"
	"github.com/taut-run/taut/src/process"
	"github.com/taut-run/taut/src/runner"
	"github.com/taut-run/taut/src/selector"
)

var log = logging.Log

var opts struct {
	Usage string `usage:"taut is an incremental test runner: it checksums your tests' dependencies and skips whatever hasn't changed."`

	OutputFlags struct {
		Verbosity cli.Verbosity `short:"v" long:"verbosity" description:"Verbosity of output (critical, error, warning, notice, info, debug)" default:"warning"`
		LogFile   string        `long:"log_file" description:"File to echo full logging output to"`
	} `group:"Options controlling output & logging"`

	Run struct {
		Jobs        int    `short:"j" long:"jobs" description:"Number of concurrent workers/processes. Default is GOMAXPROCS."`
		Warm        bool   `long:"warm" description:"Use the warm worker pool instead of one process per test."`
		Force       bool   `short:"f" long:"force" description:"Run every discovered test, ignoring the dependency store."`
		Filter      string `long:"filter" description:"Only run tests whose function or class name contains this substring."`
		Args        struct {
			Paths []string `positional-arg-name:"paths" description:"Root files or directories to search for tests"`
		} `positional-args:"true"`
	} `command:"run" description:"Discover and run tests, skipping anything unaffected since the last run"`

	Cache struct {
		Info  struct{} `command:"info" description:"Report the size and contents of the project's cache directory"`
		Clear struct{} `command:"clear" description:"Delete the project's cache directory"`
	} `command:"cache" description:"Inspect or clear the on-disk dependency database"`
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cli.InitLogging(opts.OutputFlags.Verbosity)
	if opts.OutputFlags.LogFile != "" {
		if err := cli.InitFileLogging(opts.OutputFlags.LogFile, cli.VerbosityDebug, opts.OutputFlags.Verbosity); err != nil {
			log.Error("Failed to set up file logging: %s", err)
		}
	}
	if _, err := maxprocs.Set(maxprocs.Logger(log.Info)); err != nil {
		log.Error("Failed to set GOMAXPROCS: %s", err)
	}

	command := parser.Active
	if command == nil {
		os.Exit(1)
	}

	var err error
	switch command.Name {
	case "run":
		err = runCommand()
	case "info":
		err = cacheInfo()
	case "clear":
		err = cacheClear()
	}
	if err != nil {
		log.Error("%s", err)
		os.Exit(1)
	}
}

func runCommand() error {
	roots := opts.Run.Args.Paths
	if len(roots) == 0 {
		roots = []string{"."}
	}
	jobs := opts.Run.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	extractor, err := blocks.New()
	if err != nil {
		return fmt.Errorf("initialising extractor: %w", err)
	}
	defer extractor.Close()

	cacheDir, err := cachedir.Ensure()
	if err != nil {
		return fmt.Errorf("preparing cache directory: %w", err)
	}
	store := depdb.Load(cacheDir)
	defer store.Save(cacheDir)

	sel := selector.New(extractor, store)
	index, err := sel.Index(roots)
	if err != nil {
		log.Warning("Some files failed to parse: %s", err)
	}

	tests := selector.Filter(index.Tests, opts.Run.Filter)

	var toRun []core.TestItem
	results := make([]core.TestResult, 0, len(tests))
	for _, item := range tests {
		if !opts.Run.Force {
			if marked, ok := skippedByMarker(item); ok {
				results = append(results, marked)
				continue
			}
			if store.NeedsRun(item.ID) == core.CanSkip {
				results = append(results, core.SkippedResult(item, "unchanged since last run"))
				continue
			}
		}
		toRun = append(toRun, item)
	}

	start := time.Now()
	executor := process.New()

	onResult := func(r core.TestResult) {
		recordResult(store, r, index.FileBlocks)
		printResult(r)
	}

	if opts.Run.Warm {
		p := pool.New(jobs, executor)
		ran, _ := p.RunTests(toRun, true, onResult)
		results = append(results, ran...)
	} else {
		r := runner.New(executor)
		out, err := r.RunTests(toRun, jobs)
		if err != nil {
			return err
		}
		for _, res := range out.Results {
			onResult(res)
		}
		results = append(results, out.Results...)
	}

	summary := core.TestResults{Results: results, TotalDuration: time.Since(start)}
	fmt.Printf("\n%d passed, %d failed in %s\n", summary.PassedCount(), summary.FailedCount(), summary.TotalDuration.Round(time.Millisecond))
	if !summary.AllPassed() {
		os.Exit(1)
	}
	return nil
}

// recordResult feeds a completed (non-skipped) result back into the
// dependency store, always recording a row even with empty coverage so the
// test is known and NeverRun doesn't fire again.
func recordResult(store *depdb.Store, r core.TestResult, index map[string]core.FileBlocks) {
	if r.Skipped {
		return
	}
	store.Record(r.Item.ID, r.Coverage, r.Passed, index)
}

func skippedByMarker(item core.TestItem) (core.TestResult, bool) {
	if core.IsSkipped(item.Markers) {
		return core.SkippedResult(item, core.SkipReason(item.Markers)), true
	}
	return core.TestResult{}, false
}

func printResult(r core.TestResult) {
	status := "PASS"
	if r.Skipped {
		status = "SKIP"
	} else if !r.Passed {
		status = "FAIL"
	}
	fmt.Printf("%s  %s\n", status, r.Item.ID.String())
	if !r.Passed && !r.Skipped && r.Error != nil {
		fmt.Println(r.Error.Message)
	}
}

func cacheInfo() error {
	stats := cachedir.Info()
	fmt.Printf("cache dir: %s\n", stats.Dir)
	fmt.Printf("exists: %v\n", stats.Exists)
	fmt.Printf("size: %s\n", stats.HumanSize())
	fmt.Printf("files: %d\n", stats.FileCount)
	return nil
}

func cacheClear() error {
	stats, err := cachedir.Clear()
	if err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	fmt.Printf("removed %s (%d files) from %s\n", stats.HumanSize(), stats.FileCount, stats.Dir)
	return nil
}
