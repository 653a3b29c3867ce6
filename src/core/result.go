package core

import "time"

// TestError carries the failure reported by a test, either an assertion failure
// or an uncaught exception from inside the target.
type TestError struct {
	Message   string
	Traceback string
}

// TestResult is the outcome of running (or skipping) one test.
type TestResult struct {
	Item       TestItem
	Passed     bool
	Duration   time.Duration
	Error      *TestError
	Skipped    bool
	SkipReason string
	// Coverage maps source path to the sorted set of lines touched, present only
	// when coverage collection was requested and the test actually ran.
	Coverage map[string][]int
	Stdout   string
	Stderr   string
}

// SkippedResult builds a TestResult for a test that was never executed, as required
// by the skipped-test factory the core must provide to its caller.
func SkippedResult(item TestItem, reason string) TestResult {
	return TestResult{
		Item:       item,
		Passed:     true,
		Skipped:    true,
		SkipReason: reason,
	}
}

// TestResults is the full outcome of a run: every result in input order, plus the
// total wall-clock time the run took.
type TestResults struct {
	Results        []TestResult
	TotalDuration  time.Duration
}

// AllPassed reports whether every result passed (skipped tests count as passed).
func (r TestResults) AllPassed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// PassedCount returns how many results passed.
func (r TestResults) PassedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Passed {
			n++
		}
	}
	return n
}

// FailedCount returns how many results did not pass.
func (r TestResults) FailedCount() int {
	return len(r.Results) - r.PassedCount()
}
