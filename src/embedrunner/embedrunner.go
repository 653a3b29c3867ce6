// Package embedrunner embeds the in-target runner: the Python source a worker
// process runs under `python3 -u -c`, implementing the setUp/test/tearDown
// execution contract and line-tracing coverage capture used by the warm worker
// pool. The single-shot runner (src/runner) carries its own, simpler script.
package embedrunner

import _ "embed"

// Script is the complete in-target runner source, embedded at compile time
// from worker.py so the worker pool's side of the protocol lives in one file
// kept in sync with src/workerproto's wire types.
//
//go:embed worker.py
var Script string

// StdlibMarkers are the path fragments the tracing hook excludes from
// coverage, matching worker.py's own _is_stdlib_path.
var StdlibMarkers = []string{"site-packages", "lib/python", "/usr/lib"}
