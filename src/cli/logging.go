// Package cli contains utilities shared by the command-line entry points: process
// lifecycle management (AtExit, signal handling) and logging setup.
package cli

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("cli")

// A Verbosity is used as a flag to define logging verbosity.
type Verbosity int

// Values a Verbosity can take, matching the go-logging levels they translate to.
const (
	VerbosityCritical Verbosity = iota
	VerbosityError
	VerbosityWarning
	VerbosityNotice
	VerbosityInfo
	VerbosityDebug
)

// UnmarshalFlag lets Verbosity be set from a command-line flag by level name
// (critical, error, warning, notice, info, debug) instead of a raw integer.
func (v *Verbosity) UnmarshalFlag(value string) error {
	switch strings.ToLower(value) {
	case "critical":
		*v = VerbosityCritical
	case "error":
		*v = VerbosityError
	case "warning", "warn":
		*v = VerbosityWarning
	case "notice":
		*v = VerbosityNotice
	case "info":
		*v = VerbosityInfo
	case "debug":
		*v = VerbosityDebug
	default:
		return fmt.Errorf("unknown verbosity %q", value)
	}
	return nil
}

var fileLogLevel = logging.WARNING
var fileBackend logging.Backend

// InitLogging initialises the stderr logging backend at the given verbosity.
func InitLogging(verbosity Verbosity) {
	setLogBackend(logging.NewLogBackend(os.Stderr, "", 0), logging.Level(verbosity))
}

// InitFileLogging additionally tees logging output to logFile at logFileLevel, independently
// of the stderr verbosity.
func InitFileLogging(logFile string, logFileLevel Verbosity, stderrLevel Verbosity) error {
	fileLogLevel = logging.Level(logFileLevel)
	if err := os.MkdirAll(path.Dir(logFile), 0775); err != nil {
		return err
	}
	file, err := os.Create(logFile)
	if err != nil {
		return err
	}
	fileBackend = logging.NewBackendFormatter(logging.NewLogBackend(file, "", 0), logFormatter(false))
	setLogBackend(logging.NewLogBackend(os.Stderr, "", 0), logging.Level(stderrLevel))
	AtExit(func() {
		fileBackend = nil
		file.Close()
	})
	return nil
}

func logFormatter(coloured bool) logging.Formatter {
	formatStr := "%{time:15:04:05.000} %{level:7s}: %{message}"
	if coloured {
		formatStr = "%{color}" + formatStr + "%{color:reset}"
	}
	return logging.MustStringFormatter(formatStr)
}

func setLogBackend(backend logging.Backend, level logging.Level) {
	stderr := logging.AddModuleLevel(logging.NewBackendFormatter(backend, logFormatter(true)))
	stderr.SetLevel(level, "")
	if fileBackend == nil {
		logging.SetBackend(stderr)
		return
	}
	file := logging.AddModuleLevel(fileBackend)
	file.SetLevel(fileLogLevel, "")
	logging.SetBackend(stderr, file)
}
