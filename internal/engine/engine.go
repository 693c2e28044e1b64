// Package engine runs reconstruction commands against named complex buffers.
// A Dispatcher tokenizes command lines and hands them to an Engine, either
// the in-process simulator or a subprocess wrapper around the real binary.
package engine

import (
	"context"
	"errors"
	"fmt"
)

const (
	// MaxArgs caps the argument vector of a single command, argv[0]
	// included. Longer lines are rejected outright rather than truncated.
	MaxArgs = 256

	// OutputLimit bounds the captured text output of one command in bytes.
	OutputLimit = 512
)

// Engine executes one tokenized command against the shared buffer registry.
// Exec returns the command's exit code and its captured text output,
// truncated to OutputLimit. A non-nil error means the command could not be
// run at all; command failure is signalled by a non-zero exit code.
type Engine interface {
	Exec(ctx context.Context, argv []string) (exit int, output string, err error)
}

// ErrCommandFailed is the sentinel all CommandError values unwrap to.
var ErrCommandFailed = errors.New("engine: command failed")

// CommandError reports a command that ran and exited non-zero. Match with
// errors.Is(err, ErrCommandFailed) or errors.As for the exit code.
type CommandError struct {
	Line string
	Exit int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Line, e.Exit)
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// reportingCommands are the tools that write their result as text instead of
// (or in addition to) an output buffer. For everything else a successful run
// produces no output.
var reportingCommands = map[string]bool{
	"bitmask": true,
	"estdims": true,
	"estvar":  true,
	"nrmse":   true,
	"sdot":    true,
	"show":    true,
	"version": true,
}

// ReportsText says whether the named tool communicates its result on stdout.
func ReportsText(tool string) bool {
	return reportingCommands[tool]
}

// Truncate bounds s to OutputLimit bytes.
func Truncate(s string) string {
	if len(s) > OutputLimit {
		return s[:OutputLimit]
	}
	return s
}
