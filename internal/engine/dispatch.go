package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Record describes one completed dispatch for journaling.
type Record struct {
	Seq      int
	Line     string
	Exit     int
	Output   string
	Duration time.Duration
}

// Recorder receives a Record after every dispatch, success or failure.
// Recorders must not block; journal writes happen on the request goroutine.
type Recorder func(Record)

// Dispatcher tokenizes command lines and runs them on an Engine, numbering
// dispatches and reporting each one to the optional Recorder.
type Dispatcher struct {
	eng Engine
	rec Recorder
	seq int
}

// NewDispatcher wires an Engine to an optional Recorder.
func NewDispatcher(eng Engine, rec Recorder) *Dispatcher {
	return &Dispatcher{eng: eng, rec: rec}
}

// Dispatch splits line on whitespace and executes it. The first token is the
// command keyword and travels as argv[0]. On success the captured output
// (empty for non-reporting tools) comes back; a non-zero exit becomes a
// CommandError.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (string, error) {
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return "", fmt.Errorf("engine: empty command line")
	}
	if len(argv) > MaxArgs {
		return "", fmt.Errorf("engine: command %q has %d arguments, limit %d", argv[1], len(argv), MaxArgs)
	}

	d.seq++
	seq := d.seq
	diagf("dispatch %d: %s", seq, line)
	start := time.Now()

	exit, output, err := d.eng.Exec(ctx, argv)
	elapsed := time.Since(start)
	output = Truncate(output)

	if d.rec != nil {
		d.rec(Record{Seq: seq, Line: line, Exit: exit, Output: output, Duration: elapsed})
	}

	if err != nil {
		opsf("dispatch %d: %v", seq, err)
		return "", fmt.Errorf("engine: %q: %w", line, err)
	}
	if exit != 0 {
		opsf("dispatch %d: exit %d", seq, exit)
		return "", &CommandError{Line: line, Exit: exit}
	}
	if output != "" {
		diagf("dispatch %d: output %q", seq, output)
	}
	tracef("dispatch %d: done in %v", seq, elapsed)
	return output, nil
}
