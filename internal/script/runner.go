package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoCommands reports a script that executed zero command lines; such a
// run has no output buffer to hand downstream.
var ErrNoCommands = errors.New("script: no command lines executed")

// Dispatcher runs one substituted command line. Satisfied by
// engine.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, line string) (output string, err error)
}

// Result summarizes a completed script run.
type Result struct {
	// Output names the buffer the script produced: the last whitespace
	// token of the last executed line.
	Output string

	// Lines counts the command lines executed.
	Lines int

	// Unknown lists parameter identifiers the script referenced but the
	// session did not define, in encounter order.
	Unknown []string
}

// Runner feeds scripts through a Dispatcher.
type Runner struct {
	d Dispatcher
}

// NewRunner wires a Runner to its Dispatcher.
func NewRunner(d Dispatcher) *Runner {
	return &Runner{d: d}
}

// Run interprets the script line by line: strip everything from the first
// '#', trim, skip blank lines and lines whose first token is not the command
// keyword, substitute parameters, dispatch. The first failing line aborts the
// run; later lines never execute.
func (r *Runner) Run(ctx context.Context, src io.Reader, params Parameters) (Result, error) {
	var res Result
	lastLine := ""

	scanner := bufio.NewScanner(src)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Fields(line)[0] != "bart" {
			diagf("line %d: skipping %q", n, line)
			continue
		}

		subst, unknown := params.Substitute(line)
		for _, name := range unknown {
			opsf("line %d: %v: $%s left as literal", n, ErrUnknownParameter, name)
		}
		res.Unknown = append(res.Unknown, unknown...)

		if _, err := r.d.Dispatch(ctx, subst); err != nil {
			return res, fmt.Errorf("script line %d: %w", n, err)
		}
		res.Lines++
		lastLine = subst
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("script: read: %w", err)
	}

	if res.Lines == 0 {
		return res, ErrNoCommands
	}
	fields := strings.Fields(lastLine)
	res.Output = fields[len(fields)-1]
	return res, nil
}
