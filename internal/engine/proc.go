package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
)

// Runner executes one external command in a directory. The production
// implementation shells out; tests substitute a fake that writes result
// files directly.
type Runner interface {
	Run(ctx context.Context, dir, bin string, args []string) (exit int, combined []byte, err error)
}

// ExecRunner runs commands through os/exec with the directory as cwd.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, bin string, args []string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), out, nil
		}
		return 0, out, fmt.Errorf("run %s: %w", bin, err)
	}
	return 0, out, nil
}

// Proc is an Engine that drives an external binary. Before each command the
// registry is materialized into the working directory as header/data pairs;
// afterwards any data files the command created or rewrote are read back and
// registered NativeOwned, keeping the registry authoritative between
// commands. Constructed per request around that request's working directory.
type Proc struct {
	reg  *cfl.Registry
	fsys fsutil.FileSystem
	dir  string
	bin  string
	run  Runner
}

// NewProc wires a subprocess engine. A nil runner gets the os/exec one.
func NewProc(reg *cfl.Registry, fsys fsutil.FileSystem, dir, bin string, run Runner) *Proc {
	if run == nil {
		run = ExecRunner{}
	}
	return &Proc{reg: reg, fsys: fsys, dir: dir, bin: bin, run: run}
}

func (p *Proc) Exec(ctx context.Context, argv []string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	if len(argv) < 2 {
		return 1, "incomplete command line", nil
	}

	if err := p.flush(); err != nil {
		return 0, "", fmt.Errorf("materialize registry: %w", err)
	}
	before, err := p.scan()
	if err != nil {
		return 0, "", fmt.Errorf("scan working directory: %w", err)
	}

	exit, combined, err := p.run.Run(ctx, p.dir, p.bin, argv[1:])
	output := Truncate(string(combined))
	if err != nil {
		return 0, output, err
	}
	if exit != 0 {
		return exit, output, nil
	}

	if err := p.collect(before); err != nil {
		return 0, output, fmt.Errorf("collect results: %w", err)
	}
	return 0, output, nil
}

// flush writes every registry entry as a header/data pair into the working
// directory so the subprocess can resolve operands by name.
func (p *Proc) flush() error {
	for _, name := range p.reg.Names() {
		buf, err := p.reg.Load(name)
		if err != nil {
			return err
		}
		v := cfl.Volume{Dims: buf.Dims(), Data: buf.Data()}
		if err := cfl.WriteVolume(p.fsys, filepath.Join(p.dir, name), v); err != nil {
			return err
		}
	}
	return nil
}

type fileMark struct {
	mtime time.Time
	size  int64
}

// scan records data-file modification times and sizes for change detection.
func (p *Proc) scan() (map[string]fileMark, error) {
	entries, err := p.fsys.ReadDir(p.dir)
	if err != nil {
		return nil, err
	}
	marks := make(map[string]fileMark)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cfl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		marks[strings.TrimSuffix(e.Name(), ".cfl")] = fileMark{mtime: info.ModTime(), size: info.Size()}
	}
	return marks, nil
}

// collect registers data files the command produced or rewrote.
func (p *Proc) collect(before map[string]fileMark) error {
	after, err := p.scan()
	if err != nil {
		return err
	}
	for base, mark := range after {
		prev, seen := before[base]
		if seen && !mark.mtime.After(prev.mtime) && mark.size == prev.size {
			continue
		}
		v, err := cfl.ReadVolume(p.fsys, filepath.Join(p.dir, base))
		if err != nil {
			return err
		}
		dims := cfl.SqueezeTrailing(v.Dims)
		if err := p.reg.Register(base, dims, v.Data, cfl.NativeOwned); err != nil {
			return err
		}
	}
	return nil
}
