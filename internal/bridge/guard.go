package bridge

import (
	"os"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
)

// guard ties cleanup to every exit path of a request: remove the working
// directory, then release every registry entry. Dismiss keeps the files on
// disk; the registry release is unconditional so no buffer outlives a run.
type guard struct {
	dir       string
	reg       *cfl.Registry
	dismissed bool
	done      bool
}

func newGuard(dir string, reg *cfl.Registry) *guard {
	return &guard{dir: dir, reg: reg}
}

// Dismiss suppresses working-directory removal (persist-files policy).
func (g *guard) Dismiss() {
	g.dismissed = true
}

// Close runs the cleanup once; later calls are no-ops.
func (g *guard) Close() {
	if g.done {
		return
	}
	g.done = true

	if g.dismissed {
		opsf("keeping generated files in %s", g.dir)
	} else if err := os.RemoveAll(g.dir); err != nil {
		opsf("failed to remove working directory %s: %v", g.dir, err)
	}
	g.reg.ReleaseAll()
}
