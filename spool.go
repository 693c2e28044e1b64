package main

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/halcyon-imaging/bartbridge/internal/bridge"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
	"github.com/halcyon-imaging/bartbridge/internal/timeutil"
)

const (
	claimSuffix = ".claimed"
	doneDir     = "done"
	failedDir   = "failed"
)

// spooler drains a drop directory of reconstruction jobs. Producers deposit
// a complete job directory under the root; the spooler claims it by rename
// so a second instance (or a restart) never double-processes, runs it
// through the bridge, and moves it to done/ or failed/.
type spooler struct {
	fsys     fsutil.FileSystem
	b        *bridge.Bridge
	root     string
	interval time.Duration
	clock    timeutil.Clock
}

func newSpooler(fsys fsutil.FileSystem, b *bridge.Bridge, root string, interval time.Duration) *spooler {
	return &spooler{fsys: fsys, b: b, root: root, interval: interval, clock: timeutil.RealClock{}}
}

// run polls until the context ends. A failing scan is logged and retried on
// the next tick.
func (s *spooler) run(ctx context.Context) {
	for _, sub := range []string{doneDir, failedDir} {
		if err := s.fsys.MkdirAll(filepath.Join(s.root, sub), 0o755); err != nil {
			log.Printf("spool: prepare %s: %v", sub, err)
			return
		}
	}
	log.Printf("spool: watching %s every %s", s.root, s.interval)

	t := s.clock.NewTicker(s.interval)
	defer t.Stop()
	for {
		if err := s.scan(ctx); err != nil {
			log.Printf("spool: scan: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
	}
}

// scan claims and processes every pending job in name order.
func (s *spooler) scan(ctx context.Context) error {
	entries, err := s.fsys.ReadDir(s.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !e.IsDir() || !pendingJob(e.Name()) {
			continue
		}
		s.processJob(ctx, e.Name())
	}
	return nil
}

// pendingJob reports whether a root entry name is an unclaimed job.
func pendingJob(name string) bool {
	if name == doneDir || name == failedDir {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, claimSuffix) {
		return false
	}
	return true
}

func (s *spooler) processJob(ctx context.Context, name string) {
	dir := filepath.Join(s.root, name)
	claimed := dir + claimSuffix
	if err := s.fsys.Rename(dir, claimed); err != nil {
		// Lost the claim race, or the producer is still writing.
		log.Printf("spool: claim %s: %v", name, err)
		return
	}
	log.Printf("spool: processing %s", name)

	start := s.clock.Now()
	err := s.handle(ctx, claimed)
	dest := filepath.Join(s.root, doneDir, name)
	if err != nil {
		log.Printf("spool: job %s failed after %s: %v", name, s.clock.Since(start).Round(time.Millisecond), err)
		dest = filepath.Join(s.root, failedDir, name)
	} else {
		log.Printf("spool: job %s done in %s", name, s.clock.Since(start).Round(time.Millisecond))
	}
	if mvErr := s.fsys.Rename(claimed, dest); mvErr != nil {
		log.Printf("spool: move %s: %v", name, mvErr)
	}
}

func (s *spooler) handle(ctx context.Context, dir string) error {
	req, err := loadJob(s.fsys, dir)
	if err != nil {
		return err
	}
	res, err := s.b.Process(ctx, req)
	if err != nil {
		return err
	}
	return writeResult(s.fsys, filepath.Join(dir, jobResultBase), res)
}
