// Package bridge executes reconstruction requests against a command engine.
//
// A request carries the pipeline's 7-D k-space volume, an optional
// calibration reference, and the session values derived from the acquisition
// header. Processing registers the volumes under conventional names, folds
// them into the shapes the user script expects, interprets the script,
// unfolds the output back to the pipeline convention, and extracts the final
// volume. Requests run one at a time process-wide.
package bridge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/config"
	"github.com/halcyon-imaging/bartbridge/internal/engine"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
	"github.com/halcyon-imaging/bartbridge/internal/journal"
	"github.com/halcyon-imaging/bartbridge/internal/script"
	"github.com/halcyon-imaging/bartbridge/internal/snapshot"
)

// Request is one reconstruction job.
type Request struct {
	// Session labels the job in logs and the journal. Free-form.
	Session string

	// Header carries the acquisition values the script parameters derive
	// from.
	Header HeaderSummary

	// Data is the 7-D measurement volume, [E0, E1, E2, CHA, N, S, LOC].
	Data cfl.Volume

	// Reference is the calibration volume, or nil when the measurement
	// data calibrates itself.
	Reference *cfl.Volume
}

// Result is the reconstructed volume handed back to the pipeline.
type Result struct {
	RunID string

	// Name is the buffer the script produced, before unfolding.
	Name string

	// Series is the image series index for downstream headers.
	Series int

	Volume cfl.Volume
}

// Bridge owns the registry and processes requests serially.
type Bridge struct {
	mu   sync.Mutex
	cfg  *config.BridgeConfig
	reg  *cfl.Registry
	jnl  *journal.Journal // nil disables journaling
	snap *snapshot.Plotter

	fsys  fsutil.FileSystem
	run   engine.Runner // nil selects the subprocess runner
	mount func(dir string, sizeMB int) error
}

// New wires a bridge from configuration. jnl may be nil.
func New(cfg *config.BridgeConfig, jnl *journal.Journal) *Bridge {
	return &Bridge{
		cfg:   cfg,
		reg:   cfl.NewRegistry(),
		jnl:   jnl,
		snap:  snapshot.NewPlotter(cfg.GetSnapshotDir()),
		fsys:  fsutil.OSFileSystem{},
		mount: mountTmpfs,
	}
}

// run tracks one request through its lifecycle.
type run struct {
	id    string
	state State
}

// Process executes one request start to finish. Concurrent callers queue on
// the bridge lock; the registry's conventional names admit only one run at a
// time.
func (b *Bridge) Process(ctx context.Context, req *Request) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	started := time.Now()
	r := &run{id: uuid.New().String(), state: StateIdle}
	opsf("run %s: session %q script %q engine %s",
		r.id, req.Session, b.cfg.GetScriptName(), b.cfg.GetEngine())

	params, err := SessionParams(req.Header)
	if err != nil {
		opsf("run %s: %v", r.id, err)
		return nil, err
	}

	scriptPath, err := prepareScript(b.cfg.GetScriptDir(), b.cfg.GetScriptName())
	if err != nil {
		opsf("run %s: %v", r.id, err)
		return nil, err
	}

	workDir, err := makeWorkDir(b.cfg.GetWorkingDir())
	if err != nil {
		opsf("run %s: %v", r.id, err)
		return nil, err
	}

	g := newGuard(workDir, b.reg)
	defer func() {
		g.Close()
		r.advance(StateReleased)
	}()

	if b.cfg.GetCacheToTmpfs() && !b.cfg.GetPersistFiles() {
		if err := b.mount(workDir, b.cfg.GetCacheSizeMB()); err != nil {
			opsf("run %s: %v", r.id, err)
			return nil, err
		}
	}

	b.journalStart(r, req)
	res, err := b.process(ctx, r, req, g, params, scriptPath, workDir)
	b.journalFinish(r, res, err, time.Since(started))

	if err != nil {
		opsf("run %s: failed after %s: %v",
			r.id, time.Since(started).Round(time.Millisecond), err)
		return nil, err
	}
	opsf("run %s: produced %q dims %v series %d in %s",
		r.id, res.Name, res.Volume.Dims, res.Series,
		time.Since(started).Round(time.Millisecond))
	return res, nil
}

func (b *Bridge) process(ctx context.Context, r *run, req *Request, g *guard,
	params script.Parameters, scriptPath, workDir string) (*Result, error) {

	eng, err := b.buildEngine(workDir)
	if err != nil {
		return nil, err
	}
	disp := engine.NewDispatcher(eng, b.recorder(r))

	if err := b.register(req); err != nil {
		return nil, err
	}
	r.advance(StateRegistered)

	if err := b.fold(ctx, disp, req); err != nil {
		return nil, err
	}
	r.advance(StateFolded)

	f, err := os.Open(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("open command script: %w", err)
	}
	r.advance(StateScriptRunning)
	sres, err := script.NewRunner(disp).Run(ctx, f, params)
	f.Close()
	if err != nil {
		return nil, err
	}
	diagf("run %s: script done, %d lines, output %q", r.id, sres.Lines, sres.Output)

	m, err := b.merge(ctx, disp, sres.Output)
	if err != nil {
		return nil, err
	}
	r.advance(StateUnfolded)

	// Generated files survive only a fully successful unfold.
	if b.cfg.GetPersistFiles() {
		g.Dismiss()
	}

	vol, err := extract(m)
	if err != nil {
		return nil, err
	}
	r.advance(StateExtracted)

	res := &Result{
		RunID:  r.id,
		Name:   sres.Output,
		Series: b.cfg.GetImageSeries() + 1,
		Volume: vol,
	}
	b.saveSnapshot(r, res)
	return res, nil
}

// buildEngine selects the configured engine implementation. The work
// directory holds any headers the subprocess engine writes.
func (b *Bridge) buildEngine(workDir string) (engine.Engine, error) {
	switch name := b.cfg.GetEngine(); name {
	case "sim":
		return engine.NewSim(b.reg), nil
	case "bart":
		return engine.NewProc(b.reg, b.fsys, workDir, b.cfg.GetBartPath(), b.run), nil
	default:
		return nil, fmt.Errorf("bridge: unknown engine %q", name)
	}
}

// recorder journals every dispatched command. Journal write failures are
// logged and swallowed: observability never fails a reconstruction.
func (b *Bridge) recorder(r *run) engine.Recorder {
	if b.jnl == nil {
		return nil
	}
	return func(rec engine.Record) {
		cmd := &journal.Command{
			RunID:      r.id,
			Seq:        rec.Seq,
			Line:       rec.Line,
			ExitCode:   rec.Exit,
			Output:     rec.Output,
			DurationMS: rec.Duration.Milliseconds(),
		}
		if err := b.jnl.InsertCommand(cmd); err != nil {
			opsf("run %s: journal command %d: %v", r.id, rec.Seq, err)
		}
	}
}

func (b *Bridge) journalStart(r *run, req *Request) {
	if b.jnl == nil {
		return
	}
	jr := &journal.Run{
		RunID:   r.id,
		Session: req.Session,
		Script:  b.cfg.GetScriptName(),
		Engine:  b.cfg.GetEngine(),
	}
	if err := b.jnl.InsertRun(jr); err != nil {
		opsf("run %s: journal start: %v", r.id, err)
	}
}

func (b *Bridge) journalFinish(r *run, res *Result, runErr error, took time.Duration) {
	if b.jnl == nil {
		return
	}
	jr := &journal.Run{
		RunID:      r.id,
		Status:     journal.StatusSucceeded,
		DurationMS: took.Milliseconds(),
	}
	if runErr != nil {
		jr.Status = journal.StatusFailed
		jr.Error = runErr.Error()
	} else {
		jr.OutputName = res.Name
		jr.Series = res.Series
	}
	if err := b.jnl.FinishRun(jr); err != nil {
		opsf("run %s: journal finish: %v", r.id, err)
	}
}

// saveSnapshot renders the result volume to diagnostic PNGs when a snapshot
// directory is configured. Failures are logged and swallowed.
func (b *Bridge) saveSnapshot(r *run, res *Result) {
	if !b.snap.Enabled() {
		return
	}
	base := fmt.Sprintf("%s_%s", r.id, res.Name)
	if err := b.snap.Save(base, res.Volume.Dims, res.Volume.Data); err != nil {
		opsf("run %s: snapshot: %v", r.id, err)
	}
}
