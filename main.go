// Command bartbridge runs reconstruction scripts against an engine, either
// as a daemon draining a spool directory or as a one-shot CLI for a single
// job directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/halcyon-imaging/bartbridge/internal/bridge"
	"github.com/halcyon-imaging/bartbridge/internal/config"
	"github.com/halcyon-imaging/bartbridge/internal/engine"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
	"github.com/halcyon-imaging/bartbridge/internal/journal"
	"github.com/halcyon-imaging/bartbridge/internal/script"
	"github.com/halcyon-imaging/bartbridge/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the bridge configuration file")
	listenAddr  = flag.String("listen", "", "Admin listen address (overrides the config)")
	runDir      = flag.String("run", "", "Process a single job directory and exit")
	devMode     = flag.Bool("dev", false, "Run in dev mode: simulator engine and verbose logging")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

const spoolInterval = 2 * time.Second

// wireLogging routes the leveled streams of every package. Ops always goes
// to stderr; diag and trace open up in verbose mode.
func wireLogging(verbose bool) {
	var diag, trace io.Writer
	if verbose {
		diag, trace = os.Stderr, os.Stderr
	}
	bridge.SetLogWriters(os.Stderr, diag, trace)
	engine.SetLogWriters(os.Stderr, diag, trace)
	script.SetLogWriters(os.Stderr, diag)
}

// runOnce processes one job directory and writes the result pair into the
// configured output directory, named after the job.
func runOnce(ctx context.Context, fsys fsutil.FileSystem, b *bridge.Bridge, cfg *config.BridgeConfig, dir string) error {
	req, err := loadJob(fsys, dir)
	if err != nil {
		return err
	}
	res, err := b.Process(ctx, req)
	if err != nil {
		return err
	}

	outDir := cfg.GetOutputDir()
	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("prepare output directory: %w", err)
	}
	base := filepath.Join(outDir, req.Session)
	if err := writeResult(fsys, base, res); err != nil {
		return err
	}
	log.Printf("job %s done: run %s wrote %s.hdr/.cfl (series %d)", req.Session, res.RunID, base, res.Series)
	return nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadBridgeConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *devMode {
		eng, verbose := "sim", true
		cfg.Engine = &eng
		cfg.Verbose = &verbose
	}
	if *listenAddr != "" {
		cfg.Listen = listenAddr
	}
	wireLogging(cfg.GetVerbose())

	jnl, err := journal.Open(cfg.GetJournalPath())
	if err != nil {
		log.Fatalf("failed to open run journal: %v", err)
	}
	defer jnl.Close()

	b := bridge.New(cfg, jnl)
	fsys := fsutil.OSFileSystem{}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *runDir != "" {
		if err := runOnce(ctx, fsys, b, cfg, *runDir); err != nil {
			log.Fatalf("job %s failed: %v", *runDir, err)
		}
		return
	}

	spoolDir := cfg.GetSpoolDir()
	listen := cfg.GetListen()
	if spoolDir == "" && listen == "" {
		log.Fatal("nothing to do: configure spool_dir or listen, or pass -run")
	}

	var wg sync.WaitGroup

	if spoolDir != "" {
		sp := newSpooler(fsys, b, spoolDir, spoolInterval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sp.run(ctx)
			log.Print("spool routine terminated")
		}()
	}

	if listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveAdmin(ctx, jnl, listen); err != nil {
				log.Printf("admin server error: %v", err)
			}
			log.Print("admin server routine stopped")
		}()
	}

	wg.Wait()
	log.Print("graceful shutdown complete")
}
