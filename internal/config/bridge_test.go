package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadBridgeConfig_Partial(t *testing.T) {
	path := writeConfig(t, `{"script_name": "grappa.sh", "verbose": true}`)

	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("LoadBridgeConfig failed: %v", err)
	}
	if !cfg.GetVerbose() {
		t.Error("GetVerbose = false, want true from file")
	}
	if cfg.GetScriptName() != "grappa.sh" {
		t.Errorf("GetScriptName = %q, want grappa.sh", cfg.GetScriptName())
	}
	// Unset fields fall back to defaults.
	if cfg.GetWorkingDir() != "/tmp/bartbridge/" {
		t.Errorf("GetWorkingDir = %q, want default", cfg.GetWorkingDir())
	}
	if cfg.GetCacheSizeMB() != 50 {
		t.Errorf("GetCacheSizeMB = %d, want default 50", cfg.GetCacheSizeMB())
	}
	if cfg.GetEngine() != "sim" {
		t.Errorf("GetEngine = %q, want default sim", cfg.GetEngine())
	}
}

func TestLoadBridgeConfig_FullDocument(t *testing.T) {
	path := writeConfig(t, `{
		"verbose": true,
		"working_dir": "/scratch/recon/",
		"cache_to_tmpfs": true,
		"cache_size_mb": 200,
		"persist_files": true,
		"script_dir": "/opt/scripts",
		"script_name": "espirit.sh",
		"engine": "bart",
		"bart_path": "/usr/local/bin/bart",
		"image_series": 3,
		"journal_path": "/var/lib/bridge/journal.db",
		"spool_dir": "/var/spool/bridge",
		"output_dir": "/data/out",
		"listen": "127.0.0.1:8090",
		"snapshot_dir": "/data/snaps"
	}`)

	cfg, err := LoadBridgeConfig(path)
	if err != nil {
		t.Fatalf("LoadBridgeConfig failed: %v", err)
	}
	if cfg.GetWorkingDir() != "/scratch/recon/" {
		t.Errorf("GetWorkingDir = %q", cfg.GetWorkingDir())
	}
	if !cfg.GetCacheToTmpfs() || cfg.GetCacheSizeMB() != 200 {
		t.Errorf("tmpfs settings = %v/%d, want true/200", cfg.GetCacheToTmpfs(), cfg.GetCacheSizeMB())
	}
	if !cfg.GetPersistFiles() {
		t.Error("GetPersistFiles = false, want true")
	}
	if cfg.GetScriptDir() != "/opt/scripts" || cfg.GetScriptName() != "espirit.sh" {
		t.Errorf("script = %q/%q", cfg.GetScriptDir(), cfg.GetScriptName())
	}
	if cfg.GetEngine() != "bart" || cfg.GetBartPath() != "/usr/local/bin/bart" {
		t.Errorf("engine = %q/%q", cfg.GetEngine(), cfg.GetBartPath())
	}
	if cfg.GetImageSeries() != 3 {
		t.Errorf("GetImageSeries = %d, want 3", cfg.GetImageSeries())
	}
	if cfg.GetJournalPath() != "/var/lib/bridge/journal.db" {
		t.Errorf("GetJournalPath = %q", cfg.GetJournalPath())
	}
	if cfg.GetSpoolDir() != "/var/spool/bridge" || cfg.GetOutputDir() != "/data/out" {
		t.Errorf("spool/output = %q/%q", cfg.GetSpoolDir(), cfg.GetOutputDir())
	}
	if cfg.GetListen() != "127.0.0.1:8090" || cfg.GetSnapshotDir() != "/data/snaps" {
		t.Errorf("listen/snapshot = %q/%q", cfg.GetListen(), cfg.GetSnapshotDir())
	}
}

func TestLoadBridgeConfig_RejectsNonJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte("a: b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadBridgeConfig(path); err == nil {
		t.Error("LoadBridgeConfig accepted a non-.json path")
	}
}

func TestLoadBridgeConfig_Missing(t *testing.T) {
	if _, err := LoadBridgeConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("LoadBridgeConfig of missing file succeeded")
	}
}

func TestLoadBridgeConfig_BadJSON(t *testing.T) {
	path := writeConfig(t, `{"verbose": `)
	if _, err := LoadBridgeConfig(path); err == nil {
		t.Error("LoadBridgeConfig accepted truncated JSON")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  BridgeConfig
		ok   bool
	}{
		{"empty", BridgeConfig{}, true},
		{"good engine", BridgeConfig{Engine: ptrString("bart")}, true},
		{"bad engine", BridgeConfig{Engine: ptrString("octave")}, false},
		{"empty working dir", BridgeConfig{WorkingDir: ptrString("")}, false},
		{"zero cache", BridgeConfig{CacheSizeMB: ptrInt(0)}, false},
		{"negative series", BridgeConfig{ImageSeries: ptrInt(-1)}, false},
		{"verbose only", BridgeConfig{Verbose: ptrBool(true)}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok && err != nil {
			t.Errorf("%s: Validate = %v, want nil", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: Validate = nil, want error", tc.name)
		}
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("defaults file not reachable from test cwd: %v", r)
		}
	}()
	cfg := MustLoadDefaultConfig()
	if cfg.GetWorkingDir() != "/tmp/bartbridge/" {
		t.Errorf("defaults working_dir = %q", cfg.GetWorkingDir())
	}
	if cfg.GetEngine() != "sim" {
		t.Errorf("defaults engine = %q", cfg.GetEngine())
	}
}
