package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical bridge defaults file.
// This is the single source of truth for all default bridge settings.
const DefaultConfigPath = "config/bridge.defaults.json"

// BridgeConfig represents the root configuration for the reconstruction
// bridge. The schema doubles as the daemon's startup file and the payload
// of runtime reconfiguration, so partial documents are valid.
type BridgeConfig struct {
	// Logging
	Verbose *bool `json:"verbose,omitempty"`

	// Working storage
	WorkingDir   *string `json:"working_dir,omitempty"`
	CacheToTmpfs *bool   `json:"cache_to_tmpfs,omitempty"`
	CacheSizeMB  *int    `json:"cache_size_mb,omitempty"`
	PersistFiles *bool   `json:"persist_files,omitempty"`

	// Script selection
	ScriptDir  *string `json:"script_dir,omitempty"`
	ScriptName *string `json:"script_name,omitempty"`

	// Engine selection
	Engine   *string `json:"engine,omitempty"` // "sim" or "bart"
	BartPath *string `json:"bart_path,omitempty"`

	// Result labeling
	ImageSeries *int `json:"image_series,omitempty"`

	// Daemon surfaces
	JournalPath *string `json:"journal_path,omitempty"`
	SpoolDir    *string `json:"spool_dir,omitempty"`
	OutputDir   *string `json:"output_dir,omitempty"`
	Listen      *string `json:"listen,omitempty"`
	SnapshotDir *string `json:"snapshot_dir,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyBridgeConfig returns a BridgeConfig with all fields set to nil.
// Use LoadBridgeConfig to load actual values from a file.
func EmptyBridgeConfig() *BridgeConfig {
	return &BridgeConfig{}
}

// LoadBridgeConfig loads a BridgeConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyBridgeConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical bridge defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *BridgeConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadBridgeConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *BridgeConfig) Validate() error {
	if c.WorkingDir != nil && *c.WorkingDir == "" {
		return fmt.Errorf("working_dir must not be empty when set")
	}

	if c.CacheSizeMB != nil && *c.CacheSizeMB < 1 {
		return fmt.Errorf("cache_size_mb must be positive, got %d", *c.CacheSizeMB)
	}

	if c.ImageSeries != nil && *c.ImageSeries < 0 {
		return fmt.Errorf("image_series must be non-negative, got %d", *c.ImageSeries)
	}

	if c.Engine != nil {
		switch *c.Engine {
		case "", "sim", "bart":
		default:
			return fmt.Errorf("engine must be \"sim\" or \"bart\", got %q", *c.Engine)
		}
	}

	return nil
}

// GetVerbose returns the verbose value or the default.
func (c *BridgeConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}

// GetWorkingDir returns the working_dir value or the default.
func (c *BridgeConfig) GetWorkingDir() string {
	if c.WorkingDir == nil || *c.WorkingDir == "" {
		return "/tmp/bartbridge/"
	}
	return *c.WorkingDir
}

// GetCacheToTmpfs returns the cache_to_tmpfs value or the default.
func (c *BridgeConfig) GetCacheToTmpfs() bool {
	if c.CacheToTmpfs == nil {
		return false
	}
	return *c.CacheToTmpfs
}

// GetCacheSizeMB returns the cache_size_mb value or the default.
func (c *BridgeConfig) GetCacheSizeMB() int {
	if c.CacheSizeMB == nil {
		return 50
	}
	return *c.CacheSizeMB
}

// GetPersistFiles returns the persist_files value or the default.
func (c *BridgeConfig) GetPersistFiles() bool {
	if c.PersistFiles == nil {
		return false
	}
	return *c.PersistFiles
}

// GetScriptDir returns the script_dir value or the default.
func (c *BridgeConfig) GetScriptDir() string {
	if c.ScriptDir == nil || *c.ScriptDir == "" {
		return "/etc/bartbridge/scripts"
	}
	return *c.ScriptDir
}

// GetScriptName returns the script_name value. There is no default; an
// empty name means the bridge has nothing to run and must refuse requests.
func (c *BridgeConfig) GetScriptName() string {
	if c.ScriptName == nil {
		return ""
	}
	return *c.ScriptName
}

// GetEngine returns the engine value or the default.
func (c *BridgeConfig) GetEngine() string {
	if c.Engine == nil || *c.Engine == "" {
		return "sim"
	}
	return *c.Engine
}

// GetBartPath returns the bart_path value or the default.
func (c *BridgeConfig) GetBartPath() string {
	if c.BartPath == nil || *c.BartPath == "" {
		return "bart"
	}
	return *c.BartPath
}

// GetImageSeries returns the image_series value or the default.
func (c *BridgeConfig) GetImageSeries() int {
	if c.ImageSeries == nil {
		return 0
	}
	return *c.ImageSeries
}

// GetJournalPath returns the journal_path value or the default.
func (c *BridgeConfig) GetJournalPath() string {
	if c.JournalPath == nil || *c.JournalPath == "" {
		return "bartbridge.db"
	}
	return *c.JournalPath
}

// GetSpoolDir returns the spool_dir value. Empty means spooling is disabled.
func (c *BridgeConfig) GetSpoolDir() string {
	if c.SpoolDir == nil {
		return ""
	}
	return *c.SpoolDir
}

// GetOutputDir returns the output_dir value or the default.
func (c *BridgeConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "out"
	}
	return *c.OutputDir
}

// GetListen returns the listen value. Empty means the admin server is off.
func (c *BridgeConfig) GetListen() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}

// GetSnapshotDir returns the snapshot_dir value. Empty disables snapshots.
func (c *BridgeConfig) GetSnapshotDir() string {
	if c.SnapshotDir == nil {
		return ""
	}
	return *c.SnapshotDir
}
