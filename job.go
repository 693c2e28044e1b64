package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/halcyon-imaging/bartbridge/internal/bridge"
	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
)

// A job is a directory:
//
//	header.json    session values (bridge.HeaderSummary)
//	data.hdr/.cfl  measurement volume
//	ref.hdr/.cfl   calibration reference, optional
//
// Results land beside the inputs as result.json and result.hdr/.cfl.
const (
	jobHeaderFile = "header.json"
	jobDataBase   = "data"
	jobRefBase    = "ref"
	jobResultBase = "result"
)

// loadJob assembles a bridge request from a job directory. The directory's
// base name (minus any claim suffix) becomes the session label.
func loadJob(fsys fsutil.FileSystem, dir string) (*bridge.Request, error) {
	raw, err := fsys.ReadFile(filepath.Join(dir, jobHeaderFile))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", dir, err)
	}
	var h bridge.HeaderSummary
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("job %s: parse %s: %w", dir, jobHeaderFile, err)
	}

	data, err := cfl.ReadVolume(fsys, filepath.Join(dir, jobDataBase))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", dir, err)
	}
	req := &bridge.Request{
		Session: strings.TrimSuffix(filepath.Base(filepath.Clean(dir)), claimSuffix),
		Header:  h,
		Data:    data,
	}

	if fsys.Exists(filepath.Join(dir, jobRefBase+".hdr")) {
		ref, err := cfl.ReadVolume(fsys, filepath.Join(dir, jobRefBase))
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", dir, err)
		}
		req.Reference = &ref
	}
	return req, nil
}

// jobResult is the JSON sidecar written beside a result volume.
type jobResult struct {
	RunID  string  `json:"run_id"`
	Output string  `json:"output"`
	Series int     `json:"series"`
	Dims   []int64 `json:"dims"`
}

// writeResult stores the reconstructed volume under base (base.hdr, base.cfl)
// with its sidecar (base.json).
func writeResult(fsys fsutil.FileSystem, base string, res *bridge.Result) error {
	if err := cfl.WriteVolume(fsys, base, res.Volume); err != nil {
		return err
	}
	meta, err := json.MarshalIndent(jobResult{
		RunID:  res.RunID,
		Output: res.Name,
		Series: res.Series,
		Dims:   res.Volume.Dims,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s.json: %w", base, err)
	}
	if err := fsys.WriteFile(base+".json", append(meta, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s.json: %w", base, err)
	}
	return nil
}
