package bridge

import (
	"fmt"

	"github.com/halcyon-imaging/bartbridge/internal/script"
)

// HeaderSummary carries the handful of acquisition-header values the bridge
// consumes. The pipeline parses the full header upstream; the bridge only
// reads this pre-digested summary (also the JSON sidecar format for spooled
// jobs).
type HeaderSummary struct {
	MatrixX uint16 `json:"matrix_x"`
	MatrixY uint16 `json:"matrix_y"`
	MatrixZ uint16 `json:"matrix_z"`

	// Field of view in millimeters. Scripts receive these truncated to
	// whole millimeters.
	FOVXmm float64 `json:"fov_x_mm"`
	FOVYmm float64 `json:"fov_y_mm"`
	FOVZmm float64 `json:"fov_z_mm"`

	ParallelImaging bool   `json:"parallel_imaging"`
	AccPE1          uint16 `json:"acc_factor_pe1"`
	AccPE2          uint16 `json:"acc_factor_pe2"`
	CalibrationMode string `json:"calibration_mode,omitempty"`
	CalibRegionPE1  uint16 `json:"calib_region_pe1,omitempty"`
	CalibRegionPE2  uint16 `json:"calib_region_pe2,omitempty"`
}

// calibrationModes the protocol can declare when a scan is accelerated.
var calibrationModes = map[string]bool{
	"separate":    true,
	"embedded":    true,
	"external":    true,
	"interleaved": true,
	"other":       true,
}

// SessionParams derives the script substitution parameters from a header
// summary. Reference-line counts apply only along accelerated directions:
// acceleration in PE2 pulls both counts, otherwise acceleration in PE1 pulls
// the PE1 count alone. An accelerated scan with an unrecognized calibration
// mode fails the session before any buffer is touched.
func SessionParams(h HeaderSummary) (script.Parameters, error) {
	p := script.Parameters{
		ReconMatrixX: h.MatrixX,
		ReconMatrixY: h.MatrixY,
		ReconMatrixZ: h.MatrixZ,
		FOVX:         uint16(h.FOVXmm),
		FOVY:         uint16(h.FOVYmm),
		FOVZ:         uint16(h.FOVZmm),
	}
	diagf("session: matrix %dx%dx%d FOV %dx%dx%d mm",
		p.ReconMatrixX, p.ReconMatrixY, p.ReconMatrixZ, p.FOVX, p.FOVY, p.FOVZ)

	if !h.ParallelImaging {
		diagf("session: parallel imaging not enabled")
		return p, nil
	}

	p.AccPE1 = h.AccPE1
	p.AccPE2 = h.AccPE2
	if h.AccPE2 > 1 {
		p.RefLinesPE1 = h.CalibRegionPE1
		p.RefLinesPE2 = h.CalibRegionPE2
	} else if h.AccPE1 > 1 {
		p.RefLinesPE1 = h.CalibRegionPE1
	}

	if h.AccPE1 > 1 || h.AccPE2 > 1 {
		if !calibrationModes[h.CalibrationMode] {
			return p, fmt.Errorf("session: unsupported calibration mode %q", h.CalibrationMode)
		}
		diagf("session: acceleration %dx%d, calibration mode %s, reference lines %d/%d",
			p.AccPE1, p.AccPE2, h.CalibrationMode, p.RefLinesPE1, p.RefLinesPE2)
	}
	return p, nil
}
