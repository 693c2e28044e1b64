// Package script interprets reconstruction command scripts: parameter
// substitution, comment stripping, and line-by-line dispatch with the last
// line naming the produced buffer.
package script

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownParameter marks identifiers a script referenced but the session
// does not define. Reported per run, never fatal; the literal token stays.
var ErrUnknownParameter = errors.New("script: unknown parameter")

// Parameters holds the per-session values scripts reference as $identifier.
// Derived once from the acquisition header; all values fit uint16 wire fields.
type Parameters struct {
	ReconMatrixX uint16
	ReconMatrixY uint16
	ReconMatrixZ uint16
	FOVX         uint16
	FOVY         uint16
	FOVZ         uint16
	AccPE1       uint16
	AccPE2       uint16
	RefLinesPE1  uint16
	RefLinesPE2  uint16
}

// lookup resolves the identifier names scripts use, which follow the
// acquisition-protocol vocabulary rather than Go naming.
func (p Parameters) lookup(name string) (uint16, bool) {
	switch name {
	case "recon_matrix_x":
		return p.ReconMatrixX, true
	case "recon_matrix_y":
		return p.ReconMatrixY, true
	case "recon_matrix_z":
		return p.ReconMatrixZ, true
	case "FOV_x":
		return p.FOVX, true
	case "FOV_y":
		return p.FOVY, true
	case "FOV_z":
		return p.FOVZ, true
	case "acc_factor_PE1":
		return p.AccPE1, true
	case "acc_factor_PE2":
		return p.AccPE2, true
	case "reference_lines_PE1":
		return p.RefLinesPE1, true
	case "reference_lines_PE2":
		return p.RefLinesPE2, true
	}
	return 0, false
}

// Substitute replaces every whitespace token of the form $identifier with the
// matching parameter's decimal value. Unrecognized identifiers stay in place
// as literals and come back in unknown; substitution continues past them.
func (p Parameters) Substitute(line string) (subst string, unknown []string) {
	fields := strings.Fields(line)
	for i, f := range fields {
		if !strings.HasPrefix(f, "$") {
			continue
		}
		name := f[1:]
		v, ok := p.lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		fields[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(fields, " "), unknown
}
