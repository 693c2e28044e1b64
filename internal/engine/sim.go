package engine

import (
	"context"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/version"
)

// Sim is an in-process Engine that interprets the command subset the bridge
// relies on, directly against the registry. It stands in for the external
// binary in dev mode and in tests. Tool failures surface the way a subprocess
// would: exit 1 and a message, never a Go error.
type Sim struct {
	reg *cfl.Registry
}

// NewSim builds a simulator over the shared registry.
func NewSim(reg *cfl.Registry) *Sim {
	return &Sim{reg: reg}
}

func (s *Sim) Exec(ctx context.Context, argv []string) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	if len(argv) < 2 {
		return 1, "incomplete command line", nil
	}

	tool, args := argv[1], argv[2:]
	var out string
	var err error
	switch tool {
	case "scale":
		err = s.scale(args)
	case "resize":
		err = s.resize(args)
	case "reshape":
		err = s.reshape(args)
	case "version":
		out = version.String()
	case "show":
		out, err = s.show(args)
	case "estdims":
		out, err = s.estdims(args)
	case "bitmask":
		out, err = bitmask(args)
	case "nrmse":
		out, err = s.nrmse(args)
	case "sdot":
		out, err = s.sdot(args)
	default:
		return 1, fmt.Sprintf("unknown tool %q", tool), nil
	}
	if err != nil {
		return 1, err.Error(), nil
	}
	return 0, out, nil
}

// scale: scale <factor> <in> <out>
func (s *Sim) scale(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("scale: want <factor> <in> <out>, got %d arguments", len(args))
	}
	f, err := strconv.ParseComplex(args[0], 64)
	if err != nil {
		return fmt.Errorf("scale: bad factor %q", args[0])
	}
	in, err := s.reg.Load(args[1])
	if err != nil {
		return fmt.Errorf("scale: %v", err)
	}

	src := in.Data()
	dst := s.reg.Alloc(in.Elements())
	for i, v := range src {
		dst[i] = complex64(complex128(v) * f)
	}
	return s.reg.Register(args[2], in.Dims(), dst, cfl.NativeOwned)
}

// resize: resize -c (<axis> <size>)... <in> <out>, centered crop or zero-pad.
func (s *Sim) resize(args []string) error {
	if len(args) < 5 || args[0] != "-c" {
		return fmt.Errorf("resize: want -c (<axis> <size>)... <in> <out>")
	}
	pairs := args[1 : len(args)-2]
	if len(pairs)%2 != 0 {
		return fmt.Errorf("resize: unpaired axis/size arguments")
	}
	in, err := s.reg.Load(args[len(args)-2])
	if err != nil {
		return fmt.Errorf("resize: %v", err)
	}

	oldDims := cfl.PadDims(in.Dims())
	newDims := cfl.PadDims(in.Dims())
	for i := 0; i < len(pairs); i += 2 {
		axis, err := strconv.Atoi(pairs[i])
		if err != nil || axis < 0 || axis >= cfl.MaxDims {
			return fmt.Errorf("resize: bad axis %q", pairs[i])
		}
		size, err := strconv.ParseInt(pairs[i+1], 10, 64)
		if err != nil || size < 1 {
			return fmt.Errorf("resize: bad size %q for axis %d", pairs[i+1], axis)
		}
		newDims[axis] = size
	}

	// Centered: the input origin sits at new/2 - old/2 along each axis.
	var off [cfl.MaxDims]int64
	for ax := range off {
		off[ax] = newDims[ax]/2 - oldDims[ax]/2
	}

	src := in.Data()
	srcStrides := cfl.Strides(oldDims)
	dst := s.reg.Alloc(cfl.Elements(newDims))
	var coord [cfl.MaxDims]int64
	for i := range dst {
		srcIdx := int64(0)
		inside := true
		for ax := 0; ax < cfl.MaxDims; ax++ {
			c := coord[ax] - off[ax]
			if c < 0 || c >= oldDims[ax] {
				inside = false
				break
			}
			srcIdx += c * srcStrides[ax]
		}
		if inside {
			dst[i] = src[srcIdx]
		} else {
			dst[i] = 0
		}
		for ax := 0; ax < cfl.MaxDims; ax++ {
			coord[ax]++
			if coord[ax] < newDims[ax] {
				break
			}
			coord[ax] = 0
		}
	}
	return s.reg.Register(args[len(args)-1], cfl.SqueezeTrailing(newDims), dst, cfl.NativeOwned)
}

// reshape: reshape <flags> <dim>... <in> <out>. The flags bitmask selects the
// axes whose extents follow; the element count must not change. The flat
// sample order is reinterpreted, never permuted.
func (s *Sim) reshape(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("reshape: want <flags> <dim>... <in> <out>")
	}
	flags, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("reshape: bad flags %q", args[0])
	}
	n := bits.OnesCount64(flags)
	if len(args) != n+3 {
		return fmt.Errorf("reshape: flags select %d axes, got %d extents", n, len(args)-3)
	}
	if flags>>cfl.MaxDims != 0 {
		return fmt.Errorf("reshape: flags select axes past %d", cfl.MaxDims-1)
	}
	in, err := s.reg.Load(args[len(args)-2])
	if err != nil {
		return fmt.Errorf("reshape: %v", err)
	}

	newDims := cfl.PadDims(in.Dims())
	next := 1
	for ax := 0; ax < cfl.MaxDims; ax++ {
		if flags&(1<<ax) == 0 {
			continue
		}
		d, err := strconv.ParseInt(args[next], 10, 64)
		if err != nil || d < 1 {
			return fmt.Errorf("reshape: bad extent %q for axis %d", args[next], ax)
		}
		newDims[ax] = d
		next++
	}
	if cfl.Elements(newDims) != in.Elements() {
		return fmt.Errorf("reshape: %d elements cannot become %d", in.Elements(), cfl.Elements(newDims))
	}

	dst := s.reg.Alloc(in.Elements())
	copy(dst, in.Data())
	return s.reg.Register(args[len(args)-1], cfl.SqueezeTrailing(newDims), dst, cfl.NativeOwned)
}

// show: show -m <name>, prints the full padded extent list.
func (s *Sim) show(args []string) (string, error) {
	if len(args) != 2 || args[0] != "-m" {
		return "", fmt.Errorf("show: want -m <name>")
	}
	in, err := s.reg.Load(args[1])
	if err != nil {
		return "", fmt.Errorf("show: %v", err)
	}
	return formatDims(cfl.PadDims(in.Dims())), nil
}

// estdims: estdims <name>, prints the extent list without trailing ones.
func (s *Sim) estdims(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("estdims: want <name>")
	}
	in, err := s.reg.Load(args[0])
	if err != nil {
		return "", fmt.Errorf("estdims: %v", err)
	}
	return formatDims(cfl.SqueezeTrailing(in.Dims())), nil
}

// bitmask: bitmask <axis>..., prints the decimal bitmask of the given axes.
func bitmask(args []string) (string, error) {
	var mask uint64
	for _, a := range args {
		axis, err := strconv.ParseUint(a, 10, 64)
		if err != nil || axis > 63 {
			return "", fmt.Errorf("bitmask: bad axis %q", a)
		}
		mask |= 1 << axis
	}
	return strconv.FormatUint(mask, 10), nil
}

// nrmse: nrmse <ref> <in>, prints ||in - ref|| / ||ref||.
func (s *Sim) nrmse(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("nrmse: want <ref> <in>")
	}
	ref, err := s.reg.Load(args[0])
	if err != nil {
		return "", fmt.Errorf("nrmse: %v", err)
	}
	in, err := s.reg.Load(args[1])
	if err != nil {
		return "", fmt.Errorf("nrmse: %v", err)
	}
	a, b := ref.Data(), in.Data()
	if len(a) != len(b) {
		return "", fmt.Errorf("nrmse: %d vs %d elements", len(a), len(b))
	}

	diff := make([]float64, 2*len(a))
	base := make([]float64, 2*len(a))
	for i := range a {
		diff[2*i] = float64(real(b[i]) - real(a[i]))
		diff[2*i+1] = float64(imag(b[i]) - imag(a[i]))
		base[2*i] = float64(real(a[i]))
		base[2*i+1] = float64(imag(a[i]))
	}
	den := floats.Norm(base, 2)
	if den == 0 {
		return "", fmt.Errorf("nrmse: reference norm is zero")
	}
	return strconv.FormatFloat(floats.Norm(diff, 2)/den, 'g', -1, 64), nil
}

// sdot: sdot <a> <b>, prints the scalar product with a conjugated.
func (s *Sim) sdot(args []string) (string, error) {
	if len(args) != 2 {
		return "", fmt.Errorf("sdot: want <a> <b>")
	}
	a, err := s.reg.Load(args[0])
	if err != nil {
		return "", fmt.Errorf("sdot: %v", err)
	}
	b, err := s.reg.Load(args[1])
	if err != nil {
		return "", fmt.Errorf("sdot: %v", err)
	}
	da, db := a.Data(), b.Data()
	if len(da) != len(db) {
		return "", fmt.Errorf("sdot: %d vs %d elements", len(da), len(db))
	}

	var sum complex128
	for i := range da {
		av := complex128(da[i])
		sum += complex(real(av), -imag(av)) * complex128(db[i])
	}
	return fmt.Sprintf("%g%+gi", real(sum), imag(sum)), nil
}

func formatDims(dims []int64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, " ")
}
