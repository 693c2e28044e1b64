package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/engine"
)

type fakeDispatcher struct {
	lines  []string
	failAt int // 1-based dispatch count that fails; 0 never fails
}

func (f *fakeDispatcher) Dispatch(_ context.Context, line string) (string, error) {
	f.lines = append(f.lines, line)
	if f.failAt > 0 && len(f.lines) == f.failAt {
		return "", errors.New("dispatch refused")
	}
	return "", nil
}

func TestRun_FiltersAndDispatches(t *testing.T) {
	fd := &fakeDispatcher{}
	r := NewRunner(fd)

	src := strings.Join([]string{
		"# reconstruction pipeline",
		"",
		"set -e",
		"bart scale 1.0 meas_gadgetron input_data",
		"   ",
		"echo progress",
		"bart fft -u 7 input_data ksp   # transform",
		"bart pics ksp sens image_out",
	}, "\n")

	res, err := r.Run(context.Background(), strings.NewReader(src), Parameters{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{
		"bart scale 1.0 meas_gadgetron input_data",
		"bart fft -u 7 input_data ksp",
		"bart pics ksp sens image_out",
	}
	if len(fd.lines) != len(want) {
		t.Fatalf("dispatched %d lines, want %d: %v", len(fd.lines), len(want), fd.lines)
	}
	for i := range want {
		if fd.lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, fd.lines[i], want[i])
		}
	}
	if res.Lines != 3 {
		t.Errorf("Lines = %d, want 3", res.Lines)
	}
	if res.Output != "image_out" {
		t.Errorf("Output = %q, want image_out", res.Output)
	}
}

func TestRun_SubstitutesBeforeDispatch(t *testing.T) {
	fd := &fakeDispatcher{}
	r := NewRunner(fd)

	params := Parameters{AccPE1: 2}
	res, err := r.Run(context.Background(), strings.NewReader("bart scale $acc_factor_PE1 in out\n"), params)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fd.lines[0] != "bart scale 2 in out" {
		t.Errorf("dispatched %q, want the substituted line", fd.lines[0])
	}
	if res.Output != "out" {
		t.Errorf("Output = %q, want out", res.Output)
	}
}

func TestRun_UnknownParameterStillDispatches(t *testing.T) {
	fd := &fakeDispatcher{}
	r := NewRunner(fd)

	res, err := r.Run(context.Background(), strings.NewReader("bart scale $bogus in out\n"), Parameters{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fd.lines) != 1 || fd.lines[0] != "bart scale $bogus in out" {
		t.Errorf("dispatched %v, want the line with the literal placeholder", fd.lines)
	}
	if len(res.Unknown) != 1 || res.Unknown[0] != "bogus" {
		t.Errorf("Unknown = %v, want [bogus]", res.Unknown)
	}
}

func TestRun_FailureShortCircuits(t *testing.T) {
	fd := &fakeDispatcher{failAt: 2}
	r := NewRunner(fd)

	src := "bart a x y\nbart b y z\nbart c z w\n"
	res, err := r.Run(context.Background(), strings.NewReader(src), Parameters{})
	if err == nil {
		t.Fatal("Run succeeded despite failing dispatch")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the failing line", err)
	}
	if len(fd.lines) != 2 {
		t.Errorf("dispatched %d lines, want 2 (third must not run)", len(fd.lines))
	}
	if res.Lines != 1 {
		t.Errorf("Lines = %d, want 1 completed", res.Lines)
	}
}

func TestRun_NoCommands(t *testing.T) {
	r := NewRunner(&fakeDispatcher{})

	cases := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"only blank", "\n   \n\t\n"},
		{"only comment", "# nothing here\n# still nothing\n"},
		{"only foreign", "set -e\necho hi\n"},
		{"commented out", "# bart scale 1.0 a b\n"},
	}
	for _, tc := range cases {
		_, err := r.Run(context.Background(), strings.NewReader(tc.src), Parameters{})
		if !errors.Is(err, ErrNoCommands) {
			t.Errorf("%s: err = %v, want ErrNoCommands", tc.name, err)
		}
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	fd := &fakeDispatcher{}
	r := NewRunner(fd)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, strings.NewReader("bart version\n"), Parameters{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(fd.lines) != 0 {
		t.Errorf("dispatched %d lines after cancellation, want 0", len(fd.lines))
	}
}

func TestRun_AgainstSimulator(t *testing.T) {
	reg := cfl.NewRegistry()
	r := NewRunner(engine.NewDispatcher(engine.NewSim(reg), nil))

	if err := reg.Register("meas_gadgetron", []int64{2, 2}, []complex64{1, 2, 3, 4}, cfl.Borrowed); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	src := strings.Join([]string{
		"# doubled copy, then relabel",
		"bart scale 2.0 meas_gadgetron tmp",
		"bart reshape 3 4 1 tmp recon",
	}, "\n")

	res, err := r.Run(context.Background(), strings.NewReader(src), Parameters{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output != "recon" {
		t.Fatalf("Output = %q, want recon", res.Output)
	}

	buf, err := reg.Load(res.Output)
	if err != nil {
		t.Fatalf("script result missing from registry: %v", err)
	}
	want := []complex64{2, 4, 6, 8}
	for i, w := range want {
		if buf.Data()[i] != w {
			t.Errorf("recon[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
	if buf.Dims()[0] != 4 {
		t.Errorf("dims = %v, want leading 4", buf.Dims())
	}
}

func TestRun_FailingCommandPropagatesExit(t *testing.T) {
	reg := cfl.NewRegistry()
	r := NewRunner(engine.NewDispatcher(engine.NewSim(reg), nil))

	src := "bart scale 1.0 missing_buffer out\nbart version\n"
	_, err := r.Run(context.Background(), strings.NewReader(src), Parameters{})
	if err == nil {
		t.Fatal("Run succeeded with a missing operand")
	}
	if !errors.Is(err, engine.ErrCommandFailed) {
		t.Errorf("err = %v, want ErrCommandFailed in the chain", err)
	}
	var cmdErr *engine.CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Exit == 0 {
		t.Errorf("err = %v, want a CommandError with non-zero exit", err)
	}
}
