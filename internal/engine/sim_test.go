package engine

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
)

func simExec(t *testing.T, s *Sim, line string) (int, string) {
	t.Helper()
	exit, out, err := s.Exec(context.Background(), strings.Fields(line))
	if err != nil {
		t.Fatalf("Exec(%q) error: %v", line, err)
	}
	return exit, out
}

func mustRegister(t *testing.T, reg *cfl.Registry, name string, dims []int64, data []complex64) {
	t.Helper()
	if err := reg.Register(name, dims, data, cfl.Borrowed); err != nil {
		t.Fatalf("Register %s failed: %v", name, err)
	}
}

func TestSim_Scale(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "meas", []int64{2, 2}, []complex64{1, 2, 3, 4i})

	exit, out := simExec(t, s, "bart scale 2.0 meas scaled")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}

	buf, err := reg.Load("scaled")
	if err != nil {
		t.Fatalf("Load scaled failed: %v", err)
	}
	want := []complex64{2, 4, 6, 8i}
	for i, w := range want {
		if buf.Data()[i] != w {
			t.Errorf("scaled[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
	if buf.Ownership() != cfl.NativeOwned {
		t.Errorf("ownership = %v, want native", buf.Ownership())
	}
	if buf.Rank() != 2 {
		t.Errorf("rank = %d, want 2 (dims preserved)", buf.Rank())
	}
}

func TestSim_ScaleIdentityCopies(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	src := []complex64{5, 6, 7}
	mustRegister(t, reg, "meas", []int64{3}, src)

	exit, _ := simExec(t, s, "bart scale 1.0 meas input_data")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}
	buf, _ := reg.Load("input_data")
	if &buf.Data()[0] == &src[0] {
		t.Error("scale 1.0 aliased the source, want an owned copy")
	}
	for i, w := range src {
		if buf.Data()[i] != w {
			t.Errorf("input_data[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
}

func TestSim_ResizeCenterCrop(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "ref", []int64{6}, []complex64{1, 2, 3, 4, 5, 6})

	exit, out := simExec(t, s, "bart resize -c 0 4 ref cropped")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}

	buf, err := reg.Load("cropped")
	if err != nil {
		t.Fatalf("Load cropped failed: %v", err)
	}
	want := []complex64{2, 3, 4, 5}
	if len(buf.Data()) != len(want) {
		t.Fatalf("len = %d, want %d", len(buf.Data()), len(want))
	}
	for i, w := range want {
		if buf.Data()[i] != w {
			t.Errorf("cropped[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
}

func TestSim_ResizeCenterPad(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "ref", []int64{2}, []complex64{1, 2})

	exit, _ := simExec(t, s, "bart resize -c 0 4 ref padded")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}

	buf, _ := reg.Load("padded")
	want := []complex64{0, 1, 2, 0}
	for i, w := range want {
		if buf.Data()[i] != w {
			t.Errorf("padded[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
}

func TestSim_ResizeMultiAxis(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	data := make([]complex64, 16)
	for i := range data {
		data[i] = complex(float32(i), 0)
	}
	mustRegister(t, reg, "grid", []int64{4, 4}, data)

	// Axis 0 varies fastest; a centered 2x2 crop keeps the middle block.
	exit, _ := simExec(t, s, "bart resize -c 0 2 1 2 grid mid")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}

	buf, _ := reg.Load("mid")
	want := []complex64{5, 6, 9, 10}
	for i, w := range want {
		if buf.Data()[i] != w {
			t.Errorf("mid[%d] = %v, want %v", i, buf.Data()[i], w)
		}
	}
}

func TestSim_Reshape(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	data := make([]complex64, 24)
	for i := range data {
		data[i] = complex(float32(i), 0)
	}
	mustRegister(t, reg, "vol", []int64{2, 3, 4}, data)

	// flags 7 selects axes 0..2; the flat order is untouched.
	exit, out := simExec(t, s, "bart reshape 7 4 3 2 vol flipped")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}

	buf, err := reg.Load("flipped")
	if err != nil {
		t.Fatalf("Load flipped failed: %v", err)
	}
	dims := buf.Dims()
	if dims[0] != 4 || dims[1] != 3 || dims[2] != 2 {
		t.Errorf("dims = %v, want [4 3 2]", dims)
	}
	for i := range data {
		if buf.Data()[i] != data[i] {
			t.Errorf("flipped[%d] = %v, want %v (flat order must not move)", i, buf.Data()[i], data[i])
		}
	}
}

func TestSim_ReshapeRepetitionFold(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	// [E0 E1 E2 CHA N S LOC] with N=5 repetitions.
	mustRegister(t, reg, "meas_gadgetron", []int64{4, 3, 2, 8, 5, 1, 1}, make([]complex64, 4*3*2*8*5))

	exit, out := simExec(t, s, "bart reshape 1023 4 3 2 8 1 1 1 1 1 5 meas_gadgetron input_data")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}

	buf, err := reg.Load("input_data")
	if err != nil {
		t.Fatalf("Load input_data failed: %v", err)
	}
	dims := cfl.PadDims(buf.Dims())
	want := []int64{4, 3, 2, 8, 1, 1, 1, 1, 1, 5}
	for i, w := range want {
		if dims[i] != w {
			t.Errorf("dims[%d] = %d, want %d", i, dims[i], w)
		}
	}
}

func TestSim_ReshapeBadProduct(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "vol", []int64{2, 3}, make([]complex64, 6))

	exit, out := simExec(t, s, "bart reshape 3 4 4 vol broken")
	if exit == 0 {
		t.Fatal("reshape with mismatched element count succeeded, expected failure")
	}
	if out == "" {
		t.Error("failure produced no diagnostic output")
	}
}

func TestSim_Version(t *testing.T) {
	s := NewSim(cfl.NewRegistry())

	exit, out := simExec(t, s, "bart version")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}
	if out == "" {
		t.Error("version produced no output")
	}
}

func TestSim_ShowMeta(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "vol", []int64{4, 6}, make([]complex64, 24))

	exit, out := simExec(t, s, "bart show -m vol")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}
	fields := strings.Fields(out)
	if len(fields) != cfl.MaxDims {
		t.Fatalf("show -m printed %d extents, want %d", len(fields), cfl.MaxDims)
	}
	if fields[0] != "4" || fields[1] != "6" || fields[2] != "1" {
		t.Errorf("extents = %v, want 4 6 1 ...", fields[:3])
	}
}

func TestSim_Estdims(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "vol", []int64{4, 6, 1, 1}, make([]complex64, 24))

	exit, out := simExec(t, s, "bart estdims vol")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}
	if out != "4 6" {
		t.Errorf("estdims = %q, want \"4 6\"", out)
	}
}

func TestSim_Bitmask(t *testing.T) {
	s := NewSim(cfl.NewRegistry())

	exit, out := simExec(t, s, "bart bitmask 0 3 5")
	if exit != 0 {
		t.Fatalf("exit = %d, want 0", exit)
	}
	if out != "41" {
		t.Errorf("bitmask = %q, want \"41\"", out)
	}
}

func TestSim_NRMSE(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "ref", []int64{2}, []complex64{3, 4})
	mustRegister(t, reg, "img", []int64{2}, []complex64{3, 9})

	exit, out := simExec(t, s, "bart nrmse ref img")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}
	v, err := strconv.ParseFloat(out, 64)
	if err != nil {
		t.Fatalf("output %q is not a number", out)
	}
	// ||img-ref|| = 5, ||ref|| = 5.
	if v < 0.999 || v > 1.001 {
		t.Errorf("nrmse = %v, want 1", v)
	}
}

func TestSim_Sdot(t *testing.T) {
	reg := cfl.NewRegistry()
	s := NewSim(reg)
	mustRegister(t, reg, "a", []int64{2}, []complex64{1 + 2i, 3})
	mustRegister(t, reg, "b", []int64{2}, []complex64{2, 4})

	exit, out := simExec(t, s, "bart sdot a b")
	if exit != 0 {
		t.Fatalf("exit = %d (%s), want 0", exit, out)
	}
	v, err := strconv.ParseComplex(out, 128)
	if err != nil {
		t.Fatalf("output %q is not a complex number", out)
	}
	// conj(1+2i)*2 + conj(3)*4 = 14-4i.
	if v != complex(14, -4) {
		t.Errorf("sdot = %v, want (14-4i)", v)
	}
}

func TestSim_UnknownTool(t *testing.T) {
	s := NewSim(cfl.NewRegistry())

	exit, out := simExec(t, s, "bart transmogrify a b")
	if exit == 0 {
		t.Fatal("unknown tool succeeded, expected non-zero exit")
	}
	if !strings.Contains(out, "transmogrify") {
		t.Errorf("diagnostic %q does not name the tool", out)
	}
}

func TestSim_MissingOperand(t *testing.T) {
	s := NewSim(cfl.NewRegistry())

	exit, out := simExec(t, s, "bart scale 2.0 ghost out")
	if exit == 0 {
		t.Fatal("scale of unregistered buffer succeeded, expected failure")
	}
	if !strings.Contains(out, "ghost") {
		t.Errorf("diagnostic %q does not name the missing buffer", out)
	}
}

func TestSim_ThroughDispatcher(t *testing.T) {
	reg := cfl.NewRegistry()
	d := NewDispatcher(NewSim(reg), nil)
	mustRegister(t, reg, "meas", []int64{2}, []complex64{1, 2})

	out, err := d.Dispatch(context.Background(), "bart scale 3.0 meas tripled")
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if out != "" {
		t.Errorf("scale produced output %q, want none (non-reporting tool)", out)
	}

	buf, err := reg.Load("tripled")
	if err != nil {
		t.Fatalf("Load tripled failed: %v", err)
	}
	if buf.Data()[1] != 6 {
		t.Errorf("tripled[1] = %v, want 6", buf.Data()[1])
	}
}
