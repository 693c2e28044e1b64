package cfl

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
)

func TestVolume_RoundTrip(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	in := Volume{
		Dims: []int64{2, 3},
		Data: []complex64{1 + 1i, 2, 3 - 0.5i, 4, 5, 6 + 2i},
	}
	if err := WriteVolume(fsys, "/work/input_data", in); err != nil {
		t.Fatalf("WriteVolume failed: %v", err)
	}

	out, err := ReadVolume(fsys, "/work/input_data")
	if err != nil {
		t.Fatalf("ReadVolume failed: %v", err)
	}
	// Headers are written padded to the full dimension count.
	wantDims := []int64{2, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	if diff := cmp.Diff(wantDims, out.Dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in.Data, out.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteVolume_LengthMismatch(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	v := Volume{Dims: []int64{2, 3}, Data: make([]complex64, 5)}
	if err := WriteVolume(fsys, "/work/bad", v); err == nil {
		t.Error("WriteVolume with mismatched data length succeeded, expected error")
	}
}

func TestWriteHeader_Format(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	if err := WriteHeader(fsys, "/work/x.hdr", []int64{128, 128, 1, 8}); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	raw, err := fsys.ReadFile("/work/x.hdr")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "# Dimensions\n128 128 1 8 1 1 1 1 1 1 1 1 1 1 1 1\n"
	if string(raw) != want {
		t.Errorf("header = %q, want %q", raw, want)
	}
}

func TestReadHeader_ShortLine(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	// Writers elsewhere may list only the leading extents.
	if err := fsys.WriteFile("/work/s.hdr", []byte("# Dimensions\n4 6 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dims, err := ReadHeader(fsys, "/work/s.hdr")
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if diff := cmp.Diff([]int64{4, 6, 2}, dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
}

func TestReadHeader_Malformed(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	cases := []struct {
		name    string
		content string
	}{
		{"missing dimension line", "# Dimensions"},
		{"empty dimension line", "# Dimensions\n\n"},
		{"non-numeric extent", "# Dimensions\n4 x 2\n"},
		{"negative extent", "# Dimensions\n4 -6 2\n"},
		{"too many extents", "# Dimensions\n" + strings.Repeat("2 ", 17) + "\n"},
	}
	for _, tc := range cases {
		if err := fsys.WriteFile("/work/m.hdr", []byte(tc.content), 0o644); err != nil {
			t.Fatalf("%s: WriteFile failed: %v", tc.name, err)
		}
		if _, err := ReadHeader(fsys, "/work/m.hdr"); err == nil {
			t.Errorf("%s: ReadHeader succeeded, expected error", tc.name)
		}
	}
}

func TestReadVolume_ByteLengthMismatch(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	if err := fsys.WriteFile("/work/t.hdr", []byte("# Dimensions\n2 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	// Header implies 4 samples (32 bytes); give it 3 samples.
	if err := fsys.WriteFile("/work/t.cfl", make([]byte, 24), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadVolume(fsys, "/work/t"); err == nil {
		t.Error("ReadVolume with truncated data succeeded, expected error")
	}
}

func TestReadVolume_MissingFiles(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()

	if _, err := ReadVolume(fsys, "/work/absent"); err == nil {
		t.Error("ReadVolume of absent base succeeded, expected error")
	}

	if err := fsys.WriteFile("/work/half.hdr", []byte("# Dimensions\n2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := ReadVolume(fsys, "/work/half"); err == nil {
		t.Error("ReadVolume with missing .cfl succeeded, expected error")
	}
}

func TestSampleEncoding(t *testing.T) {
	in := []complex64{0, 1, -1i, 2.5 + 3.25i}
	raw := encodeSamples(in)
	if len(raw) != len(in)*8 {
		t.Fatalf("encoded %d bytes, want %d", len(raw), len(in)*8)
	}

	out, err := decodeSamples(raw)
	if err != nil {
		t.Fatalf("decodeSamples failed: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if _, err := decodeSamples(raw[:len(raw)-3]); err == nil {
		t.Error("decodeSamples of ragged input succeeded, expected error")
	}
}
