package cfl

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/halcyon-imaging/bartbridge/internal/fsutil"
)

// On-disk layout: a buffer is a pair of files sharing a base path. The .hdr
// file is text, line 0 a title comment and line 1 up to MaxDims extents
// (absent trailing extents default to 1). The .cfl file is raw interleaved
// little-endian float32 pairs, axis 0 fastest, product(dims)*8 bytes.

const headerTitle = "# Dimensions"

const bytesPerSample = 8

// WriteVolume writes base.hdr and base.cfl.
func WriteVolume(fsys fsutil.FileSystem, base string, v Volume) error {
	if int64(len(v.Data)) != v.Elements() {
		return fmt.Errorf("cfl: write %s: %d samples for dims implying %d", base, len(v.Data), v.Elements())
	}
	if err := WriteHeader(fsys, base+".hdr", v.Dims); err != nil {
		return err
	}
	if err := fsys.WriteFile(base+".cfl", encodeSamples(v.Data), 0o644); err != nil {
		return fmt.Errorf("cfl: write %s.cfl: %w", base, err)
	}
	return nil
}

// ReadVolume reads base.hdr and base.cfl and validates that the data length
// matches the header. Dims come back exactly as listed in the header.
func ReadVolume(fsys fsutil.FileSystem, base string) (Volume, error) {
	dims, err := ReadHeader(fsys, base+".hdr")
	if err != nil {
		return Volume{}, err
	}
	raw, err := fsys.ReadFile(base + ".cfl")
	if err != nil {
		return Volume{}, fmt.Errorf("cfl: read %s.cfl: %w", base, err)
	}
	want := Elements(dims) * bytesPerSample
	if int64(len(raw)) != want {
		return Volume{}, fmt.Errorf("cfl: read %s.cfl: %d bytes, header implies %d", base, len(raw), want)
	}
	data, err := decodeSamples(raw)
	if err != nil {
		return Volume{}, fmt.Errorf("cfl: read %s.cfl: %w", base, err)
	}
	return Volume{Dims: dims, Data: data}, nil
}

// WriteHeader writes a header file, padding the extents to MaxDims with 1s.
func WriteHeader(fsys fsutil.FileSystem, path string, dims []int64) error {
	if len(dims) == 0 || len(dims) > MaxDims {
		return fmt.Errorf("cfl: write %s: %d extents outside 1..%d", path, len(dims), MaxDims)
	}
	for i, d := range dims {
		if d < 0 {
			return fmt.Errorf("cfl: write %s: negative extent %d on axis %d", path, d, i)
		}
	}

	var sb strings.Builder
	sb.WriteString(headerTitle)
	sb.WriteByte('\n')
	for i, d := range PadDims(dims) {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatInt(d, 10))
	}
	sb.WriteByte('\n')

	if err := fsys.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("cfl: write %s: %w", path, err)
	}
	return nil
}

// ReadHeader parses a header file and returns the extents as listed.
func ReadHeader(fsys fsutil.FileSystem, path string) ([]int64, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cfl: read %s: %w", path, err)
	}
	lines := strings.Split(string(raw), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("cfl: read %s: malformed header, no dimension line", path)
	}

	fields := strings.Fields(lines[1])
	if len(fields) == 0 || len(fields) > MaxDims {
		return nil, fmt.Errorf("cfl: read %s: %d extents outside 1..%d", path, len(fields), MaxDims)
	}
	dims := make([]int64, len(fields))
	for i, f := range fields {
		d, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cfl: read %s: bad extent %q: %w", path, f, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("cfl: read %s: negative extent %d on axis %d", path, d, i)
		}
		dims[i] = d
	}
	return dims, nil
}

func encodeSamples(data []complex64) []byte {
	buf := make([]byte, len(data)*bytesPerSample)
	for i, c := range data {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(real(c)))
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample+4:], math.Float32bits(imag(c)))
	}
	return buf
}

func decodeSamples(raw []byte) ([]complex64, error) {
	if len(raw)%bytesPerSample != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of complex samples", len(raw))
	}
	out := make([]complex64, len(raw)/bytesPerSample)
	for i := range out {
		re := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*bytesPerSample+4:]))
		out[i] = complex(re, im)
	}
	return out, nil
}
