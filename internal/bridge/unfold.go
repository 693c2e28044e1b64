package bridge

import (
	"context"
	"fmt"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/engine"
)

// onesHeader returns a full-width dims slice pre-filled with 1, the engine
// convention for absent trailing axes.
func onesHeader() []int64 {
	h := make([]int64, cfl.MaxDims)
	for i := range h {
		h[i] = 1
	}
	return h
}

// merged is the script output with its repetition axis folded back in:
// engine axis 9 multiplied onto axis 4, which then interleaves maps values
// per repetition.
type merged struct {
	dims []int64
	data []complex64
	maps int64
}

// merge reads the script output's header, folds axis 9 back onto axis 4
// with one more reshape, and loads the merged buffer.
func (b *Bridge) merge(ctx context.Context, disp *engine.Dispatcher, outName string) (merged, error) {
	header := onesHeader()
	if _, err := b.reg.LoadDims(outName, header); err != nil {
		return merged{}, fmt.Errorf("script output %q: %w", outName, err)
	}
	tracef("output %s dims %v", outName, cfl.SqueezeTrailing(header))

	maps := header[4]
	if maps <= 0 {
		return merged{}, fmt.Errorf("bridge: map count %d in %s, want > 0", maps, outName)
	}

	name := outName + "_reshape"
	line := fmt.Sprintf("bart reshape 1023 %d %d %d %d %d %d %d %d %d 1 %s %s",
		header[0], header[1], header[2], header[3], header[9]*header[4],
		header[5], header[6], header[7], header[8], outName, name)
	if _, err := disp.Dispatch(ctx, line); err != nil {
		return merged{}, err
	}

	dims := onesHeader()
	data, err := b.reg.LoadDims(name, dims)
	if err != nil {
		return merged{}, fmt.Errorf("%w: %s: %v", ErrNullResult, name, err)
	}
	if len(data) == 0 {
		return merged{}, fmt.Errorf("%w: %s", ErrNullResult, name)
	}
	return merged{dims: dims, data: data, maps: maps}, nil
}

// extract splits the merged volume into per-map chunks and reassembles the
// pipeline's 7-D layout, visiting locations, then sets, then repetitions.
// Axis 4 of the result carries one value per repetition: the merged extent
// divided by the map count.
func extract(m merged) (cfl.Volume, error) {
	d := m.dims[:pipelineRank]
	if cfl.Elements(d) != int64(len(m.data)) {
		return cfl.Volume{}, fmt.Errorf("bridge: merged volume %v does not fit %d axes",
			cfl.SqueezeTrailing(m.dims), pipelineRank)
	}
	if d[4]%m.maps != 0 {
		return cfl.Volume{}, fmt.Errorf("bridge: merged axis 4 extent %d not divisible by map count %d", d[4], m.maps)
	}

	chunk := d[0] * d[1] * d[2] * d[3]
	final := []int64{d[0], d[1], d[2], d[3], d[4] / m.maps, d[5], d[6]}
	out := make([]complex64, 0, cfl.Elements(final))
	for loc := int64(0); loc < d[6]; loc++ {
		for s := int64(0); s < d[5]; s++ {
			for n := int64(0); n < d[4]; n += m.maps {
				off := ((loc*d[5]+s)*d[4] + n) * chunk
				out = append(out, m.data[off:off+chunk]...)
			}
		}
	}
	return cfl.Volume{Dims: final, Data: out}, nil
}
