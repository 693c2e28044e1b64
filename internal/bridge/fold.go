package bridge

import (
	"context"
	"fmt"

	"github.com/halcyon-imaging/bartbridge/internal/cfl"
	"github.com/halcyon-imaging/bartbridge/internal/engine"
)

// pipelineRank is the pipeline's fixed array convention:
// [E0, E1, E2, CHA, N, S, LOC].
const pipelineRank = 7

// Well-known buffer names the script convention depends on.
const (
	measName    = "meas_gadgetron"
	measRefName = "meas_gadgetron_ref"
)

// refDiffers reports whether the reference volume needs its own registration
// and resize. A nil reference, or one whose dims equal the data's, is the
// data itself as far as the engine is concerned.
func refDiffers(req *Request) bool {
	return req.Reference != nil && !dimsEqual(req.Reference.Dims, req.Data.Dims)
}

func dimsEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// register places the request's volumes in the registry under the
// conventional names. Both stay Borrowed: the pipeline owns that memory.
func (b *Bridge) register(req *Request) error {
	if len(req.Data.Dims) != pipelineRank {
		return fmt.Errorf("bridge: data volume is %d-D, want %d-D", len(req.Data.Dims), pipelineRank)
	}
	if err := b.reg.Register(measName, req.Data.Dims, req.Data.Data, cfl.Borrowed); err != nil {
		return err
	}
	if refDiffers(req) {
		if len(req.Reference.Dims) != pipelineRank {
			return fmt.Errorf("bridge: reference volume is %d-D, want %d-D", len(req.Reference.Dims), pipelineRank)
		}
		if err := b.reg.Register(measRefName, req.Reference.Dims, req.Reference.Data, cfl.Borrowed); err != nil {
			return err
		}
	}
	return nil
}

// fold issues the bookkeeping commands that produce the script's
// conventional inputs. The reference, when distinct, is center-cropped to
// the data's first three extents as reference_data. The data becomes
// input_data: repetitions fold out to engine axis 9 behind three singleton
// axes, or a scale-by-one stands in when there is only one repetition.
func (b *Bridge) fold(ctx context.Context, disp *engine.Dispatcher, req *Request) error {
	d := req.Data.Dims

	if refDiffers(req) {
		line := fmt.Sprintf("bart resize -c 0 %d 1 %d 2 %d %s reference_data",
			d[0], d[1], d[2], measRefName)
		if _, err := disp.Dispatch(ctx, line); err != nil {
			return err
		}
	}

	var line string
	if d[4] != 1 {
		line = fmt.Sprintf("bart reshape 1023 %d %d %d %d 1 1 1 %d %d %d %s input_data",
			d[0], d[1], d[2], d[3], d[5], d[6], d[4], measName)
	} else {
		line = fmt.Sprintf("bart scale 1.0 %s input_data", measName)
	}
	_, err := disp.Dispatch(ctx, line)
	return err
}
