package cfl

// Elements returns the product of the extents. Zero-extent axes make the
// whole product zero; an empty dims slice counts as a single element.
func Elements(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// Strides returns the row-major stride, in elements, of each axis
// (axis 0 fastest).
func Strides(dims []int64) []int64 {
	strides := make([]int64, len(dims))
	acc := int64(1)
	for i, d := range dims {
		strides[i] = acc
		acc *= d
	}
	return strides
}

// SqueezeTrailing drops trailing singleton extents, keeping at least one
// entry. Headers on disk pad to MaxDims with 1s; registration wants the
// meaningful prefix.
func SqueezeTrailing(dims []int64) []int64 {
	end := len(dims)
	for end > 1 && dims[end-1] == 1 {
		end--
	}
	out := make([]int64, end)
	copy(out, dims[:end])
	return out
}

// PadDims extends dims to MaxDims entries, filling absent axes with 1.
func PadDims(dims []int64) []int64 {
	out := make([]int64, MaxDims)
	for i := range out {
		out[i] = 1
	}
	copy(out, dims)
	return out
}
