// Package cfl implements the buffer-exchange layer shared with the
// reconstruction engine: an in-memory registry of named, dimensioned
// complex volumes, and the on-disk .hdr/.cfl pair format the engine and
// its tooling read and write.
package cfl

import "fmt"

// MaxDims is the engine's dimension convention. Every buffer is addressed
// as if it had this many axes; absent trailing axes are singletons.
const MaxDims = 16

// MaxRank is the largest rank a buffer may be registered with.
const MaxRank = MaxDims - 1

// Ownership says who releases a buffer's storage when the registry clears.
type Ownership int

const (
	// Borrowed entries reference caller-owned storage. The registry never
	// releases them; the caller guarantees the storage outlives registry use.
	Borrowed Ownership = iota

	// NativeOwned entries hold storage from the registry's own pool. On
	// release the storage is scrubbed and returned to the pool.
	NativeOwned

	// ForeignOwned entries hold storage from an outside allocation
	// convention and are released through the hook supplied at registration.
	ForeignOwned
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case NativeOwned:
		return "native"
	case ForeignOwned:
		return "foreign"
	default:
		return fmt.Sprintf("Ownership(%d)", int(o))
	}
}

// NamedBuffer is one registry entry: a complex volume addressed by name.
// Dimensions are row-major with axis 0 varying fastest.
type NamedBuffer struct {
	name      string
	dims      []int64
	data      []complex64
	ownership Ownership
	release   func()
}

// Name returns the registry name.
func (b *NamedBuffer) Name() string { return b.name }

// Rank returns the number of stored dimensions.
func (b *NamedBuffer) Rank() int { return len(b.dims) }

// Dims returns a copy of the stored extents.
func (b *NamedBuffer) Dims() []int64 {
	out := make([]int64, len(b.dims))
	copy(out, b.dims)
	return out
}

// DimsInto writes the stored extents into the prefix of dst and leaves
// trailing slots untouched. Callers size dst to MaxDims and pre-fill it
// with 1, the engine convention for absent axes.
func (b *NamedBuffer) DimsInto(dst []int64) error {
	if len(dst) < len(b.dims) {
		return fmt.Errorf("cfl: dims slice holds %d entries, buffer %q has rank %d",
			len(dst), b.name, len(b.dims))
	}
	copy(dst, b.dims)
	return nil
}

// Data returns the stored samples. The slice references the registered
// storage; it is not a copy.
func (b *NamedBuffer) Data() []complex64 { return b.data }

// Elements returns the element count implied by the stored extents.
func (b *NamedBuffer) Elements() int64 { return Elements(b.dims) }

// Ownership returns the entry's release contract.
func (b *NamedBuffer) Ownership() Ownership { return b.ownership }

// Volume couples extents with data outside the registry. It is the shape
// used at the bridge's outer boundary and by the on-disk codec.
type Volume struct {
	Dims []int64
	Data []complex64
}

// Elements returns the element count implied by the volume's extents.
func (v Volume) Elements() int64 { return Elements(v.Dims) }
