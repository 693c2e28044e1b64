package cfl

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound reports a load of a name the registry does not hold. It
// means an earlier command did not produce the buffer the caller expected.
var ErrNotFound = errors.New("cfl: buffer not found")

// Registry maps names to buffers for the duration of one reconstruction
// request. The engine resolves command operands against it purely by name.
// It is an explicit object rather than a package singleton so tests can run
// independent registries side by side; production holds one instance per
// bridge behind the bridge's request lock.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*NamedBuffer

	// free holds scrubbed storage recovered from released NativeOwned
	// entries, reused by Alloc.
	free [][]complex64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*NamedBuffer)}
}

// Register inserts or replaces the named entry. Replacing releases the old
// entry according to its ownership tag first. ForeignOwned entries must be
// registered through RegisterForeign so the release hook travels with them.
func (r *Registry) Register(name string, dims []int64, data []complex64, own Ownership) error {
	if own == ForeignOwned {
		return fmt.Errorf("cfl: register %q: foreign-owned buffers need a release hook, use RegisterForeign", name)
	}
	return r.register(name, dims, data, own, nil)
}

// RegisterForeign inserts or replaces the named entry with storage that was
// allocated outside the registry. release is invoked exactly once when the
// entry is released and must match the allocation convention of data.
func (r *Registry) RegisterForeign(name string, dims []int64, data []complex64, release func()) error {
	if release == nil {
		return fmt.Errorf("cfl: register %q: nil release hook", name)
	}
	return r.register(name, dims, data, ForeignOwned, release)
}

func (r *Registry) register(name string, dims []int64, data []complex64, own Ownership, release func()) error {
	if name == "" {
		return errors.New("cfl: register: empty buffer name")
	}
	if len(dims) == 0 || len(dims) > MaxRank {
		return fmt.Errorf("cfl: register %q: rank %d outside 1..%d", name, len(dims), MaxRank)
	}
	for i, d := range dims {
		if d < 0 {
			return fmt.Errorf("cfl: register %q: negative extent %d on axis %d", name, d, i)
		}
	}
	n := Elements(dims)
	if data == nil && n != 0 {
		return fmt.Errorf("cfl: register %q: nil data for %d elements", name, n)
	}
	if data != nil && int64(len(data)) != n {
		return fmt.Errorf("cfl: register %q: %d samples for dims implying %d", name, len(data), n)
	}

	stored := make([]int64, len(dims))
	copy(stored, dims)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[name]; ok {
		r.releaseLocked(old)
	}
	r.entries[name] = &NamedBuffer{
		name:      name,
		dims:      stored,
		data:      data,
		ownership: own,
		release:   release,
	}
	return nil
}

// Load returns the named buffer or ErrNotFound.
func (r *Registry) Load(name string) (*NamedBuffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return b, nil
}

// LoadDims looks up name, writes its extents into the prefix of dims and
// returns the stored data. Trailing entries of dims are left untouched.
func (r *Registry) LoadDims(name string, dims []int64) ([]complex64, error) {
	b, err := r.Load(name)
	if err != nil {
		return nil, err
	}
	if err := b.DimsInto(dims); err != nil {
		return nil, err
	}
	return b.data, nil
}

// Alloc returns storage for n elements, reusing scrubbed storage recovered
// from released NativeOwned entries when something big enough is free.
func (r *Registry) Alloc(n int64) []complex64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, buf := range r.free {
		if int64(cap(buf)) >= n {
			r.free = append(r.free[:i], r.free[i+1:]...)
			return buf[:n]
		}
	}
	return make([]complex64, n)
}

// ReleaseAll releases every entry according to its ownership tag and clears
// the registry. Safe to call repeatedly and on an empty registry; release
// hooks fire at most once.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, b := range r.entries {
		r.releaseLocked(b)
		delete(r.entries, name)
	}
}

func (r *Registry) releaseLocked(b *NamedBuffer) {
	switch b.ownership {
	case Borrowed:
		// Caller's storage; never touched.
	case NativeOwned:
		for i := range b.data {
			b.data[i] = 0
		}
		if cap(b.data) > 0 {
			r.free = append(r.free, b.data[:cap(b.data)])
		}
	case ForeignOwned:
		if b.release != nil {
			b.release()
			b.release = nil
		}
	}
	b.data = nil
}

// Len returns the number of registered buffers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
