// Package arena provides bump allocation for the per-run analysis graph.
//
// Every parameter vector, operator state block and histogram bin array of a
// run lives in one Arena. Construction allocates, the event loop never does,
// and tearing down a run releases everything at once. The region is sized up
// front; there is no implicit growth and no per-object release. Allocations
// are zeroed and honor the requested alignment, which the engine uses to
// keep parameter vectors on 64 byte boundaries.
package arena

import (
	"fmt"
	"unsafe"

	"github.com/c360/vmeflow/errors"
)

// DefaultSize is the region size used when the caller does not specify one.
const DefaultSize = 1 << 22

// Arena is a fixed-size bump allocator. It is not safe for concurrent use;
// graph construction runs on a single goroutine.
type Arena struct {
	mem  []byte
	next int
}

// New returns an Arena backed by a zeroed region of size bytes.
// A size <= 0 selects DefaultSize.
func New(size int) *Arena {
	if size <= 0 {
		size = DefaultSize
	}
	return &Arena{mem: make([]byte, size)}
}

// Alloc returns a zeroed byte slice of the given size whose first byte is
// aligned to align. align must be a power of two; violations are programming
// errors and panic. Alloc fails when the region cannot hold the request.
func (a *Arena) Alloc(size, align int) ([]byte, error) {
	if size < 0 {
		panic(fmt.Sprintf("arena: negative allocation size %d", size))
	}
	if align <= 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("arena: alignment %d is not a power of two", align))
	}
	if size == 0 {
		return []byte{}, nil
	}

	base := uintptr(unsafe.Pointer(&a.mem[0]))
	pos := base + uintptr(a.next)
	off := int((uintptr(align) - pos%uintptr(align)) % uintptr(align))
	start := a.next + off

	if start+size > len(a.mem) {
		return nil, fmt.Errorf("arena capacity %d exhausted (used %d, requested %d): %w",
			len(a.mem), a.next, size, errors.ErrArenaExhausted)
	}
	a.next = start + size
	return a.mem[start : start+size : start+size], nil
}

// Used returns the bytes consumed so far, alignment padding included.
func (a *Arena) Used() int { return a.next }

// Capacity returns the total size of the backing region.
func (a *Arena) Capacity() int { return len(a.mem) }

// Free returns the bytes still available.
func (a *Arena) Free() int { return len(a.mem) - a.next }

// Reset re-zeroes the region and makes all space available again. Slices
// returned by earlier allocations must not be used afterwards.
func (a *Arena) Reset() {
	clear(a.mem[:a.next])
	a.next = 0
}

// Push allocates a zeroed slice of count elements of type T. The element
// alignment is raised to align when the type's natural alignment is smaller.
func Push[T any](a *Arena, count, align int) ([]T, error) {
	var zero T
	if natural := int(unsafe.Alignof(zero)); align < natural {
		align = natural
	}
	if count == 0 {
		return []T{}, nil
	}
	b, err := a.Alloc(count*int(unsafe.Sizeof(zero)), align)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), count), nil
}
