// Package runtime implements the intrinsics of spec §6.4 — alloc, free,
// memcopy, print — that generated code calls by name. Grounded on the
// teacher's internal/vm/vm.go heap (a single flat byte slice with a
// freelist), retargeted onto an mmap'd, mprotect'able arena via
// golang.org/x/sys/unix so the native backend's call path and the VM's
// stack/heap sizing (-s/-m, spec §6.2) share one allocator shape.
package runtime

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// block is one entry of the free list: an offset into Heap.mem and a size.
type block struct {
	off, size uint32
}

// Heap is a bump-allocated-with-freelist arena backed by an mmap'd region,
// the runtime.alloc/free intrinsics' storage. One Heap exists per Pipeline
// (spec §5: "single-threaded per Pipeline"), sized by -m at CLI startup.
type Heap struct {
	mu    sync.Mutex
	mem   []byte
	free  []block
	brk   uint32
	out   io.Writer
}

// New mmaps size bytes of read/write memory for the heap. size must already
// have been validated against the CLI's 1 KiB..128 MiB bound (spec §6.2);
// New does not re-validate it.
func New(size uint32, out io.Writer) (*Heap, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "runtime: mmap heap")
	}
	if out == nil {
		out = io.Discard
	}
	return &Heap{mem: mem, out: out}, nil
}

// Close unmaps the heap's backing memory. Called on Pipeline teardown,
// LIFO with every other per-compile resource per spec §5.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mem == nil {
		return nil
	}
	err := unix.Munmap(h.mem)
	h.mem = nil
	return err
}

// Alloc implements alloc(size) -> ptr: first-fit over the free list, else a
// bump allocation from the high-water mark. Returned offsets are relative
// to the heap's base, not a process address, since the VM backend indexes
// into h.mem directly and the native backend's Artifact.Call runs nothing
// in-process.
func (h *Heap) Alloc(size uint32) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.free {
		if b.size >= size {
			h.free = append(h.free[:i], h.free[i+1:]...)
			if b.size > size {
				h.free = append(h.free, block{off: b.off + size, size: b.size - size})
			}
			return b.off, nil
		}
	}
	if uint64(h.brk)+uint64(size) > uint64(len(h.mem)) {
		return 0, errors.Errorf("runtime: heap exhausted allocating %d bytes", size)
	}
	off := h.brk
	h.brk += size
	return off, nil
}

// Free implements free(ptr): returns the block to the free list. Adjacent
// coalescing is intentionally skipped, matching the teacher's heap, which
// favors simplicity over fragmentation resistance for a scripting-language
// heap sized in the single-digit megabytes.
func (h *Heap) Free(off, size uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.free = append(h.free, block{off: off, size: size})
}

// Memcopy implements memcopy(dst, src, size): a bounds-checked copy within
// the heap's backing slice.
func (h *Heap) Memcopy(dst, src, size uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if uint64(dst)+uint64(size) > uint64(len(h.mem)) || uint64(src)+uint64(size) > uint64(len(h.mem)) {
		return errors.Errorf("runtime: memcopy out of bounds (dst=%d src=%d size=%d)", dst, src, size)
	}
	copy(h.mem[dst:dst+size], h.mem[src:src+size])
	return nil
}

// Read returns a view of size bytes at off, for a caller (a wrapper,
// hostabi.Arg materialization) that needs to read a heap-resident value
// without copying it out.
func (h *Heap) Read(off, size uint32) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mem[off : off+size]
}

func (h *Heap) Write(off uint32, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	copy(h.mem[off:], data)
}

// Print implements print(string): the runtime boundary's one I/O
// intrinsic, writing to the Heap's configured sink (stdout in cmd/tsnc,
// a buffer in tests).
func (h *Heap) Print(s string) {
	fmt.Fprint(h.out, s)
}
