// Package dma implements the DMA Buffer Registry of SPEC_FULL.md §4.4:
// handle-based lifecycle management over pooled byte buffers, with the
// invariant 0 <= length <= capacity enforced on every mutation.
package dma

import (
	"sync"

	"github.com/behrlich/microvnode/internal/kerr"
	"github.com/behrlich/microvnode/internal/klog"
)

// Handle identifies an allocated DMA buffer. Handles are monotonically
// increasing starting at 1; 0 is never a valid handle.
type Handle uint64

type buffer struct {
	data   []byte // len(data) == capacity; backing storage from the pool
	length uint32 // the buffer's current logical length, <= capacity
}

// Registry owns the table of live DMA buffers.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	buffers map[Handle]*buffer
	logger  *klog.Logger
}

// New builds an empty DMA buffer registry.
func New() *Registry {
	return &Registry{
		next:    1,
		buffers: make(map[Handle]*buffer),
		logger:  klog.Default(),
	}
}

// Alloc reserves a buffer of the given capacity and returns its handle.
// The buffer starts at length 0.
func (r *Registry) Alloc(capacity uint32) (Handle, error) {
	if capacity == 0 {
		return 0, kerr.New("DMA_ALLOC", kerr.CodeInvalidArgument, "capacity must be > 0")
	}

	data := getPooledBuffer(capacity)
	data = data[:capacity] // buckets are sized >= capacity; oversize path is exact

	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.next
	r.next++
	r.buffers[h] = &buffer{data: data[:capacity], length: 0}
	r.logger.Debug("dma alloc", "handle", h, "capacity", capacity)
	return h, nil
}

// Free releases a handle. Freeing an unknown or already-freed handle is
// a logged no-op, per spec.md §4.4's double-free-is-benign invariant.
func (r *Registry) Free(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buffers[h]
	if !ok {
		r.logger.Warn("dma free of unknown/already-freed handle", "handle", h)
		return
	}
	delete(r.buffers, h)
	putPooledBuffer(b.data)
}

// Ptr returns the buffer's full backing allocation, sized to its
// capacity rather than its current logical length — per spec.md §4.4,
// "callers must not write past capacity", which implies a writer needs
// the whole allocation available before it has set a length at all
// (e.g. a freshly allocated, still-zero-length buffer). Callers read
// Len separately to find out how much of the buffer is meaningful.
func (r *Registry) Ptr(h Handle) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buffers[h]
	if !ok {
		return nil, kerr.New("GET_DMA_BUF_PTR", kerr.CodeInvalidHandle, "unknown handle")
	}
	return b.data, nil
}

// Capacity returns the buffer's fixed capacity.
func (r *Registry) Capacity(h Handle) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buffers[h]
	if !ok {
		return 0, kerr.New("DMA_CAPACITY", kerr.CodeInvalidHandle, "unknown handle")
	}
	return uint32(len(b.data)), nil
}

// Len returns the buffer's current logical length.
func (r *Registry) Len(h Handle) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buffers[h]
	if !ok {
		return 0, kerr.New("DMA_LEN", kerr.CodeInvalidHandle, "unknown handle")
	}
	return b.length, nil
}

// SetLen updates the buffer's logical length, e.g. after a network
// driver fills part of the buffer. Rejects n > capacity to preserve the
// 0 <= length <= capacity invariant.
func (r *Registry) SetLen(h Handle, n uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buffers[h]
	if !ok {
		return kerr.New("SET_DMA_BUF_LEN", kerr.CodeInvalidHandle, "unknown handle")
	}
	if n > uint32(len(b.data)) {
		return kerr.New("SET_DMA_BUF_LEN", kerr.CodeBufferTooSmall, "length exceeds capacity")
	}
	b.length = n
	return nil
}

// Count returns the number of currently live handles, for diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffers)
}
