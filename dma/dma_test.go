package dma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	r := New()

	h, err := r.Alloc(100)
	require.NoError(t, err)
	require.NotZero(t, h)

	cap, err := r.Capacity(h)
	require.NoError(t, err)
	require.Equal(t, uint32(100), cap)

	length, err := r.Len(h)
	require.NoError(t, err)
	require.Zero(t, length)

	r.Free(h)
	require.Equal(t, 0, r.Count())
}

func TestHandlesAreMonotonic(t *testing.T) {
	r := New()
	h1, _ := r.Alloc(10)
	h2, _ := r.Alloc(10)
	require.Less(t, uint64(h1), uint64(h2))
}

func TestDoubleFreeIsNoOp(t *testing.T) {
	r := New()
	h, _ := r.Alloc(10)
	r.Free(h)
	require.NotPanics(t, func() { r.Free(h) })
}

func TestSetLenRespectsCapacity(t *testing.T) {
	r := New()
	h, _ := r.Alloc(64)

	require.NoError(t, r.SetLen(h, 32))
	n, err := r.Len(h)
	require.NoError(t, err)
	require.Equal(t, uint32(32), n)

	err = r.SetLen(h, 65)
	require.Error(t, err)
}

func TestPtrReturnsFullCapacityRegardlessOfLen(t *testing.T) {
	r := New()
	h, _ := r.Alloc(64)

	// A freshly allocated buffer is writable through Ptr before any
	// length has been set — the spec's documented "write, then
	// set-length" order requires the full allocation up front.
	buf, err := r.Ptr(h)
	require.NoError(t, err)
	require.Len(t, buf, 64)

	require.NoError(t, r.SetLen(h, 10))
	buf, err = r.Ptr(h)
	require.NoError(t, err)
	require.Len(t, buf, 64)

	n, err := r.Len(h)
	require.NoError(t, err)
	require.Equal(t, uint32(10), n)
}

func TestOperationsOnUnknownHandleFail(t *testing.T) {
	r := New()
	_, err := r.Ptr(999)
	require.Error(t, err)
	_, err = r.Capacity(999)
	require.Error(t, err)
	_, err = r.Len(999)
	require.Error(t, err)
	require.Error(t, r.SetLen(999, 1))
}

func TestAllocZeroCapacityRejected(t *testing.T) {
	r := New()
	_, err := r.Alloc(0)
	require.Error(t, err)
}

func TestAllocAcrossPoolBuckets(t *testing.T) {
	r := New()
	for _, size := range []uint32{1, size4k, size4k + 1, size1m, size1m + 1} {
		h, err := r.Alloc(size)
		require.NoError(t, err)
		cap, err := r.Capacity(h)
		require.NoError(t, err)
		require.Equal(t, size, cap)
	}
}
