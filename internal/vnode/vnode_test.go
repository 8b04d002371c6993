package vnode

import (
	"context"
	"testing"
	"time"

	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/sched"
	"github.com/stretchr/testify/require"
)

// fakeKernel is a minimal Kernel good enough to drive RecvBlocking's
// retry loop without pulling in the root kernel package — a plain fake
// with a scripted sequence of Dispatch results keeps the test
// self-contained.
type fakeKernel struct {
	created      []sched.ID
	recvSeq      []uint64 // successive Dispatch results to return
	callIdx      int
	dispatchedAs []sched.ID // task id each Dispatch call was made with
}

func (f *fakeKernel) CreateTask(id sched.ID, name string, caps capset.Set) *sched.Task {
	f.created = append(f.created, id)
	return &sched.Task{ID: id, Name: name, Caps: caps}
}

func (f *fakeKernel) Dispatch(task sched.ID, n, a1, a2, a3 uint64) uint64 {
	f.dispatchedAs = append(f.dispatchedAs, task)
	if f.callIdx >= len(f.recvSeq) {
		return f.recvSeq[len(f.recvSeq)-1]
	}
	r := f.recvSeq[f.callIdx]
	f.callIdx++
	return r
}

func TestRunLoadsTaskAndStartsGoroutine(t *testing.T) {
	fk := &fakeKernel{}
	started := make(chan sched.ID, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Run(ctx, fk, 3, "echo", capset.New(capset.TagIpcManage()), func(ctx context.Context, k Kernel, self sched.ID) {
		started <- self
	})

	select {
	case id := <-started:
		require.Equal(t, sched.ID(3), id)
	case <-time.After(time.Second):
		t.Fatal("vnode goroutine never started")
	}
	require.Equal(t, []sched.ID{3}, fk.created)
}

func TestRecvBlockingRetriesUntilData(t *testing.T) {
	fk := &fakeKernel{recvSeq: []uint64{0, 0, 5}}

	length, ok := RecvBlocking(context.Background(), fk, 3, 2, 0, 0, 64, time.Millisecond)
	require.True(t, ok)
	require.Equal(t, uint64(5), length)
	// every retry dispatches as the same caller id, not whatever the
	// scheduler happens to consider current.
	require.Equal(t, []sched.ID{3, 3, 3}, fk.dispatchedAs)
}

func TestRecvBlockingStopsOnContextCancel(t *testing.T) {
	fk := &fakeKernel{recvSeq: []uint64{0}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := RecvBlocking(ctx, fk, 3, 2, 0, 0, 64, time.Millisecond)
	require.False(t, ok)
}

func TestRecvBlockingStopsOnErrorSentinel(t *testing.T) {
	fk := &fakeKernel{recvSeq: []uint64{0xFFFFFFFFFFFFFFFE}}

	_, ok := RecvBlocking(context.Background(), fk, 3, 2, 0, 0, 64, time.Millisecond)
	require.False(t, ok)
}
