// Package vnode provides a small harness that runs a function as a
// cooperating V-Node goroutine, issuing syscalls through a Kernel —
// standing in for the ELF-loaded user-space task spec.md treats as an
// external collaborator (SPEC_FULL.md §2).
package vnode

import (
	"context"
	"time"

	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/sched"
)

// Kernel is the subset of *kernel.Kernel a V-Node harness needs. Kept
// as an interface (rather than importing the kernel package directly)
// so the harness does not depend on the root kernel package and can be
// driven by a fake in tests; the root kernel.Kernel type satisfies it.
type Kernel interface {
	CreateTask(id sched.ID, name string, caps capset.Set) *sched.Task
	Dispatch(task sched.ID, n, a1, a2, a3 uint64) uint64
}

// Func is a V-Node's entry point: it receives the Kernel and its own
// task id, which it passes to every Kernel.Dispatch call, and runs until
// ctx is done or it returns on its own.
type Func func(ctx context.Context, k Kernel, self sched.ID)

// Run loads a V-Node as task id with the given capabilities and runs
// fn as a goroutine. It returns immediately; cancel ctx to stop fn.
func Run(ctx context.Context, k Kernel, id sched.ID, name string, caps capset.Set, fn Func) {
	k.CreateTask(id, name, caps)
	go fn(ctx, k, id)
}

// RecvBlocking loops on the SUCCESS(0)-means-retry protocol from
// spec.md §9: it keeps calling IPC_RECV until it gets a positive
// length, ctx is cancelled, or the dispatcher returns an error
// sentinel. pollInterval bounds how often it retries while blocked —
// there is no real scheduler wakeup signal reaching this goroutine, so
// a short sleep stands in for "resumed after the kernel reschedules
// us".
func RecvBlocking(ctx context.Context, k Kernel, self sched.ID, ipcRecv uint64, channel, outPtr, outCap uint64, pollInterval time.Duration) (length uint64, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return 0, false
		default:
		}

		r := k.Dispatch(self, ipcRecv, channel, outPtr, outCap)
		// r==1 is ambiguous in this ABI (E_ERROR and a genuine one-byte
		// message collide); callers expecting one-byte messages on a
		// channel need a sizing convention that avoids length 1.
		if r > 0 && r < 0xFFFFFFFFFFFFFFFE {
			return r, true
		}
		if r >= 0xFFFFFFFFFFFFFFFE {
			return 0, false
		}

		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(pollInterval):
		}
	}
}
