// Package syscalls implements the single-entry-point syscall dispatcher
// of SPEC_FULL.md §4.6: one function decoding (n, a1, a2, a3) into a
// capability check, an operation on one of the kernel subsystems, and a
// u64 result encoded per the three-sentinel ABI.
//
// Dispatch depends only on the Env interface below, not on the concrete
// kernel type, following the teacher's interface-at-the-boundary style
// (internal/interfaces/backend.go) — it keeps this package free of an
// import cycle with the root kernel package that wires Env's
// implementation together.
package syscalls

import (
	"time"

	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/dma"
	"github.com/behrlich/microvnode/internal/kerr"
	"github.com/behrlich/microvnode/internal/klog"
	"github.com/behrlich/microvnode/irq"
	"github.com/behrlich/microvnode/mailbox"
	"github.com/behrlich/microvnode/metrics"
	"github.com/behrlich/microvnode/sched"
	"github.com/behrlich/microvnode/uspace"
)

// Syscall numbers, per spec.md §6.
const (
	Log = uint64(iota)
	IpcSend
	IpcRecv
	BlockOnChan
	Time
	IrqRegister
	NetRxPoll
	NetAllocBuf
	NetFreeBuf
	NetTx
	IrqAck
	GetDmaBufPtr
	SetDmaBufLen
	IpcRecvNonblocking
	numSyscalls
)

// ABI return sentinels, re-exported from kerr for callers that only
// import syscalls.
const (
	Success         = kerr.Success
	EError          = kerr.EError
	EAccessDenied   = kerr.EAccessDenied
	EUnknownSyscall = kerr.EUnknownSyscall
)

// Env is everything Dispatch needs from the kernel: the task table
// (through Scheduler) and every subsystem a syscall branch may touch.
// The calling task's identity is not read from Env; Dispatch receives it
// as an explicit argument.
type Env interface {
	Scheduler() *sched.Scheduler
	Mailboxes() *mailbox.Mailboxes
	DMA() *dma.Registry
	IRQ() *irq.Dispatcher
	AddressSpace(task sched.ID) *uspace.AddressSpace
	Metrics() *metrics.Metrics
	Observer() metrics.Observer
	Logger() *klog.Logger
	Ticks() uint64

	// NetRecv/NetSend stand in for a real network driver's RX/TX rings;
	// the microvnode network V-Node demo is the only consumer.
	NetRecv(iface uint64) ([]byte, bool)
	NetSend(iface uint64, data []byte)
}

// Dispatch is the kernel's single syscall entry point: dispatch(taskID,
// n, a1, a2, a3) -> u64, per spec.md §4.6. taskID is the real identity
// of the caller, supplied explicitly by the V-Node goroutine issuing
// the call — it is looked up in the task table rather than read off
// env.Scheduler().Current(), since "whichever task the scheduler
// currently considers running" is a round-robin bookkeeping value, not
// a synchronization primitive: V-Node goroutines call Dispatch
// concurrently and without waiting for the scheduler to mark them
// Running, so trusting Current() here would let any task run with
// whichever other task's capabilities and identity happened to be
// current at that instant.
func Dispatch(env Env, taskID sched.ID, n, a1, a2, a3 uint64) uint64 {
	start := time.Now()
	task := env.Scheduler().Lookup(taskID)
	if task == nil || task.State == sched.Exited {
		return EError
	}

	result, err := route(env, task, n, a1, a2, a3)
	env.Observer().ObserveSyscall(uint32(n), uint64(time.Since(start)), err == nil)

	if err != nil {
		if n >= numSyscalls {
			return EUnknownSyscall
		}
		return kerr.ToSyscallReturn(err)
	}
	return result
}

func route(env Env, task *sched.Task, n, a1, a2, a3 uint64) (uint64, error) {
	switch n {
	case Log:
		return doLog(env, task, a1, a2)
	case IpcSend:
		return doIpcSend(env, task, a1, a2, a3)
	case IpcRecv:
		return doIpcRecv(env, task, a1, a2, a3, true)
	case IpcRecvNonblocking:
		return doIpcRecv(env, task, a1, a2, a3, false)
	case BlockOnChan:
		return doBlockOnChan(env, task, a1)
	case Time:
		return doTime(env, task)
	case IrqRegister:
		return doIrqRegister(env, task, a1, a2)
	case NetRxPoll:
		return doNetRxPoll(env, task, a1, a2, a3)
	case NetAllocBuf:
		return doNetAllocBuf(env, task, a1)
	case NetFreeBuf:
		return doNetFreeBuf(env, task, a1)
	case NetTx:
		return doNetTx(env, task, a1, a2, a3)
	case IrqAck:
		return doIrqAck(env, task, a1)
	case GetDmaBufPtr:
		return doGetDmaBufPtr(env, task, a1)
	case SetDmaBufLen:
		return doSetDmaBufLen(env, task, a1, a2)
	default:
		return 0, kerr.New("DISPATCH", kerr.CodeInvalidArgument, "unknown syscall number")
	}
}

func requireCap(task *sched.Task, op string, tag capset.Tag) error {
	if !task.Caps.Check(tag) {
		return kerr.New(op, kerr.CodePermissionDenied, "missing capability")
	}
	return nil
}

func doLog(env Env, task *sched.Task, msgPtr, msgLen uint64) (uint64, error) {
	if err := requireCap(task, "LOG", capset.TagLogWrite()); err != nil {
		return 0, err
	}
	as := env.AddressSpace(task.ID)
	msg, err := as.Read(uint32(msgPtr), uint32(msgLen))
	if err != nil {
		return 0, kerr.Wrap("LOG", kerr.CodeInvalidArgument, err)
	}
	env.Logger().Info("vnode log", "task", task.ID, "msg", string(msg))
	return kerr.Success, nil
}

func doIpcSend(env Env, task *sched.Task, channel, bufPtr, bufLen uint64) (uint64, error) {
	if err := requireCap(task, "IPC_SEND", capset.TagIpcManage()); err != nil {
		return 0, err
	}
	as := env.AddressSpace(task.ID)
	data, err := as.Read(uint32(bufPtr), uint32(bufLen))
	if err != nil {
		return 0, kerr.Wrap("IPC_SEND", kerr.CodeInvalidArgument, err)
	}
	if err := env.Mailboxes().Send(uint32(channel), task.ID, data); err != nil {
		return 0, err
	}
	return kerr.Success, nil
}

// doIpcRecv implements both IPC_RECV and IPC_RECV_NONBLOCKING. blocking
// selects the loop-on-zero protocol from spec.md §9: on an empty
// mailbox it marks the task Blocked and returns SUCCESS(0), expecting
// userspace to retry on next dispatch; the non-blocking variant simply
// returns 0 for "no data" without ever blocking the task.
func doIpcRecv(env Env, task *sched.Task, channel, outPtr, outCap uint64, blocking bool) (uint64, error) {
	if err := requireCap(task, "IPC_RECV", capset.TagIpcManage()); err != nil {
		return 0, err
	}

	msg, ok, err := env.Mailboxes().Recv(uint32(channel))
	if err != nil {
		return 0, err
	}
	if !ok {
		if blocking {
			env.Scheduler().BlockTaskOnChannel(task.ID, uint32(channel))
		}
		return kerr.Success, nil
	}

	if uint64(len(msg.Payload)) > outCap {
		return 0, kerr.New("IPC_RECV", kerr.CodeBufferTooSmall, "message dropped, buffer too small")
	}

	as := env.AddressSpace(task.ID)
	if err := as.Write(uint32(outPtr), msg.Payload); err != nil {
		return 0, kerr.Wrap("IPC_RECV", kerr.CodeInvalidArgument, err)
	}
	return uint64(len(msg.Payload)), nil
}

func doBlockOnChan(env Env, task *sched.Task, channel uint64) (uint64, error) {
	if err := requireCap(task, "BLOCK_ON_CHAN", capset.TagIpcManage()); err != nil {
		return 0, err
	}
	env.Scheduler().BlockTaskOnChannel(task.ID, uint32(channel))
	return kerr.Success, nil
}

func doTime(env Env, task *sched.Task) (uint64, error) {
	if err := requireCap(task, "TIME", capset.TagTimeRead()); err != nil {
		return 0, err
	}
	return env.Ticks(), nil
}

func doIrqRegister(env Env, task *sched.Task, irqNum, channel uint64) (uint64, error) {
	if err := requireCap(task, "IRQ_REGISTER", capset.TagIrqRegister(uint8(irqNum))); err != nil {
		return 0, err
	}
	env.IRQ().Register(uint8(irqNum), uint32(channel))
	return kerr.Success, nil
}

// doNetRxPoll writes the received frame into the DMA buffer's full
// capacity first, then records its length via SetLen — the order
// spec.md §4.4 requires ("driver writes bytes, then sets length"),
// mirroring how the original's network driver fills a buffer through
// its raw pointer before calling set_dma_buffer_len.
func doNetRxPoll(env Env, task *sched.Task, ifaceID, dmaHandle, outCap uint64) (uint64, error) {
	if err := requireCap(task, "NET_RX_POLL", capset.TagNetworkAccess()); err != nil {
		return 0, err
	}
	data, ok := env.NetRecv(ifaceID)
	if !ok {
		return kerr.Success, nil
	}
	if uint64(len(data)) > outCap {
		return 0, kerr.New("NET_RX_POLL", kerr.CodeBufferTooSmall, "frame exceeds buffer capacity")
	}
	h := dma.Handle(dmaHandle)
	buf, err := env.DMA().Ptr(h)
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < uint64(len(data)) {
		return 0, kerr.New("NET_RX_POLL", kerr.CodeBufferTooSmall, "dma buffer smaller than frame")
	}
	copy(buf, data)
	if err := env.DMA().SetLen(h, uint32(len(data))); err != nil {
		return 0, err
	}
	return uint64(len(data)), nil
}

func doNetAllocBuf(env Env, task *sched.Task, size uint64) (uint64, error) {
	if err := requireCap(task, "NET_ALLOC_BUF", capset.TagDmaAlloc()); err != nil {
		return 0, err
	}
	h, err := env.DMA().Alloc(uint32(size))
	if err != nil {
		return 0, err
	}
	return uint64(h), nil
}

func doNetFreeBuf(env Env, task *sched.Task, handle uint64) (uint64, error) {
	if err := requireCap(task, "NET_FREE_BUF", capset.TagDmaAlloc()); err != nil {
		return 0, err
	}
	env.DMA().Free(dma.Handle(handle))
	return kerr.Success, nil
}

func doNetTx(env Env, task *sched.Task, ifaceID, handle, length uint64) (uint64, error) {
	if err := requireCap(task, "NET_TX", capset.TagNetworkAccess()); err != nil {
		return 0, err
	}
	buf, err := env.DMA().Ptr(dma.Handle(handle))
	if err != nil {
		return 0, err
	}
	if uint64(len(buf)) < length {
		return 0, kerr.New("NET_TX", kerr.CodeBufferTooSmall, "length exceeds buffer")
	}
	env.NetSend(ifaceID, append([]byte(nil), buf[:length]...))
	return kerr.Success, nil
}

func doIrqAck(env Env, task *sched.Task, irqNum uint64) (uint64, error) {
	if err := requireCap(task, "IRQ_ACK", capset.TagIrqAck(uint8(irqNum))); err != nil {
		return 0, err
	}
	return kerr.Success, env.IRQ().Acknowledge(uint8(irqNum))
}

// doGetDmaBufPtr returns the handle itself as the "pointer" value: this
// simulated kernel has no shared virtual memory between a V-Node
// goroutine and the DMA registry, so the handle is the only stable
// reference a caller can hand back into SET_DMA_BUF_LEN, NET_TX and
// NET_FREE_BUF. Validating the handle here (rather than just returning it
// blindly) is what makes an already-freed handle surface as E_ERROR.
func doGetDmaBufPtr(env Env, task *sched.Task, handle uint64) (uint64, error) {
	if err := requireCap(task, "GET_DMA_BUF_PTR", capset.TagDmaAccess()); err != nil {
		return 0, err
	}
	if _, err := env.DMA().Ptr(dma.Handle(handle)); err != nil {
		return 0, err
	}
	return handle, nil
}

func doSetDmaBufLen(env Env, task *sched.Task, handle, length uint64) (uint64, error) {
	if err := requireCap(task, "SET_DMA_BUF_LEN", capset.TagDmaAccess()); err != nil {
		return 0, err
	}
	if err := env.DMA().SetLen(dma.Handle(handle), uint32(length)); err != nil {
		return 0, err
	}
	return kerr.Success, nil
}
