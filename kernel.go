// Package kernel wires the capability, scheduling, mailbox, DMA, and
// IRQ subsystems together behind the single-entry-point syscall
// dispatcher, and implements the boot handoff sequence described in
// SPEC_FULL.md §6 / spec.md §6.
package kernel

import (
	"sync"
	"time"

	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/dma"
	"github.com/behrlich/microvnode/internal/klog"
	"github.com/behrlich/microvnode/irq"
	"github.com/behrlich/microvnode/mailbox"
	"github.com/behrlich/microvnode/metrics"
	"github.com/behrlich/microvnode/sched"
	"github.com/behrlich/microvnode/syscalls"
	"github.com/behrlich/microvnode/uspace"
)

// RegionKind classifies a memory region in the boot-time map.
type RegionKind int

const (
	Usable RegionKind = iota
	Reserved
)

// Region is one entry of the memory-region map the bootloader hands
// off to the kernel.
type Region struct {
	Start uint64
	End   uint64
	Kind  RegionKind
}

// frameAllocator records the usable regions found in the boot-time
// memory map — standing in for the real physical-memory frame
// allocator spec.md §1 treats as pre-initialized ambient state the
// kernel still owns at boot. It only reports the total usable size; it
// hands out no frames.
type frameAllocator struct {
	usable []Region
}

func newFrameAllocator(regions []Region) *frameAllocator {
	fa := &frameAllocator{}
	for _, r := range regions {
		if r.Kind == Usable {
			fa.usable = append(fa.usable, r)
		}
	}
	return fa
}

func (fa *frameAllocator) totalUsableBytes() uint64 {
	var total uint64
	for _, r := range fa.usable {
		total += r.End - r.Start
	}
	return total
}

// defaultAddressSpaceSize is the arena size given to every V-Node task,
// large enough for the demo services and test harnesses.
const defaultAddressSpaceSize = 64 * 1024

// Kernel is the booted microkernel instance: every subsystem plus the
// glue a V-Node goroutine needs to issue syscalls against it.
type Kernel struct {
	sched    *sched.Scheduler
	mailbox  *mailbox.Mailboxes
	dma      *dma.Registry
	irq      *irq.Dispatcher
	metrics  *metrics.Metrics
	observer metrics.Observer
	logger   *klog.Logger
	frames   *frameAllocator

	mu     sync.Mutex
	spaces map[sched.ID]*uspace.AddressSpace
	ticks  uint64

	net *netController
}

// Boot initializes a kernel from a memory-region map, following the
// order spec.md §6 requires: console/log sink; frame allocator; task
// table (kernel task 0); mailbox array; IRQ dispatcher.
func Boot(regions []Region) *Kernel {
	logger := klog.Default()
	logger.Info("booting microvnode kernel", "regions", len(regions))

	frames := newFrameAllocator(regions)
	logger.Debug("frame allocator initialized", "usable_bytes", frames.totalUsableBytes())

	s := sched.New()
	mb := mailbox.New(s)
	d := irq.New(mb)
	m := metrics.New(time.Now())

	k := &Kernel{
		sched:    s,
		mailbox:  mb,
		dma:      dma.New(),
		irq:      d,
		metrics:  m,
		observer: metrics.NewMetricsObserver(m),
		logger:   logger,
		frames:   frames,
		spaces:   make(map[sched.ID]*uspace.AddressSpace),
		net:      newNetController(),
	}
	logger.Info("kernel booted", "kernel_task", sched.KernelTaskID)
	return k
}

// CreateTask loads a new V-Node: creates its task control block and a
// fresh address space.
func (k *Kernel) CreateTask(id sched.ID, name string, caps capset.Set) *sched.Task {
	k.mu.Lock()
	k.spaces[id] = uspace.New(defaultAddressSpaceSize)
	k.mu.Unlock()
	return k.sched.CreateTask(id, name, caps)
}

// Dispatch is the syscall entry point V-Node goroutines call, passing
// their own task id explicitly rather than relying on whichever task
// the scheduler's round-robin bookkeeping happens to call current —
// see syscalls.Dispatch for why that distinction matters once V-Nodes
// are real, concurrently-scheduled goroutines.
func (k *Kernel) Dispatch(task sched.ID, n, a1, a2, a3 uint64) uint64 {
	return syscalls.Dispatch(k, task, n, a1, a2, a3)
}

// Tick advances the kernel's monotonic clock by one unit, the source
// of the TIME syscall's return value.
func (k *Kernel) Tick() {
	k.mu.Lock()
	k.ticks++
	k.mu.Unlock()
}

// InjectIRQ simulates a hardware interrupt firing, for driver demos
// and tests.
func (k *Kernel) InjectIRQ(n uint8) error {
	return k.irq.Inject(n)
}

// FeedNetRx queues a frame as if it had arrived on iface, for driver
// demos and tests.
func (k *Kernel) FeedNetRx(iface uint64, frame []byte) {
	k.net.feedRx(iface, frame)
}

// TransmittedFrames returns every frame a V-Node has sent on iface via
// NET_TX, for test assertions and the demo harness.
func (k *Kernel) TransmittedFrames(iface uint64) [][]byte {
	return k.net.sent(iface)
}

// Assertf halts the kernel after logging, per spec.md §7's "a
// kernel-internal assertion failure halts the system after logging."
func (k *Kernel) Assertf(cond bool, msg string, args ...any) {
	if !cond {
		k.logger.Fatal(msg, args...)
	}
}

// --- syscalls.Env ---

func (k *Kernel) Scheduler() *sched.Scheduler   { return k.sched }
func (k *Kernel) Mailboxes() *mailbox.Mailboxes { return k.mailbox }
func (k *Kernel) DMA() *dma.Registry            { return k.dma }
func (k *Kernel) IRQ() *irq.Dispatcher          { return k.irq }
func (k *Kernel) Metrics() *metrics.Metrics     { return k.metrics }
func (k *Kernel) Observer() metrics.Observer    { return k.observer }
func (k *Kernel) Logger() *klog.Logger          { return k.logger }

// SetObserver overrides the kernel's syscall Observer, e.g. to plug in
// a tracing or test Observer instead of the default MetricsObserver.
func (k *Kernel) SetObserver(o metrics.Observer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.observer = o
}

func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

func (k *Kernel) AddressSpace(task sched.ID) *uspace.AddressSpace {
	k.mu.Lock()
	defer k.mu.Unlock()
	as, ok := k.spaces[task]
	if !ok {
		as = uspace.New(defaultAddressSpaceSize)
		k.spaces[task] = as
	}
	return as
}

func (k *Kernel) NetRecv(iface uint64) ([]byte, bool) { return k.net.recv(iface) }
func (k *Kernel) NetSend(iface uint64, data []byte)   { k.net.send(iface, data) }

var _ syscalls.Env = (*Kernel)(nil)

// netController is the simulated network peripheral: per-interface RX
// queues fed by FeedNetRx, and a TX log the demo
// harness inspects. There is no real NIC in this environment, mirroring
// how spec.md §1 treats driver-level collaborators as external.
type netController struct {
	mu  sync.Mutex
	rx  map[uint64][][]byte
	tx  map[uint64][][]byte
}

func newNetController() *netController {
	return &netController{rx: make(map[uint64][][]byte), tx: make(map[uint64][][]byte)}
}

func (n *netController) feedRx(iface uint64, frame []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	n.rx[iface] = append(n.rx[iface], cp)
}

func (n *netController) recv(iface uint64) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	q := n.rx[iface]
	if len(q) == 0 {
		return nil, false
	}
	frame := q[0]
	n.rx[iface] = q[1:]
	return frame, true
}

func (n *netController) send(iface uint64, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tx[iface] = append(n.tx[iface], data)
}

func (n *netController) sent(iface uint64) [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.tx[iface]...)
}
