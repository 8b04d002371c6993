// Package sched implements the Task Table & Scheduler described in
// SPEC_FULL.md §4.2: cooperative round-robin over a FIFO ready queue,
// with block/unblock keyed by channel id.
package sched

import (
	"sync"

	"github.com/behrlich/microvnode/capset"
	"github.com/behrlich/microvnode/internal/klog"
)

// State is a task's lifecycle state, per spec.md §3.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Exited
)

func (s State) String() string {
	switch s {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Exited:
		return "Exited"
	default:
		return "Unknown"
	}
}

// ID identifies a task. Id 0 is reserved for the kernel's own
// pseudo-task, per spec.md §3.
type ID uint64

// KernelTaskID is the kernel's own pseudo-task, holding the universal
// capability set and existing from boot.
const KernelTaskID ID = 0

// Task is a task control block.
type Task struct {
	ID    ID
	Name  string
	State State
	Caps  capset.Set

	// blockedOn is the channel this task is blocked on, valid only while
	// State == Blocked. Tracked per task (rather than a single scheduler
	// field) so mailbox.Send can find every task blocked on a channel —
	// see UnblockChannel.
	blockedOn uint32
}

// Scheduler owns the task table and the ready queue. It implements
// single-threaded cooperative round-robin: at most one task is Running
// at any time, and schedule() is the only transition point.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[ID]*Task
	ready   []ID // FIFO ready queue, head at index 0
	current ID
	logger  *klog.Logger
}

// New creates a scheduler with exactly one task: id 0, "kernel", holding
// every capability, Running — the boot-time state spec.md §4.2 requires.
func New() *Scheduler {
	s := &Scheduler{
		tasks:  make(map[ID]*Task),
		logger: klog.Default(),
	}
	kernelTask := &Task{
		ID:    KernelTaskID,
		Name:  "kernel",
		State: Running,
		Caps:  capset.Universal(),
	}
	s.tasks[KernelTaskID] = kernelTask
	s.current = KernelTaskID
	return s
}

// CreateTask adds a new task in the Ready state with the given
// capability grants, as the V-Node loader does per spec.md §3.
func (s *Scheduler) CreateTask(id ID, name string, caps capset.Set) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{ID: id, Name: name, State: Ready, Caps: caps}
	s.tasks[id] = t
	s.ready = append(s.ready, id)
	s.logger.Debug("task created", "id", id, "name", name)
	return t
}

// Lookup returns the task control block for id, or nil if unknown.
func (s *Scheduler) Lookup(id ID) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// Current returns the currently Running task.
func (s *Scheduler) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[s.current]
}

// CurrentID returns the id of the currently Running task.
func (s *Scheduler) CurrentID() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Schedule is the single transition point of spec.md §4.2: if the
// current task is still Running, demote it to Ready and enqueue it;
// pop the next Ready task from the head of the queue and promote it to
// Running. If the queue is empty, the scheduler stays idle (current
// task keeps running, or — if it has Exited/Blocked — no task runs).
func (s *Scheduler) Schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
}

func (s *Scheduler) scheduleLocked() {
	if cur, ok := s.tasks[s.current]; ok && cur.State == Running {
		cur.State = Ready
		s.ready = append(s.ready, cur.ID)
	}

	if len(s.ready) == 0 {
		// Idle: conceptually halt until the next interrupt or wakeup.
		s.logger.Debug("scheduler idle, no ready tasks")
		return
	}

	next := s.ready[0]
	s.ready = s.ready[1:]
	t, ok := s.tasks[next]
	if !ok || t.State != Ready {
		// Task was removed from the table (exited) or blocked while still
		// queued; skip it and try again.
		s.scheduleLocked()
		return
	}
	t.State = Running
	s.current = next
}

// BlockTaskOnChannel sets the given task's state to Blocked and records
// the channel it is waiting on — spec.md §4.2's block_current_on_channel,
// generalized to take the caller's real task id explicitly rather than
// assume the blocking task is whichever one the scheduler's bookkeeping
// currently calls "current" (callers issue syscalls concurrently from
// their own goroutines, not from a single physical execution context).
// Triggers an immediate reschedule only if the blocked task actually was
// the scheduler's current task, preserving round-robin bookkeeping.
func (s *Scheduler) BlockTaskOnChannel(id ID, channel uint32) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	wasCurrent := id == s.current
	if ok {
		t.State = Blocked
		t.blockedOn = channel
		s.logger.Debug("task blocked", "id", id, "channel", channel)
	}
	s.mu.Unlock()

	if wasCurrent {
		s.Schedule()
	}
}

// UnblockTask flips a Blocked task back to Ready and enqueues it. A
// no-op if the task is not currently Blocked, per spec.md §4.2.
func (s *Scheduler) UnblockTask(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unblockLocked(id)
}

func (s *Scheduler) unblockLocked(id ID) {
	t, ok := s.tasks[id]
	if !ok || t.State != Blocked {
		return
	}
	t.State = Ready
	s.ready = append(s.ready, id)
	s.logger.Debug("task unblocked", "id", id)
}

// UnblockChannel unblocks every task currently blocked on the given
// channel. It scans the task table and wakes each Blocked task whose
// recorded blockedOn channel matches; there is no separate
// channel-to-tasks index. mailbox.Send calls this on every successful
// send. Because the lock-ordering rule in spec.md §5 puts
// the scheduler ahead of the mailbox, callers must not hold the
// mailbox lock when calling this.
func (s *Scheduler) UnblockChannel(channel uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.State == Blocked && t.blockedOn == channel {
			s.unblockLocked(id)
		}
	}
}

// Exit removes a task from the task table, its terminal state per
// spec.md §3.
func (s *Scheduler) Exit(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.State = Exited
	}
	delete(s.tasks, id)
}

// Count returns the number of live tasks, for diagnostics/tests.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
