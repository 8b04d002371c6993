// Package mailbox implements the Mailbox / IPC channel model of
// SPEC_FULL.md §4.3: 32 bounded FIFO channels, lazily created, carrying
// copy-on-send/copy-on-recv byte payloads between tasks.
package mailbox

import (
	"sync"

	"github.com/behrlich/microvnode/internal/kerr"
	"github.com/behrlich/microvnode/internal/klog"
	"github.com/behrlich/microvnode/sched"
)

// NumChannels is the fixed channel address space, [0, NumChannels).
const NumChannels = 32

// DefaultCapacity is the bounded queue depth applied to a channel the
// first time a message is sent on it.
const DefaultCapacity = 16

// MaxPayloadSize is the kernel-enforced ceiling on a single message's
// payload, per spec.md §3.
const MaxPayloadSize = 4096

// Message is a single queued IPC message.
type Message struct {
	SenderTaskID sched.ID
	Payload      []byte
}

// mailbox is the bounded FIFO queue backing one channel.
type mailbox struct {
	queue    []Message
	capacity int
}

// Mailboxes owns all 32 channels plus the scheduler used to wake
// blocked receivers. Channels are created lazily on first use, per
// spec.md §4.3.
type Mailboxes struct {
	mu       sync.Mutex
	boxes    [NumChannels]*mailbox
	capacity int
	sched    *sched.Scheduler
	logger   *klog.Logger
}

// New builds an empty set of mailboxes bound to the given scheduler.
func New(s *sched.Scheduler) *Mailboxes {
	return &Mailboxes{
		capacity: DefaultCapacity,
		sched:    s,
		logger:   klog.Default(),
	}
}

func validChannel(c uint32) bool { return c < NumChannels }

// Send enqueues payload on channel c as sent by sender, copying the
// payload so the caller's buffer can be reused afterward. Returns
// CodeInvalidChannelID if c is out of range, CodeBusy if the channel's
// queue is full. On success, wakes any task blocked receiving on c —
// after releasing the mailbox lock, honoring the lock-ordering rule in
// spec.md §5 (scheduler acquired after mailbox is released, never
// nested under it).
func (m *Mailboxes) Send(c uint32, sender sched.ID, payload []byte) error {
	if !validChannel(c) {
		return kerr.New("IPC_SEND", kerr.CodeInvalidChannelID, "channel out of range")
	}
	if len(payload) > MaxPayloadSize {
		return kerr.New("IPC_SEND", kerr.CodeBufferTooSmall, "payload exceeds kernel ceiling")
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)

	m.mu.Lock()
	box := m.boxes[c]
	if box == nil {
		box = &mailbox{capacity: m.capacity}
		m.boxes[c] = box
	}
	if len(box.queue) >= box.capacity {
		m.mu.Unlock()
		return kerr.New("IPC_SEND", kerr.CodeBusy, "channel full")
	}
	box.queue = append(box.queue, Message{SenderTaskID: sender, Payload: cp})
	m.mu.Unlock()

	m.logger.Debug("mailbox send", "channel", c, "sender", sender, "bytes", len(cp))
	m.sched.UnblockChannel(c)
	return nil
}

// Recv pops the oldest message from channel c, if any. ok is false when
// the channel is empty — callers implementing a blocking receive loop
// on block_current_on_channel per spec.md §4.3/§9.
func (m *Mailboxes) Recv(c uint32) (msg Message, ok bool, err error) {
	if !validChannel(c) {
		return Message{}, false, kerr.New("IPC_RECV", kerr.CodeInvalidChannelID, "channel out of range")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	box := m.boxes[c]
	if box == nil || len(box.queue) == 0 {
		return Message{}, false, nil
	}
	msg = box.queue[0]
	box.queue = box.queue[1:]
	return msg, true, nil
}

// Peek returns the oldest message on c without removing it.
func (m *Mailboxes) Peek(c uint32) (msg Message, ok bool, err error) {
	if !validChannel(c) {
		return Message{}, false, kerr.New("IPC_PEEK", kerr.CodeInvalidChannelID, "channel out of range")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	box := m.boxes[c]
	if box == nil || len(box.queue) == 0 {
		return Message{}, false, nil
	}
	return box.queue[0], true, nil
}

// Depth reports the current queue length of channel c, for diagnostics.
func (m *Mailboxes) Depth(c uint32) int {
	if !validChannel(c) {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	box := m.boxes[c]
	if box == nil {
		return 0
	}
	return len(box.queue)
}
