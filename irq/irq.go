// Package irq implements the IRQ dispatch table of SPEC_FULL.md §4.5:
// binding of 256 simulated interrupt lines to mailbox channels, modeled
// on the channel-addressed hardware-mailbox protocols found in the
// retrieval pack (BCM2835-style: send, then always acknowledge).
package irq

import (
	"sync"

	"github.com/behrlich/microvnode/internal/klog"
	"github.com/behrlich/microvnode/mailbox"
	"github.com/behrlich/microvnode/sched"
)

// NumLines is the fixed IRQ number space, [0, NumLines).
const NumLines = 256

// sender is the synthetic sender task id stamped on every IRQ-delivered
// message, per spec.md §4.5.
const sender sched.ID = 0

// Dispatcher binds IRQ numbers to mailbox channels and delivers
// simulated hardware interrupts as one-byte mailbox messages.
type Dispatcher struct {
	mu       sync.Mutex
	bindings [NumLines]*uint32 // nil = unregistered
	mailbox  *mailbox.Mailboxes
	logger   *klog.Logger
}

// New builds a dispatcher with no bindings.
func New(mb *mailbox.Mailboxes) *Dispatcher {
	return &Dispatcher{mailbox: mb, logger: klog.Default()}
}

// Register binds irqNumber to channel. A later call for the same
// irqNumber silently replaces the earlier binding, per spec.md §4.5.
func (d *Dispatcher) Register(irqNumber uint8, channel uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := channel
	d.bindings[irqNumber] = &c
	d.logger.Debug("irq registered", "irq", irqNumber, "channel", channel)
}

// Deliver simulates the firing of a hardware interrupt: if irqNumber is
// bound to a channel, a one-byte message [irqNumber] is enqueued on it
// with sender task id 0; the line is then always acknowledged,
// regardless of whether a binding existed, matching spec.md §4.5's
// "delivery always acknowledges" invariant.
func (d *Dispatcher) Deliver(irqNumber uint8) error {
	d.mu.Lock()
	channel := d.bindings[irqNumber]
	d.mu.Unlock()

	if channel != nil {
		if err := d.mailbox.Send(*channel, sender, []byte{irqNumber}); err != nil {
			d.logger.Warn("irq delivery failed", "irq", irqNumber, "err", err)
		}
	}
	d.Acknowledge(irqNumber)
	return nil
}

// Acknowledge marks irqNumber as handled. Modeled as a no-op state
// transition here — there is no real interrupt controller register to
// clear in this simulated kernel — but kept as an explicit operation
// because spec.md §4.5 requires it as a distinct, capability-gated
// syscall.
func (d *Dispatcher) Acknowledge(irqNumber uint8) error {
	d.logger.Debug("irq acknowledged", "irq", irqNumber)
	return nil
}

// Binding returns the channel irqNumber is bound to, if any.
func (d *Dispatcher) Binding(irqNumber uint8) (channel uint32, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.bindings[irqNumber]
	if c == nil {
		return 0, false
	}
	return *c, true
}

// Inject is the demo/test hook used by cmd/microvnode and V-Node test
// harnesses to simulate an external interrupt source firing irqNumber.
func (d *Dispatcher) Inject(irqNumber uint8) error {
	return d.Deliver(irqNumber)
}
