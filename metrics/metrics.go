// Package metrics adapts the teacher's atomic-counter/latency-histogram
// design to the kernel's syscall dispatch path: one counter/error/latency
// trio per syscall number plus a cumulative latency histogram, exposed
// through a point-in-time Snapshot and a pluggable Observer interface.
package metrics

import (
	"sync/atomic"
	"time"
)

// NumSyscalls bounds the per-syscall-number counter arrays; see
// SPEC_FULL.md §6 for the syscall numbering (0-13).
const NumSyscalls = 14

// LatencyBuckets are cumulative histogram thresholds, in nanoseconds,
// covering 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks dispatch counts, errors, and latency for the syscall
// interface.
type Metrics struct {
	Calls  [NumSyscalls]atomic.Uint64
	Errors [NumSyscalls]atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// New creates a metrics instance with StartTime set to now.
func New(now time.Time) *Metrics {
	m := &Metrics{}
	m.StartTime.Store(now.UnixNano())
	return m
}

// RecordSyscall records one dispatch of syscall number n.
func (m *Metrics) RecordSyscall(n uint32, latencyNs uint64, success bool) {
	if int(n) < NumSyscalls {
		m.Calls[n].Add(1)
		if !success {
			m.Errors[n].Add(1)
		}
	}
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time, non-atomic copy of Metrics for reporting.
type Snapshot struct {
	Calls  [NumSyscalls]uint64
	Errors [NumSyscalls]uint64

	TotalOps     uint64
	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot captures the current counter state.
func (m *Metrics) Snapshot(now time.Time) Snapshot {
	var snap Snapshot
	for i := 0; i < NumSyscalls; i++ {
		snap.Calls[i] = m.Calls[i].Load()
		snap.Errors[i] = m.Errors[i].Load()
		snap.TotalOps += snap.Calls[i]
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	snap.UptimeNs = uint64(now.UnixNano() - m.StartTime.Load())
	return snap
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Metrics) Reset(now time.Time) {
	for i := 0; i < NumSyscalls; i++ {
		m.Calls[i].Store(0)
		m.Errors[i].Store(0)
	}
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(now.UnixNano())
}

// Observer is what syscalls.Dispatch reports each call to; a kernel
// defaults to a MetricsObserver over its own Metrics but can swap in a
// NoOpObserver or any other Observer via Kernel.SetObserver.
type Observer interface {
	ObserveSyscall(n uint32, latencyNs uint64, success bool)
}

// NoOpObserver discards everything.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSyscall(uint32, uint64, bool) {}

// MetricsObserver routes observations into a Metrics accumulator.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver builds an Observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSyscall(n uint32, latencyNs uint64, success bool) {
	o.metrics.RecordSyscall(n, latencyNs, success)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
