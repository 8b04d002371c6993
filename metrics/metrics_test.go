package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordSyscallCountsAndErrors(t *testing.T) {
	m := New(time.Unix(0, 0))

	m.RecordSyscall(1, 500, true)
	m.RecordSyscall(1, 1500, false)
	m.RecordSyscall(2, 10, true)

	snap := m.Snapshot(time.Unix(0, 10000))
	require.Equal(t, uint64(2), snap.Calls[1])
	require.Equal(t, uint64(1), snap.Errors[1])
	require.Equal(t, uint64(1), snap.Calls[2])
	require.Equal(t, uint64(3), snap.TotalOps)
}

func TestSnapshotAverageLatency(t *testing.T) {
	m := New(time.Unix(0, 0))
	m.RecordSyscall(0, 100, true)
	m.RecordSyscall(0, 300, true)

	snap := m.Snapshot(time.Unix(0, 1000))
	require.Equal(t, uint64(200), snap.AvgLatencyNs)
}

func TestResetZeroesCounters(t *testing.T) {
	m := New(time.Unix(0, 0))
	m.RecordSyscall(3, 100, false)

	m.Reset(time.Unix(100, 0))
	snap := m.Snapshot(time.Unix(100, 0))
	require.Equal(t, uint64(0), snap.Calls[3])
	require.Equal(t, uint64(0), snap.TotalOps)
}

func TestOutOfRangeSyscallNumberIgnoredForCounters(t *testing.T) {
	m := New(time.Unix(0, 0))
	require.NotPanics(t, func() { m.RecordSyscall(NumSyscalls+5, 100, true) })

	snap := m.Snapshot(time.Unix(0, 100))
	require.Equal(t, uint64(0), snap.TotalOps) // per-number counters skip out-of-range n
	require.Equal(t, uint64(100), snap.AvgLatencyNs) // latency/op totals still record it
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var o NoOpObserver
	require.NotPanics(t, func() { o.ObserveSyscall(0, 0, true) })
}

func TestMetricsObserverRecordsIntoMetrics(t *testing.T) {
	m := New(time.Unix(0, 0))
	o := NewMetricsObserver(m)

	o.ObserveSyscall(5, 42, true)

	snap := m.Snapshot(time.Unix(0, 100))
	require.Equal(t, uint64(1), snap.Calls[5])
}
