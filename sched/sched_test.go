package sched

import (
	"testing"

	"github.com/behrlich/microvnode/capset"
	"github.com/stretchr/testify/require"
)

func TestNewHasKernelTaskRunning(t *testing.T) {
	s := New()
	require.Equal(t, KernelTaskID, s.CurrentID())
	require.Equal(t, Running, s.Current().State)
	require.True(t, s.Current().Caps.Check(capset.TagIrqRegister(255)))
}

func TestCreateTaskIsReady(t *testing.T) {
	s := New()
	task := s.CreateTask(1, "echo", capset.New(capset.TagLogWrite()))
	require.Equal(t, Ready, task.State)
	require.Equal(t, 2, s.Count())
}

func TestScheduleRoundRobinFIFO(t *testing.T) {
	s := New()
	s.CreateTask(1, "a", capset.Set{})
	s.CreateTask(2, "b", capset.Set{})

	// current is still kernel (0), running; ready queue is [1, 2].
	s.Schedule()
	require.Equal(t, ID(1), s.CurrentID())

	s.Schedule()
	require.Equal(t, ID(2), s.CurrentID())

	s.Schedule()
	require.Equal(t, KernelTaskID, s.CurrentID())
}

func TestBlockAndUnblockTask(t *testing.T) {
	s := New()
	s.CreateTask(1, "blocker", capset.Set{})
	s.Schedule() // current = 1

	s.BlockTaskOnChannel(1, 5)
	require.Equal(t, Blocked, s.Lookup(1).State)
	// current moved on since task 1 is no longer runnable.
	require.Equal(t, KernelTaskID, s.CurrentID())

	s.UnblockTask(1)
	require.Equal(t, Ready, s.Lookup(1).State)
}

func TestUnblockTaskNoOpIfNotBlocked(t *testing.T) {
	s := New()
	s.CreateTask(1, "a", capset.Set{})
	s.UnblockTask(1) // not blocked, should not requeue
	require.Equal(t, Ready, s.Lookup(1).State)
}

func TestUnblockChannelWakesAllMatchingTasks(t *testing.T) {
	s := New()
	s.CreateTask(1, "a", capset.Set{})
	s.CreateTask(2, "b", capset.Set{})

	s.Schedule()
	s.BlockTaskOnChannel(1, 3)
	s.Schedule()
	s.BlockTaskOnChannel(2, 3)

	require.Equal(t, Blocked, s.Lookup(1).State)
	require.Equal(t, Blocked, s.Lookup(2).State)

	s.UnblockChannel(3)

	require.Equal(t, Ready, s.Lookup(1).State)
	require.Equal(t, Ready, s.Lookup(2).State)
}

func TestExitRemovesFromTable(t *testing.T) {
	s := New()
	s.CreateTask(1, "a", capset.Set{})
	s.Exit(1)
	require.Nil(t, s.Lookup(1))
	require.Equal(t, 1, s.Count())
}

func TestScheduleSkipsExitedQueuedTask(t *testing.T) {
	s := New()
	s.CreateTask(1, "a", capset.Set{})
	s.CreateTask(2, "b", capset.Set{})

	// Exit task 1 while it is still sitting in the ready queue.
	s.Exit(1)

	s.Schedule()
	require.Equal(t, ID(2), s.CurrentID())
}
