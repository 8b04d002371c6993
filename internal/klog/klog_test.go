package klog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Warn("this one shows", "channel", 5)
	l.Error("and this one", "code", 1)

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "[WARN] this one shows channel=5")
	require.Contains(t, out, "[ERROR] and this one code=1")
}

func TestFatalPanics(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: LevelDebug, Output: &buf})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		require.True(t, strings.Contains(r.(string), "scheduler invariant"))
	}()
	l.Fatal("scheduler invariant violated", "task", 3)
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	require.Same(t, a, b)
}
