package capset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExactMatch(t *testing.T) {
	s := New(TagLogWrite(), TagIpcManage())

	require.True(t, s.Check(TagLogWrite()))
	require.True(t, s.Check(TagIpcManage()))
	require.False(t, s.Check(TagTimeRead()))
}

func TestNoWildcardOnIRQTags(t *testing.T) {
	s := New(TagIrqRegister(11))

	require.True(t, s.Check(TagIrqRegister(11)))
	require.False(t, s.Check(TagIrqRegister(12)))
	require.False(t, s.Check(TagIrqAck(11)), "IrqAck(11) is a distinct tag from IrqRegister(11)")
}

func TestNetworkAccessSubsumesIrqAndDma(t *testing.T) {
	s := New(TagNetworkAccess())

	require.True(t, s.Check(TagIrqRegister(5)))
	require.True(t, s.Check(TagIrqAck(5)))
	require.True(t, s.Check(TagDmaAlloc()))
	require.True(t, s.Check(TagDmaAccess()))
	require.True(t, s.Check(TagNetworkAccess()))

	// NetworkAccess does not subsume unrelated capabilities.
	require.False(t, s.Check(TagLogWrite()))
	require.False(t, s.Check(TagStorageAccess()))
}

func TestUniversalGrantsEverything(t *testing.T) {
	u := Universal()

	require.True(t, u.Check(TagLogWrite()))
	require.True(t, u.Check(TagIrqRegister(255)))
	require.True(t, u.Check(TagIrqAck(0)))
	require.True(t, u.Check(TagDmaAccess()))
}

func TestEmptySetDeniesEverything(t *testing.T) {
	var s Set
	require.False(t, s.Check(TagLogWrite()))
	require.False(t, s.Check(TagIrqRegister(1)))
}
