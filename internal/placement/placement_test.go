package placement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbackAlwaysSelectsLocalTarget(t *testing.T) {
	m := Fallback(7)
	for objID := uint64(0); objID < 100; objID++ {
		targets, err := m.Select("", objID)
		require.NoError(t, err)
		require.Equal(t, []int32{7}, targets)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	m := Fallback(3)
	a, err := m.Select("", 42)
	require.NoError(t, err)
	b, err := m.Select("", 42)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSelectUnknownPoolErrors(t *testing.T) {
	m := Fallback(1)
	_, err := m.Select("missing", 1)
	require.Error(t, err)
}

func buildTwoLeafMap(t *testing.T) *Map {
	t.Helper()
	// rule: pool "data", root 0, replicas 2
	// buckets: 0 (straw, children 1,2), 1 (leaf), 2 (leaf)
	buf := []byte{}
	// nRules = 1
	buf = append(buf, 1, 0, 0, 0)
	// rule name "data" (len 4)
	buf = append(buf, 4, 0)
	buf = append(buf, []byte("data")...)
	// root = 0
	buf = append(buf, 0, 0, 0, 0)
	// replicas = 2
	buf = append(buf, 2, 0, 0, 0)
	// nBuckets = 3
	buf = append(buf, 3, 0, 0, 0)
	// bucket 0: id=0 kind=straw(1) weight=1 nchildren=2 children=[1,2]
	buf = append(buf, 0, 0, 0, 0, 1, 1, 0, 0, 0, 2, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0)
	// bucket 1: id=1 kind=leaf(0) weight=1 nchildren=0
	buf = append(buf, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0)
	// bucket 2: id=2 kind=leaf(0) weight=1 nchildren=0
	buf = append(buf, 2, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0)

	m, err := Decode(buf)
	require.NoError(t, err)
	return m
}

func TestDecodeAndSelectTwoLeaves(t *testing.T) {
	m := buildTwoLeafMap(t)
	targets, err := m.Select("data", 123)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	require.Contains(t, []int32{1, 2}, targets[0])
	require.Contains(t, []int32{1, 2}, targets[1])
	require.NotEqual(t, targets[0], targets[1])
}

func TestDecodeTruncatedErrors(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	require.Error(t, err)
}
