package cirrostratus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockBackendReadWriteRoundTrip(t *testing.T) {
	b := NewMockBackend(1024)
	require.EqualValues(t, 1024, b.Size())

	data := []byte("hello world")
	n, err := b.WriteAt(data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	buf := make([]byte, len(data))
	n, err = b.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)

	require.Equal(t, map[string]int{"read": 1, "write": 1, "flush": 0}, b.CallCounts())
}

func TestMockBackendReadPastEndReturnsZero(t *testing.T) {
	b := NewMockBackend(16)
	buf := make([]byte, 8)
	n, err := b.ReadAt(buf, 16)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestMockBackendWritePastEndIsAnError(t *testing.T) {
	b := NewMockBackend(16)
	_, err := b.WriteAt([]byte("x"), 16)
	require.Error(t, err)
	require.True(t, IsCode(err, ErrProtocolError))
}

func TestMockBackendCloseRejectsFurtherIO(t *testing.T) {
	b := NewMockBackend(16)
	require.NoError(t, b.Close())
	require.True(t, b.IsClosed())

	_, err := b.ReadAt(make([]byte, 1), 0)
	require.Error(t, err)
	_, err = b.WriteAt([]byte("x"), 0)
	require.Error(t, err)
}

func TestMockBackendInjectedFailures(t *testing.T) {
	b := NewMockBackend(16)
	injected := NewError("test", ErrIoError, "injected")

	b.FailNextReads(injected)
	_, err := b.ReadAt(make([]byte, 1), 0)
	require.ErrorIs(t, err, injected)
	b.FailNextReads(nil)

	b.FailNextWrites(injected)
	_, err = b.WriteAt([]byte("x"), 0)
	require.ErrorIs(t, err, injected)
}

func TestMockBackendIdentify(t *testing.T) {
	b := NewMockBackend(16)
	_, _, ok := b.Identify()
	require.False(t, ok)

	b.SetIdentity("cirrostratus mock", "MOCK0000001")
	model, serial, ok := b.Identify()
	require.True(t, ok)
	require.Equal(t, "cirrostratus mock", model)
	require.Equal(t, "MOCK0000001", serial)
}
