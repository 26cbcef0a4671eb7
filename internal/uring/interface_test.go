package uring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRing is a test double satisfying Ring without touching the kernel,
// used to exercise Prepare/FlushSubmissions/WaitForCompletion sequencing the
// same way minimalRing and realRing are driven in production.
type fakeRing struct {
	pending  []Request
	inFlight []Request
	closed   bool
}

func newFakeRing() *fakeRing { return &fakeRing{} }

func (r *fakeRing) Close() error {
	r.closed = true
	return nil
}

func (r *fakeRing) Prepare(req Request) error {
	if len(r.pending)+len(r.inFlight) >= 16 {
		return ErrRingFull
	}
	r.pending = append(r.pending, req)
	return nil
}

func (r *fakeRing) FlushSubmissions() (uint32, error) {
	n := uint32(len(r.pending))
	r.inFlight = append(r.inFlight, r.pending...)
	r.pending = nil
	return n, nil
}

func (r *fakeRing) WaitForCompletion(timeoutMs int) ([]Result, error) {
	out := make([]Result, 0, len(r.inFlight))
	for _, req := range r.inFlight {
		val := int32(len(req.Buf))
		if req.Op == OpFsync {
			val = 0
		}
		out = append(out, &minimalResult{userData: req.UserData, res: val})
	}
	r.inFlight = nil
	return out, nil
}

func (r *fakeRing) NewBatch() Batch { return nil }

func TestPrepareRejectsWhenRingFull(t *testing.T) {
	r := newFakeRing()
	for i := 0; i < 16; i++ {
		require.NoError(t, r.Prepare(Request{Op: OpRead, UserData: uint64(i)}))
	}
	require.ErrorIs(t, r.Prepare(Request{Op: OpRead, UserData: 99}), ErrRingFull)
}

func TestFlushSubmissionsMovesAllPending(t *testing.T) {
	r := newFakeRing()
	require.NoError(t, r.Prepare(Request{Op: OpWrite, Buf: make([]byte, 512), UserData: 1}))
	require.NoError(t, r.Prepare(Request{Op: OpWrite, Buf: make([]byte, 1024), UserData: 2}))

	n, err := r.FlushSubmissions()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Empty(t, r.pending)
	require.Len(t, r.inFlight, 2)
}

func TestWaitForCompletionReturnsByteCounts(t *testing.T) {
	r := newFakeRing()
	require.NoError(t, r.Prepare(Request{Op: OpRead, Buf: make([]byte, 4096), UserData: 7}))
	_, err := r.FlushSubmissions()
	require.NoError(t, err)

	results, err := r.WaitForCompletion(-1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(7), results[0].UserData())
	require.EqualValues(t, 4096, results[0].Value())
	require.NoError(t, results[0].Error())
}

func TestMinimalResultReportsErrno(t *testing.T) {
	res := &minimalResult{userData: 1, res: -5} // -EIO
	require.Error(t, res.Error())
}

func TestCloseMarksClosed(t *testing.T) {
	r := newFakeRing()
	require.NoError(t, r.Close())
	require.True(t, r.closed)
}
