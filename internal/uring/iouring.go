//go:build giouring
// +build giouring

// Real io_uring implementation using github.com/pawelgaczynski/giouring,
// used for the device engine's block I/O when built with -tags giouring.
package uring

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

func ptrOf(buf []byte) uintptr { return uintptr(unsafe.Pointer(&buf[0])) }

type realRing struct {
	mu   sync.Mutex
	ring *giouring.Ring
}

// NewRealRing creates a giouring-backed Ring.
func NewRealRing(config Config) (Ring, error) {
	entries := config.Entries
	if entries == 0 {
		entries = 32
	}
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("uring: giouring.CreateRing: %w", err)
	}
	return &realRing{ring: ring}, nil
}

func (r *realRing) Close() error {
	r.ring.QueueExit()
	return nil
}

func (r *realRing) getSQE() (*giouring.SubmissionQueueEntry, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return nil, ErrRingFull
	}
	return sqe, nil
}

func (r *realRing) Prepare(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	switch req.Op {
	case OpRead:
		sqe.PrepareRead(req.FD, uintptr(0), uint32(len(req.Buf)), uint64(req.Offset))
		if len(req.Buf) > 0 {
			sqe.SetAddr(uint64(ptrOf(req.Buf)))
		}
	case OpWrite:
		sqe.PrepareWrite(req.FD, uintptr(0), uint32(len(req.Buf)), uint64(req.Offset))
		if len(req.Buf) > 0 {
			sqe.SetAddr(uint64(ptrOf(req.Buf)))
		}
	case OpFsync:
		sqe.PrepareFsync(req.FD, 0)
	default:
		return fmt.Errorf("uring: unknown op %d", req.Op)
	}
	sqe.UserData = req.UserData
	return nil
}

func (r *realRing) FlushSubmissions() (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.ring.Submit()
	if err != nil {
		return 0, fmt.Errorf("uring: submit: %w", err)
	}
	return uint32(n), nil
}

type realResult struct {
	userData uint64
	res      int32
}

func (res *realResult) UserData() uint64 { return res.userData }
func (res *realResult) Value() int32     { return res.res }
func (res *realResult) Error() error {
	if res.res < 0 {
		return fmt.Errorf("uring: completion error %d", res.res)
	}
	return nil
}

func (r *realRing) WaitForCompletion(timeoutMs int) ([]Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Result
	if timeoutMs != 0 {
		cqe, err := r.ring.WaitCQE()
		if err != nil {
			return nil, fmt.Errorf("uring: wait cqe: %w", err)
		}
		out = append(out, &realResult{userData: cqe.UserData, res: cqe.Res})
		r.ring.CQESeen(cqe)
	}

	for {
		cqe, err := r.ring.PeekCQE()
		if err != nil || cqe == nil {
			break
		}
		out = append(out, &realResult{userData: cqe.UserData, res: cqe.Res})
		r.ring.CQESeen(cqe)
	}
	return out, nil
}

func (r *realRing) NewBatch() Batch { return &realBatch{ring: r} }

type realBatch struct {
	ring *realRing
	reqs []Request
}

func (b *realBatch) Add(req Request) error {
	b.reqs = append(b.reqs, req)
	return nil
}

func (b *realBatch) Len() int { return len(b.reqs) }

func (b *realBatch) Submit() ([]Result, error) {
	for _, req := range b.reqs {
		if err := b.ring.Prepare(req); err != nil {
			return nil, err
		}
	}
	n := len(b.reqs)
	b.reqs = b.reqs[:0]
	if _, err := b.ring.FlushSubmissions(); err != nil {
		return nil, err
	}
	var out []Result
	for len(out) < n {
		res, err := b.ring.WaitForCompletion(-1)
		if err != nil {
			return out, err
		}
		out = append(out, res...)
	}
	return out, nil
}
