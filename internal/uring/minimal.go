// Minimal pure-Go io_uring implementation supporting plain block I/O
// (read/write/fsync) via raw IORING_OP_READ/WRITE/FSYNC SQEs, used as the
// default Ring when the repo is not built with the `giouring` tag.
package uring

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bysshe/cirrostratus/internal/logging"
)

const (
	__NR_io_uring_setup = 425
	__NR_io_uring_enter = 426
)

const (
	opRead  = 22 // IORING_OP_READ
	opWrite = 23 // IORING_OP_WRITE
	opFsync = 3  // IORING_OP_FSYNC

	enterGetEvents = 1 << 0
)

// sqe64 is the standard 64-byte submission queue entry.
type sqe64 struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	addr3       uint64
	pad         uint64
}

// cqe16 is the standard 16-byte completion queue entry.
type cqe16 struct {
	userData uint64
	res      int32
	flags    uint32
}

type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCpu  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        ringOffsets
	cqOff        cqRingOffsets
}

// cqRingOffsets mirrors the kernel's io_cqring_offsets, whose layout differs
// from the submission ring's after ringEntries.
type cqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

type ringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// minimalRing is a pure-Go io_uring for plain block I/O.
type minimalRing struct {
	mu sync.Mutex

	fd     int
	params ioUringParams

	sqMem []byte
	cqMem []byte
	sqes  []byte // separate SQE array mapping

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqArray   *uint32
	sqPending uint32 // SQEs prepared since last flush

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   unsafe.Pointer
}

// NewMinimalRing creates a minimal io_uring sized for entries in-flight
// plain block I/Os.
func NewMinimalRing(entries uint32) (Ring, error) {
	logger := logging.Default()
	if entries == 0 {
		entries = 32
	}
	params := ioUringParams{sqEntries: entries}

	fd, _, errno := syscall.Syscall(__NR_io_uring_setup, uintptr(entries), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("uring: io_uring_setup: %w", errno)
	}
	r := &minimalRing{fd: int(fd), params: params}

	sqRingSize := int(params.sqOff.array) + int(params.sqEntries)*4
	cqRingSize := int(params.cqOff.cqes) + int(params.cqEntries)*int(unsafe.Sizeof(cqe16{}))

	sqMem, err := mmapRing(r.fd, unix.IORING_OFF_SQ_RING, sqRingSize)
	if err != nil {
		unix.Close(r.fd)
		return nil, fmt.Errorf("uring: mmap sq ring: %w", err)
	}
	cqMem, err := mmapRing(r.fd, unix.IORING_OFF_CQ_RING, cqRingSize)
	if err != nil {
		unix.Close(r.fd)
		return nil, fmt.Errorf("uring: mmap cq ring: %w", err)
	}
	sqes, err := mmapRing(r.fd, unix.IORING_OFF_SQES, int(params.sqEntries)*int(unsafe.Sizeof(sqe64{})))
	if err != nil {
		unix.Close(r.fd)
		return nil, fmt.Errorf("uring: mmap sqes: %w", err)
	}

	r.sqMem, r.cqMem, r.sqes = sqMem, cqMem, sqes
	r.sqHead = (*uint32)(unsafe.Pointer(&sqMem[params.sqOff.head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&sqMem[params.sqOff.tail]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&sqMem[params.sqOff.ringMask]))
	r.sqArray = (*uint32)(unsafe.Pointer(&sqMem[params.sqOff.array]))

	r.cqHead = (*uint32)(unsafe.Pointer(&cqMem[params.cqOff.head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&cqMem[params.cqOff.tail]))
	r.cqMask = *(*uint32)(unsafe.Pointer(&cqMem[params.cqOff.ringMask]))
	r.cqes = unsafe.Pointer(&cqMem[params.cqOff.cqes])

	logger.Debug("created minimal io_uring", "entries", entries, "fd", r.fd)
	return r, nil
}

func mmapRing(fd int, offset int64, size int) ([]byte, error) {
	return unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
}

func (r *minimalRing) sqArrayAt(i uint32) *uint32 {
	base := uintptr(unsafe.Pointer(r.sqArray))
	return (*uint32)(unsafe.Pointer(base + uintptr(i)*4))
}

func (r *minimalRing) sqeAt(i uint32) *sqe64 {
	base := uintptr(unsafe.Pointer(&r.sqes[0]))
	return (*sqe64)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(sqe64{})))
}

func (r *minimalRing) cqeAt(i uint32) *cqe16 {
	base := uintptr(r.cqes)
	return (*cqe16)(unsafe.Pointer(base + uintptr(i)*unsafe.Sizeof(cqe16{})))
}

// Prepare stages req as the next SQE. Callers must guarantee the total
// in-flight + pending count never exceeds the ring's configured entries,
// matching the device engine's io_slots budget.
func (r *minimalRing) Prepare(req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := *r.sqTail
	head := *r.sqHead
	if tail-head >= r.params.sqEntries {
		return ErrRingFull
	}

	idx := tail & r.sqMask
	sqe := r.sqeAt(idx)
	*sqe = sqe64{}
	sqe.fd = req.FD
	sqe.off = uint64(req.Offset)
	sqe.userData = req.UserData

	switch req.Op {
	case OpRead:
		sqe.opcode = opRead
		if len(req.Buf) > 0 {
			sqe.addr = uint64(uintptr(unsafe.Pointer(&req.Buf[0])))
		}
		sqe.len = uint32(len(req.Buf))
	case OpWrite:
		sqe.opcode = opWrite
		if len(req.Buf) > 0 {
			sqe.addr = uint64(uintptr(unsafe.Pointer(&req.Buf[0])))
		}
		sqe.len = uint32(len(req.Buf))
	case OpFsync:
		sqe.opcode = opFsync
	default:
		return fmt.Errorf("uring: unknown op %d", req.Op)
	}

	*r.sqArrayAt(idx) = idx
	Sfence()
	*r.sqTail = tail + 1
	r.sqPending++
	return nil
}

// FlushSubmissions submits all SQEs staged since the last flush.
func (r *minimalRing) FlushSubmissions() (uint32, error) {
	r.mu.Lock()
	n := r.sqPending
	r.sqPending = 0
	r.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	submitted, _, errno := syscall.Syscall6(__NR_io_uring_enter, uintptr(r.fd), uintptr(n), 0, 0, 0, 0)
	if errno != 0 {
		return 0, fmt.Errorf("uring: io_uring_enter: %w", errno)
	}
	return uint32(submitted), nil
}

type minimalResult struct {
	userData uint64
	res      int32
}

func (res *minimalResult) UserData() uint64 { return res.userData }
func (res *minimalResult) Value() int32     { return res.res }
func (res *minimalResult) Error() error {
	if res.res < 0 {
		return syscall.Errno(-res.res)
	}
	return nil
}

// WaitForCompletion issues io_uring_enter with IORING_ENTER_GETEVENTS,
// waiting for at least one completion unless timeoutMs is 0, and drains
// every completion currently available.
func (r *minimalRing) WaitForCompletion(timeoutMs int) ([]Result, error) {
	minComplete := uintptr(1)
	if timeoutMs == 0 {
		minComplete = 0
	}
	_, _, errno := syscall.Syscall6(__NR_io_uring_enter, uintptr(r.fd), 0, minComplete, enterGetEvents, 0, 0)
	if errno != 0 && errno != syscall.EINTR {
		return nil, fmt.Errorf("uring: io_uring_enter wait: %w", errno)
	}

	var out []Result
	for {
		head := *r.cqHead
		tail := *r.cqTail
		if head == tail {
			break
		}
		cqe := r.cqeAt(head & r.cqMask)
		out = append(out, &minimalResult{userData: cqe.userData, res: cqe.res})
		*r.cqHead = head + 1
	}
	return out, nil
}

func (r *minimalRing) NewBatch() Batch { return &minimalBatch{ring: r} }

type minimalBatch struct {
	ring *minimalRing
	reqs []Request
}

func (b *minimalBatch) Add(req Request) error {
	b.reqs = append(b.reqs, req)
	return nil
}

func (b *minimalBatch) Len() int { return len(b.reqs) }

func (b *minimalBatch) Submit() ([]Result, error) {
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

func (r *minimalRing) Close() error {
	if r.sqMem != nil {
		unix.Munmap(r.sqMem)
	}
	if r.cqMem != nil {
		unix.Munmap(r.cqMem)
	}
	if r.sqes != nil {
		unix.Munmap(r.sqes)
	}
	return unix.Close(r.fd)
}
