// Package uring provides a minimal asynchronous block I/O ring abstraction
// (read/write/fsync) used by the device engine to submit kernel I/O without
// blocking the event-loop thread.
package uring

import "errors"

// ErrRingFull is returned when the submission queue has no free slots. The
// device engine is expected to never exceed a device's io_slots budget, so
// this should not occur in normal operation.
var ErrRingFull = errors.New("uring: submission queue full")

// Op identifies the kind of I/O a submission performs.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
	OpFsync
)

// Request describes one asynchronous I/O to submit against FD.
type Request struct {
	Op       Op
	FD       int32
	Offset   int64
	Buf      []byte // unused for OpFsync
	UserData uint64
}

// Ring is the asynchronous I/O engine the device engine submits requests
// to and drains completions from.
type Ring interface {
	// Close releases the ring and any mapped memory.
	Close() error

	// Prepare stages req as an SQE without making it visible to the kernel.
	// Returns ErrRingFull if the submission queue has no free slot.
	Prepare(req Request) error

	// FlushSubmissions makes all staged SQEs visible to the kernel with a
	// single io_uring_enter call, returning the count submitted.
	FlushSubmissions() (uint32, error)

	// WaitForCompletion returns every completion that is ready. With
	// timeoutMs 0 it returns immediately, possibly with none; with any other
	// value it blocks until at least one completion arrives, and a positive
	// timeoutMs does not bound that wait.
	WaitForCompletion(timeoutMs int) ([]Result, error)

	// NewBatch returns a batch the caller can stage multiple requests onto
	// before a single Submit call.
	NewBatch() Batch
}

// Batch stages multiple requests for a single submission round.
type Batch interface {
	Add(req Request) error
	Submit() ([]Result, error)
	Len() int
}

// Result is one completion: the UserData from the originating Request, and
// either a non-negative byte count (Value) or a negative errno.
type Result interface {
	UserData() uint64
	Value() int32
	Error() error
}

// Features describes ring capabilities probed at creation time.
type Features struct {
	SQPOLL bool
}

// Config configures a new Ring.
type Config struct {
	Entries uint32
}

// NewRing creates the pure-Go minimal ring. The real (build-tagged) ring is
// created explicitly via NewRealRing by callers that opt into the
// `giouring` build tag.
func NewRing(config Config) (Ring, error) {
	return NewMinimalRing(config.Entries)
}
