//go:build !cgo || !linux

package uring

import "sync/atomic"

// Sfence issues a store fence. The cgo/linux build uses a real x86 SFENCE;
// here we fall back to an atomic fence, which on every Go-supported
// architecture provides at least as strong an ordering guarantee.
func Sfence() {
	var v int32
	atomic.StoreInt32(&v, 0)
}

// Mfence issues a full memory fence, falling back the same way as Sfence.
func Mfence() {
	var v int32
	atomic.AddInt32(&v, 0)
}
