package iface

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rxRing wraps a PACKET_RX_RING mmap region: received frames are read
// straight out of kernel-shared memory instead of one recvfrom() per
// packet, the same technique the teacher's mmapQueues gives the ublk
// descriptor/buffer rings.
//
// Sends go over the plain socket (no PACKET_TX_RING): the only ring-based
// AF_PACKET implementation in the reference set (an AF_PACKET/TpacketReq
// CAN-frame ring reader) only ever mmaps the receive side and transmits
// with a conventional write(), and that split carries over cleanly here —
// see DESIGN.md.
type rxRing struct {
	fd        int
	data      []byte
	frameSize int
	frameNr   int
	cur       int
}

const (
	tpacketVersion = unix.TPACKET_V1 // matching tcpdump/the pack's ring reader
)

func tpacketHdrLen() int {
	sz := int(unsafe.Sizeof(unix.TpacketHdr{}))
	const align = 16
	return (sz + align - 1) &^ (align - 1)
}

func newRXRing(fd int, frameCount int) (*rxRing, error) {
	if frameCount <= 0 {
		frameCount = 256
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_VERSION, tpacketVersion); err != nil {
		return nil, fmt.Errorf("iface: PACKET_VERSION: %w", err)
	}

	const blockSize = 1 << 12 // 4 KiB, one frame per block keeps addressing simple
	frameSize := blockSize
	blockNr := frameCount

	req := unix.TpacketReq{
		Block_size: uint32(blockSize),
		Block_nr:   uint32(blockNr),
		Frame_size: uint32(frameSize),
		Frame_nr:   uint32(blockNr),
	}
	if err := unix.SetsockoptTpacketReq(fd, unix.SOL_PACKET, unix.PACKET_RX_RING, &req); err != nil {
		return nil, fmt.Errorf("iface: PACKET_RX_RING: %w", err)
	}

	total := int(req.Block_size) * int(req.Block_nr)
	data, err := unix.Mmap(fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("iface: mmap rx ring: %w", err)
	}

	return &rxRing{fd: fd, data: data, frameSize: int(req.Frame_size), frameNr: int(req.Frame_nr)}, nil
}

func (r *rxRing) close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// header returns the tpacket_hdr for the current frame slot.
func (r *rxRing) header(idx int) *unix.TpacketHdr {
	off := idx * r.frameSize
	return (*unix.TpacketHdr)(unsafe.Pointer(&r.data[off]))
}

// next returns the next available frame's payload bytes and advances the
// ring, or ok=false if the kernel has nothing ready (TP_STATUS_USER unset).
// The caller must call release() once done reading the returned slice.
func (r *rxRing) next() (payload []byte, idx int, ok bool) {
	hdr := r.header(r.cur)
	if uint64(hdr.Status)&uint64(unix.TP_STATUS_USER) == 0 {
		return nil, 0, false
	}
	off := r.cur*r.frameSize + int(hdr.Mac)
	end := off + int(hdr.Snaplen)
	idx = r.cur
	r.cur = (r.cur + 1) % r.frameNr
	return r.data[off:end], idx, true
}

// release returns frame idx to the kernel.
func (r *rxRing) release(idx int) {
	hdr := r.header(idx)
	hdr.Status = uint64(unix.TP_STATUS_KERNEL)
}
