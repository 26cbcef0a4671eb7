package device

import (
	"net"
	"time"
)

// subRequest is one original arrival folded into a Slot. A merged Slot may
// carry more than one subRequest; each still gets its own reply frame built
// from its own LBA/sector sub-range of the slot's merged buffer.
type subRequest struct {
	SourceMAC   net.HardwareAddr
	Tag         uint32
	Extended48  bool
	LBA         uint64
	SectorCount uint8
	BufOffset   int
	BufLen      int
	Arrival     time.Time
}

// Slot is one in-flight (or queued) kernel I/O, possibly covering more than
// one originating request after a merge.
type Slot struct {
	Op       Op
	BaseLBA  uint64
	Sectors  uint16 // total sectors covered by Buf
	Buf      []byte // merged payload; len == Sectors*SectorSize
	State    State
	UserData uint64 // correlates with a uring.Result
	Arrival  time.Time

	subs   []subRequest
	pooled bool // Buf came from internal/queue's buffer pool, release on discard
}

func (s *Slot) endLBA() uint64 { return s.BaseLBA + uint64(s.Sectors) }

// byteLen returns the slot's payload length in bytes.
func (s *Slot) byteLen() int { return int(s.Sectors) * SectorSize }
