package device

import (
	"bytes"
	"net"
	"sync/atomic"
	"time"

	"github.com/bysshe/cirrostratus/internal/acl"
	"github.com/bysshe/cirrostratus/internal/aoeproto"
	"github.com/bysshe/cirrostratus/internal/interfaces"
	"github.com/bysshe/cirrostratus/internal/queue"
	"github.com/bysshe/cirrostratus/internal/uring"
)

// SectorSize mirrors aoeproto.SectorSize for local readability.
const SectorSize = aoeproto.SectorSize

// FDBackend is satisfied by backends that expose a raw file descriptor,
// letting the device engine submit real asynchronous I/O through
// internal/uring instead of calling the backend inline.
type FDBackend interface {
	interfaces.Backend
	FD() int32
}

// Config configures a new Device.
type Config struct {
	Shelf uint16
	Slot  uint8

	Backend interfaces.Backend
	Ring    uring.Ring // nil: backend calls complete inline, no kernel ring used

	QueueLength int
	MaxDelay    time.Duration
	MergeDelay  time.Duration
	MaxPayload  int // merge cap derived from the owning interface's MTU

	DirectIO  bool
	ReadOnly  bool
	Broadcast bool

	Model  string
	Serial string

	ACLCapacity int

	Logger   interfaces.Logger
	Observer interfaces.Observer
}

// Request is one parsed ATA read/write arrival handed to Enqueue.
type Request struct {
	SourceMAC   net.HardwareAddr
	Tag         uint32
	Extended48  bool
	Write       bool
	LBA         uint64
	SectorCount uint8
	Payload     []byte // required for Write; ignored for Read
}

// Device is the per-exported-device request queue and state machine (§4.4).
type Device struct {
	Shelf uint16
	Slot  uint8

	backend   interfaces.Backend
	fdBackend FDBackend
	ring      uring.Ring

	queueLength int
	maxDelay    time.Duration
	mergeDelay  time.Duration
	maxPayload  int

	directIO  bool
	readOnly  bool
	broadcast bool

	model  string
	serial string

	logger   interfaces.Logger
	observer interfaces.Observer

	Accept      *acl.Map
	Deny        *acl.Map
	MACBindings *acl.Map // implicit accept layer bound via device-macs (open question decision)

	reservation []net.HardwareAddr // ordered; empty = unreserved

	configString []byte

	queue        []*Slot
	inFlight     map[uint64]*Slot
	nextUserData uint64

	protoErr, ataErr, queueOver, queueStall atomic.Uint64
	ioSlots                                 atomic.Uint32
	ioRuns                                  atomic.Uint64
	queueLenTotal, queueLenCount            atomic.Uint64
}

// NewDevice constructs a Device ready to accept requests.
func NewDevice(cfg Config) *Device {
	aclCap := cfg.ACLCapacity
	if aclCap <= 0 {
		aclCap = 255
	}
	fdb, _ := cfg.Backend.(FDBackend)
	observer := cfg.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Device{
		Shelf:        cfg.Shelf,
		Slot:         cfg.Slot,
		backend:      cfg.Backend,
		fdBackend:    fdb,
		ring:         cfg.Ring,
		queueLength:  cfg.QueueLength,
		maxDelay:     cfg.MaxDelay,
		mergeDelay:   cfg.MergeDelay,
		maxPayload:   cfg.MaxPayload,
		directIO:     cfg.DirectIO,
		readOnly:     cfg.ReadOnly,
		broadcast:    cfg.Broadcast,
		model:        cfg.Model,
		serial:       cfg.Serial,
		logger:       cfg.Logger,
		observer:     observer,
		Accept:       acl.New(aclCap),
		Deny:         acl.New(aclCap),
		MACBindings:  acl.New(aclCap),
		inFlight:     make(map[uint64]*Slot),
	}
}

type noopObserver struct{}

func (noopObserver) ObserveRead(uint64, uint64)  {}
func (noopObserver) ObserveWrite(uint64, uint64) {}
func (noopObserver) ObserveOther(uint64)         {}
func (noopObserver) ObserveQueueLength(uint32)   {}

func macInList(list []net.HardwareAddr, mac net.HardwareAddr) bool {
	for _, m := range list {
		if bytes.Equal(m, mac) {
			return true
		}
	}
	return false
}

// IsBroadcast reports whether this device accepts commands addressed to the
// broadcast shelf/slot (§4.1 addressing).
func (d *Device) IsBroadcast() bool { return d.broadcast }

// admitted reports whether src passes the accept/deny ACL pair and the
// device-macs implicit binding layer (§4.2, Data model invariants).
func (d *Device) admitted(src net.HardwareAddr) bool {
	if d.Deny.Match(src) {
		return false
	}
	if d.Accept.Len() == 0 && d.MACBindings.Len() == 0 {
		return true
	}
	return d.Accept.Match(src) || d.MACBindings.Match(src)
}

func capacitySectors(b interfaces.Backend) uint64 {
	return uint64(b.Size()) / SectorSize
}

func (d *Device) replyHeader(tag uint32) aoeproto.Header {
	return aoeproto.Header{
		VerFlags: aoeproto.Version | aoeproto.FlagResponse,
		Shelf:    d.Shelf,
		Slot:     d.Slot,
		Command:  aoeproto.CmdATA,
		Tag:      tag,
	}
}

func (d *Device) errorFrame(dst, src net.HardwareAddr, tag uint32, code uint8) *aoeproto.Frame {
	hdr := d.replyHeader(tag)
	hdr.VerFlags |= aoeproto.FlagError
	hdr.Error = code
	return &aoeproto.Frame{
		Dst:    dst,
		Src:    src,
		Header: hdr,
		ATA: aoeproto.ATATail{
			CmdStat: aoeproto.ATAStatusErr,
		},
	}
}

// Enqueue runs the admission pipeline for one arrival: ACL, reservation,
// read-only/capacity checks, merge-or-enqueue. It returns any reply frames
// settled synchronously: an error response to this request (ACL/reservation
// pass but reservation-conflict, read-only, capacity, or queue-full
// rejection), plus DEVICE_UNAVAIL replies for any stale head evicted to make
// room. A nil/empty return means the request was merged or queued for
// asynchronous completion.
func (d *Device) Enqueue(now time.Time, localMAC net.HardwareAddr, req Request) []*aoeproto.Frame {
	if !d.admitted(req.SourceMAC) {
		d.protoErr.Add(1)
		return nil // silent drop, per AclDenied
	}

	if req.Write && len(d.reservation) > 0 && !macInList(d.reservation, req.SourceMAC) {
		d.ataErr.Add(1)
		return []*aoeproto.Frame{d.errorFrame(req.SourceMAC, localMAC, req.Tag, aoeproto.ErrResConflict)}
	}

	if req.Write && d.readOnly {
		d.ataErr.Add(1)
		return []*aoeproto.Frame{d.errorFrame(req.SourceMAC, localMAC, req.Tag, aoeproto.ErrBadArg)}
	}

	capSectors := capacitySectors(d.backend)
	if req.LBA+uint64(req.SectorCount) > capSectors {
		d.ataErr.Add(1)
		return []*aoeproto.Frame{d.errorFrame(req.SourceMAC, localMAC, req.Tag, aoeproto.ErrBadArg)}
	}

	sub := subRequest{
		SourceMAC:   req.SourceMAC,
		Tag:         req.Tag,
		Extended48:  req.Extended48,
		LBA:         req.LBA,
		SectorCount: req.SectorCount,
		Arrival:     now,
	}
	op := OpRead
	if req.Write {
		op = OpWrite
	}

	if slot := d.findMergeCandidate(op, req.LBA, req.SectorCount, now); slot != nil {
		d.mergeInto(slot, sub, req.Payload, req.LBA < slot.BaseLBA)
		d.recordQueueLength()
		return nil
	}

	var evicted []*aoeproto.Frame
	if len(d.queue) >= d.queueLength {
		var ok bool
		evicted, ok = d.evictExpiredHead(now, localMAC)
		if !ok {
			d.queueOver.Add(1)
			return append(evicted, d.errorFrame(req.SourceMAC, localMAC, req.Tag, aoeproto.ErrDeviceUnavail))
		}
		d.queueStall.Add(1)
	}

	buf, pooled := allocSlotBuf(int(req.SectorCount) * SectorSize)
	slot := &Slot{
		Op:      op,
		BaseLBA: req.LBA,
		Sectors: uint16(req.SectorCount),
		Buf:     buf,
		pooled:  pooled,
		State:   StateEnqueued,
		Arrival: now,
		subs:    []subRequest{sub},
	}
	sub.BufOffset, sub.BufLen = 0, slot.byteLen()
	slot.subs[0] = sub
	if req.Write {
		copy(slot.Buf, req.Payload)
	}
	d.queue = append(d.queue, slot)
	d.recordQueueLength()
	return evicted
}

func (d *Device) recordQueueLength() {
	d.queueLenTotal.Add(uint64(len(d.queue)))
	d.queueLenCount.Add(1)
	d.observer.ObserveQueueLength(uint32(len(d.queue)))
}

// findMergeCandidate returns a queued-but-not-submitted slot adjacent to the
// requested range and still within its merge window, or nil.
func (d *Device) findMergeCandidate(op Op, lba uint64, sectors uint8, now time.Time) *Slot {
	for _, s := range d.queue {
		if s.State != StateEnqueued && s.State != StateMerged {
			continue
		}
		if s.Op != op {
			continue
		}
		if now.Sub(s.Arrival) > d.mergeDelay {
			continue
		}
		combined := s.byteLen() + int(sectors)*SectorSize
		if d.maxPayload > 0 && combined > d.maxPayload {
			continue
		}
		if s.endLBA() == lba || lba+uint64(sectors) == s.BaseLBA {
			return s
		}
	}
	return nil
}

// mergeInto extends slot with sub, growing its buffer on whichever side sub
// attaches to. prepend indicates sub's range precedes slot's current range.
func (d *Device) mergeInto(slot *Slot, sub subRequest, payload []byte, prepend bool) {
	addLen := int(sub.SectorCount) * SectorSize
	newBuf, pooled := allocSlotBuf(slot.byteLen() + addLen)

	if prepend {
		copy(newBuf[addLen:], slot.Buf)
		for i := range slot.subs {
			slot.subs[i].BufOffset += addLen
		}
		sub.BufOffset, sub.BufLen = 0, addLen
		if slot.Op == OpWrite {
			copy(newBuf[:addLen], payload)
		}
		slot.BaseLBA = sub.LBA
	} else {
		sub.BufOffset, sub.BufLen = slot.byteLen(), addLen
		copy(newBuf, slot.Buf)
		if slot.Op == OpWrite {
			copy(newBuf[sub.BufOffset:], payload)
		}
	}

	releaseSlotBuf(slot.Buf, slot.pooled)
	slot.Buf = newBuf
	slot.pooled = pooled
	slot.Sectors += uint16(sub.SectorCount)
	slot.subs = append(slot.subs, sub)
	slot.State = StateMerged
}

// allocSlotBuf allocates a slot payload buffer, drawing from
// internal/queue's pool once a merged payload grows large enough to fall in
// one of its size buckets and staying on a plain allocation otherwise (most
// single-frame requests never reach 128 KiB).
func allocSlotBuf(size int) ([]byte, bool) {
	if queue.CanPool(size) {
		return queue.GetBuffer(uint32(size)), true
	}
	return make([]byte, size), false
}

// releaseSlotBuf returns buf to the pool if it came from one.
func releaseSlotBuf(buf []byte, pooled bool) {
	if pooled {
		queue.PutBuffer(buf)
	}
}

// evictExpiredHead drops the oldest queued (not yet submitted) slot if its
// age exceeds MaxDelay, returning the DEVICE_UNAVAIL frames for its
// constituent requests and true. Returns (nil, false) if the head has not
// expired.
func (d *Device) evictExpiredHead(now time.Time, localMAC net.HardwareAddr) ([]*aoeproto.Frame, bool) {
	if len(d.queue) == 0 {
		return nil, false
	}
	head := d.queue[0]
	if now.Sub(head.Arrival) <= d.maxDelay {
		return nil, false
	}
	d.queue = d.queue[1:]
	return d.replyDeviceUnavail(head, localMAC), true
}

// ExpireStale evicts every queued slot whose age now exceeds MaxDelay,
// responding DEVICE_UNAVAIL to each constituent request. Intended to be
// called on the max_delay/merge_delay timer tick.
func (d *Device) ExpireStale(now time.Time, localMAC net.HardwareAddr) []*aoeproto.Frame {
	var frames []*aoeproto.Frame
	for len(d.queue) > 0 && now.Sub(d.queue[0].Arrival) > d.maxDelay {
		head := d.queue[0]
		d.queue = d.queue[1:]
		frames = append(frames, d.replyDeviceUnavail(head, localMAC)...)
	}
	return frames
}

func (d *Device) replyDeviceUnavail(slot *Slot, localMAC net.HardwareAddr) []*aoeproto.Frame {
	var frames []*aoeproto.Frame
	for _, sub := range slot.subs {
		d.queueOver.Add(1)
		frames = append(frames, d.errorFrame(sub.SourceMAC, localMAC, sub.Tag, aoeproto.ErrDeviceUnavail))
	}
	releaseSlotBuf(slot.Buf, slot.pooled)
	return frames
}

// Reservation returns the current reservation list (empty = unreserved).
func (d *Device) Reservation() []net.HardwareAddr { return d.reservation }

// SetReservation replaces the reservation list atomically. force permits the
// operation even when issuer is not already a member (RESERVE_FORCE_SET);
// otherwise the set is rejected unless the list is currently empty or issuer
// is already a member.
func (d *Device) SetReservation(issuer net.HardwareAddr, macs []net.HardwareAddr, force bool) bool {
	if !force && len(d.reservation) > 0 && !macInList(d.reservation, issuer) {
		return false
	}
	d.reservation = append([]net.HardwareAddr(nil), macs...)
	return true
}

// ConfigString returns the persisted config string (§4.6 CONFIG read).
func (d *Device) ConfigString() []byte { return d.configString }

// SetConfigString stores a new config string, force bypassing the
// already-set check that ConfigSet otherwise enforces at the caller.
func (d *Device) SetConfigString(s []byte) {
	cp := make([]byte, len(s))
	copy(cp, s)
	d.configString = cp
}
