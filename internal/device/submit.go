package device

import (
	"net"
	"time"

	"github.com/bysshe/cirrostratus/internal/aoeproto"
	"github.com/bysshe/cirrostratus/internal/uring"
)

// SubmitPending advances as many queued/merged slots to SUBMITTED as the
// device's io_slots budget (queueLength in-flight) allows. When the backend
// exposes a file descriptor and a ring was configured, submission is
// asynchronous via internal/uring; otherwise the backend call runs inline
// and the slot completes within this call, returning its reply frames
// immediately (so callers must still collect SubmitPending's return value).
func (d *Device) SubmitPending(now time.Time, localMAC net.HardwareAddr) ([]*aoeproto.Frame, error) {
	var frames []*aoeproto.Frame
	var prepared bool

	for len(d.inFlight) < d.queueLength && len(d.queue) > 0 {
		slot := d.queue[0]
		if slot.State != StateEnqueued && slot.State != StateMerged {
			break
		}
		d.queue = d.queue[1:]
		slot.State = StateSubmitted

		userData := d.nextUserData
		d.nextUserData++
		slot.UserData = userData
		d.inFlight[userData] = slot

		if d.ring != nil && d.fdBackend != nil {
			if err := d.ring.Prepare(uring.Request{
				Op:       ringOp(slot.Op),
				FD:       d.fdBackend.FD(),
				Offset:   int64(slot.BaseLBA) * SectorSize,
				Buf:      slot.Buf,
				UserData: userData,
			}); err != nil {
				delete(d.inFlight, userData)
				return frames, err
			}
			prepared = true
			continue
		}

		// No kernel ring available (virtual/in-memory backend): perform the
		// backend call inline and complete the slot within this tick.
		n, err := d.runInline(slot)
		delete(d.inFlight, userData)
		frames = append(frames, d.completeSlot(now, localMAC, slot, int32(n), err)...)
	}

	if prepared {
		if _, err := d.ring.FlushSubmissions(); err != nil {
			return frames, err
		}
	}
	d.ioSlots.Store(uint32(len(d.inFlight)))
	return frames, nil
}

func ringOp(op Op) uring.Op {
	if op == OpWrite {
		return uring.OpWrite
	}
	return uring.OpRead
}

func (d *Device) runInline(slot *Slot) (int, error) {
	off := int64(slot.BaseLBA) * SectorSize
	if slot.Op == OpWrite {
		return d.backend.WriteAt(slot.Buf, off)
	}
	return d.backend.ReadAt(slot.Buf, off)
}

// PollCompletions drains available ring completions and builds reply
// frames. Devices backed by an inline (non-ring) backend complete within
// SubmitPending and never have anything to poll here.
func (d *Device) PollCompletions(now time.Time, localMAC net.HardwareAddr, timeoutMs int) ([]*aoeproto.Frame, error) {
	if d.ring == nil {
		return nil, nil
	}
	results, err := d.ring.WaitForCompletion(timeoutMs)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	d.ioRuns.Add(1)

	var frames []*aoeproto.Frame
	for _, res := range results {
		slot, ok := d.inFlight[res.UserData()]
		if !ok {
			continue
		}
		delete(d.inFlight, res.UserData())
		frames = append(frames, d.completeSlot(now, localMAC, slot, res.Value(), res.Error())...)
	}
	d.ioSlots.Store(uint32(len(d.inFlight)))
	return frames, nil
}

// completeSlot transitions slot to COMPLETED then REPLIED, records metrics,
// and builds one reply frame per constituent sub-request.
func (d *Device) completeSlot(now time.Time, localMAC net.HardwareAddr, slot *Slot, value int32, ioErr error) []*aoeproto.Frame {
	var frames []*aoeproto.Frame

	if value < 0 || ioErr != nil {
		slot.State = StateFailed
		for _, sub := range slot.subs {
			d.ataErr.Add(1)
			frames = append(frames, d.errorFrame(sub.SourceMAC, localMAC, sub.Tag, aoeproto.ErrUnspecified))
		}
		slot.State = StateReplied
		releaseSlotBuf(slot.Buf, slot.pooled)
		return frames
	}

	slot.State = StateCompleted
	for _, sub := range slot.subs {
		latencyNs := uint64(now.Sub(sub.Arrival).Nanoseconds())
		payload := slot.Buf[sub.BufOffset : sub.BufOffset+sub.BufLen]
		if slot.Op == OpWrite {
			d.observer.ObserveWrite(uint64(sub.BufLen), latencyNs)
		} else {
			d.observer.ObserveRead(uint64(sub.BufLen), latencyNs)
		}
		frames = append(frames, d.successFrame(localMAC, slot, sub, payload))
	}
	slot.State = StateReplied
	releaseSlotBuf(slot.Buf, slot.pooled)
	return frames
}

func (d *Device) successFrame(localMAC net.HardwareAddr, slot *Slot, sub subRequest, payload []byte) *aoeproto.Frame {
	hdr := d.replyHeader(sub.Tag)
	tail := aoeproto.ATATail{
		SectorCount: sub.SectorCount,
		CmdStat:     aoeproto.ATAStatusReady,
	}
	if sub.Extended48 {
		tail.AFlags |= aoeproto.ATAFlagExtended
	}
	tail.SetLBA(sub.LBA)

	f := &aoeproto.Frame{
		Dst:    sub.SourceMAC,
		Src:    localMAC,
		Header: hdr,
		ATA:    tail,
	}
	if slot.Op == OpRead {
		f.Payload = append([]byte(nil), payload...)
	}
	return f
}
