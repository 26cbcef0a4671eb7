// Package iface implements the per-NIC interface engine (§4.3): a raw
// AF_PACKET socket carrying AoE frames, an mmap'd PACKET_RX_RING for
// receive, and dispatch of decoded frames to the devices exported on this
// link by (shelf, slot), including the broadcast shelf/slot fan-out.
//
// Grounded on the teacher's internal/queue/runner.go (mmapQueues, ioLoop):
// the same "mmap a kernel ring, walk slots by ownership bit, hand payload
// to the backend, return ownership" shape, generalized from a single ublk
// char-device ring to an AF_PACKET ring bound to a network link.
package iface

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bysshe/cirrostratus/internal/aoeproto"
	"github.com/bysshe/cirrostratus/internal/device"
	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// Config configures one interface engine instance.
type Config struct {
	Name           string
	MTU            int
	RingFrames     int // PACKET_RX_RING frame count, 0 uses the package default
	SendBufferSize int
	RecvBufferSize int
	Logger         interfaces.Logger
}

type deviceKey struct {
	shelf uint16
	slot  uint8
}

// Interface owns one bound raw socket plus the devices registered to answer
// on it.
type Interface struct {
	name     string
	fd       int
	ifindex  int
	localMAC net.HardwareAddr
	mtu      int
	ring     *rxRing
	logger   interfaces.Logger

	mu        sync.Mutex
	devices   map[deviceKey]*device.Device
	broadcast []*device.Device

	txMu    sync.Mutex
	txQueue [][]byte

	protoErr uint64
}

// New opens the named link's AoE raw socket and RX ring.
func New(cfg Config) (*Interface, error) {
	fd, ifindex, err := openSocket(cfg.Name, aoeproto.EtherType)
	if err != nil {
		return nil, err
	}
	if err := setSocketBuffers(fd, cfg.SendBufferSize, cfg.RecvBufferSize); err != nil {
		unix.Close(fd)
		return nil, err
	}

	ring, err := newRXRing(fd, cfg.RingFrames)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	link, err := net.InterfaceByName(cfg.Name)
	if err != nil {
		ring.close()
		unix.Close(fd)
		return nil, fmt.Errorf("iface: %s: %w", cfg.Name, err)
	}

	mtu := cfg.MTU
	if mtu <= 0 {
		mtu = link.MTU
	}

	return &Interface{
		name:     cfg.Name,
		fd:       fd,
		ifindex:  ifindex,
		localMAC: link.HardwareAddr,
		mtu:      mtu,
		ring:     ring,
		logger:   cfg.Logger,
		devices:  make(map[deviceKey]*device.Device),
	}, nil
}

// Name returns the bound link's name.
func (ifc *Interface) Name() string { return ifc.name }

// LocalMAC returns the bound link's hardware address.
func (ifc *Interface) LocalMAC() net.HardwareAddr { return ifc.localMAC }

// MaxPayload bounds a merged ATA payload to what a single Ethernet frame at
// this interface's MTU can carry alongside the AoE header.
func (ifc *Interface) MaxPayload() int {
	p := ifc.mtu - ethHeaderLen - aoeproto.HeaderLen - aoeproto.ATATailLen
	if p < 0 {
		return 0
	}
	return p
}

// FD returns the raw socket descriptor for registration with the server's
// epoll-based event loop.
func (ifc *Interface) FD() int32 { return int32(ifc.fd) }

// Close releases the RX ring mapping and the socket.
func (ifc *Interface) Close() error {
	err1 := ifc.ring.close()
	err2 := unix.Close(ifc.fd)
	if err1 != nil {
		return err1
	}
	return err2
}

// RegisterDevice binds dev to this interface's (shelf, slot) dispatch
// table, and to the broadcast fan-out list if dev accepts broadcast
// addressing.
func (ifc *Interface) RegisterDevice(dev *device.Device) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	ifc.devices[deviceKey{dev.Shelf, dev.Slot}] = dev
	if dev.IsBroadcast() {
		ifc.broadcast = append(ifc.broadcast, dev)
	}
}

// UnregisterDevice removes a device from this interface's dispatch table
// (used on non-disruptive reload when a device is dropped or moved).
func (ifc *Interface) UnregisterDevice(shelf uint16, slot uint8) {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	key := deviceKey{shelf, slot}
	dead := ifc.devices[key]
	delete(ifc.devices, key)
	if dead == nil {
		return
	}
	for i, d := range ifc.broadcast {
		if d == dead {
			ifc.broadcast = append(ifc.broadcast[:i], ifc.broadcast[i+1:]...)
			break
		}
	}
}

func (ifc *Interface) lookup(h aoeproto.Header) []*device.Device {
	ifc.mu.Lock()
	defer ifc.mu.Unlock()
	if h.IsBroadcast() {
		return append([]*device.Device(nil), ifc.broadcast...)
	}
	if d, ok := ifc.devices[deviceKey{h.Shelf, h.Slot}]; ok {
		return []*device.Device{d}
	}
	return nil
}

// OnReadable drains every frame currently available in the RX ring,
// decodes it, and dispatches it to the matching device(s), queuing any
// reply frames for the next FlushTX.
func (ifc *Interface) OnReadable(now time.Time) error {
	for {
		raw, idx, ok := ifc.ring.next()
		if !ok {
			return nil
		}
		ifc.handleFrame(now, raw)
		ifc.ring.release(idx)
	}
}

func (ifc *Interface) handleFrame(now time.Time, raw []byte) {
	_, src, ethertype, payload, ok := decodeEthernet(raw)
	if !ok || ethertype != aoeproto.EtherType {
		return
	}

	hdr, err := aoeproto.DecodeHeader(payload)
	if err != nil || hdr.IsResponse() {
		return // malformed too short to even carry a header, or a reply frame (not ours to answer)
	}

	targets := ifc.lookup(hdr)
	if len(targets) == 0 {
		return // no locally exported device at this shelf/slot; stay silent
	}

	frame, err := aoeproto.Decode(ifc.localMAC, src, payload)
	if err != nil {
		for _, dev := range targets {
			ifc.queueTX(dev.BadArg(ifc.localMAC, src, hdr.Tag), src)
		}
		return
	}

	for _, dev := range targets {
		ifc.dispatch(now, dev, frame)
	}
}

func (ifc *Interface) dispatch(now time.Time, dev *device.Device, frame *aoeproto.Frame) {
	var replies []*aoeproto.Frame

	switch frame.Header.Command {
	case aoeproto.CmdATA:
		replies = ifc.dispatchATA(now, dev, frame)
	case aoeproto.CmdConfig:
		if r := dev.HandleConfig(ifc.localMAC, frame.Src, frame.Header.Tag, frame.Config, frame.ConfigString); r != nil {
			replies = []*aoeproto.Frame{r}
		}
	case aoeproto.CmdMACMask:
		dev.ApplyMACMaskEdit(frame.MACMask.EditCmd, frame.MACs)
		replies = []*aoeproto.Frame{dev.HandleMACMask(ifc.localMAC, frame.Src, frame.Header.Tag, frame.MACMask.EditCmd)}
	case aoeproto.CmdReserve:
		replies = []*aoeproto.Frame{dev.HandleReserve(ifc.localMAC, frame.Src, frame.Header.Tag, frame.MACs)}
	default:
		replies = []*aoeproto.Frame{dev.BadArg(ifc.localMAC, frame.Src, frame.Header.Tag)}
	}

	for _, r := range replies {
		ifc.queueTX(r, frame.Src)
	}
}

func (ifc *Interface) dispatchATA(now time.Time, dev *device.Device, frame *aoeproto.Frame) []*aoeproto.Frame {
	switch frame.ATA.CmdStat {
	case aoeproto.ATACmdIdentify:
		return []*aoeproto.Frame{dev.Identify(ifc.localMAC, frame.Src, frame.Header.Tag)}
	case aoeproto.ATACmdFlush, aoeproto.ATACmdCheckPwr:
		return []*aoeproto.Frame{dev.SimpleATAAck(ifc.localMAC, frame.Src, frame.Header.Tag)}
	case aoeproto.ATACmdRead28, aoeproto.ATACmdRead48, aoeproto.ATACmdWrite28, aoeproto.ATACmdWrite48:
		req := device.Request{
			SourceMAC:   frame.Src,
			Tag:         frame.Header.Tag,
			Extended48:  frame.ATA.Is48Bit(),
			Write:       frame.ATA.IsWrite(),
			LBA:         frame.ATA.LBAValue(),
			SectorCount: frame.ATA.SectorCount,
			Payload:     frame.Payload,
		}
		return dev.Enqueue(now, ifc.localMAC, req)
	default:
		return []*aoeproto.Frame{dev.BadArg(ifc.localMAC, frame.Src, frame.Header.Tag)}
	}
}

// QueueReply queues a reply frame produced outside of frame dispatch — a
// device's SubmitPending/PollCompletions/ExpireStale tick — for the next
// FlushTX. It passes no fallback destination to queueTX and relies on the
// frame's own Dst, which every device-produced frame carries.
func (ifc *Interface) QueueReply(f *aoeproto.Frame) {
	ifc.queueTX(f, nil)
}

// queueTX serializes an outbound AoE frame and appends it to the software
// send queue; FlushTX pushes it to the kernel. dst comes from the
// triggering request's source MAC when the frame itself doesn't carry one
// (error frames built without a device context).
func (ifc *Interface) queueTX(f *aoeproto.Frame, fallbackDst net.HardwareAddr) {
	if f == nil {
		return
	}
	dst := f.Dst
	if dst == nil {
		dst = fallbackDst
	}
	wire := encodeEthernet(dst, ifc.localMAC, aoeproto.EtherType, aoeproto.Encode(f))
	ifc.txMu.Lock()
	ifc.txQueue = append(ifc.txQueue, wire)
	ifc.txMu.Unlock()
}

// FlushTX writes every queued frame to the socket. A frame that would
// block (EAGAIN, send buffer full) is left at the head of the queue for
// the next call; the server's event loop calls FlushTX on every wake.
func (ifc *Interface) FlushTX() error {
	ifc.txMu.Lock()
	defer ifc.txMu.Unlock()

	for len(ifc.txQueue) > 0 {
		frame := ifc.txQueue[0]
		_, err := unix.Write(ifc.fd, frame)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			if ifc.logger != nil {
				ifc.logger.Printf("iface %s: send: %v", ifc.name, err)
			}
			ifc.protoErr++
		}
		ifc.txQueue = ifc.txQueue[1:]
	}
	return nil
}

// PendingTX reports how many frames are queued for transmission; the
// server reports it as the interface's tx_pending counter.
func (ifc *Interface) PendingTX() int {
	ifc.txMu.Lock()
	defer ifc.txMu.Unlock()
	return len(ifc.txQueue)
}

// ProtoErr returns the count of send failures observed on this interface,
// folded into the NETSTAT-equivalent control-plane reply alongside each
// device's own proto_err counter.
func (ifc *Interface) ProtoErr() uint64 {
	ifc.txMu.Lock()
	defer ifc.txMu.Unlock()
	return ifc.protoErr
}
