package iface

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bysshe/cirrostratus/backend"
	"github.com/bysshe/cirrostratus/internal/aoeproto"
	"github.com/bysshe/cirrostratus/internal/device"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func newTestInterface(t *testing.T, dev *device.Device) *Interface {
	ifc := &Interface{
		localMAC: mustMAC(t, "00:11:22:33:44:55"),
		devices:  make(map[deviceKey]*device.Device),
	}
	ifc.RegisterDevice(dev)
	return ifc
}

func newTestDevice(shelf uint16, slot uint8, broadcast bool) *device.Device {
	return device.NewDevice(device.Config{
		Shelf:       shelf,
		Slot:        slot,
		Backend:     backend.NewMemory(1 << 20),
		QueueLength: 16,
		MaxDelay:    time.Second,
		MergeDelay:  time.Millisecond,
		MaxPayload:  1 << 16,
		Broadcast:   broadcast,
		Model:       "test",
		Serial:      "TEST0000001",
	})
}

func encodeTestFrame(dst, src net.HardwareAddr, f *aoeproto.Frame) []byte {
	return encodeEthernet(dst, src, aoeproto.EtherType, aoeproto.Encode(f))
}

func TestHandleFrameIdentifyDispatch(t *testing.T) {
	dev := newTestDevice(1, 0, false)
	ifc := newTestInterface(t, dev)
	client := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	frame := &aoeproto.Frame{
		Header: aoeproto.Header{VerFlags: aoeproto.Version, Shelf: 1, Slot: 0, Command: aoeproto.CmdATA, Tag: 42},
		ATA:    aoeproto.ATATail{CmdStat: aoeproto.ATACmdIdentify},
	}
	raw := encodeTestFrame(ifc.localMAC, client, frame)

	ifc.handleFrame(time.Now(), raw)

	require.Equal(t, 1, ifc.PendingTX())
	wire := ifc.txQueue[0][ethHeaderLen:]
	replyHdr, err := aoeproto.DecodeHeader(wire)
	require.NoError(t, err)
	require.True(t, replyHdr.IsResponse())
	require.Equal(t, uint32(42), replyHdr.Tag)
	// aoeproto.Decode only carries trailing ATA bytes into Frame.Payload for
	// write *requests*; a read/identify *reply*'s data block is only ever
	// produced by Encode and consumed off the raw wire bytes, never
	// re-decoded in production, so this test reads it directly.
	require.Len(t, wire[aoeproto.HeaderLen+aoeproto.ATATailLen:], 512)
}

func TestHandleFrameUnknownDeviceStaysSilent(t *testing.T) {
	dev := newTestDevice(1, 0, false)
	ifc := newTestInterface(t, dev)
	client := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	frame := &aoeproto.Frame{
		Header: aoeproto.Header{VerFlags: aoeproto.Version, Shelf: 2, Slot: 0, Command: aoeproto.CmdATA, Tag: 1},
		ATA:    aoeproto.ATATail{CmdStat: aoeproto.ATACmdIdentify},
	}
	raw := encodeTestFrame(ifc.localMAC, client, frame)

	ifc.handleFrame(time.Now(), raw)

	require.Equal(t, 0, ifc.PendingTX())
}

func TestHandleFrameBroadcastFansOutToAllBroadcastDevices(t *testing.T) {
	devA := newTestDevice(1, 0, true)
	devB := newTestDevice(1, 1, true)
	devC := newTestDevice(1, 2, false) // not broadcast-enabled, must not receive
	ifc := newTestInterface(t, devA)
	ifc.RegisterDevice(devB)
	ifc.RegisterDevice(devC)
	client := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	frame := &aoeproto.Frame{
		Header: aoeproto.Header{VerFlags: aoeproto.Version, Shelf: aoeproto.ShelfBroadcast, Slot: aoeproto.SlotBroadcast, Command: aoeproto.CmdATA, Tag: 7},
		ATA:    aoeproto.ATATail{CmdStat: aoeproto.ATACmdIdentify},
	}
	raw := encodeTestFrame(ifc.localMAC, client, frame)

	ifc.handleFrame(time.Now(), raw)

	require.Equal(t, 2, ifc.PendingTX())
}

func TestHandleFrameWriteThenReadRoundTrip(t *testing.T) {
	dev := newTestDevice(1, 0, false)
	ifc := newTestInterface(t, dev)
	client := mustMAC(t, "aa:bb:cc:dd:ee:ff")

	// A write/read arrival only queues the request; completion happens on
	// the device's own SubmitPending tick (driven by the owning event loop,
	// not frame dispatch), so PendingTX stays empty until that tick runs.
	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	writeTail := aoeproto.ATATail{AFlags: aoeproto.ATAFlagWrite, SectorCount: 1, CmdStat: aoeproto.ATACmdWrite28}
	writeTail.SetLBA(10)
	writeFrame := &aoeproto.Frame{
		Header:  aoeproto.Header{VerFlags: aoeproto.Version, Shelf: 1, Slot: 0, Command: aoeproto.CmdATA, Tag: 1},
		ATA:     writeTail,
		Payload: payload,
	}
	now := time.Now()
	ifc.handleFrame(now, encodeTestFrame(ifc.localMAC, client, writeFrame))
	require.Equal(t, 0, ifc.PendingTX())

	writeReplies, err := dev.SubmitPending(now, ifc.localMAC)
	require.NoError(t, err)
	require.Len(t, writeReplies, 1)
	for _, r := range writeReplies {
		ifc.QueueReply(r)
	}
	require.Equal(t, 1, ifc.PendingTX())
	ifc.txQueue = nil // drain without hitting the real socket

	readTail := aoeproto.ATATail{SectorCount: 1, CmdStat: aoeproto.ATACmdRead28}
	readTail.SetLBA(10)
	readFrame := &aoeproto.Frame{
		Header: aoeproto.Header{VerFlags: aoeproto.Version, Shelf: 1, Slot: 0, Command: aoeproto.CmdATA, Tag: 2},
		ATA:    readTail,
	}
	ifc.handleFrame(now, encodeTestFrame(ifc.localMAC, client, readFrame))
	require.Equal(t, 0, ifc.PendingTX())

	readReplies, err := dev.SubmitPending(now, ifc.localMAC)
	require.NoError(t, err)
	require.Len(t, readReplies, 1)
	for _, r := range readReplies {
		ifc.QueueReply(r)
	}
	require.Equal(t, 1, ifc.PendingTX())

	wire := ifc.txQueue[0][ethHeaderLen:]
	require.Equal(t, payload, wire[aoeproto.HeaderLen+aoeproto.ATATailLen:])
}

func TestEthernetRoundTrip(t *testing.T) {
	dst := mustMAC(t, "00:11:22:33:44:55")
	src := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	wire := encodeEthernet(dst, src, aoeproto.EtherType, []byte("payload"))

	gotDst, gotSrc, ethertype, payload, ok := decodeEthernet(wire)
	require.True(t, ok)
	require.Equal(t, dst, gotDst)
	require.Equal(t, src, gotSrc)
	require.Equal(t, uint16(aoeproto.EtherType), ethertype)
	require.Equal(t, []byte("payload"), payload)
}
