package device

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bysshe/cirrostratus/internal/aoeproto"
)

// memBackend is a minimal in-memory interfaces.Backend double for device
// engine tests; it has no file descriptor, so devices built with it always
// take the inline (non-ring) completion path.
type memBackend struct {
	data []byte
}

func newMemBackend(sectors int) *memBackend {
	return &memBackend{data: make([]byte, sectors*SectorSize)}
}

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) { return copy(p, m.data[off:]), nil }
func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.data[off:], p), nil
}
func (m *memBackend) Size() int64  { return int64(len(m.data)) }
func (m *memBackend) Close() error { return nil }
func (m *memBackend) Flush() error { return nil }

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func newTestDevice(sectors int) *Device {
	return NewDevice(Config{
		Shelf:       1,
		Slot:        0,
		Backend:     newMemBackend(sectors),
		QueueLength: 4,
		MaxDelay:    200 * time.Millisecond,
		MergeDelay:  2 * time.Millisecond,
		MaxPayload:  64 * 1024,
		Model:       "cirrostratus",
		Serial:      "0001",
	})
}

var localMAC = mustMAC("00:11:22:33:44:55")

func TestIdentifyReportsCapacity(t *testing.T) {
	d := newTestDevice(2097152) // 1 GiB
	src := mustMAC("aa:bb:cc:dd:ee:01")

	f := d.Identify(localMAC, src, 42)
	require.EqualValues(t, 42, f.Header.Tag)
	require.EqualValues(t, 0, f.Header.Error)
	require.Len(t, f.Payload, 512)

	lo := uint32(f.Payload[120]) | uint32(f.Payload[121])<<8 | uint32(f.Payload[122])<<16 | uint32(f.Payload[123])<<24
	require.EqualValues(t, 2097152, lo)
}

func TestReadBeyondCapacityRejected(t *testing.T) {
	d := newTestDevice(2097152)
	src := mustMAC("aa:bb:cc:dd:ee:02")

	replies := d.Enqueue(time.Now(), localMAC, Request{
		SourceMAC:   src,
		Tag:         7,
		LBA:         2097152,
		SectorCount: 1,
	})
	require.Len(t, replies, 1)
	require.True(t, replies[0].Header.VerFlags&aoeproto.FlagError != 0)
	require.Equal(t, aoeproto.ErrBadArg, replies[0].Header.Error)
	require.EqualValues(t, 7, replies[0].Header.Tag)
}

func TestACLDenyDropsSilently(t *testing.T) {
	d := newTestDevice(1024)
	denied := mustMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, d.Deny.Insert(denied))

	replies := d.Enqueue(time.Now(), localMAC, Request{SourceMAC: denied, Tag: 1, LBA: 0, SectorCount: 1})
	require.Empty(t, replies)
	require.EqualValues(t, 1, d.Stats().ProtoErr)
}

func TestReservationConflictAndRelease(t *testing.T) {
	d := newTestDevice(1024)
	a := mustMAC("aa:aa:aa:aa:aa:aa")
	b := mustMAC("bb:bb:bb:bb:bb:bb")
	c := mustMAC("cc:cc:cc:cc:cc:cc")

	require.True(t, d.SetReservation(a, []net.HardwareAddr{a, b}, false))
	require.Equal(t, []net.HardwareAddr{a, b}, d.Reservation())

	writeReq := Request{Tag: 2, LBA: 0, SectorCount: 1, Write: true, Payload: make([]byte, SectorSize)}

	writeReq.SourceMAC = c
	replies := d.Enqueue(time.Now(), localMAC, writeReq)
	require.Len(t, replies, 1)
	require.Equal(t, aoeproto.ErrResConflict, replies[0].Header.Error)

	writeReq.SourceMAC = b
	writeReq.Tag = 3
	replies = d.Enqueue(time.Now(), localMAC, writeReq)
	require.Empty(t, replies) // admitted, queued for async completion
}

func TestMergeCombinesAdjacentWrites(t *testing.T) {
	d := newTestDevice(1024)
	src := mustMAC("aa:bb:cc:dd:ee:03")
	now := time.Now()

	first := Request{SourceMAC: src, Tag: 10, LBA: 100, SectorCount: 8, Write: true, Payload: make([]byte, 8*SectorSize)}
	for i := range first.Payload {
		first.Payload[i] = 0xAA
	}
	require.Empty(t, d.Enqueue(now, localMAC, first))
	require.Len(t, d.queue, 1)

	second := Request{SourceMAC: src, Tag: 11, LBA: 108, SectorCount: 8, Write: true, Payload: make([]byte, 8*SectorSize)}
	for i := range second.Payload {
		second.Payload[i] = 0xBB
	}
	require.Empty(t, d.Enqueue(now.Add(time.Microsecond), localMAC, second))

	require.Len(t, d.queue, 1, "merge must not grow the queue")
	slot := d.queue[0]
	require.Equal(t, StateMerged, slot.State)
	require.EqualValues(t, 16, slot.Sectors)
	require.Len(t, slot.subs, 2)

	replies, err := d.SubmitPending(now.Add(2*time.Millisecond), localMAC)
	require.NoError(t, err)
	require.Len(t, replies, 2, "both originating tags must be replied to")
	tags := map[uint32]bool{replies[0].Header.Tag: true, replies[1].Header.Tag: true}
	require.True(t, tags[10] && tags[11])
}

func TestQueueOverRespondsDeviceUnavailAfterMaxDelay(t *testing.T) {
	d := newTestDevice(1024)
	d.queueLength = 1
	src := mustMAC("aa:bb:cc:dd:ee:04")
	base := time.Now()

	require.Empty(t, d.Enqueue(base, localMAC, Request{SourceMAC: src, Tag: 1, LBA: 0, SectorCount: 1}))

	// Second request, different (non-adjacent) range so it cannot merge, and
	// arriving after MaxDelay so the stale head is evicted rather than the
	// newcomer rejected.
	late := base.Add(d.maxDelay + time.Millisecond)
	replies := d.Enqueue(late, localMAC, Request{SourceMAC: src, Tag: 2, LBA: 500, SectorCount: 1})
	require.Len(t, replies, 1)
	require.Equal(t, aoeproto.ErrDeviceUnavail, replies[0].Header.Error)
	require.EqualValues(t, 1, replies[0].Header.Tag)
	require.Len(t, d.queue, 1)
	require.EqualValues(t, 500, d.queue[0].BaseLBA)
}

func TestReadWriteRoundTripInline(t *testing.T) {
	d := newTestDevice(1024)
	src := mustMAC("aa:bb:cc:dd:ee:05")
	now := time.Now()

	payload := make([]byte, SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.Empty(t, d.Enqueue(now, localMAC, Request{SourceMAC: src, Tag: 1, LBA: 5, SectorCount: 1, Write: true, Payload: payload}))
	replies, err := d.SubmitPending(now, localMAC)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Zero(t, replies[0].Header.Error)

	require.Empty(t, d.Enqueue(now, localMAC, Request{SourceMAC: src, Tag: 2, LBA: 5, SectorCount: 1}))
	replies, err = d.SubmitPending(now, localMAC)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, payload, replies[0].Payload)
}

func TestMergeGrowthAbovePoolThresholdStaysCorrect(t *testing.T) {
	// Two 255-sector writes merge into a ~255KiB slot, crossing the buffer
	// pool's 128KiB bucket floor; verify the switch to a pooled buffer
	// preserves both halves of the payload correctly.
	d := NewDevice(Config{
		Shelf:       1,
		Slot:        0,
		Backend:     newMemBackend(1 << 16),
		QueueLength: 4,
		MaxDelay:    200 * time.Millisecond,
		MergeDelay:  2 * time.Millisecond,
		MaxPayload:  1 << 20,
		Model:       "cirrostratus",
		Serial:      "0001",
	})
	src := mustMAC("aa:bb:cc:dd:ee:06")
	now := time.Now()

	first := Request{SourceMAC: src, Tag: 20, LBA: 0, SectorCount: 255, Write: true, Payload: make([]byte, 255*SectorSize)}
	for i := range first.Payload {
		first.Payload[i] = 0xAA
	}
	require.Empty(t, d.Enqueue(now, localMAC, first))

	second := Request{SourceMAC: src, Tag: 21, LBA: 255, SectorCount: 255, Write: true, Payload: make([]byte, 255*SectorSize)}
	for i := range second.Payload {
		second.Payload[i] = 0xBB
	}
	require.Empty(t, d.Enqueue(now.Add(time.Microsecond), localMAC, second))

	require.Len(t, d.queue, 1, "merge must not grow the queue")
	slot := d.queue[0]
	require.True(t, slot.pooled, "merged buffer should cross into the pool's bucket range")
	require.EqualValues(t, 510, slot.Sectors)

	replies, err := d.SubmitPending(now.Add(2*time.Millisecond), localMAC)
	require.NoError(t, err)
	require.Len(t, replies, 2)

	require.Empty(t, d.Enqueue(now, localMAC, Request{SourceMAC: src, Tag: 22, LBA: 0, SectorCount: 255}))
	readBack, err := d.SubmitPending(now, localMAC)
	require.NoError(t, err)
	require.Len(t, readBack, 1)
	require.Equal(t, first.Payload, readBack[0].Payload)

	require.Empty(t, d.Enqueue(now, localMAC, Request{SourceMAC: src, Tag: 23, LBA: 255, SectorCount: 255}))
	readBack, err = d.SubmitPending(now, localMAC)
	require.NoError(t, err)
	require.Len(t, readBack, 1)
	require.Equal(t, second.Payload, readBack[0].Payload)
}
