// Package constants centralizes default values and bounds used throughout
// the server: queue/shelf/slot limits, timing windows, and buffer sizes.
package constants

import "time"

// Addressing bounds (§3 Device invariants).
const (
	// ShelfReservedFrom is the first shelf number reserved for broadcast and
	// future use; valid shelves are [0, ShelfReservedFrom).
	ShelfReservedFrom = 0xff00

	// SlotMax is the highest valid (non-broadcast) slot number.
	SlotMax = 0xfe

	// MaxQueueLen bounds the per-device queue_length configuration value.
	MaxQueueLen = 1024

	// DefaultQueueLen is used when a device group omits queue-length.
	DefaultQueueLen = 32

	// ACLMapCapacity is the fixed capacity of each accept/deny ACL map.
	ACLMapCapacity = 255

	// MaxReservationMACs bounds the reservation list length.
	MaxReservationMACs = 255
)

// Timing windows (§4.4, §5). max_delay and merge_delay are each bounded to
// [0, 1s) per the data model; these are the defaults applied when a device
// group omits them.
const (
	DefaultMaxDelay   = 200 * time.Millisecond
	DefaultMergeDelay = 2 * time.Millisecond
	MaxDelayCeiling   = 1 * time.Second
	MergeDelayCeiling = 1 * time.Second

	// EventLoopIdleTimeout bounds how long the event loop may block in its
	// readiness wait before re-checking timers and the reload/exit flags
	// (§4.7).
	EventLoopIdleTimeout = 10 * time.Second
)

// Frame and buffer sizing.
const (
	// DefaultMTU is used when an interface group omits mtu.
	DefaultMTU = 1500

	// MinMTU is the smallest MTU ggaoed.c's parser accepts: enough room for
	// the AoE header on top of the minimum usable Ethernet payload.
	MinMTU = 1024

	// DefaultRingBufferSize is the default PACKET_RX_RING size in frames.
	DefaultRingBufferSize = 256

	// MaxControlPacket bounds a single control-plane datagram (§6).
	MaxControlPacket = 64 * 1024
)

// Virtual device capacity bounds (§9 open question #3): expressed in MiB,
// matching original_source/ggaoed.c's literal `val < 0 || val >= 100000`
// range check against a field documented there as megabytes.
const (
	VirtualCapacityMinMiB = 0
	VirtualCapacityMaxMiB = 100000
)

// ConfigStringMax is the persisted CONFIG-command string size limit.
const ConfigStringMax = 1024
