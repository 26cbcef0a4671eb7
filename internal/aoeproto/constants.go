// Package aoeproto encodes and decodes AoE (ATA-over-Ethernet) frames: the
// fixed header plus the per-command tail for ATA, CONFIG, MAC-mask, and
// reserve/release commands.
package aoeproto

// EtherType is the AoE ethertype as assigned by the protocol (AoE v1).
const EtherType = 0x88a2

// Command codes (header byte 5).
const (
	CmdATA       uint8 = 0
	CmdConfig    uint8 = 1
	CmdMACMask   uint8 = 2
	CmdReserve   uint8 = 3
	cmdMaxKnown        = CmdReserve
)

// Header flag bits (byte 0, high nibble is the AoE version, low nibble holds the flags).
const (
	FlagResponse uint8 = 1 << 3 // set on a reply frame
	FlagError    uint8 = 1 << 2 // set alongside an Error code in the reply
	Version      uint8 = 1 << 4
)

// Error codes placed in the header's Error byte when FlagError is set.
const (
	ErrUnspecified    uint8 = 1
	ErrBadArg         uint8 = 2
	ErrDeviceUnavail  uint8 = 3
	ErrConfigRequired uint8 = 4
	ErrBadVersion     uint8 = 5
	ErrResConflict    uint8 = 6
)

// Broadcast addressing.
const (
	ShelfBroadcast uint16 = 0xffff
	SlotBroadcast  uint8  = 0xff
	ShelfMax       uint16 = 0xff00 // shelves at or above this are reserved
)

// HeaderLen is the fixed AoE header size in bytes, not counting the 14-byte
// Ethernet header that precedes it on the wire.
const HeaderLen = 10

// ATA command tail.
const (
	ATATailLen = 12

	// ATA aflags bits (tail byte 0).
	ATAFlagExtended uint8 = 1 << 6 // 48-bit LBA addressing
	ATAFlagDevHead  uint8 = 1 << 4
	ATAFlagAsync    uint8 = 1 << 1
	ATAFlagWrite    uint8 = 1 << 0

	// ATA command/status byte (tail byte 3) values this server synthesizes
	// or recognizes.
	ATACmdIdentify  uint8 = 0xec
	ATACmdRead28    uint8 = 0x20
	ATACmdRead48    uint8 = 0x24
	ATACmdWrite28   uint8 = 0x30
	ATACmdWrite48   uint8 = 0x34
	ATACmdFlush     uint8 = 0xe7
	ATACmdCheckPwr  uint8 = 0xe5
	ATAStatusReady  uint8 = 0x40
	ATAStatusErr    uint8 = 0x01
	ATAErrAbort     uint8 = 0x04
)

// SectorSize is the fixed ATA logical sector size this server exposes.
const SectorSize = 512

// CONFIG sub-commands, packed into the low nibble of the aoe_ccmd byte.
const (
	ConfigRead       uint8 = 0
	ConfigTest       uint8 = 1
	ConfigTestPrefix uint8 = 2
	ConfigSet        uint8 = 3
	ConfigForceSet   uint8 = 4
)

// ConfigStringMax is the persisted config-string size limit (§4.6).
const ConfigStringMax = 1024

const ConfigTailLen = 8 // fixed fields preceding the config string

// MAC-mask sub-commands.
const (
	MACMaskRead   uint8 = 0
	MACMaskAdd    uint8 = 1
	MACMaskDelete uint8 = 2
	MACMaskForce  uint8 = 3
)

const MACMaskTailLen = 4 // reserved(2) + editCmd(1) + nEntries(1), entries follow

// Reserve/release sub-commands.
const (
	ReserveGet      uint8 = 0
	ReserveSet      uint8 = 1
	ReserveForceSet uint8 = 2
)

const ReserveTailLen = 4 // reserved(2) + nMACs(1) + reserved(1), MACs follow
