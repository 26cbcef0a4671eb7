package aoeproto

import "net"

// Header is the fixed 10-byte AoE header that precedes every command tail.
//
//	byte 0:    version (high nibble) | flags (low nibble: response, error)
//	byte 1:    error code (valid when FlagError is set)
//	bytes 2-3: shelf, big-endian
//	byte 4:    slot
//	byte 5:    command
//	bytes 6-9: tag, big-endian
type Header struct {
	VerFlags uint8
	Error    uint8
	Shelf    uint16
	Slot     uint8
	Command  uint8
	Tag      uint32
}

// IsResponse reports whether the response flag is set.
func (h Header) IsResponse() bool { return h.VerFlags&FlagResponse != 0 }

// IsBroadcast reports whether the header targets every device on the interface.
func (h Header) IsBroadcast() bool { return h.Shelf == ShelfBroadcast && h.Slot == SlotBroadcast }

// ATATail is the per-command tail for CmdATA.
type ATATail struct {
	AFlags      uint8
	ErrFeature  uint8
	SectorCount uint8
	CmdStat     uint8
	LBA         [6]uint8 // little-endian, 28- or 48-bit depending on AFlags
	Reserved    uint16
}

// Is48Bit reports whether the extended (48-bit LBA) addressing flag is set.
func (t ATATail) Is48Bit() bool { return t.AFlags&ATAFlagExtended != 0 }

// IsWrite reports whether the write flag is set.
func (t ATATail) IsWrite() bool { return t.AFlags&ATAFlagWrite != 0 }

// LBAValue decodes the 6-byte little-endian LBA field, masked to 28 or 48
// bits per AFlags.
func (t ATATail) LBAValue() uint64 {
	var buf [8]byte
	copy(buf[:6], t.LBA[:])
	v := leUint64(buf[:])
	if t.Is48Bit() {
		return v & 0x0000ffffffffffff
	}
	return v & 0x0fffffff
}

// SetLBA packs a logical block address into the 6-byte little-endian field.
func (t *ATATail) SetLBA(lba uint64) {
	var buf [8]byte
	putLEUint64(buf[:], lba)
	copy(t.LBA[:], buf[:6])
}

// ConfigTail is the per-command tail for CmdConfig, not including the
// variable-length config string that follows it.
type ConfigTail struct {
	BufferCount     uint16
	FirmwareVersion uint16
	SectorCount     uint8
	CCmd            uint8 // high nibble: AoE version of config cmd; low nibble: sub-command
	StringLength    uint16
}

// SubCommand extracts the sub-command nibble (ConfigRead, ConfigSet, ...).
func (t ConfigTail) SubCommand() uint8 { return t.CCmd & 0x0f }

// MACMaskTail is the fixed portion of the tail for CmdMACMask; the MAC list
// itself follows as NEntries 8-byte-padded 6-byte addresses.
type MACMaskTail struct {
	Reserved uint16
	EditCmd  uint8 // MACMaskRead, MACMaskAdd, ...
	NEntries uint8
}

// ReserveTail is the fixed portion of the tail for CmdReserve; the MAC list
// follows as NMACs 8-byte-padded 6-byte addresses.
type ReserveTail struct {
	Reserved uint16
	NMACs    uint8
	_        uint8
}

// Frame is a fully decoded AoE frame: header, source/destination MACs from
// the Ethernet framing, and a command-specific tail plus trailing payload.
type Frame struct {
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	Header  Header
	ATA     ATATail
	Config  ConfigTail
	MACMask MACMaskTail
	Reserve ReserveTail

	// ConfigString holds the CONFIG command's variable-length string.
	ConfigString []byte
	// MACs holds the MAC-mask or reserve command's address list.
	MACs []net.HardwareAddr
	// Payload holds the ATA command's read/write data, if any.
	Payload []byte
}
