package device

import (
	"encoding/binary"
	"net"

	"github.com/bysshe/cirrostratus/internal/aoeproto"
	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// Identify synthesizes an ATA IDENTIFY DEVICE response (§4.6): a 512-byte
// block reporting capacity and LBA48 support. Model and serial come from the
// backend when it implements interfaces.IdentifyBackend (e.g. a file
// backend deriving a serial from its path), falling back to the device's
// configured defaults otherwise.
func (d *Device) Identify(localMAC net.HardwareAddr, srcMAC net.HardwareAddr, tag uint32) *aoeproto.Frame {
	model, serial := d.model, d.serial
	if ib, ok := d.backend.(interfaces.IdentifyBackend); ok {
		if m, s, ok := ib.Identify(); ok {
			model, serial = m, s
		}
	}
	block := buildIdentifyBlock(capacitySectors(d.backend), model, serial)

	hdr := d.replyHeader(tag)
	tail := aoeproto.ATATail{
		SectorCount: 1,
		CmdStat:     aoeproto.ATAStatusReady,
	}
	return &aoeproto.Frame{
		Dst:     srcMAC,
		Src:     localMAC,
		Header:  hdr,
		ATA:     tail,
		Payload: block,
	}
}

// putIdentifyString writes an ATA-IDENTIFY-style byte-swapped ASCII field:
// each pair of characters is stored with bytes reversed, space-padded.
func putIdentifyString(block []byte, byteOffset int, s string, fieldLen int) {
	padded := make([]byte, fieldLen)
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded, s)
	for i := 0; i+1 < fieldLen; i += 2 {
		block[byteOffset+i] = padded[i+1]
		block[byteOffset+i+1] = padded[i]
	}
}

func buildIdentifyBlock(capacitySectors uint64, model, serial string) []byte {
	block := make([]byte, 512)
	word := func(idx int, v uint16) { binary.LittleEndian.PutUint16(block[idx*2:], v) }

	putIdentifyString(block, 10*2, serial, 20)          // words 10-19: serial number
	putIdentifyString(block, 23*2, "1.0", 8)             // words 23-26: firmware revision
	putIdentifyString(block, 27*2, model, 40)            // words 27-46: model number

	lba28 := capacitySectors
	if lba28 > 0xffffffff {
		lba28 = 0xffffffff
	}
	word(60, uint16(lba28&0xffff))
	word(61, uint16(lba28>>16))

	word(83, 1<<10) // LBA48 supported
	word(86, 1<<10) // LBA48 enabled

	word(100, uint16(capacitySectors&0xffff))
	word(101, uint16((capacitySectors>>16)&0xffff))
	word(102, uint16((capacitySectors>>32)&0xffff))
	word(103, uint16((capacitySectors>>48)&0xffff))

	return block
}
