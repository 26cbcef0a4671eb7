package aoeproto

import (
	"encoding/binary"
	"fmt"
	"net"
)

// DecodeError reports a malformed frame; the codec never reads past the end
// of the supplied buffer.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "aoeproto: decode: " + e.Reason }

func shortBuf(want, got int) error {
	return &DecodeError{Reason: fmt.Sprintf("need %d bytes, have %d", want, got)}
}

func leUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func putLEUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// DecodeHeader reads the fixed 10-byte header from buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, shortBuf(HeaderLen, len(buf))
	}
	var h Header
	h.VerFlags = buf[0]
	h.Error = buf[1]
	h.Shelf = binary.BigEndian.Uint16(buf[2:4])
	h.Slot = buf[4]
	h.Command = buf[5]
	h.Tag = binary.BigEndian.Uint32(buf[6:10])
	return h, nil
}

// EncodeHeader writes the fixed header into buf, which must be at least
// HeaderLen bytes.
func EncodeHeader(buf []byte, h Header) {
	buf[0] = h.VerFlags
	buf[1] = h.Error
	binary.BigEndian.PutUint16(buf[2:4], h.Shelf)
	buf[4] = h.Slot
	buf[5] = h.Command
	binary.BigEndian.PutUint32(buf[6:10], h.Tag)
}

// Decode parses a complete AoE frame (header + command tail + payload) out
// of buf, which must already have had the 14-byte Ethernet header (and any
// VLAN tag) stripped, with dst/src carried separately.
func Decode(dst, src net.HardwareAddr, buf []byte) (*Frame, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	f := &Frame{Dst: dst, Src: src, Header: h}
	tail := buf[HeaderLen:]

	switch h.Command {
	case CmdATA:
		if err := decodeATA(f, tail); err != nil {
			return nil, err
		}
	case CmdConfig:
		if err := decodeConfig(f, tail); err != nil {
			return nil, err
		}
	case CmdMACMask:
		if err := decodeMACMask(f, tail); err != nil {
			return nil, err
		}
	case CmdReserve:
		if err := decodeReserve(f, tail); err != nil {
			return nil, err
		}
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown command %d", h.Command)}
	}
	return f, nil
}

func decodeATA(f *Frame, tail []byte) error {
	if len(tail) < ATATailLen {
		return shortBuf(ATATailLen, len(tail))
	}
	t := &f.ATA
	t.AFlags = tail[0]
	t.ErrFeature = tail[1]
	t.SectorCount = tail[2]
	t.CmdStat = tail[3]
	copy(t.LBA[:], tail[4:10])
	t.Reserved = binary.LittleEndian.Uint16(tail[10:12])
	if t.IsWrite() {
		f.Payload = append([]byte(nil), tail[ATATailLen:]...)
	}
	return nil
}

func decodeConfig(f *Frame, tail []byte) error {
	if len(tail) < ConfigTailLen {
		return shortBuf(ConfigTailLen, len(tail))
	}
	t := &f.Config
	t.BufferCount = binary.BigEndian.Uint16(tail[0:2])
	t.FirmwareVersion = binary.BigEndian.Uint16(tail[2:4])
	t.SectorCount = tail[4]
	t.CCmd = tail[5]
	t.StringLength = binary.BigEndian.Uint16(tail[6:8])
	rest := tail[ConfigTailLen:]
	if int(t.StringLength) > len(rest) {
		return shortBuf(int(t.StringLength), len(rest))
	}
	if int(t.StringLength) > ConfigStringMax {
		return &DecodeError{Reason: "config string exceeds maximum length"}
	}
	f.ConfigString = append([]byte(nil), rest[:t.StringLength]...)
	return nil
}

func decodeMACMask(f *Frame, tail []byte) error {
	if len(tail) < MACMaskTailLen {
		return shortBuf(MACMaskTailLen, len(tail))
	}
	t := &f.MACMask
	t.Reserved = binary.BigEndian.Uint16(tail[0:2])
	t.EditCmd = tail[2]
	t.NEntries = tail[3]
	macs, err := decodeMACList(tail[MACMaskTailLen:], int(t.NEntries))
	if err != nil {
		return err
	}
	f.MACs = macs
	return nil
}

func decodeReserve(f *Frame, tail []byte) error {
	if len(tail) < ReserveTailLen {
		return shortBuf(ReserveTailLen, len(tail))
	}
	t := &f.Reserve
	t.Reserved = binary.BigEndian.Uint16(tail[0:2])
	t.NMACs = tail[2]
	macs, err := decodeMACList(tail[ReserveTailLen:], int(t.NMACs))
	if err != nil {
		return err
	}
	f.MACs = macs
	return nil
}

// decodeMACList reads n 8-byte-padded 6-byte MAC addresses.
func decodeMACList(buf []byte, n int) ([]net.HardwareAddr, error) {
	need := n * 8
	if len(buf) < need {
		return nil, shortBuf(need, len(buf))
	}
	out := make([]net.HardwareAddr, n)
	for i := 0; i < n; i++ {
		entry := buf[i*8 : i*8+6]
		mac := make(net.HardwareAddr, 6)
		copy(mac, entry)
		out[i] = mac
	}
	return out, nil
}

// encodeMACList writes macs as 8-byte-padded 6-byte entries.
func encodeMACList(macs []net.HardwareAddr) []byte {
	out := make([]byte, len(macs)*8)
	for i, m := range macs {
		copy(out[i*8:i*8+6], m)
	}
	return out
}

// Encode serializes f back into a wire-format tail following the header;
// it returns the header bytes followed by the command tail and payload.
func Encode(f *Frame) []byte {
	header := make([]byte, HeaderLen)
	EncodeHeader(header, f.Header)

	switch f.Header.Command {
	case CmdATA:
		return append(header, encodeATA(f)...)
	case CmdConfig:
		return append(header, encodeConfig(f)...)
	case CmdMACMask:
		return append(header, encodeMACMask(f)...)
	case CmdReserve:
		return append(header, encodeReserve(f)...)
	default:
		return header
	}
}

func encodeATA(f *Frame) []byte {
	out := make([]byte, ATATailLen, ATATailLen+len(f.Payload))
	t := f.ATA
	out[0] = t.AFlags
	out[1] = t.ErrFeature
	out[2] = t.SectorCount
	out[3] = t.CmdStat
	copy(out[4:10], t.LBA[:])
	binary.LittleEndian.PutUint16(out[10:12], t.Reserved)
	out = append(out, f.Payload...)
	return out
}

func encodeConfig(f *Frame) []byte {
	t := f.Config
	t.StringLength = uint16(len(f.ConfigString))
	out := make([]byte, ConfigTailLen, ConfigTailLen+len(f.ConfigString))
	binary.BigEndian.PutUint16(out[0:2], t.BufferCount)
	binary.BigEndian.PutUint16(out[2:4], t.FirmwareVersion)
	out[4] = t.SectorCount
	out[5] = t.CCmd
	binary.BigEndian.PutUint16(out[6:8], t.StringLength)
	out = append(out, f.ConfigString...)
	return out
}

func encodeMACMask(f *Frame) []byte {
	t := f.MACMask
	t.NEntries = uint8(len(f.MACs))
	out := make([]byte, MACMaskTailLen)
	binary.BigEndian.PutUint16(out[0:2], t.Reserved)
	out[2] = t.EditCmd
	out[3] = t.NEntries
	return append(out, encodeMACList(f.MACs)...)
}

func encodeReserve(f *Frame) []byte {
	t := f.Reserve
	t.NMACs = uint8(len(f.MACs))
	out := make([]byte, ReserveTailLen)
	binary.BigEndian.PutUint16(out[0:2], t.Reserved)
	out[2] = t.NMACs
	return append(out, encodeMACList(f.MACs)...)
}
