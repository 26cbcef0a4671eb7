// Package ctrl implements the control-plane wire schema and UNIX datagram
// server/client (§6): a command word followed by length-prefixed argument
// and reply payloads, with a mandatory HELLO handshake before any other
// request is honored.
package ctrl

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ProtocolVersion is echoed in the HELLO reply; clients must match it.
const ProtocolVersion = 1

// Command identifies a control-plane request.
type Command uint32

const (
	CmdHello Command = iota + 1
	CmdGetStats
	CmdGetConfig
	CmdGetMACMask
	CmdGetReserve
	CmdClearStats
	CmdClearConfig
	CmdClearMACMask
	CmdClearReserve
	CmdReload
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "HELLO"
	case CmdGetStats:
		return "GET_STATS"
	case CmdGetConfig:
		return "GET_CONFIG"
	case CmdGetMACMask:
		return "GET_MACMASK"
	case CmdGetReserve:
		return "GET_RESERVE"
	case CmdClearStats:
		return "CLEAR_STATS"
	case CmdClearConfig:
		return "CLEAR_CONFIG"
	case CmdClearMACMask:
		return "CLEAR_MACMASK"
	case CmdClearReserve:
		return "CLEAR_RESERVE"
	case CmdReload:
		return "RELOAD"
	default:
		return fmt.Sprintf("Command(%d)", uint32(c))
	}
}

// ReplyType identifies the shape of a reply payload.
type ReplyType uint32

const (
	ReplyHello ReplyType = iota + 1
	ReplyUptime
	ReplyStats
	ReplyConfig
	ReplyMACList
	ReplyOK
	ReplyError
)

// Request is a decoded client request: a command plus an optional list of
// target names (device or interface names); an empty list means "all".
type Request struct {
	Cmd  Command
	Args []string
}

// Reply is a decoded server reply: a type tag plus its type-specific
// payload, encoded by the Encode* helpers below.
type Reply struct {
	Type    ReplyType
	Payload []byte
}

// EncodeRequest serializes a request as a 32-bit command word followed by a
// 32-bit argument count and each argument as a length-prefixed string.
func EncodeRequest(r Request) []byte {
	var cmdBuf [4]byte
	binary.LittleEndian.PutUint32(cmdBuf[:], uint32(r.Cmd))
	buf := append([]byte(nil), cmdBuf[:]...)

	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(r.Args)))
	buf = append(buf, n[:]...)
	for _, a := range r.Args {
		buf = putString(buf, a)
	}
	return buf
}

// DecodeRequest parses a wire request produced by EncodeRequest.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < 8 {
		return Request{}, fmt.Errorf("ctrl: request too short (%d bytes)", len(buf))
	}
	req := Request{Cmd: Command(binary.LittleEndian.Uint32(buf))}
	buf = buf[4:]
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]

	req.Args = make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		var a string
		var err error
		a, buf, err = getString(buf)
		if err != nil {
			return Request{}, fmt.Errorf("ctrl: request arg %d: %w", i, err)
		}
		req.Args = append(req.Args, a)
	}
	return req, nil
}

// EncodeReply serializes a reply as a 32-bit type word followed by its
// payload.
func EncodeReply(r Reply) []byte {
	buf := make([]byte, 4+len(r.Payload))
	binary.LittleEndian.PutUint32(buf, uint32(r.Type))
	copy(buf[4:], r.Payload)
	return buf
}

// DecodeReply parses a wire reply produced by EncodeReply.
func DecodeReply(buf []byte) (Reply, error) {
	if len(buf) < 4 {
		return Reply{}, fmt.Errorf("ctrl: reply too short (%d bytes)", len(buf))
	}
	return Reply{Type: ReplyType(binary.LittleEndian.Uint32(buf)), Payload: append([]byte(nil), buf[4:]...)}, nil
}

func putString(buf []byte, s string) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, fmt.Errorf("ctrl: truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("ctrl: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

func putUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func getUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, fmt.Errorf("ctrl: truncated uint64")
	}
	return binary.LittleEndian.Uint64(buf), buf[8:], nil
}

// StatBlock is a named set of counters: the wire shape for one device's or
// one interface's portion of a GET_STATS reply.
type StatBlock struct {
	Name     string
	Counters map[string]uint64
}

func encodeStatBlock(buf []byte, b StatBlock) []byte {
	buf = putString(buf, b.Name)
	var cntBuf [4]byte
	binary.LittleEndian.PutUint32(cntBuf[:], uint32(len(b.Counters)))
	buf = append(buf, cntBuf[:]...)
	for k, v := range b.Counters {
		buf = putString(buf, k)
		buf = putUint64(buf, v)
	}
	return buf
}

func decodeStatBlock(buf []byte) (StatBlock, []byte, error) {
	name, buf, err := getString(buf)
	if err != nil {
		return StatBlock{}, nil, err
	}
	if len(buf) < 4 {
		return StatBlock{}, nil, fmt.Errorf("ctrl: truncated counter count")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	counters := make(map[string]uint64, n)
	for i := uint32(0); i < n; i++ {
		var k string
		var err error
		k, buf, err = getString(buf)
		if err != nil {
			return StatBlock{}, nil, err
		}
		var v uint64
		v, buf, err = getUint64(buf)
		if err != nil {
			return StatBlock{}, nil, err
		}
		counters[k] = v
	}
	return StatBlock{Name: name, Counters: counters}, buf, nil
}

// EncodeHello builds a HELLO reply payload.
func EncodeHello(version uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, version)
	return buf
}

// DecodeHello parses a HELLO reply payload.
func DecodeHello(buf []byte) (uint32, error) {
	if len(buf) < 4 {
		return 0, fmt.Errorf("ctrl: truncated HELLO payload")
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// StatsReply is the decoded GET_STATS reply: process uptime plus one
// StatBlock per device and per interface.
type StatsReply struct {
	UptimeSeconds uint64
	Devices       []StatBlock
	Interfaces    []StatBlock
}

// EncodeStats builds a GET_STATS reply payload.
func EncodeStats(r StatsReply) []byte {
	buf := putUint64(nil, r.UptimeSeconds)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(r.Devices)))
	buf = append(buf, n[:]...)
	for _, d := range r.Devices {
		buf = encodeStatBlock(buf, d)
	}
	binary.LittleEndian.PutUint32(n[:], uint32(len(r.Interfaces)))
	buf = append(buf, n[:]...)
	for _, i := range r.Interfaces {
		buf = encodeStatBlock(buf, i)
	}
	return buf
}

// DecodeStats parses a GET_STATS reply payload.
func DecodeStats(buf []byte) (StatsReply, error) {
	var r StatsReply
	var err error
	r.UptimeSeconds, buf, err = getUint64(buf)
	if err != nil {
		return r, err
	}
	r.Devices, buf, err = decodeStatBlockList(buf)
	if err != nil {
		return r, err
	}
	r.Interfaces, _, err = decodeStatBlockList(buf)
	return r, err
}

func decodeStatBlockList(buf []byte) ([]StatBlock, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("ctrl: truncated stat block count")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	blocks := make([]StatBlock, 0, n)
	for i := uint32(0); i < n; i++ {
		var b StatBlock
		var err error
		b, buf, err = decodeStatBlock(buf)
		if err != nil {
			return nil, nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, buf, nil
}

// ConfigReply is the decoded GET_CONFIG reply: one config string per
// requested device.
type ConfigReply struct {
	Devices map[string]string
}

// EncodeConfig builds a GET_CONFIG reply payload.
func EncodeConfig(r ConfigReply) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(r.Devices)))
	buf := append([]byte(nil), n[:]...)
	for name, cfg := range r.Devices {
		buf = putString(buf, name)
		buf = putString(buf, cfg)
	}
	return buf
}

// DecodeConfig parses a GET_CONFIG reply payload.
func DecodeConfig(buf []byte) (ConfigReply, error) {
	if len(buf) < 4 {
		return ConfigReply{}, fmt.Errorf("ctrl: truncated config reply")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	r := ConfigReply{Devices: make(map[string]string, n)}
	for i := uint32(0); i < n; i++ {
		var name, cfg string
		var err error
		name, buf, err = getString(buf)
		if err != nil {
			return r, err
		}
		cfg, buf, err = getString(buf)
		if err != nil {
			return r, err
		}
		r.Devices[name] = cfg
	}
	return r, nil
}

// MACListReply is the decoded GET_MACMASK/GET_RESERVE reply: one MAC list
// per requested device.
type MACListReply struct {
	Devices map[string][]net.HardwareAddr
}

// EncodeMACList builds a GET_MACMASK/GET_RESERVE reply payload.
func EncodeMACList(r MACListReply) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(r.Devices)))
	buf := append([]byte(nil), n[:]...)
	for name, macs := range r.Devices {
		buf = putString(buf, name)
		var m [4]byte
		binary.LittleEndian.PutUint32(m[:], uint32(len(macs)))
		buf = append(buf, m[:]...)
		for _, mac := range macs {
			buf = putString(buf, mac.String())
		}
	}
	return buf
}

// DecodeMACList parses a GET_MACMASK/GET_RESERVE reply payload.
func DecodeMACList(buf []byte) (MACListReply, error) {
	if len(buf) < 4 {
		return MACListReply{}, fmt.Errorf("ctrl: truncated mac list reply")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	r := MACListReply{Devices: make(map[string][]net.HardwareAddr, n)}
	for i := uint32(0); i < n; i++ {
		var name string
		var err error
		name, buf, err = getString(buf)
		if err != nil {
			return r, err
		}
		if len(buf) < 4 {
			return r, fmt.Errorf("ctrl: truncated mac count")
		}
		cnt := binary.LittleEndian.Uint32(buf)
		buf = buf[4:]
		macs := make([]net.HardwareAddr, 0, cnt)
		for j := uint32(0); j < cnt; j++ {
			var s string
			s, buf, err = getString(buf)
			if err != nil {
				return r, err
			}
			mac, err := net.ParseMAC(s)
			if err != nil {
				return r, err
			}
			macs = append(macs, mac)
		}
		r.Devices[name] = macs
	}
	return r, nil
}

// EncodeError builds an ERROR reply payload carrying a human-readable
// message.
func EncodeError(msg string) []byte {
	return putString(nil, msg)
}

// DecodeError parses an ERROR reply payload.
func DecodeError(buf []byte) (string, error) {
	s, _, err := getString(buf)
	return s, err
}
