package aoeproto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMAC(s string) net.HardwareAddr {
	m, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return m
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	for n := 0; n < HeaderLen; n++ {
		_, err := DecodeHeader(make([]byte, n))
		require.Error(t, err, "buffer length %d should fail", n)
	}
}

func TestATARoundTrip(t *testing.T) {
	f := &Frame{
		Dst:    mustMAC("ff:ff:ff:ff:ff:ff"),
		Src:    mustMAC("aa:bb:cc:dd:ee:ff"),
		Header: Header{VerFlags: Version, Shelf: 1, Slot: 0, Command: CmdATA, Tag: 42},
		ATA: ATATail{
			AFlags:      ATAFlagExtended | ATAFlagWrite,
			SectorCount: 8,
			CmdStat:     ATACmdWrite48,
		},
		Payload: make([]byte, 8*SectorSize),
	}
	f.ATA.SetLBA(100)

	wire := Encode(f)
	got, err := Decode(f.Dst, f.Src, wire)
	require.NoError(t, err)
	require.Equal(t, f.Header, got.Header)
	require.Equal(t, f.ATA.LBAValue(), got.ATA.LBAValue())
	require.True(t, got.ATA.Is48Bit())
	require.True(t, got.ATA.IsWrite())
	require.Equal(t, f.Payload, got.Payload)
}

func TestATATailTooShort(t *testing.T) {
	header := make([]byte, HeaderLen)
	EncodeHeader(header, Header{Command: CmdATA})
	short := append(header, make([]byte, ATATailLen-1)...)
	_, err := Decode(nil, nil, short)
	require.Error(t, err)
}

func TestConfigRoundTrip(t *testing.T) {
	f := &Frame{
		Header:       Header{Command: CmdConfig, Tag: 7},
		Config:       ConfigTail{BufferCount: 16, FirmwareVersion: 1, SectorCount: 1, CCmd: ConfigSet},
		ConfigString: []byte("example-config-string"),
	}
	got, err := Decode(nil, nil, Encode(f))
	require.NoError(t, err)
	require.Equal(t, f.ConfigString, got.ConfigString)
	require.Equal(t, ConfigSet, got.Config.SubCommand())
}

func TestConfigStringOverMaxRejected(t *testing.T) {
	header := make([]byte, HeaderLen)
	EncodeHeader(header, Header{Command: CmdConfig})
	tail := make([]byte, ConfigTailLen)
	tail[6], tail[7] = 0xff, 0xff // StringLength = 65535, far beyond max
	frame := append(header, tail...)
	frame = append(frame, make([]byte, ConfigStringMax)...)
	_, err := Decode(nil, nil, frame)
	require.Error(t, err)
}

func TestMACMaskRoundTrip(t *testing.T) {
	macs := []net.HardwareAddr{mustMAC("aa:bb:cc:dd:ee:ff"), mustMAC("11:22:33:44:55:66")}
	f := &Frame{
		Header:  Header{Command: CmdMACMask},
		MACMask: MACMaskTail{EditCmd: MACMaskAdd},
		MACs:    macs,
	}
	got, err := Decode(nil, nil, Encode(f))
	require.NoError(t, err)
	require.Len(t, got.MACs, 2)
	require.Equal(t, macs[0], got.MACs[0])
	require.Equal(t, macs[1], got.MACs[1])
}

func TestReserveRoundTrip(t *testing.T) {
	macs := []net.HardwareAddr{mustMAC("aa:bb:cc:dd:ee:ff")}
	f := &Frame{
		Header:  Header{Command: CmdReserve},
		Reserve: ReserveTail{},
		MACs:    macs,
	}
	got, err := Decode(nil, nil, Encode(f))
	require.NoError(t, err)
	require.Equal(t, macs, got.MACs)
}

func TestDecodeUnknownCommand(t *testing.T) {
	header := make([]byte, HeaderLen)
	EncodeHeader(header, Header{Command: 0xfe})
	_, err := Decode(nil, nil, header)
	require.Error(t, err)
}
