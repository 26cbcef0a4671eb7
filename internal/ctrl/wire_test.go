package ctrl

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{Cmd: CmdGetConfig, Args: []string{"shelf1.0", "shelf1.1"}}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestRequestNoArgsRoundTrip(t *testing.T) {
	req := Request{Cmd: CmdReload}
	decoded, err := DecodeRequest(EncodeRequest(req))
	require.NoError(t, err)
	require.Equal(t, CmdReload, decoded.Cmd)
	require.Empty(t, decoded.Args)
}

func TestHelloRoundTrip(t *testing.T) {
	version, err := DecodeHello(EncodeHello(ProtocolVersion))
	require.NoError(t, err)
	require.EqualValues(t, ProtocolVersion, version)
}

func TestStatsRoundTrip(t *testing.T) {
	r := StatsReply{
		UptimeSeconds: 12345,
		Devices: []StatBlock{
			{Name: "shelf1.0", Counters: map[string]uint64{"proto_err": 1, "ata_err": 2}},
		},
		Interfaces: []StatBlock{
			{Name: "eth0", Counters: map[string]uint64{"rx_runs": 9}},
		},
	}
	decoded, err := DecodeStats(EncodeStats(r))
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestConfigRoundTrip(t *testing.T) {
	r := ConfigReply{Devices: map[string]string{"shelf1.0": "some-config-string"}}
	decoded, err := DecodeConfig(EncodeConfig(r))
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestMACListRoundTrip(t *testing.T) {
	mac, err := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	r := MACListReply{Devices: map[string][]net.HardwareAddr{"shelf1.0": {mac}}}
	decoded, err := DecodeMACList(EncodeMACList(r))
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestReplyRoundTrip(t *testing.T) {
	r := Reply{Type: ReplyError, Payload: EncodeError("bad argument")}
	decoded, err := DecodeReply(EncodeReply(r))
	require.NoError(t, err)
	require.Equal(t, r.Type, decoded.Type)
	msg, err := DecodeError(decoded.Payload)
	require.NoError(t, err)
	require.Equal(t, "bad argument", msg)
}
