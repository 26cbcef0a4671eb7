package ctrl

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLogger struct{}

func (fakeLogger) Printf(string, ...interface{}) {}
func (fakeLogger) Debugf(string, ...interface{}) {}
func (fakeLogger) Warnf(string, ...interface{})  {}

type fakeHandler struct {
	reloadErr error
	reloaded  bool
}

func (h *fakeHandler) Uptime() time.Duration { return 42 * time.Second }
func (h *fakeHandler) DeviceStats() []StatBlock {
	return []StatBlock{{Name: "shelf1.0", Counters: map[string]uint64{"proto_err": 0}}}
}
func (h *fakeHandler) InterfaceStats() []StatBlock {
	return []StatBlock{{Name: "eth0", Counters: map[string]uint64{"rx_runs": 5}}}
}
func (h *fakeHandler) DeviceConfig(names []string) map[string]string {
	return map[string]string{"shelf1.0": "cfg"}
}
func (h *fakeHandler) DeviceMACMask(names []string) map[string][]net.HardwareAddr {
	return map[string][]net.HardwareAddr{}
}
func (h *fakeHandler) DeviceReserve(names []string) map[string][]net.HardwareAddr {
	return map[string][]net.HardwareAddr{}
}
func (h *fakeHandler) ClearStats(names []string)      {}
func (h *fakeHandler) ClearConfig(names []string) error  { return nil }
func (h *fakeHandler) ClearMACMask(names []string) error { return nil }
func (h *fakeHandler) ClearReserve(names []string) error { return nil }
func (h *fakeHandler) Reload() error {
	h.reloaded = true
	return h.reloadErr
}

func TestServerRequiresHelloBeforeOtherCommands(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ctrl.sock")
	handler := &fakeHandler{}
	srv, err := NewServer(sockPath, handler, fakeLogger{})
	require.NoError(t, err)
	defer srv.Close()

	laddr, err := net.ResolveUnixAddr("unixgram", filepath.Join(dir, "client.sock"))
	require.NoError(t, err)
	raddr, err := net.ResolveUnixAddr("unixgram", sockPath)
	require.NoError(t, err)
	conn, err := net.DialUnix("unixgram", laddr, raddr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(EncodeRequest(Request{Cmd: CmdGetStats}))
	require.NoError(t, err)
	require.NoError(t, srv.HandleOnce())

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	reply, err := DecodeReply(buf[:n])
	require.NoError(t, err)
	require.Equal(t, ReplyError, reply.Type)
}

func TestServerHelloThenStats(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ctrl.sock")
	handler := &fakeHandler{}
	srv, err := NewServer(sockPath, handler, fakeLogger{})
	require.NoError(t, err)

	// The event loop normally drives HandleOnce off readiness; here a
	// background goroutine plays that role until the server is closed.
	go func() {
		for {
			if err := srv.HandleOnce(); err != nil {
				return
			}
		}
	}()
	defer srv.Close()

	client, err := Dial(sockPath)
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 42, reply.UptimeSeconds)
	require.Len(t, reply.Devices, 1)
	require.Equal(t, "shelf1.0", reply.Devices[0].Name)

	require.NoError(t, client.Reload())
	require.True(t, handler.reloaded)
}
