package ctrl

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/bysshe/cirrostratus/internal/constants"
)

// Client is a control-plane datagram client: it binds a local path derived
// from its PID, connects to the server's socket, and performs the mandatory
// HELLO handshake before any other request (§6).
type Client struct {
	conn      *net.UnixConn
	localPath string
}

// Dial connects to the control socket at path and performs the HELLO
// handshake.
func Dial(path string) (*Client, error) {
	localPath := fmt.Sprintf("%s.%d", path, os.Getpid())
	_ = os.Remove(localPath)

	laddr, err := net.ResolveUnixAddr("unixgram", localPath)
	if err != nil {
		return nil, fmt.Errorf("ctrl: resolve local %s: %w", localPath, err)
	}
	raddr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("ctrl: resolve %s: %w", path, err)
	}
	conn, err := net.DialUnix("unixgram", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("ctrl: dial %s: %w", path, err)
	}

	c := &Client{conn: conn, localPath: localPath}
	if err := c.hello(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the client's local socket.
func (c *Client) Close() error {
	err := c.conn.Close()
	_ = os.Remove(c.localPath)
	return err
}

func (c *Client) hello() error {
	reply, err := c.send(Request{Cmd: CmdHello})
	if err != nil {
		return err
	}
	if reply.Type != ReplyHello {
		return fmt.Errorf("ctrl: unexpected HELLO reply type %v", reply.Type)
	}
	version, err := DecodeHello(reply.Payload)
	if err != nil {
		return err
	}
	if version != ProtocolVersion {
		return fmt.Errorf("ctrl: protocol version mismatch: server=%d client=%d", version, ProtocolVersion)
	}
	return nil
}

func (c *Client) send(req Request) (Reply, error) {
	if _, err := c.conn.Write(EncodeRequest(req)); err != nil {
		return Reply{}, err
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, constants.MaxControlPacket)
	n, err := c.conn.Read(buf)
	if err != nil {
		return Reply{}, err
	}
	reply, err := DecodeReply(buf[:n])
	if err != nil {
		return Reply{}, err
	}
	if reply.Type == ReplyError {
		msg, _ := DecodeError(reply.Payload)
		return reply, fmt.Errorf("ctrl: server error: %s", msg)
	}
	return reply, nil
}

// Stats issues GET_STATS.
func (c *Client) Stats() (StatsReply, error) {
	reply, err := c.send(Request{Cmd: CmdGetStats})
	if err != nil {
		return StatsReply{}, err
	}
	return DecodeStats(reply.Payload)
}

// ShowConfig issues GET_CONFIG for the given device names (empty = all).
func (c *Client) ShowConfig(names []string) (ConfigReply, error) {
	reply, err := c.send(Request{Cmd: CmdGetConfig, Args: names})
	if err != nil {
		return ConfigReply{}, err
	}
	return DecodeConfig(reply.Payload)
}

// ShowMACMask issues GET_MACMASK for the given device names.
func (c *Client) ShowMACMask(names []string) (MACListReply, error) {
	reply, err := c.send(Request{Cmd: CmdGetMACMask, Args: names})
	if err != nil {
		return MACListReply{}, err
	}
	return DecodeMACList(reply.Payload)
}

// ShowReserve issues GET_RESERVE for the given device names.
func (c *Client) ShowReserve(names []string) (MACListReply, error) {
	reply, err := c.send(Request{Cmd: CmdGetReserve, Args: names})
	if err != nil {
		return MACListReply{}, err
	}
	return DecodeMACList(reply.Payload)
}

// ClearStats issues CLEAR_STATS.
func (c *Client) ClearStats(names []string) error {
	_, err := c.send(Request{Cmd: CmdClearStats, Args: names})
	return err
}

// ClearConfig issues CLEAR_CONFIG.
func (c *Client) ClearConfig(names []string) error {
	_, err := c.send(Request{Cmd: CmdClearConfig, Args: names})
	return err
}

// ClearMACMask issues CLEAR_MACMASK.
func (c *Client) ClearMACMask(names []string) error {
	_, err := c.send(Request{Cmd: CmdClearMACMask, Args: names})
	return err
}

// ClearReserve issues CLEAR_RESERVE.
func (c *Client) ClearReserve(names []string) error {
	_, err := c.send(Request{Cmd: CmdClearReserve, Args: names})
	return err
}

// Reload issues RELOAD.
func (c *Client) Reload() error {
	_, err := c.send(Request{Cmd: CmdReload})
	return err
}
