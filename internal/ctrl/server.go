package ctrl

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/bysshe/cirrostratus/internal/constants"
	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// Handler is implemented by the lifecycle manager to answer control-plane
// requests. Names passed to the Clear*/Config/MACMask/Reserve methods are
// device names filtered from the request args; an empty slice means "all
// devices".
type Handler interface {
	Uptime() time.Duration
	DeviceStats() []StatBlock
	InterfaceStats() []StatBlock
	DeviceConfig(names []string) map[string]string
	DeviceMACMask(names []string) map[string][]net.HardwareAddr
	DeviceReserve(names []string) map[string][]net.HardwareAddr
	ClearStats(names []string)
	ClearConfig(names []string) error
	ClearMACMask(names []string) error
	ClearReserve(names []string) error
	Reload() error
}

// Server is the control-plane UNIX datagram listener (§6). It is driven
// from the event loop via FD()/HandleOnce rather than owning its own
// goroutine, consistent with the single-threaded event-loop model.
type Server struct {
	conn      *net.UnixConn
	file      *os.File // dup of conn's fd, kept open for the Server's lifetime so FD() stays valid
	path      string
	handler   Handler
	logger    interfaces.Logger
	greeted   map[string]bool
}

// NewServer binds a UNIX datagram socket at path, removing any stale socket
// left by a prior crashed instance.
func NewServer(path string, handler Handler, logger interfaces.Logger) (*Server, error) {
	_ = os.Remove(path)
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return nil, fmt.Errorf("ctrl: resolve %s: %w", path, err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("ctrl: listen %s: %w", path, err)
	}
	// (*net.UnixConn).File returns a dup of the socket's fd; it must be kept
	// open for as long as the fd is registered with the event loop, not
	// closed right after reading Fd().
	file, err := conn.File()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ctrl: dup %s: %w", path, err)
	}
	return &Server{conn: conn, file: file, path: path, handler: handler, logger: logger, greeted: make(map[string]bool)}, nil
}

// FD returns the listening socket's descriptor for event-loop registration.
func (s *Server) FD() (int32, error) {
	return int32(s.file.Fd()), nil
}

// Close releases the socket and unlinks the path.
func (s *Server) Close() error {
	_ = s.file.Close()
	err := s.conn.Close()
	_ = os.Remove(s.path)
	return err
}

// HandleOnce reads and answers one pending request; called by the event
// loop when the control socket is readable.
func (s *Server) HandleOnce() error {
	buf := make([]byte, constants.MaxControlPacket)
	n, clientAddr, err := s.conn.ReadFromUnix(buf)
	if err != nil {
		return err
	}
	req, err := DecodeRequest(buf[:n])
	if err != nil {
		s.logger.Warnf("ctrl: malformed request from %s: %v", clientAddr, err)
		s.reply(clientAddr, Reply{Type: ReplyError, Payload: EncodeError("malformed request")})
		return nil
	}

	client := clientAddr.String()
	if req.Cmd == CmdHello {
		s.greeted[client] = true
		s.reply(clientAddr, Reply{Type: ReplyHello, Payload: EncodeHello(ProtocolVersion)})
		return nil
	}
	if !s.greeted[client] {
		s.reply(clientAddr, Reply{Type: ReplyError, Payload: EncodeError("HELLO required")})
		return nil
	}

	s.dispatch(clientAddr, req)
	return nil
}

func (s *Server) dispatch(clientAddr *net.UnixAddr, req Request) {
	switch req.Cmd {
	case CmdGetStats:
		s.reply(clientAddr, Reply{Type: ReplyStats, Payload: EncodeStats(StatsReply{
			UptimeSeconds: uint64(s.handler.Uptime().Seconds()),
			Devices:       s.handler.DeviceStats(),
			Interfaces:    s.handler.InterfaceStats(),
		})})
	case CmdGetConfig:
		s.reply(clientAddr, Reply{Type: ReplyConfig, Payload: EncodeConfig(ConfigReply{Devices: s.handler.DeviceConfig(req.Args)})})
	case CmdGetMACMask:
		s.reply(clientAddr, Reply{Type: ReplyMACList, Payload: EncodeMACList(MACListReply{Devices: s.handler.DeviceMACMask(req.Args)})})
	case CmdGetReserve:
		s.reply(clientAddr, Reply{Type: ReplyMACList, Payload: EncodeMACList(MACListReply{Devices: s.handler.DeviceReserve(req.Args)})})
	case CmdClearStats:
		s.handler.ClearStats(req.Args)
		s.reply(clientAddr, Reply{Type: ReplyOK})
	case CmdClearConfig:
		s.replyErr(clientAddr, s.handler.ClearConfig(req.Args))
	case CmdClearMACMask:
		s.replyErr(clientAddr, s.handler.ClearMACMask(req.Args))
	case CmdClearReserve:
		s.replyErr(clientAddr, s.handler.ClearReserve(req.Args))
	case CmdReload:
		s.replyErr(clientAddr, s.handler.Reload())
	default:
		s.reply(clientAddr, Reply{Type: ReplyError, Payload: EncodeError(fmt.Sprintf("unknown command %v", req.Cmd))})
	}
}

func (s *Server) replyErr(clientAddr *net.UnixAddr, err error) {
	if err != nil {
		s.reply(clientAddr, Reply{Type: ReplyError, Payload: EncodeError(err.Error())})
		return
	}
	s.reply(clientAddr, Reply{Type: ReplyOK})
}

func (s *Server) reply(clientAddr *net.UnixAddr, r Reply) {
	if _, err := s.conn.WriteToUnix(EncodeReply(r), clientAddr); err != nil {
		s.logger.Warnf("ctrl: reply to %s: %v", clientAddr, err)
	}
}
