// Package cirrostratus implements a user-space target server for the
// ATA-over-Ethernet block storage protocol: it exports locally accessible
// block devices to an Ethernet segment and answers AoE requests from
// initiators identified by hardware address.
package cirrostratus

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bysshe/cirrostratus/backend"
	"github.com/bysshe/cirrostratus/internal/config"
	"github.com/bysshe/cirrostratus/internal/constants"
	"github.com/bysshe/cirrostratus/internal/ctrl"
	"github.com/bysshe/cirrostratus/internal/device"
	"github.com/bysshe/cirrostratus/internal/iface"
	"github.com/bysshe/cirrostratus/internal/interfaces"
	"github.com/bysshe/cirrostratus/internal/lifecycle"
	"github.com/bysshe/cirrostratus/internal/netmon"
	"github.com/bysshe/cirrostratus/internal/placement"
	"github.com/bysshe/cirrostratus/internal/state"
	"github.com/bysshe/cirrostratus/internal/uring"
)

// deviceEntry bundles a running device engine with the configuration and
// metrics it was built from, so Reload can compare against the new
// configuration and the control plane can report per-device stats.
type deviceEntry struct {
	cfg     config.Device
	dev     *device.Device
	bk      interfaces.Backend
	ring    uring.Ring
	metrics *DeviceMetrics
}

// Server owns every exported device, every bound interface, the control
// plane, the netlink monitor, and the persisted-state directory, and drives
// them all from a single event loop (§4.7).
type Server struct {
	mu sync.Mutex

	configPath string
	cfg        *config.Config
	startTime  time.Time

	logger interfaces.Logger

	devices map[string]*deviceEntry
	ifaces  map[string]*iface.Interface

	ifaceMetrics map[string]*InterfaceMetrics

	placementMap *placement.Map

	ctrlSrv *ctrl.Server
	netmonM *netmon.Monitor
	pidFile *lifecycle.PIDFile

	ctrlFD int32
	epfd   int

	reloadCh chan struct{}
}

// NewServer loads configPath and brings up every subsystem it describes:
// the placement map, every matching interface, every exported device, and
// the control plane. It does not start the event loop; call Run for that.
func NewServer(configPath string, logger interfaces.Logger) (*Server, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		configPath:   configPath,
		cfg:          cfg,
		startTime:    time.Now(),
		logger:       logger,
		devices:      make(map[string]*deviceEntry),
		ifaces:       make(map[string]*iface.Interface),
		ifaceMetrics: make(map[string]*InterfaceMetrics),
		reloadCh:     make(chan struct{}, 1),
	}

	if cfg.Defaults.PlacementMapPath != "" {
		pmap, err := loadPlacementMap(cfg.Defaults.PlacementMapPath)
		if err != nil {
			return nil, fmt.Errorf("cirrostratus: %w", err)
		}
		s.placementMap = pmap
	} else {
		s.placementMap = placement.Fallback(backend.LocalTargetID)
	}

	pidFile, err := lifecycle.WritePIDFile(cfg.Defaults.PIDFile)
	if err != nil {
		return nil, fmt.Errorf("cirrostratus: %w", err)
	}
	s.pidFile = pidFile

	if err := s.setupInterfaces(cfg); err != nil {
		s.Shutdown()
		return nil, err
	}
	if err := s.setupDevices(cfg); err != nil {
		s.Shutdown()
		return nil, err
	}

	netmonM, err := netmon.New(logger)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("cirrostratus: %w", err)
	}
	s.netmonM = netmonM

	ctrlSrv, err := ctrl.NewServer(cfg.Defaults.ControlSocket, s, logger)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("cirrostratus: %w", err)
	}
	s.ctrlSrv = ctrlSrv
	ctrlFD, err := ctrlSrv.FD()
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("cirrostratus: %w", err)
	}
	s.ctrlFD = ctrlFD

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("cirrostratus: epoll_create1: %w", err)
	}
	s.epfd = epfd
	if err := s.epollAdd(s.ctrlFD); err != nil {
		s.Shutdown()
		return nil, err
	}
	for _, ifc := range s.ifaces {
		if err := s.epollAdd(ifc.FD()); err != nil {
			s.Shutdown()
			return nil, err
		}
	}

	return s, nil
}

func loadPlacementMap(path string) (*placement.Map, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("placement map %s: %w", path, err)
	}
	return placement.Decode(buf)
}

// setupInterfaces opens a raw socket for every system interface matching
// the configured patterns, applying the matching [name] override group if
// one exists.
func (s *Server) setupInterfaces(cfg *config.Config) error {
	links, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("cirrostratus: list interfaces: %w", err)
	}

	overrides := make(map[string]config.Interface, len(cfg.Interfaces))
	for _, o := range cfg.Interfaces {
		overrides[o.Name] = o
	}

	for _, link := range links {
		if !matchesAny(link.Name, cfg.Defaults.InterfacePatterns) {
			continue
		}
		o := overrides[link.Name]
		ifCfg := iface.Config{
			Name:           link.Name,
			MTU:            firstNonZero(o.MTU, cfg.Defaults.MTU),
			RingFrames:     firstNonZero(o.RingBufferSize, cfg.Defaults.RingBufferSize),
			SendBufferSize: firstNonZero(o.SendBufferSize, cfg.Defaults.SendBufferSize),
			RecvBufferSize: firstNonZero(o.RecvBufferSize, cfg.Defaults.RecvBufferSize),
			Logger:         s.logger,
		}
		ifc, err := iface.New(ifCfg)
		if err != nil {
			s.logger.Printf("cirrostratus: skipping interface %s: %v", link.Name, err)
			continue
		}
		s.ifaces[link.Name] = ifc
		s.ifaceMetrics[link.Name] = &InterfaceMetrics{}
	}
	return nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

// setupDevices builds and registers every configured device, restoring any
// persisted CONFIG string, MAC-mask, and reservation from the state
// directory.
func (s *Server) setupDevices(cfg *config.Config) error {
	for _, devCfg := range cfg.Devices {
		entry, err := s.buildDevice(devCfg)
		if err != nil {
			return fmt.Errorf("cirrostratus: device %s: %w", devCfg.Name, err)
		}
		s.devices[devCfg.Name] = entry
		s.registerDevice(devCfg, entry.dev)
	}
	return nil
}

func (s *Server) buildDevice(devCfg config.Device) (*deviceEntry, error) {
	var bk interfaces.Backend
	var ring uring.Ring
	switch devCfg.Type {
	case config.DeviceTypePhysical:
		f, err := backend.OpenFile(devCfg.Path, devCfg.DirectIO, devCfg.ReadOnly)
		if err != nil {
			return nil, err
		}
		bk = f
		entries := uint32(devCfg.QueueLength)
		r, err := uring.NewRing(uring.Config{Entries: entries})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("io_uring: %w", err)
		}
		ring = r
	case config.DeviceTypeVirtual:
		bk = backend.NewVirtual(int64(devCfg.CapacityMiB)<<20, devCfg.Name, s.placementMap)
	default:
		return nil, fmt.Errorf("unknown device type")
	}

	metrics := NewDeviceMetrics()
	cfg := device.Config{
		Shelf:       devCfg.Shelf,
		Slot:        devCfg.Slot,
		Backend:     bk,
		Ring:        ring,
		QueueLength: devCfg.QueueLength,
		MaxDelay:    devCfg.MaxDelay,
		MergeDelay:  devCfg.MergeDelay,
		MaxPayload:  s.maxPayloadFor(devCfg),
		DirectIO:    devCfg.DirectIO,
		ReadOnly:    devCfg.ReadOnly,
		Broadcast:   devCfg.Broadcast,
		Model:       "cirrostratus",
		Serial:      serialFor(devCfg),
		ACLCapacity: constants.ACLMapCapacity,
		Logger:      s.logger,
		Observer:    NewMetricsObserver(metrics),
	}
	dev := device.NewDevice(cfg)

	for _, mac := range devCfg.Accept {
		_ = dev.Accept.Insert(mac)
	}
	for _, mac := range devCfg.Deny {
		_ = dev.Deny.Insert(mac)
	}
	for _, binding := range s.cfg.Defaults.DeviceMACs {
		if binding.Shelf != devCfg.Shelf || binding.Slot != devCfg.Slot {
			continue
		}
		for _, mac := range binding.MACs {
			_ = dev.MACBindings.Insert(mac)
		}
	}

	if s.cfg.Defaults.StateDirectory != "" {
		saved, err := state.Load(s.cfg.Defaults.StateDirectory, devCfg.Name)
		if err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
		if saved.ConfigString != "" {
			dev.SetConfigString([]byte(saved.ConfigString))
		}
		for _, mac := range saved.MACMask {
			_ = dev.Accept.Insert(mac)
		}
		if len(saved.Reservation) > 0 {
			dev.SetReservation(nil, saved.Reservation, true)
		}
	}

	return &deviceEntry{cfg: devCfg, dev: dev, bk: bk, ring: ring, metrics: metrics}, nil
}

func serialFor(devCfg config.Device) string {
	if devCfg.WWN != [6]byte{} {
		return fmt.Sprintf("%x", devCfg.WWN)
	}
	return fmt.Sprintf("%s.%d.%d", devCfg.Name, devCfg.Shelf, devCfg.Slot)
}

// maxPayloadFor derives the merge cap from the smallest MTU among the
// interfaces this device is exported on, falling back to the default MTU
// when no interface has attached yet.
func (s *Server) maxPayloadFor(devCfg config.Device) int {
	best := 0
	for name, ifc := range s.ifaces {
		if !matchesAny(name, devCfg.InterfacePatterns) {
			continue
		}
		if p := ifc.MaxPayload(); best == 0 || p < best {
			best = p
		}
	}
	if best == 0 {
		best = constants.DefaultMTU - 14 - 10 - 12
	}
	return best
}

func (s *Server) registerDevice(devCfg config.Device, dev *device.Device) {
	for name, ifc := range s.ifaces {
		if matchesAny(name, devCfg.InterfacePatterns) {
			ifc.RegisterDevice(dev)
		}
	}
}

func (s *Server) epollAdd(fd int32) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: fd}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("cirrostratus: epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

func (s *Server) epollDel(fd int32) {
	_ = unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

// Run drives the central event loop until ctx is cancelled: it waits for
// readiness on every interface socket and the control socket, then on every
// wake (including the idle timeout) drains the netlink monitor, advances
// every device's queue discipline, and flushes every interface's send
// queue. Errors from individual ticks are logged and never unwind the loop;
// it stops on ctx cancellation, or returns an error when epoll_wait fails
// with anything other than EINTR (§4.7 propagation policy).
func (s *Server) Run(ctx context.Context) error {
	events := make([]unix.EpollEvent, 32)
	timeoutMs := int(constants.EventLoopIdleTimeout / time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.reloadCh:
			if err := s.Reload(); err != nil {
				s.logger.Printf("cirrostratus: reload: %v", err)
			}
		default:
		}

		n, err := unix.EpollWait(s.epfd, events, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("cirrostratus: epoll_wait: %w", err)
		}

		now := time.Now()
		// No lock here: the event loop is the sole goroutine that touches
		// devices/ifaces during normal operation, including dispatch of
		// ctrl.Handler calls made synchronously inside HandleOnce below.
		// s.mu only arbitrates Reload/Shutdown against a caller outside this
		// goroutine (e.g. a signal handler invoking Shutdown directly).
		for i := 0; i < n; i++ {
			fd := events[i].Fd
			if fd == s.ctrlFD {
				if err := s.ctrlSrv.HandleOnce(); err != nil {
					s.logger.Debugf("cirrostratus: ctrl: %v", err)
				}
				continue
			}
			for _, ifc := range s.ifaces {
				if ifc.FD() == fd {
					if err := ifc.OnReadable(now); err != nil {
						s.logger.Printf("cirrostratus: %s: %v", ifc.Name(), err)
					}
					break
				}
			}
		}

		s.drainNetmon()
		s.tickDevices(now)
		for _, ifc := range s.ifaces {
			if err := ifc.FlushTX(); err != nil {
				s.logger.Printf("cirrostratus: %s: flush: %v", ifc.Name(), err)
			}
		}
	}
}

// drainNetmon logs interface presence changes; a device's reachability
// through a downed link is already reflected by that link's socket simply
// going quiet, so no device state changes here.
func (s *Server) drainNetmon() {
	for {
		select {
		case ev := <-s.netmonM.Events():
			s.logger.Printf("cirrostratus: link %s up=%v gone=%v", ev.Name, ev.Up, ev.Gone)
		default:
			return
		}
	}
}

// tickDevices advances every device's queue discipline one step: submit
// newly queued requests, drain any completions, and expire anything that
// has sat past its max_delay, routing every resulting frame back to its
// owning interface.
func (s *Server) tickDevices(now time.Time) {
	for _, ifc := range s.ifaces {
		localMAC := ifc.LocalMAC()
		for name, entry := range s.devices {
			if !matchesAny(ifc.Name(), entry.cfg.InterfacePatterns) {
				continue
			}
			dev := entry.dev

			frames, err := dev.SubmitPending(now, localMAC)
			if err != nil {
				s.logger.Printf("cirrostratus: device %s: submit: %v", name, err)
			}
			for _, f := range frames {
				ifc.QueueReply(f)
			}

			comp, err := dev.PollCompletions(now, localMAC, 0)
			if err != nil {
				s.logger.Printf("cirrostratus: device %s: poll: %v", name, err)
			}
			for _, f := range comp {
				ifc.QueueReply(f)
			}

			for _, f := range dev.ExpireStale(now, localMAC) {
				ifc.QueueReply(f)
			}
		}
	}
}

// RequestReload signals the event loop to reload configuration on its next
// iteration, called from the daemon's SIGHUP handler.
func (s *Server) RequestReload() {
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// Reload re-parses the configuration file and adds/removes devices and
// interfaces without disrupting unchanged entities (§4.8). A parse or
// validation failure leaves the running configuration untouched.
func (s *Server) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCfg, err := config.Load(s.configPath)
	if err != nil {
		return fmt.Errorf("cirrostratus: reload: %w", err)
	}
	diff := newCfg.Diff(s.cfg)

	for _, name := range diff.RemovedInterfaces {
		ifc := s.ifaces[name]
		if ifc == nil {
			continue
		}
		s.epollDel(ifc.FD())
		if err := ifc.Close(); err != nil {
			s.logger.Printf("cirrostratus: close interface %s: %v", name, err)
		}
		delete(s.ifaces, name)
		delete(s.ifaceMetrics, name)
	}

	ifaceByName := make(map[string]config.Interface, len(newCfg.Interfaces))
	for _, o := range newCfg.Interfaces {
		ifaceByName[o.Name] = o
	}
	for _, name := range diff.AddedInterfaces {
		o := ifaceByName[name]
		ifc, err := iface.New(iface.Config{
			Name:           name,
			MTU:            firstNonZero(o.MTU, newCfg.Defaults.MTU),
			RingFrames:     firstNonZero(o.RingBufferSize, newCfg.Defaults.RingBufferSize),
			SendBufferSize: firstNonZero(o.SendBufferSize, newCfg.Defaults.SendBufferSize),
			RecvBufferSize: firstNonZero(o.RecvBufferSize, newCfg.Defaults.RecvBufferSize),
			Logger:         s.logger,
		})
		if err != nil {
			s.logger.Printf("cirrostratus: reload: interface %s: %v", name, err)
			continue
		}
		if err := s.epollAdd(ifc.FD()); err != nil {
			s.logger.Printf("cirrostratus: reload: interface %s: %v", name, err)
			ifc.Close()
			continue
		}
		s.ifaces[name] = ifc
		s.ifaceMetrics[name] = &InterfaceMetrics{}
		for _, entry := range s.devices {
			if matchesAny(name, entry.cfg.InterfacePatterns) {
				ifc.RegisterDevice(entry.dev)
			}
		}
	}

	for _, name := range diff.RemovedDevices {
		entry := s.devices[name]
		if entry == nil {
			continue
		}
		for _, ifc := range s.ifaces {
			ifc.UnregisterDevice(entry.dev.Shelf, entry.dev.Slot)
		}
		s.persistDevice(name, entry)
		s.closeDeviceEntry(name, entry)
		delete(s.devices, name)
	}

	byName := make(map[string]config.Device, len(newCfg.Devices))
	for _, d := range newCfg.Devices {
		byName[d.Name] = d
	}
	for _, name := range diff.AddedDevices {
		entry, err := s.buildDevice(byName[name])
		if err != nil {
			s.logger.Printf("cirrostratus: reload: device %s: %v", name, err)
			continue
		}
		s.devices[name] = entry
		s.registerDevice(byName[name], entry.dev)
	}

	s.cfg = newCfg
	return nil
}

// closeDeviceEntry releases a device's backend and, for physical devices,
// its io_uring instance.
func (s *Server) closeDeviceEntry(name string, entry *deviceEntry) {
	if err := entry.bk.Close(); err != nil {
		s.logger.Printf("cirrostratus: device %s: close backend: %v", name, err)
	}
	if entry.ring != nil {
		if err := entry.ring.Close(); err != nil {
			s.logger.Printf("cirrostratus: device %s: close ring: %v", name, err)
		}
	}
}

func (s *Server) persistDevice(name string, entry *deviceEntry) {
	if s.cfg.Defaults.StateDirectory == "" {
		return
	}
	sd := state.Device{
		ConfigString: string(entry.dev.ConfigString()),
		MACMask:      entry.dev.Accept.Addrs(),
		Reservation:  entry.dev.Reservation(),
	}
	if err := state.Save(s.cfg.Defaults.StateDirectory, name, sd); err != nil {
		s.logger.Printf("cirrostratus: persist device %s: %v", name, err)
	}
}

// Shutdown releases every subsystem: each device (persisting its mutable
// state before closing it), then the control plane, the netlink monitor,
// the interfaces, the epoll instance, and finally the PID file.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.devices {
		s.persistDevice(name, entry)
		s.closeDeviceEntry(name, entry)
	}
	if s.ctrlSrv != nil {
		s.ctrlSrv.Close()
	}
	if s.netmonM != nil {
		s.netmonM.Close()
	}
	for _, ifc := range s.ifaces {
		ifc.Close()
	}
	if s.epfd != 0 {
		unix.Close(s.epfd)
	}
	return s.pidFile.Remove()
}

// Uptime implements ctrl.Handler.
func (s *Server) Uptime() time.Duration { return time.Since(s.startTime) }

// DeviceStats implements ctrl.Handler, folding the device engine's own
// counters together with the read/write/other metrics recorded through its
// Observer into one counter set per device.
func (s *Server) DeviceStats() []ctrl.StatBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]ctrl.StatBlock, 0, len(s.devices))
	for name, entry := range s.devices {
		st := entry.dev.Stats()
		snap := entry.metrics.Snapshot()
		blocks = append(blocks, ctrl.StatBlock{
			Name: name,
			Counters: map[string]uint64{
				"proto_err":        st.ProtoErr,
				"ata_err":          st.AtaErr,
				"queue_over":       st.QueueOver,
				"queue_stall":      st.QueueStall,
				"io_slots":         uint64(st.IOSlots),
				"io_runs":          st.IORuns,
				"queue_depth":      uint64(st.QueueDepth),
				"in_flight":        uint64(st.InFlight),
				"read_count":       snap.ReadCnt,
				"write_count":      snap.WriteCnt,
				"other_count":      snap.OtherCnt,
				"read_bytes":       snap.ReadBytes,
				"write_bytes":      snap.WriteBytes,
				"avg_latency_ns":   snap.AvgLatencyNs,
				"latency_p50_ns":   snap.LatencyP50Ns,
				"latency_p99_ns":   snap.LatencyP99Ns,
				"latency_p999_ns":  snap.LatencyP999Ns,
			},
		})
	}
	return blocks
}

// InterfaceStats implements ctrl.Handler.
func (s *Server) InterfaceStats() []ctrl.StatBlock {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := make([]ctrl.StatBlock, 0, len(s.ifaces))
	for name, ifc := range s.ifaces {
		blocks = append(blocks, ctrl.StatBlock{
			Name: name,
			Counters: map[string]uint64{
				"proto_err":  ifc.ProtoErr(),
				"tx_pending": uint64(ifc.PendingTX()),
			},
		})
	}
	return blocks
}

// wantDevice reports whether name is included in names, an empty names
// meaning every device.
func wantDevice(names []string, name string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// DeviceConfig implements ctrl.Handler.
func (s *Server) DeviceConfig(names []string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	for name, entry := range s.devices {
		if wantDevice(names, name) {
			out[name] = string(entry.dev.ConfigString())
		}
	}
	return out
}

// DeviceMACMask implements ctrl.Handler.
func (s *Server) DeviceMACMask(names []string) map[string][]net.HardwareAddr {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]net.HardwareAddr)
	for name, entry := range s.devices {
		if wantDevice(names, name) {
			out[name] = entry.dev.Accept.Addrs()
		}
	}
	return out
}

// DeviceReserve implements ctrl.Handler.
func (s *Server) DeviceReserve(names []string) map[string][]net.HardwareAddr {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]net.HardwareAddr)
	for name, entry := range s.devices {
		if wantDevice(names, name) {
			out[name] = entry.dev.Reservation()
		}
	}
	return out
}

// ClearStats implements ctrl.Handler.
func (s *Server) ClearStats(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.devices {
		if wantDevice(names, name) {
			entry.dev.ResetStats()
			entry.metrics.Reset()
		}
	}
	for name, ifc := range s.ifaces {
		if wantDevice(names, name) {
			if m := s.ifaceMetrics[name]; m != nil {
				m.Reset()
			}
			_ = ifc
		}
	}
}

// ClearConfig implements ctrl.Handler.
func (s *Server) ClearConfig(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.devices {
		if wantDevice(names, name) {
			entry.dev.SetConfigString(nil)
		}
	}
	return nil
}

// ClearMACMask implements ctrl.Handler.
func (s *Server) ClearMACMask(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.devices {
		if wantDevice(names, name) {
			entry.dev.Accept.Clear()
		}
	}
	return nil
}

// ClearReserve implements ctrl.Handler.
func (s *Server) ClearReserve(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, entry := range s.devices {
		if wantDevice(names, name) {
			entry.dev.SetReservation(nil, nil, true)
		}
	}
	return nil
}
