// Package config parses the INI-style configuration file (§6): a
// `defaults` group of globals, an `acls` group mapping ACL names to MAC
// lists, one group per exported device (keyed by the presence of a `shelf`
// key), and any other named group is an interface override.
package config

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/bysshe/cirrostratus/internal/constants"
)

// DeviceType distinguishes a physical (file/block-special backed) device
// from a virtual (placement-map backed) one.
type DeviceType int

const (
	DeviceTypePhysical DeviceType = iota
	DeviceTypeVirtual
)

// DeviceMACBinding is one `device-macs` entry: an explicit (shelf, slot) to
// MAC-list binding consulted as an additional implicit accept list
// (Open Question decision 1).
type DeviceMACBinding struct {
	Shelf uint16
	Slot  uint8
	MACs  []net.HardwareAddr
}

// Defaults holds the `[defaults]` group's globals, applied as fallbacks to
// device and interface groups that omit the corresponding key.
type Defaults struct {
	QueueLength       int
	DirectIO          bool
	TraceIO           bool
	PIDFile           string
	ControlSocket     string
	StateDirectory    string
	MTU               int
	RingBufferSize    int
	SendBufferSize    int
	RecvBufferSize    int
	MaxDelay          time.Duration
	MergeDelay        time.Duration
	TxRingBug         bool
	InterfacePatterns []string
	DeviceMACs        []DeviceMACBinding
	PlacementMapPath  string
}

// Device is one exported-device group.
type Device struct {
	Name              string
	Shelf             uint16
	Slot              uint8
	Type              DeviceType
	Path              string
	CapacityMiB       int
	WWN               [6]byte
	DPPolicy          string
	QueueLength       int
	MaxDelay          time.Duration
	MergeDelay        time.Duration
	DirectIO          bool
	TraceIO           bool
	Broadcast         bool
	ReadOnly          bool
	InterfacePatterns []string
	Accept            []net.HardwareAddr
	Deny              []net.HardwareAddr
}

// Interface is an interface-group override.
type Interface struct {
	Name           string
	MTU            int
	RingBufferSize int
	SendBufferSize int
	RecvBufferSize int
}

// Config is a fully parsed, validated configuration snapshot, handed
// atomically to the lifecycle manager on load and reload.
type Config struct {
	Defaults   Defaults
	ACLs       map[string][]net.HardwareAddr
	Devices    []Device
	Interfaces []Interface
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	acls, err := parseACLs(f)
	if err != nil {
		return nil, err
	}

	defaults, err := parseDefaults(f, acls)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Defaults: defaults, ACLs: acls}

	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection || name == "defaults" || name == "acls" {
			continue
		}
		if sec.HasKey("shelf") {
			dev, err := parseDevice(sec, defaults, acls)
			if err != nil {
				return nil, err
			}
			cfg.Devices = append(cfg.Devices, dev)
			continue
		}
		iface, err := parseInterface(sec, defaults)
		if err != nil {
			return nil, err
		}
		cfg.Interfaces = append(cfg.Interfaces, iface)
	}

	return cfg, nil
}

func parseACLs(f *ini.File) (map[string][]net.HardwareAddr, error) {
	acls := map[string][]net.HardwareAddr{}
	sec, err := f.GetSection("acls")
	if err != nil {
		return acls, nil // group is optional
	}
	for _, key := range sec.Keys() {
		entries := key.Strings(",")
		macs, err := resolveEntries(entries, acls, key.Name())
		if err != nil {
			return nil, err
		}
		acls[key.Name()] = macs
	}
	return acls, nil
}

// resolveEntries resolves a comma-separated ACL value list: each entry is
// either a literal MAC address, a reference to another `[acls]` name, or
// (per supplemented feature) an `/etc/ethers` hostname.
func resolveEntries(entries []string, acls map[string][]net.HardwareAddr, forName string) ([]net.HardwareAddr, error) {
	var out []net.HardwareAddr
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if mac, err := net.ParseMAC(e); err == nil {
			out = append(out, mac)
			continue
		}
		if ref, ok := acls[e]; ok {
			out = append(out, ref...)
			continue
		}
		if mac, ok := lookupEthers(e); ok {
			out = append(out, mac)
			continue
		}
		return nil, fmt.Errorf("config: acl %q: unresolved entry %q", forName, e)
	}
	return out, nil
}

// lookupEthers resolves a hostname against /etc/ethers (best-effort,
// ignored entirely if the file is absent).
func lookupEthers(host string) (net.HardwareAddr, bool) {
	f, err := os.Open("/etc/ethers")
	if err != nil {
		return nil, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		if fields[1] != host {
			continue
		}
		if mac, err := net.ParseMAC(fields[0]); err == nil {
			return mac, true
		}
	}
	return nil, false
}

func parseDefaults(f *ini.File, acls map[string][]net.HardwareAddr) (Defaults, error) {
	d := Defaults{
		QueueLength:    constants.DefaultQueueLen,
		DirectIO:       true,
		PIDFile:        "/var/run/cirrostratus.pid",
		ControlSocket:  "/var/run/cirrostratus.ctl",
		StateDirectory: "/var/lib/cirrostratus",
		MaxDelay:       constants.DefaultMaxDelay,
		MergeDelay:     constants.DefaultMergeDelay,
	}

	sec, err := f.GetSection("defaults")
	if err != nil {
		return d, nil // group is optional
	}

	d.QueueLength = sec.Key("queue-length").MustInt(d.QueueLength)
	if d.QueueLength <= 0 || d.QueueLength > constants.MaxQueueLen {
		return d, fmt.Errorf("config: defaults: invalid queue-length %d", d.QueueLength)
	}
	d.DirectIO = sec.Key("direct-io").MustBool(d.DirectIO)
	d.TraceIO = sec.Key("trace-io").MustBool(d.TraceIO)
	if s := sec.Key("pid-file").String(); s != "" {
		d.PIDFile = s
	}
	if s := sec.Key("control-socket").String(); s != "" {
		d.ControlSocket = s
	}
	if s := sec.Key("state-directory").String(); s != "" {
		d.StateDirectory = s
	}
	d.MTU = sec.Key("mtu").MustInt(constants.DefaultMTU)
	if d.MTU != 0 && d.MTU < constants.MinMTU {
		return d, fmt.Errorf("config: defaults: mtu %d too small", d.MTU)
	}
	d.RingBufferSize = sec.Key("ring-buffer-size").MustInt(constants.DefaultRingBufferSize)
	if d.RingBufferSize < 0 {
		return d, fmt.Errorf("config: defaults: invalid ring-buffer-size")
	}
	d.SendBufferSize = sec.Key("send-buffer-size").MustInt(0)
	d.RecvBufferSize = sec.Key("receive-buffer-size").MustInt(0)
	if d.SendBufferSize < 0 || d.RecvBufferSize < 0 {
		return d, fmt.Errorf("config: defaults: invalid send/receive buffer size")
	}
	d.TxRingBug = sec.Key("tx-ring-bug").MustBool(false)

	maxDelay := sec.Key("max-delay").MustFloat64(d.MaxDelay.Seconds())
	if maxDelay < 0 || maxDelay >= constants.MaxDelayCeiling.Seconds() {
		return d, fmt.Errorf("config: defaults: invalid max-delay")
	}
	d.MaxDelay = time.Duration(maxDelay * float64(time.Second))

	mergeDelay := sec.Key("merge-delay").MustFloat64(d.MergeDelay.Seconds())
	if mergeDelay < 0 || mergeDelay >= constants.MergeDelayCeiling.Seconds() {
		return d, fmt.Errorf("config: defaults: invalid merge-delay")
	}
	d.MergeDelay = time.Duration(mergeDelay * float64(time.Second))

	if v := sec.Key("interfaces").Strings(","); len(v) > 0 {
		d.InterfacePatterns = v
	}
	if v := sec.Key("placement-map").String(); v != "" {
		d.PlacementMapPath = v
	}

	if raw := sec.Key("device-macs").Strings(","); len(raw) > 0 {
		bindings, err := parseDeviceMACs(raw)
		if err != nil {
			return d, err
		}
		d.DeviceMACs = bindings
	}

	return d, nil
}

// parseDeviceMACs parses `device-macs` entries of the form
// "shelf.slot=mac1;mac2".
func parseDeviceMACs(entries []string) ([]DeviceMACBinding, error) {
	var out []DeviceMACBinding
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: device-macs: malformed entry %q", e)
		}
		var shelf uint16
		var slot uint8
		if _, err := fmt.Sscanf(parts[0], "%d.%d", &shelf, &slot); err != nil {
			return nil, fmt.Errorf("config: device-macs: bad shelf.slot in %q: %w", e, err)
		}
		var macs []net.HardwareAddr
		for _, m := range strings.Split(parts[1], ";") {
			mac, err := net.ParseMAC(strings.TrimSpace(m))
			if err != nil {
				return nil, fmt.Errorf("config: device-macs: bad mac in %q: %w", e, err)
			}
			macs = append(macs, mac)
		}
		out = append(out, DeviceMACBinding{Shelf: shelf, Slot: slot, MACs: macs})
	}
	return out, nil
}

func parseDevice(sec *ini.Section, d Defaults, acls map[string][]net.HardwareAddr) (Device, error) {
	name := sec.Name()
	dev := Device{
		Name:        name,
		QueueLength: d.QueueLength,
		MaxDelay:    d.MaxDelay,
		MergeDelay:  d.MergeDelay,
		DirectIO:    d.DirectIO,
		TraceIO:     d.TraceIO,
	}

	shelf := sec.Key("shelf").MustInt(-1)
	if shelf < 0 || shelf >= constants.ShelfReservedFrom {
		return dev, fmt.Errorf("config: %s: missing or invalid shelf number", name)
	}
	dev.Shelf = uint16(shelf)

	slot := sec.Key("slot").MustInt(-1)
	if slot < 0 || slot > constants.SlotMax {
		return dev, fmt.Errorf("config: %s: missing or invalid slot number", name)
	}
	dev.Slot = uint8(slot)

	dev.DirectIO = sec.Key("direct-io").MustBool(d.DirectIO)
	dev.TraceIO = sec.Key("trace-io").MustBool(d.TraceIO)
	dev.Broadcast = sec.Key("broadcast").MustBool(false)
	dev.ReadOnly = sec.Key("read-only").MustBool(false)

	switch strings.ToLower(sec.Key("type").MustString("physical")) {
	case "virtual":
		dev.Type = DeviceTypeVirtual
		dev.CapacityMiB = sec.Key("capacity").MustInt(10)
		if dev.CapacityMiB < constants.VirtualCapacityMinMiB || dev.CapacityMiB >= constants.VirtualCapacityMaxMiB {
			return dev, fmt.Errorf("config: %s: invalid virtual device capacity (must be in [0, %d) MiB)", name, constants.VirtualCapacityMaxMiB)
		}
		dev.DPPolicy = sec.Key("dppolicy").String()
		wwn, err := parseWWN(sec.Key("wwn").String())
		if err != nil {
			return dev, fmt.Errorf("config: %s: bad wwn: %w", name, err)
		}
		dev.WWN = wwn
	case "physical", "":
		dev.Type = DeviceTypePhysical
		dev.Path = sec.Key("path").String()
		if dev.Path == "" {
			return dev, fmt.Errorf("config: %s: missing 'path'", name)
		}
	default:
		return dev, fmt.Errorf("config: %s: unknown device type %q", name, sec.Key("type").String())
	}

	maxDelay := sec.Key("max-delay").MustFloat64(d.MaxDelay.Seconds())
	if maxDelay < 0 || maxDelay >= 1.0 {
		return dev, fmt.Errorf("config: %s: invalid max-delay", name)
	}
	dev.MaxDelay = time.Duration(maxDelay * float64(time.Second))

	mergeDelay := sec.Key("merge-delay").MustFloat64(d.MergeDelay.Seconds())
	if mergeDelay < 0 || mergeDelay >= 1.0 {
		return dev, fmt.Errorf("config: %s: invalid merge-delay", name)
	}
	dev.MergeDelay = time.Duration(mergeDelay * float64(time.Second))

	dev.QueueLength = sec.Key("queue-length").MustInt(d.QueueLength)
	if dev.QueueLength <= 0 || dev.QueueLength > constants.MaxQueueLen {
		return dev, fmt.Errorf("config: %s: invalid queue-length", name)
	}

	if v := sec.Key("interfaces").Strings(","); len(v) > 0 {
		dev.InterfacePatterns = v
	} else {
		dev.InterfacePatterns = d.InterfacePatterns
	}

	if v := sec.Key("accept").Strings(","); len(v) > 0 {
		macs, err := resolveEntries(v, acls, name+".accept")
		if err != nil {
			return dev, err
		}
		dev.Accept = macs
	}
	if v := sec.Key("deny").Strings(","); len(v) > 0 {
		macs, err := resolveEntries(v, acls, name+".deny")
		if err != nil {
			return dev, err
		}
		dev.Deny = macs
	}

	return dev, nil
}

// parseWWN parses a dotted-decimal WWN of WWN_ALEN (6) octets, e.g.
// "1.2.3.4.5.6".
func parseWWN(s string) ([6]byte, error) {
	var wwn [6]byte
	if s == "" {
		return wwn, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != len(wwn) {
		return wwn, fmt.Errorf("expected %d dotted octets, got %d", len(wwn), len(parts))
	}
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil || v < 0 || v > 255 {
			return wwn, fmt.Errorf("invalid octet %q", p)
		}
		wwn[i] = byte(v)
	}
	return wwn, nil
}

func parseInterface(sec *ini.Section, d Defaults) (Interface, error) {
	iface := Interface{Name: sec.Name()}
	iface.MTU = sec.Key("mtu").MustInt(d.MTU)
	if iface.MTU != 0 && iface.MTU < constants.MinMTU {
		return iface, fmt.Errorf("config: %s: mtu too small", iface.Name)
	}
	iface.RingBufferSize = sec.Key("ring-buffer-size").MustInt(d.RingBufferSize)
	if iface.RingBufferSize < 0 {
		return iface, fmt.Errorf("config: %s: invalid ring-buffer-size", iface.Name)
	}
	iface.SendBufferSize = sec.Key("send-buffer-size").MustInt(d.SendBufferSize)
	iface.RecvBufferSize = sec.Key("receive-buffer-size").MustInt(d.RecvBufferSize)
	if iface.SendBufferSize < 0 || iface.RecvBufferSize < 0 {
		return iface, fmt.Errorf("config: %s: invalid send/receive buffer size", iface.Name)
	}
	return iface, nil
}

// Diff reports the device and interface group names added, removed, or
// retained between an old config generation and this (new) one, letting
// the lifecycle manager add/remove without disrupting unchanged entities
// on reload (§4.8).
type Diff struct {
	AddedDevices     []string
	RemovedDevices   []string
	UnchangedDevices []string

	AddedInterfaces     []string
	RemovedInterfaces   []string
	UnchangedInterfaces []string
}

func (c *Config) Diff(old *Config) Diff {
	var d Diff
	d.AddedDevices, d.RemovedDevices, d.UnchangedDevices = diffNames(deviceNames(old), deviceNames(c))
	d.AddedInterfaces, d.RemovedInterfaces, d.UnchangedInterfaces = diffNames(interfaceNames(old), interfaceNames(c))
	return d
}

func deviceNames(c *Config) []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.Devices))
	for i, d := range c.Devices {
		names[i] = d.Name
	}
	return names
}

func interfaceNames(c *Config) []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.Interfaces))
	for i, iface := range c.Interfaces {
		names[i] = iface.Name
	}
	return names
}

func diffNames(oldNames, newNames []string) (added, removed, unchanged []string) {
	oldSet := make(map[string]bool, len(oldNames))
	for _, n := range oldNames {
		oldSet[n] = true
	}
	newSet := make(map[string]bool, len(newNames))
	for _, n := range newNames {
		newSet[n] = true
	}
	for _, n := range newNames {
		if oldSet[n] {
			unchanged = append(unchanged, n)
		} else {
			added = append(added, n)
		}
	}
	for _, n := range oldNames {
		if !newSet[n] {
			removed = append(removed, n)
		}
	}
	return added, removed, unchanged
}
