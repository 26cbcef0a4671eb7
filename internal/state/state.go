// Package state persists per-device mutable state — the CONFIG string, the
// MAC-mask (accept) list, and the reservation list — under the configured
// state directory, one file per device, written atomically (write-temp
// then rename) per §6 Persisted state.
package state

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

const fileMagic = "CSD1" // cirrostratus state, version 1

// Device is the persisted state for one exported device.
type Device struct {
	ConfigString string
	MACMask      []net.HardwareAddr
	Reservation  []net.HardwareAddr
}

// path returns the state file path for a device name under dir.
func path(dir, deviceName string) string {
	return filepath.Join(dir, deviceName+".state")
}

// Load reads a device's persisted state. A missing file is not an error —
// it returns the zero value, matching a freshly configured device with no
// prior state.
func Load(dir, deviceName string) (Device, error) {
	buf, err := os.ReadFile(path(dir, deviceName))
	if os.IsNotExist(err) {
		return Device{}, nil
	}
	if err != nil {
		return Device{}, fmt.Errorf("state: read %s: %w", deviceName, err)
	}
	return decode(buf)
}

// Save atomically persists a device's state: write to a temp file in the
// same directory, then rename over the final path.
func Save(dir, deviceName string, d Device) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %s: %w", dir, err)
	}
	final := path(dir, deviceName)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, encode(d), 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("state: rename %s: %w", tmp, err)
	}
	return nil
}

// Remove deletes a device's persisted state file, tolerating absence.
func Remove(dir, deviceName string) error {
	err := os.Remove(path(dir, deviceName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state: remove %s: %w", deviceName, err)
	}
	return nil
}

func encode(d Device) []byte {
	buf := []byte(fileMagic)
	buf = putString(buf, d.ConfigString)
	buf = putMACList(buf, d.MACMask)
	buf = putMACList(buf, d.Reservation)
	return buf
}

func decode(buf []byte) (Device, error) {
	if len(buf) < len(fileMagic) || string(buf[:len(fileMagic)]) != fileMagic {
		return Device{}, fmt.Errorf("state: bad magic")
	}
	buf = buf[len(fileMagic):]

	var d Device
	var err error
	d.ConfigString, buf, err = getString(buf)
	if err != nil {
		return Device{}, err
	}
	d.MACMask, buf, err = getMACList(buf)
	if err != nil {
		return Device{}, err
	}
	d.Reservation, _, err = getMACList(buf)
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

func putString(buf []byte, s string) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf = append(buf, n[:]...)
	return append(buf, s...)
}

func getString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, fmt.Errorf("state: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return "", nil, fmt.Errorf("state: truncated string body")
	}
	return string(buf[:n]), buf[n:], nil
}

func putMACList(buf []byte, macs []net.HardwareAddr) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(macs)))
	buf = append(buf, n[:]...)
	for _, mac := range macs {
		buf = putString(buf, mac.String())
	}
	return buf
}

func getMACList(buf []byte) ([]net.HardwareAddr, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("state: truncated mac list count")
	}
	n := binary.LittleEndian.Uint32(buf)
	buf = buf[4:]
	macs := make([]net.HardwareAddr, 0, n)
	for i := uint32(0); i < n; i++ {
		var s string
		var err error
		s, buf, err = getString(buf)
		if err != nil {
			return nil, nil, err
		}
		mac, err := net.ParseMAC(s)
		if err != nil {
			return nil, nil, fmt.Errorf("state: bad mac %q: %w", s, err)
		}
		macs = append(macs, mac)
	}
	return macs, buf, nil
}
