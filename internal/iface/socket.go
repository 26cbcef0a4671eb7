package iface

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// htons converts a host-order uint16 to network byte order, the way every
// AF_PACKET raw-socket opener in the pack does it.
func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v >> 8)
}

// openSocket creates an AF_PACKET/SOCK_RAW socket filtered to the AoE
// ethertype and bound to the named link.
func openSocket(name string, ethertype uint16) (fd int, ifindex int, err error) {
	link, err := net.InterfaceByName(name)
	if err != nil {
		return -1, 0, fmt.Errorf("iface: lookup %s: %w", name, err)
	}

	fd, err = unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(ethertype)))
	if err != nil {
		return -1, 0, fmt.Errorf("iface: socket %s: %w", name, err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(ethertype),
		Ifindex:  link.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("iface: bind %s: %w", name, err)
	}
	return fd, link.Index, nil
}

// setSocketBuffers applies SO_SNDBUF/SO_RCVBUF when the configuration
// requests sizes beyond the kernel default.
func setSocketBuffers(fd, sendBuf, recvBuf int) error {
	if sendBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBuf); err != nil {
			return fmt.Errorf("iface: SO_SNDBUF: %w", err)
		}
	}
	if recvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf); err != nil {
			return fmt.Errorf("iface: SO_RCVBUF: %w", err)
		}
	}
	return nil
}
