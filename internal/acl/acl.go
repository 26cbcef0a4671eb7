// Package acl implements the ordered MAC-address set used for AoE
// accept/deny lists and MAC-mask membership (§4.2).
package acl

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
)

// key packs a 6-byte MAC address, zero-padded to 8 bytes, into a single
// little-endian uint64 so membership, insertion, and removal reduce to an
// integer binary search (matching the original's own `match_acl`, which
// already compares padded addresses this way).
func key(mac net.HardwareAddr) uint64 {
	var buf [8]byte
	copy(buf[:6], mac)
	return binary.LittleEndian.Uint64(buf[:])
}

func unkey(k uint64) net.HardwareAddr {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k)
	mac := make(net.HardwareAddr, 6)
	copy(mac, buf[:6])
	return mac
}

// Map is a fixed-capacity, always-sorted set of MAC addresses supporting
// O(log N) comparisons for Insert, Remove, and Match (each still moves
// O(N) elements on mutation, the array being contiguous).
type Map struct {
	capacity int
	entries  []uint64
}

// New creates an empty map with the given fixed capacity.
func New(capacity int) *Map {
	if capacity <= 0 {
		capacity = 1
	}
	return &Map{capacity: capacity, entries: make([]uint64, 0, capacity)}
}

// Len returns the number of addresses currently held.
func (m *Map) Len() int { return len(m.entries) }

// Cap returns the fixed capacity.
func (m *Map) Cap() int { return m.capacity }

// searchPoint returns the index at which k is present, or where it would be
// inserted to keep the array sorted.
func (m *Map) searchPoint(k uint64) int {
	return sort.Search(len(m.entries), func(i int) bool { return m.entries[i] >= k })
}

// Match reports whether addr is a member of the set. O(log N).
func (m *Map) Match(addr net.HardwareAddr) bool {
	k := key(addr)
	i := m.searchPoint(k)
	return i < len(m.entries) && m.entries[i] == k
}

// Insert adds addr to the set. It returns an error if the set is already at
// capacity; it silently succeeds (no-op) if addr is already present, per
// §4.2 "ignore if duplicate".
func (m *Map) Insert(addr net.HardwareAddr) error {
	k := key(addr)
	i := m.searchPoint(k)
	if i < len(m.entries) && m.entries[i] == k {
		return nil
	}
	if len(m.entries) >= m.capacity {
		return fmt.Errorf("acl: map at capacity (%d)", m.capacity)
	}
	m.entries = append(m.entries, 0)
	copy(m.entries[i+1:], m.entries[i:len(m.entries)-1])
	m.entries[i] = k
	return nil
}

// Remove deletes addr from the set if present. Removing an absent address
// is a no-op, per §4.6 "delete tolerates absence".
func (m *Map) Remove(addr net.HardwareAddr) {
	k := key(addr)
	i := m.searchPoint(k)
	if i >= len(m.entries) || m.entries[i] != k {
		return
	}
	copy(m.entries[i:], m.entries[i+1:])
	m.entries = m.entries[:len(m.entries)-1]
}

// Addrs returns the members in sorted (key) order.
func (m *Map) Addrs() []net.HardwareAddr {
	out := make([]net.HardwareAddr, len(m.entries))
	for i, k := range m.entries {
		out[i] = unkey(k)
	}
	return out
}

// Clear empties the set.
func (m *Map) Clear() { m.entries = m.entries[:0] }
