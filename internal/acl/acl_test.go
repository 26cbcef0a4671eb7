package acl

import (
	"fmt"
	"math/rand"
	"net"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func macFor(i int) net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, byte(i >> 8), byte(i)}
}

// referenceSet is a plain map-backed sorted-set used as the ground truth
// the binary-search Map is checked against.
type referenceSet struct {
	m map[string]bool
	n int
}

func newReferenceSet(n int) *referenceSet { return &referenceSet{m: map[string]bool{}, n: n} }

func (r *referenceSet) insert(addr net.HardwareAddr) bool {
	s := addr.String()
	if r.m[s] {
		return true
	}
	if len(r.m) >= r.n {
		return false
	}
	r.m[s] = true
	return true
}

func (r *referenceSet) remove(addr net.HardwareAddr) { delete(r.m, addr.String()) }

func (r *referenceSet) match(addr net.HardwareAddr) bool { return r.m[addr.String()] }

func TestMapMatchesReferenceUnderRandomOps(t *testing.T) {
	const capacity = 64
	rng := rand.New(rand.NewSource(1))
	m := New(capacity)
	ref := newReferenceSet(capacity)

	for i := 0; i < 5000; i++ {
		addr := macFor(rng.Intn(capacity * 2))
		switch rng.Intn(3) {
		case 0:
			err := m.Insert(addr)
			ok := ref.insert(addr)
			if ok {
				require.NoError(t, err, "op %d insert %v", i, addr)
			}
		case 1:
			m.Remove(addr)
			ref.remove(addr)
		case 2:
			require.Equal(t, ref.match(addr), m.Match(addr), "op %d match %v", i, addr)
		}
		require.LessOrEqual(t, m.Len(), m.Cap())
		requireSorted(t, m)
	}

	for i := 0; i < capacity*2; i++ {
		addr := macFor(i)
		require.Equal(t, ref.match(addr), m.Match(addr), "final match %v", addr)
	}
}

func requireSorted(t *testing.T, m *Map) {
	t.Helper()
	addrs := m.Addrs()
	require.True(t, sort.SliceIsSorted(addrs, func(i, j int) bool {
		return key(addrs[i]) < key(addrs[j])
	}), fmt.Sprintf("entries not sorted: %v", addrs))
}

func TestInsertRejectsWhenFull(t *testing.T) {
	m := New(2)
	require.NoError(t, m.Insert(macFor(1)))
	require.NoError(t, m.Insert(macFor(2)))
	require.Error(t, m.Insert(macFor(3)))
}

func TestInsertDuplicateIsNoOp(t *testing.T) {
	m := New(2)
	require.NoError(t, m.Insert(macFor(1)))
	require.NoError(t, m.Insert(macFor(1)))
	require.Equal(t, 1, m.Len())
}

func TestRemoveAbsentIsNoOp(t *testing.T) {
	m := New(2)
	require.NoError(t, m.Insert(macFor(1)))
	m.Remove(macFor(99))
	require.Equal(t, 1, m.Len())
}
