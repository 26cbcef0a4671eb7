package state

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	d := Device{
		ConfigString: "some-opaque-config",
		MACMask:      []net.HardwareAddr{mustMAC(t, "aa:bb:cc:dd:ee:01")},
		Reservation:  []net.HardwareAddr{mustMAC(t, "aa:bb:cc:dd:ee:02"), mustMAC(t, "aa:bb:cc:dd:ee:03")},
	}

	require.NoError(t, Save(dir, "shelf1.0", d))

	loaded, err := Load(dir, "shelf1.0")
	require.NoError(t, err)
	require.Equal(t, d, loaded)
}

func TestLoadMissingReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	d, err := Load(dir, "nonexistent")
	require.NoError(t, err)
	require.Empty(t, d.ConfigString)
	require.Empty(t, d.MACMask)
}

func TestSaveWritesThroughTempFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, "shelf1.0", Device{ConfigString: "x"}))

	// The temp file must not remain after a successful save.
	_, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestRemoveTolerantOfAbsence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Remove(dir, "never-existed"))
}
