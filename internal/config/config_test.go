package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cirrostratus.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsAndDevice(t *testing.T) {
	path := writeConfig(t, `
[defaults]
queue-length = 64
max-delay = 0.25
merge-delay = 0.001
interfaces = eth*

[acls]
trusted = aa:bb:cc:dd:ee:01,aa:bb:cc:dd:ee:02

[shelf1]
shelf = 1
slot = 0
type = physical
path = /dev/sdb
accept = trusted

[eth0]
mtu = 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 64, cfg.Defaults.QueueLength)
	require.Len(t, cfg.Devices, 1)
	dev := cfg.Devices[0]
	require.Equal(t, "shelf1", dev.Name)
	require.EqualValues(t, 1, dev.Shelf)
	require.EqualValues(t, 0, dev.Slot)
	require.Equal(t, "/dev/sdb", dev.Path)
	require.Len(t, dev.Accept, 2)

	require.Len(t, cfg.Interfaces, 1)
	require.Equal(t, 9000, cfg.Interfaces[0].MTU)
}

func TestLoadRejectsMissingShelf(t *testing.T) {
	// The shelf key makes this a device group; its number is missing.
	path := writeConfig(t, `
[shelf1]
shelf =
slot = 0
type = physical
path = /dev/sdb
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadVirtualDeviceCapacityRange(t *testing.T) {
	path := writeConfig(t, `
[shelf2]
shelf = 2
slot = 0
type = virtual
capacity = 100000
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestDiffDetectsAddedRemovedUnchanged(t *testing.T) {
	oldPath := writeConfig(t, `
[shelf1]
shelf = 1
slot = 0
type = physical
path = /dev/sdb
`)
	newPath := writeConfig(t, `
[shelf1]
shelf = 1
slot = 0
type = physical
path = /dev/sdb

[shelf2]
shelf = 2
slot = 0
type = physical
path = /dev/sdc
`)
	oldCfg, err := Load(oldPath)
	require.NoError(t, err)
	newCfg, err := Load(newPath)
	require.NoError(t, err)

	diff := newCfg.Diff(oldCfg)
	require.Equal(t, []string{"shelf2"}, diff.AddedDevices)
	require.Equal(t, []string{"shelf1"}, diff.UnchangedDevices)
	require.Empty(t, diff.RemovedDevices)
}
