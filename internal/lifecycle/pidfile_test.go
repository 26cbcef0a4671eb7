package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePIDFileWritesCurrentPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cirrostratus.pid")
	pf, err := WritePIDFile(path)
	require.NoError(t, err)
	defer pf.Remove()

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(buf), "\n")
}

func TestWritePIDFileRejectsSecondInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cirrostratus.pid")
	pf, err := WritePIDFile(path)
	require.NoError(t, err)
	defer pf.Remove()

	_, err = WritePIDFile(path)
	require.Error(t, err)
}

func TestWritePIDFileEmptyPathIsNoOp(t *testing.T) {
	pf, err := WritePIDFile("")
	require.NoError(t, err)
	require.Nil(t, pf)
	require.NoError(t, pf.Remove())
}

func TestRemoveUnlinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cirrostratus.pid")
	pf, err := WritePIDFile(path)
	require.NoError(t, err)
	require.NoError(t, pf.Remove())

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
