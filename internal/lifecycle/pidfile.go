// Package lifecycle holds startup/shutdown helpers shared by the daemon
// entry point that don't belong to any one subsystem — currently PID file
// management (ggaoed.c's write_pid_file/remove_pid_file).
package lifecycle

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PIDFile is a locked, advisory-exclusive PID file held for the process
// lifetime; a second instance pointed at the same path fails to acquire
// the lock rather than overwriting a running daemon's file.
type PIDFile struct {
	f    *os.File
	path string
}

// WritePIDFile creates (or takes over a stale) path, locks it, and writes
// the current process ID.
func WritePIDFile(path string) (*PIDFile, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: create pid file %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: pid file %s is locked by another instance: %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: truncate pid file %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("lifecycle: write pid file %s: %w", path, err)
	}

	return &PIDFile{f: f, path: path}, nil
}

// Remove unlinks and closes the PID file. Safe to call on a nil receiver
// (when no pid-file was configured).
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	_ = os.Remove(p.path)
	return p.f.Close()
}
