package backend

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// File backs an exported device with a regular file or block-special path,
// exposing the underlying file descriptor so the device engine can submit
// reads and writes through internal/uring instead of completing them inline.
type File struct {
	f        *os.File
	fd       int32
	size     int64
	path     string
	directIO bool
}

// OpenFile opens path for a backend. When direct is true, O_DIRECT is
// requested; callers must then issue I/O with sector-aligned buffers and
// offsets (the device engine's SectorSize-sized slots already are).
func OpenFile(path string, direct, readOnly bool) (*File, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	sysFlags := 0
	if direct {
		sysFlags |= unix.O_DIRECT
	}

	f, err := os.OpenFile(path, flags|sysFlags, 0)
	if err != nil {
		if direct && os.IsNotExist(err) {
			return nil, fmt.Errorf("backend: open %s: %w", path, err)
		}
		if direct {
			// Some filesystems (tmpfs, overlay) reject O_DIRECT outright;
			// retry without it rather than refusing to export the device.
			f, err = os.OpenFile(path, flags, 0)
			direct = false
		}
		if err != nil {
			return nil, fmt.Errorf("backend: open %s: %w", path, err)
		}
	}

	size, err := fileSize(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("backend: stat %s: %w", path, err)
	}

	return &File{f: f, fd: int32(f.Fd()), size: size, path: path, directIO: direct}, nil
}

func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode()&os.ModeDevice != 0 {
		var sz uint64
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sz))); errno != 0 {
			return 0, errno
		}
		return int64(sz), nil
	}
	return fi.Size(), nil
}

// ReadAt implements interfaces.Backend. Direct submission normally goes
// through FD() via internal/uring; this path serves devices with no ring
// configured.
func (b *File) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

// WriteAt implements interfaces.Backend.
func (b *File) WriteAt(p []byte, off int64) (int, error) {
	return b.f.WriteAt(p, off)
}

// Size implements interfaces.Backend.
func (b *File) Size() int64 { return b.size }

// Close implements interfaces.Backend.
func (b *File) Close() error { return b.f.Close() }

// Flush implements interfaces.Backend.
func (b *File) Flush() error { return b.f.Sync() }

// FD implements device.FDBackend, letting the device engine submit I/O
// against this backend through internal/uring instead of inline.
func (b *File) FD() int32 { return b.fd }

// DirectIO reports whether O_DIRECT was actually obtained.
func (b *File) DirectIO() bool { return b.directIO }

// Identify implements interfaces.IdentifyBackend, deriving a serial from the
// backing path.
func (b *File) Identify() (model, serial string, ok bool) {
	return "cirrostratus file", fmt.Sprintf("FILE-%s", b.path), true
}

var (
	_ interfaces.Backend         = (*File)(nil)
	_ interfaces.IdentifyBackend = (*File)(nil)
)
