package cirrostratus

import (
	"sync"

	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// MockBackend is an in-memory interfaces.Backend that tracks call counts
// and can be told to fail, for exercising device-engine and server code in
// tests without a real file or io_uring ring behind it.
type MockBackend struct {
	mu     sync.Mutex
	data   []byte
	size   int64
	closed bool

	model, serial string
	identifyOK    bool

	readCalls  int
	writeCalls int
	flushCalls int
	failRead   error
	failWrite  error
}

// NewMockBackend creates a size-byte mock backend.
func NewMockBackend(size int64) *MockBackend {
	return &MockBackend{data: make([]byte, size), size: size}
}

// ReadAt implements interfaces.Backend.
func (m *MockBackend) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if m.closed {
		return 0, NewError("mock-read", ErrIoError, "backend closed")
	}
	if m.failRead != nil {
		return 0, m.failRead
	}
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	return copy(p, m.data[off:off+int64(len(p))]), nil
}

// WriteAt implements interfaces.Backend.
func (m *MockBackend) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.closed {
		return 0, NewError("mock-write", ErrIoError, "backend closed")
	}
	if m.failWrite != nil {
		return 0, m.failWrite
	}
	if off >= m.size {
		return 0, NewError("mock-write", ErrProtocolError, "offset past end of device")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}
	return copy(m.data[off:off+int64(len(p))], p), nil
}

// Size implements interfaces.Backend.
func (m *MockBackend) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Close implements interfaces.Backend.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

// Flush implements interfaces.Backend. The mock has nothing to flush; it
// only counts the call.
func (m *MockBackend) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalls++
	return nil
}

// Identify implements interfaces.IdentifyBackend.
func (m *MockBackend) Identify() (model, serial string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model, m.serial, m.identifyOK
}

// SetIdentity configures the model/serial strings Identify returns.
func (m *MockBackend) SetIdentity(model, serial string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model, m.serial, m.identifyOK = model, serial, true
}

// FailNextReads makes every subsequent ReadAt return err until cleared with
// FailNextReads(nil).
func (m *MockBackend) FailNextReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRead = err
}

// FailNextWrites makes every subsequent WriteAt return err until cleared
// with FailNextWrites(nil).
func (m *MockBackend) FailNextWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite = err
}

// IsClosed reports whether Close has been called.
func (m *MockBackend) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CallCounts returns the number of times each Backend method has been
// called, for assertions in tests that exercise the device engine through
// this mock.
func (m *MockBackend) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"flush": m.flushCalls,
	}
}

var (
	_ interfaces.Backend         = (*MockBackend)(nil)
	_ interfaces.IdentifyBackend = (*MockBackend)(nil)
)
