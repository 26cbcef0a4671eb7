// Package backend provides storage backends for exported cirrostratus devices.
package backend

import (
	"fmt"
	"sync"

	"github.com/bysshe/cirrostratus/internal/interfaces"
)

// ShardSize is the size of each memory shard (64KB).
// This provides good parallelism for 4K random I/O while keeping lock overhead reasonable.
// With 64KB shards, a 256MB device has 4096 shards.
const ShardSize = 64 * 1024

// Memory is a RAM-backed virtual device: no file descriptor, so devices
// built on it always take the device engine's inline completion path
// rather than submitting through internal/uring.
type Memory struct {
	data   []byte
	size   int64
	shards []sync.RWMutex
}

// NewMemory creates a new memory backend of the specified size.
func NewMemory(size int64) *Memory {
	numShards := (size + ShardSize - 1) / ShardSize
	return &Memory{
		data:   make([]byte, size),
		size:   size,
		shards: make([]sync.RWMutex, numShards),
	}
}

// shardRange returns the range of shards that cover [off, off+len).
func (m *Memory) shardRange(off, length int64) (start, end int) {
	start = int(off / ShardSize)
	end = int((off + length - 1) / ShardSize)
	if end >= len(m.shards) {
		end = len(m.shards) - 1
	}
	return start, end
}

// ReadAt implements interfaces.Backend.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, nil
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].RLock()
	}

	n := copy(p, m.data[off:off+int64(len(p))])

	for i := startShard; i <= endShard; i++ {
		m.shards[i].RUnlock()
	}

	return n, nil
}

// WriteAt implements interfaces.Backend.
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off >= m.size {
		return 0, fmt.Errorf("write beyond end of device")
	}

	available := m.size - off
	if int64(len(p)) > available {
		p = p[:available]
	}

	startShard, endShard := m.shardRange(off, int64(len(p)))
	for i := startShard; i <= endShard; i++ {
		m.shards[i].Lock()
	}

	n := copy(m.data[off:off+int64(len(p))], p)

	for i := startShard; i <= endShard; i++ {
		m.shards[i].Unlock()
	}

	return n, nil
}

// Size implements interfaces.Backend.
func (m *Memory) Size() int64 {
	return m.size
}

// Close implements interfaces.Backend.
func (m *Memory) Close() error {
	m.data = nil
	return nil
}

// Flush implements interfaces.Backend. The memory backend has nothing to
// sync to stable storage.
func (m *Memory) Flush() error {
	return nil
}

// Identify implements interfaces.IdentifyBackend, reporting a fixed
// model/serial pair for virtual devices since there is no underlying file
// or block-special path to derive one from.
func (m *Memory) Identify() (model, serial string, ok bool) {
	return "cirrostratus virtual", fmt.Sprintf("VIRT%012d", m.size), true
}

var (
	_ interfaces.Backend         = (*Memory)(nil)
	_ interfaces.IdentifyBackend = (*Memory)(nil)
)
