package backend

import (
	"fmt"

	"github.com/bysshe/cirrostratus/internal/interfaces"
	"github.com/bysshe/cirrostratus/internal/placement"
)

// LocalTargetID identifies this process's own storage in a placement map.
// cirrostratus runs as a single target server with no replica transport to
// other nodes, so every virtual device must resolve to this ID; placement
// is consulted for validation and object addressing, not for shipping I/O
// anywhere else.
const LocalTargetID int32 = 1

// Virtual is a RAM-backed device whose address space is partitioned into
// ShardSize-aligned objects, each consulted against a placement map before
// the read/write is allowed to proceed. It wraps Memory for the actual
// storage and adds only the placement check.
type Virtual struct {
	*Memory
	pool string
	pmap *placement.Map
}

// NewVirtual creates a size-byte virtual device addressed under pool in
// pmap. pool is tried first against the map's rules; a map built by
// Fallback only defines the unnamed pool, so callers passing a named pool
// against a Fallback map still resolve correctly because resolveLocal
// retries with "" before failing.
func NewVirtual(size int64, pool string, pmap *placement.Map) *Virtual {
	return &Virtual{Memory: NewMemory(size), pool: pool, pmap: pmap}
}

// objectID maps a byte offset to the placement object it belongs to.
func (v *Virtual) objectID(off int64) uint64 {
	return uint64(off / ShardSize)
}

// resolveLocal confirms the placement map assigns this offset's object to
// LocalTargetID, trying the device's own pool name and falling back to the
// unnamed pool a Fallback map defines.
func (v *Virtual) resolveLocal(off int64) error {
	targets, err := v.pmap.Select(v.pool, v.objectID(off))
	if err != nil {
		targets, err = v.pmap.Select("", v.objectID(off))
		if err != nil {
			return fmt.Errorf("backend: placement lookup for offset %d: %w", off, err)
		}
	}
	for _, t := range targets {
		if t == LocalTargetID {
			return nil
		}
	}
	return fmt.Errorf("backend: offset %d not placed on this target", off)
}

// ReadAt implements interfaces.Backend, consulting placement before
// delegating to the underlying memory.
func (v *Virtual) ReadAt(p []byte, off int64) (int, error) {
	if err := v.resolveLocal(off); err != nil {
		return 0, err
	}
	return v.Memory.ReadAt(p, off)
}

// WriteAt implements interfaces.Backend, consulting placement before
// delegating to the underlying memory.
func (v *Virtual) WriteAt(p []byte, off int64) (int, error) {
	if err := v.resolveLocal(off); err != nil {
		return 0, err
	}
	return v.Memory.WriteAt(p, off)
}

var (
	_ interfaces.Backend         = (*Virtual)(nil)
	_ interfaces.IdentifyBackend = (*Virtual)(nil)
)
