package cirrostratus

import "github.com/bysshe/cirrostratus/internal/constants"

// Re-export frequently referenced constants for the public API.
const (
	ShelfReservedFrom = constants.ShelfReservedFrom
	SlotMax           = constants.SlotMax
	MaxQueueLen       = constants.MaxQueueLen
	DefaultQueueLen   = constants.DefaultQueueLen
	ACLMapCapacity    = constants.ACLMapCapacity
	DefaultMaxDelay   = constants.DefaultMaxDelay
	DefaultMergeDelay = constants.DefaultMergeDelay
	DefaultMTU        = constants.DefaultMTU
	ConfigStringMax   = constants.ConfigStringMax
)
