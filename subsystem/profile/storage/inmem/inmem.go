// Package inmem implements an in-memory profile storage backend.
package inmem

import (
	"github.com/oemtools/satactivate/subsystem/profile/storage/kv"
	"github.com/oemtools/satactivate/utils/kv/kvmap"
)

// InMem is an in-memory profile storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory profile storage backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket())}
}
