// Package inmem implements an in-memory activation history backend.
package inmem

import (
	"github.com/oemtools/satactivate/subsystem/actlog/storage/kv"
	"github.com/oemtools/satactivate/utils/kv/kvmap"
)

// InMem is an in-memory activation history backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory activation history backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.NewBucket())}
}
