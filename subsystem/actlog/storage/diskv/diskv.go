// Package diskv implements a diskv-backed activation history backend.
package diskv

import (
	"path/filepath"

	"github.com/oemtools/satactivate/subsystem/actlog/storage/kv"
	"github.com/oemtools/satactivate/utils/kv/kvdiskv"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk activation history backend.
type Diskv struct {
	*kv.KV
}

// New creates a new initialized activation history store under path.
// TempDir lives next to the base path so records are written to a
// temporary file and renamed into place, never left partially written.
func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{KV: kv.New(kvdiskv.NewBucket(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "actlog"),
		TempDir:      filepath.Join(path, ".tmp"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})))}
}
