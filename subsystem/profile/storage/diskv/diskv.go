// Package diskv implements a diskv-backed profile storage backend.
package diskv

import (
	"path/filepath"

	"github.com/oemtools/satactivate/subsystem/profile/storage/kv"
	"github.com/oemtools/satactivate/utils/kv/kvdiskv"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk profile storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new initialized profile data store under path.
// TempDir lives next to the base path so saves are written to a
// temporary file and renamed into place, never leaving a partially
// written profile behind.
func New(path string) *Diskv {
	flatTransform := func(s string) []string { return []string{} }
	return &Diskv{KV: kv.New(kvdiskv.NewBucket(diskv.New(diskv.Options{
		BasePath:     filepath.Join(path, "profile"),
		TempDir:      filepath.Join(path, ".tmp"),
		Transform:    flatTransform,
		CacheSizeMax: 1024 * 1024,
	})))}
}
