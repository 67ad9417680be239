// Package kv defines a minimal interface for key-value storage buckets.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by Get for keys that have not been set.
// Implementations should wrap this error so callers can test for it
// with errors.Is.
var ErrKeyNotFound = errors.New("key not found")

// Bucket defines basic CRUD operations for key-value pairs in a single "namespace."
type Bucket interface {
	Get(ctx context.Context, k string) (v []byte, err error)
	Set(ctx context.Context, k string, v []byte) error
	Has(ctx context.Context, k string) (found bool, err error)
	Delete(ctx context.Context, k string) error
}

// TraversingBucket is a Bucket that can also enumerate its keys.
type TraversingBucket interface {
	Bucket
	// Keys returns the unordered keys in the bucket.
	Keys(cancel <-chan struct{}) <-chan string
}

// SetMap sets all of the keys in m on b and returns the first error.
func SetMap(ctx context.Context, b Bucket, m map[string][]byte) error {
	var err error
	for k, v := range m {
		if err = b.Set(ctx, k, v); err != nil {
			return fmt.Errorf("setting %s: %w", k, err)
		}
	}
	return nil
}

// DeleteSlice deletes the keys s from b and returns the first error.
func DeleteSlice(ctx context.Context, b Bucket, s []string) error {
	var err error
	for _, k := range s {
		if err = b.Delete(ctx, k); err != nil {
			return fmt.Errorf("deleting %s: %w", k, err)
		}
	}
	return nil
}
