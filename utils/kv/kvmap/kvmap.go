// Package kvmap implements an in-memory key-value bucket backed by a Go map.
package kvmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/oemtools/satactivate/utils/kv"
)

// KVMap is an in-memory key-value bucket backed by a Go map.
type KVMap struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewBucket() *KVMap {
	return &KVMap{m: make(map[string][]byte)}
}

func (s *KVMap) Get(_ context.Context, k string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kv.ErrKeyNotFound, k)
	}
	return v, nil
}

func (s *KVMap) Set(_ context.Context, k string, v []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
	return nil
}

func (s *KVMap) Has(_ context.Context, k string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[k]
	return ok, nil
}

func (s *KVMap) Delete(_ context.Context, k string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
	return nil
}

// Keys returns the keys in this bucket.
// A goroutine holds a read lock on the internal map until the channel
// is drained or cancel is closed; writing to the bucket while iterating
// will deadlock.
func (s *KVMap) Keys(cancel <-chan struct{}) <-chan string {
	r := make(chan string)
	go func() {
		s.mu.RLock()
		defer s.mu.RUnlock()
		defer close(r)
		for k := range s.m {
			select {
			case <-cancel:
				return
			case r <- k:
			}
		}
	}()
	return r
}
