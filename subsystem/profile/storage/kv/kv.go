// Package kv implements a profile storage backend using key-value storage.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/oemtools/satactivate/subsystem/profile/storage"
	"github.com/oemtools/satactivate/utils/kv"
)

const (
	keyPfxProfile = "profile."
	keyOrder      = "order"
	keyDeviceID   = "device_id"
)

// KV is a profile storage backend using a key-value bucket.
// A store-wide mutex serializes writes so the order index and profile
// records never go out of sync and readers never observe a partial
// upsert.
type KV struct {
	mu sync.RWMutex
	b  kv.Bucket
}

func New(b kv.Bucket) *KV {
	return &KV{b: b}
}

func (s *KV) order(ctx context.Context) ([]string, error) {
	found, err := s.b.Has(ctx, keyOrder)
	if err != nil || !found {
		return nil, err
	}
	raw, err := s.b.Get(ctx, keyOrder)
	if err != nil {
		return nil, fmt.Errorf("getting order index: %w", err)
	}
	var ids []string
	if err = json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("unmarshal order index: %w", err)
	}
	return ids, nil
}

func (s *KV) setOrder(ctx context.Context, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal order index: %w", err)
	}
	return s.b.Set(ctx, keyOrder, raw)
}

func (s *KV) retrieveProfile(ctx context.Context, radioID string) (*storage.Profile, error) {
	raw, err := s.b.Get(ctx, keyPfxProfile+radioID)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrProfileNotFound, radioID)
	} else if err != nil {
		return nil, err
	}
	p := new(storage.Profile)
	if err = json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("unmarshal profile %s: %w", radioID, err)
	}
	return p, nil
}

// RetrieveProfile returns the stored profile for radioID.
func (s *KV) RetrieveProfile(ctx context.Context, radioID string) (*storage.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retrieveProfile(ctx, radioID)
}

// RetrieveProfiles returns all stored profiles in insertion order.
func (s *KV) RetrieveProfiles(ctx context.Context) ([]storage.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.order(ctx)
	if err != nil {
		return nil, err
	}
	var profiles []storage.Profile
	for _, id := range ids {
		p, err := s.retrieveProfile(ctx, id)
		if err != nil {
			return profiles, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// StoreProfile upserts a profile by radio ID and appends new IDs to the
// order index.
func (s *KV) StoreProfile(ctx context.Context, p *storage.Profile) error {
	if !p.Valid() {
		return errors.New("invalid profile")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.b.Set(ctx, keyPfxProfile+p.RadioID, raw); err != nil {
		return fmt.Errorf("setting profile %s: %w", p.RadioID, err)
	}

	ids, err := s.order(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == p.RadioID {
			return nil // already indexed; upsert in place
		}
	}
	return s.setOrder(ctx, append(ids, p.RadioID))
}

// DeleteProfile deletes a profile from the key-value store by radio ID.
func (s *KV) DeleteProfile(ctx context.Context, radioID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.b.Has(ctx, keyPfxProfile+radioID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", storage.ErrProfileNotFound, radioID)
	}
	if err = s.b.Delete(ctx, keyPfxProfile+radioID); err != nil {
		return fmt.Errorf("deleting profile %s: %w", radioID, err)
	}

	ids, err := s.order(ctx)
	if err != nil {
		return err
	}
	keep := ids[:0]
	for _, id := range ids {
		if id != radioID {
			keep = append(keep, id)
		}
	}
	return s.setOrder(ctx, keep)
}

// RetrieveAppDeviceID returns the persisted app device ID.
func (s *KV) RetrieveAppDeviceID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, err := s.b.Get(ctx, keyDeviceID)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return "", storage.ErrNoDeviceID
	} else if err != nil {
		return "", err
	}
	return string(raw), nil
}

// StoreAppDeviceID persists the app device ID.
func (s *KV) StoreAppDeviceID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Set(ctx, keyDeviceID, []byte(id))
}
