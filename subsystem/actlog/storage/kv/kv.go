// Package kv implements an activation history backend using key-value storage.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oemtools/satactivate/subsystem/actlog/storage"
	"github.com/oemtools/satactivate/utils/kv"
)

const keyPfxRecord = "act."

// KV is an activation history backend using a key-value bucket.
type KV struct {
	b kv.Bucket
}

func New(b kv.Bucket) *KV {
	return &KV{b: b}
}

// RetrieveRecord returns the activation record for radioID.
func (s *KV) RetrieveRecord(ctx context.Context, radioID string) (*storage.Record, error) {
	raw, err := s.b.Get(ctx, keyPfxRecord+radioID)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrRecordNotFound, radioID)
	} else if err != nil {
		return nil, err
	}
	rec := new(storage.Record)
	if err = json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", radioID, err)
	}
	return rec, nil
}

// RetrieveRecords returns activation records for radioIDs, omitting
// radios that have never been activated.
func (s *KV) RetrieveRecords(ctx context.Context, radioIDs []string) (map[string]storage.Record, error) {
	r := make(map[string]storage.Record)
	for _, id := range radioIDs {
		rec, err := s.RetrieveRecord(ctx, id)
		if errors.Is(err, storage.ErrRecordNotFound) {
			continue
		} else if err != nil {
			return r, err
		}
		r[id] = *rec
	}
	return r, nil
}

// StoreActivated records that radioID was activated at the given time.
func (s *KV) StoreActivated(ctx context.Context, radioID string, at time.Time) error {
	raw, err := json.Marshal(&storage.Record{
		RadioID:       radioID,
		Activated:     true,
		LastActivated: at,
	})
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err = s.b.Set(ctx, keyPfxRecord+radioID, raw); err != nil {
		return fmt.Errorf("setting record %s: %w", radioID, err)
	}
	return nil
}
