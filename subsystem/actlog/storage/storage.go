// Package storage defines types and interfaces for the activation history store.
package storage

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("activation record not found")

// Record is the activation history of a single radio.
type Record struct {
	RadioID       string    `json:"radio_id"`
	Activated     bool      `json:"activated"`
	LastActivated time.Time `json:"last_activated"`
}

type ReadStorage interface {
	// RetrieveRecord returns the activation record for radioID.
	// ErrRecordNotFound is returned for radios never activated.
	RetrieveRecord(ctx context.Context, radioID string) (*Record, error)

	// RetrieveRecords returns the activation records for radioIDs.
	// Radios with no record are omitted from the returned map.
	RetrieveRecords(ctx context.Context, radioIDs []string) (map[string]Record, error)
}

type Storage interface {
	ReadStorage

	// StoreActivated records that radioID was activated at the given time.
	StoreActivated(ctx context.Context, radioID string, at time.Time) error
}
