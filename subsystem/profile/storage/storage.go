// Package storage defines types and interfaces for the device profile store.
package storage

import (
	"context"
	"errors"
)

var (
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNoDeviceID is returned when no app device ID has been stored yet.
	ErrNoDeviceID = errors.New("app device ID not set")
)

// Profile is a persisted set of device-identifying parameters used to
// initiate an activation run. Profiles are unique by radio ID and are
// treated as immutable for the duration of a run.
type Profile struct {
	RadioID string `json:"radio_id"`
	Label   string `json:"label,omitempty"`

	// Extra carries static vendor fields the dealer service wants
	// echoed back, e.g. vehicle make, model, and year.
	Extra map[string]string `json:"extra,omitempty"`
}

// Valid checks the validity of the profile.
func (p *Profile) Valid() bool {
	return p != nil && p.RadioID != ""
}

type ReadStorage interface {
	// RetrieveProfile returns the stored profile for radioID.
	// ErrProfileNotFound is returned when radioID has not been stored.
	RetrieveProfile(ctx context.Context, radioID string) (*Profile, error)

	// RetrieveProfiles returns all stored profiles in insertion order.
	RetrieveProfiles(ctx context.Context) ([]Profile, error)
}

type Storage interface {
	ReadStorage

	// StoreProfile upserts a profile by its radio ID.
	// The profile must be durable when StoreProfile returns and no
	// concurrent reader may observe a partially written profile.
	StoreProfile(ctx context.Context, p *Profile) error

	// DeleteProfile deletes a profile by radio ID.
	// ErrProfileNotFound is returned when radioID has not been stored.
	DeleteProfile(ctx context.Context, radioID string) error

	// RetrieveAppDeviceID returns the persisted app-installation device
	// ID, or ErrNoDeviceID when none has been generated yet.
	RetrieveAppDeviceID(ctx context.Context) (string, error)

	// StoreAppDeviceID persists the app-installation device ID so it
	// stays consistent between runs.
	StoreAppDeviceID(ctx context.Context, id string) error
}
