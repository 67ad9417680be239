// Package test contains shared tests for profile storage backends.
package test

import (
	"context"
	"errors"
	"testing"

	"github.com/oemtools/satactivate/subsystem/profile/storage"
)

func TestProfileStorage(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.RetrieveProfile(ctx, "MISSING")
	if !errors.Is(err, storage.ErrProfileNotFound) {
		t.Errorf("have: %v, want: %v", err, storage.ErrProfileNotFound)
	}

	first := &storage.Profile{
		RadioID: "AA11BB22",
		Label:   "work truck",
		Extra:   map[string]string{"make": "Ford", "model": "F-150", "year": "2019"},
	}
	if err = s.StoreProfile(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err = s.StoreProfile(ctx, &storage.Profile{RadioID: "CC33DD44"}); err != nil {
		t.Fatal(err)
	}

	p, err := s.RetrieveProfile(ctx, "AA11BB22")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := p.Label, first.Label; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := p.Extra["model"], "F-150"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// upsert must keep insertion order
	first.Label = "work truck (updated)"
	if err = s.StoreProfile(ctx, first); err != nil {
		t.Fatal(err)
	}

	profiles, err := s.RetrieveProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(profiles), 2; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := profiles[0].RadioID, "AA11BB22"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := profiles[0].Label, "work truck (updated)"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
	if have, want := profiles[1].RadioID, "CC33DD44"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	if err = s.DeleteProfile(ctx, "AA11BB22"); err != nil {
		t.Fatal(err)
	}
	if err = s.DeleteProfile(ctx, "AA11BB22"); !errors.Is(err, storage.ErrProfileNotFound) {
		t.Errorf("have: %v, want: %v", err, storage.ErrProfileNotFound)
	}
	profiles, err = s.RetrieveProfiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(profiles), 1; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if have, want := profiles[0].RadioID, "CC33DD44"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}

	testAppDeviceID(t, s)
}

func testAppDeviceID(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.RetrieveAppDeviceID(ctx)
	if !errors.Is(err, storage.ErrNoDeviceID) {
		t.Errorf("have: %v, want: %v", err, storage.ErrNoDeviceID)
	}

	if err = s.StoreAppDeviceID(ctx, "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"); err != nil {
		t.Fatal(err)
	}
	id, err := s.RetrieveAppDeviceID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if have, want := id, "f81d4fae-7dec-11d0-a765-00a0c91e6bf6"; have != want {
		t.Errorf("have: %v, want: %v", have, want)
	}
}
