// Package test contains shared tests for activation history backends.
package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oemtools/satactivate/subsystem/actlog/storage"
)

func TestActLogStorage(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	_, err := s.RetrieveRecord(ctx, "NEVER")
	if !errors.Is(err, storage.ErrRecordNotFound) {
		t.Errorf("have: %v, want: %v", err, storage.ErrRecordNotFound)
	}

	first := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if err = s.StoreActivated(ctx, "AA11BB22", first); err != nil {
		t.Fatal(err)
	}

	rec, err := s.RetrieveRecord(ctx, "AA11BB22")
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Activated {
		t.Error("expected record activated")
	}
	if have, want := rec.LastActivated, first; !have.Equal(want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	// re-activation overwrites the timestamp
	second := first.Add(48 * time.Hour)
	if err = s.StoreActivated(ctx, "AA11BB22", second); err != nil {
		t.Fatal(err)
	}
	rec, err = s.RetrieveRecord(ctx, "AA11BB22")
	if err != nil {
		t.Fatal(err)
	}
	if have, want := rec.LastActivated, second; !have.Equal(want) {
		t.Errorf("have: %v, want: %v", have, want)
	}

	records, err := s.RetrieveRecords(ctx, []string{"AA11BB22", "NEVER"})
	if err != nil {
		t.Fatal(err)
	}
	if have, want := len(records), 1; have != want {
		t.Fatalf("have: %v, want: %v", have, want)
	}
	if _, ok := records["AA11BB22"]; !ok {
		t.Error("expected record for AA11BB22")
	}
}
