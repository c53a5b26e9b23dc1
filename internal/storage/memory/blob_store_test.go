package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/storefront-ingest/internal/catalog"
)

func TestBlobStoreRoundTripCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "state/ids.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://state/ids.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'

	got, err := store.GetObject(context.Background(), "state/ids.json")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", got)
	}
	got[0] = 'X'
	again, _ := store.GetObject(context.Background(), "state/ids.json")
	if string(again) != "content" {
		t.Fatalf("expected returned copy to be detached, got %q", again)
	}
	if store.Writes("state/ids.json") != 1 {
		t.Fatalf("expected one write, got %d", store.Writes("state/ids.json"))
	}
}

func TestBlobStoreMissingIsNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "absent")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
