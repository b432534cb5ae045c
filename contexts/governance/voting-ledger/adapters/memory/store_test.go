package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "chainballot/contexts/governance/voting-ledger/domain/errors"
)

func TestReserveEventReportsReplay(t *testing.T) {
	store := NewStore()
	expires := time.Date(2026, time.March, 8, 12, 0, 0, 0, time.UTC)

	replayed, err := store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	if err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}
	if replayed {
		t.Fatalf("first reservation must not report replayed")
	}

	replayed, err = store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	if err != nil {
		t.Fatalf("replay reservation failed: %v", err)
	}
	if !replayed {
		t.Fatalf("identical payload for a known event must report replayed")
	}
}

func TestReserveEventConflictingPayload(t *testing.T) {
	store := NewStore()
	expires := time.Date(2026, time.March, 8, 12, 0, 0, 0, time.UTC)

	if _, err := store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires); err != nil {
		t.Fatalf("first reservation failed: %v", err)
	}

	_, err := store.ReserveEvent(context.Background(), "evt-1", "hash-b", expires)
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected ErrConflict for the same event id with a different payload, got %v", err)
	}

	replayed, err := store.ReserveEvent(context.Background(), "evt-1", "hash-a", expires)
	if err != nil {
		t.Fatalf("original reservation lookup failed: %v", err)
	}
	if !replayed {
		t.Fatalf("conflicting write must not displace the original reservation")
	}
}
