package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

func TestIdempotencyRecordOutlivesCacheDefault(t *testing.T) {
	store := NewStore(nil, nil)
	now := time.Now().UTC()
	record := ports.IdempotencyRecord{
		Key:          "k1",
		RequestHash:  "h1",
		SubmissionID: "s1",
		ExpiresAt:    now.Add(72 * time.Hour),
	}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("put: %v", err)
	}

	if ttl := idempotencyTTL(record.ExpiresAt); ttl <= 48*time.Hour {
		t.Fatalf("expected cache lifetime to follow ExpiresAt, got %s", ttl)
	}
	_, expiresAt, ok := store.idempotency.GetWithExpiration("k1")
	if !ok {
		t.Fatalf("expected record in cache")
	}
	if expiresAt.Before(now.Add(48 * time.Hour)) {
		t.Fatalf("expected cache expiry after 48h, got %s", expiresAt)
	}

	got, ok, err := store.Get(context.Background(), "k1", now.Add(48*time.Hour))
	if err != nil || !ok {
		t.Fatalf("expected replay at 48h, ok=%v err=%v", ok, err)
	}
	if got.SubmissionID != "s1" {
		t.Fatalf("unexpected submission %q", got.SubmissionID)
	}

	if _, ok, _ := store.Get(context.Background(), "k1", now.Add(73*time.Hour)); ok {
		t.Fatalf("expected record to lapse after ExpiresAt")
	}
}

func TestIdempotencyPutRejectsDifferentPayload(t *testing.T) {
	store := NewStore(nil, nil)
	expires := time.Now().Add(time.Hour)
	if err := store.Put(context.Background(), ports.IdempotencyRecord{Key: "k1", RequestHash: "h1", ExpiresAt: expires}); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := store.Put(context.Background(), ports.IdempotencyRecord{Key: "k1", RequestHash: "h2", ExpiresAt: expires})
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestIdempotencyRecordStampedByEarlierClockStillChecked(t *testing.T) {
	store := NewStore(nil, nil)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	record := ports.IdempotencyRecord{Key: "k1", RequestHash: "h1", SubmissionID: "s1", ExpiresAt: past.Add(time.Hour)}
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "k1", past.Add(30*time.Minute)); !ok {
		t.Fatalf("expected replay within the caller's window")
	}
	if _, ok, _ := store.Get(context.Background(), "k1", past.Add(2*time.Hour)); ok {
		t.Fatalf("expected expiry on the caller's clock")
	}
}
