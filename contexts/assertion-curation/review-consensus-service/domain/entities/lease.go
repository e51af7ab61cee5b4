package entities

import (
	"strings"
	"time"

	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
)

// Lease is the exclusive, time-bounded right of one reviewer to one document.
type Lease struct {
	DocumentID string
	HolderID   string
	AcquiredAt time.Time
	RenewedAt  time.Time
	ExpiresAt  time.Time
}

func NewLease(documentID string, holderID string, now time.Time, ttl time.Duration) (Lease, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(holderID) == "" || ttl <= 0 {
		return Lease{}, domainerrors.ErrInvalidRequest
	}
	now = now.UTC()
	return Lease{
		DocumentID: documentID,
		HolderID:   holderID,
		AcquiredAt: now,
		RenewedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Live reports whether the lease still grants exclusivity at now.
func (l Lease) Live(now time.Time) bool {
	return now.UTC().Before(l.ExpiresAt)
}

func (l Lease) HeldBy(holderID string, now time.Time) bool {
	return l.HolderID == holderID && l.Live(now)
}

// Renewed extends the lease from now.
func (l Lease) Renewed(now time.Time, ttl time.Duration) Lease {
	l.RenewedAt = now.UTC()
	l.ExpiresAt = now.UTC().Add(ttl)
	return l
}
