package queries

import (
	"context"
	"strings"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type Task struct {
	Document entities.Document
	Lease    entities.Lease
}

// TaskUseCase serves lease-scoped reads.
type TaskUseCase struct {
	Documents ports.DocumentRepository
	Leases    ports.LeaseRepository
	Vocab     ports.VocabularyProvider
	Clock     ports.Clock
}

// GetTask returns the document only to the reviewer currently leasing it.
func (u TaskUseCase) GetTask(ctx context.Context, reviewerID string, documentID string) (Task, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	documentID = strings.TrimSpace(documentID)
	if reviewerID == "" {
		return Task{}, domainerrors.ErrAuthRequired
	}
	lease, found, err := u.Leases.GetLeaseByHolder(ctx, reviewerID, u.now())
	if err != nil {
		return Task{}, err
	}
	if !found || lease.DocumentID != documentID {
		return Task{}, domainerrors.ErrLeaseExpired
	}
	doc, err := u.Documents.GetDocument(ctx, documentID)
	if err != nil {
		return Task{}, err
	}
	return Task{Document: doc, Lease: lease}, nil
}

func (u TaskUseCase) ListLeases(ctx context.Context) ([]entities.Lease, error) {
	return u.Leases.ListLeases(ctx, u.now())
}

func (u TaskUseCase) Vocabulary(ctx context.Context) (entities.Vocabulary, error) {
	return u.Vocab.Vocabulary(ctx)
}

func (u TaskUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
