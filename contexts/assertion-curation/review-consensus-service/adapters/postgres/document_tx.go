package postgresadapter

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// documentTx writes through to the open transaction and keeps an in-memory
// mirror of the document state for reads.
type documentTx struct {
	db          *gorm.DB
	doc         entities.Document
	decisions   []entities.DecisionEntry
	submissions []entities.Submission
	lease       *entities.Lease
}

func (t *documentTx) Document() entities.Document {
	return t.doc.Clone()
}

func (t *documentTx) Decisions() []entities.DecisionEntry {
	return append([]entities.DecisionEntry(nil), t.decisions...)
}

func (t *documentTx) Submissions() []entities.Submission {
	return append([]entities.Submission(nil), t.submissions...)
}

func (t *documentTx) Lease() (entities.Lease, bool) {
	if t.lease == nil {
		return entities.Lease{}, false
	}
	return *t.lease, true
}

// PutLease upserts the document's lease. Stale leases the holder keeps on
// other documents are dropped first; a live one trips the holder unique
// index and surfaces as ErrLeaseUnavailable.
func (t *documentTx) PutLease(lease entities.Lease) error {
	if lease.DocumentID != t.doc.DocumentID {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	if err := t.db.
		Where("holder_id = ? AND document_id <> ? AND expires_at <= ?", lease.HolderID, lease.DocumentID, lease.RenewedAt.UTC()).
		Delete(&leaseModel{}).Error; err != nil {
		return err
	}
	row := leaseModelFromEntity(lease)
	if err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder_id", "acquired_at", "renewed_at", "expires_at"}),
	}).Create(&row).Error; err != nil {
		return mapUniqueViolation(err)
	}
	t.lease = &lease
	return nil
}

func (t *documentTx) DeleteLease() error {
	if err := t.db.Where("document_id = ?", t.doc.DocumentID).Delete(&leaseModel{}).Error; err != nil {
		return err
	}
	t.lease = nil
	return nil
}

func (t *documentTx) InsertAssertions(assertions []entities.Assertion) error {
	if len(assertions) == 0 {
		return nil
	}
	rows := make([]assertionModel, 0, len(assertions))
	for _, assertion := range assertions {
		if _, exists := t.doc.FindAssertion(assertion.Key); exists {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		placed := false
		for i := range t.doc.Sentences {
			if t.doc.Sentences[i].Index == assertion.SentenceIndex {
				t.doc.Sentences[i].Assertions = append(t.doc.Sentences[i].Assertions, assertion)
				placed = true
				break
			}
		}
		if !placed {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		rows = append(rows, assertionModelFromEntity(assertion))
	}
	if err := t.db.Create(&rows).Error; err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (t *documentTx) AppendDecisions(entries []entities.DecisionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]decisionEntryModel, 0, len(entries))
	for _, entry := range entries {
		if entry.DocumentID != t.doc.DocumentID {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		row, err := decisionEntryModelFromEntity(entry)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if err := t.db.Omit("sequence").Create(&rows).Error; err != nil {
		return mapUniqueViolation(err)
	}
	t.decisions = append(t.decisions, entries...)
	return nil
}

func (t *documentTx) RecordSubmission(submission entities.Submission) error {
	row := submissionModelFromEntity(submission)
	if err := t.db.Create(&row).Error; err != nil {
		return mapUniqueViolation(err)
	}
	t.submissions = append(t.submissions, submission)
	return nil
}

func (t *documentTx) EnqueueOutbox(event ports.EventEnvelope) error {
	row, err := outboxModelFromEnvelope(event)
	if err != nil {
		return err
	}
	if err := t.db.Create(&row).Error; err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}
