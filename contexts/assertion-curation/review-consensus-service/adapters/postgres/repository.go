package postgresadapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the review tables, their id sequences and constraints.
func (r *Repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	for _, name := range []string{documentSequenceName, entrySequenceName} {
		if err := db.Exec("CREATE SEQUENCE IF NOT EXISTS " + name).Error; err != nil {
			return fmt.Errorf("create sequence %s: %w", name, err)
		}
	}
	if err := db.AutoMigrate(
		&documentModel{},
		&sentenceModel{},
		&assertionModel{},
		&decisionEntryModel{},
		&submissionModel{},
		&leaseModel{},
		&snapshotModel{},
		&idempotencyModel{},
		&outboxModel{},
	); err != nil {
		return fmt.Errorf("auto migrate review tables: %w", err)
	}
	return nil
}

func (r *Repository) ImportDocument(ctx context.Context, doc entities.Document, now time.Time) (ports.ImportOutcome, error) {
	documentID := strings.TrimSpace(doc.DocumentID)
	if documentID == "" {
		return "", domainerrors.ErrInvalidDocument
	}

	var outcome ports.ImportOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, found, err := loadDocument(tx, documentID, true)
		if err != nil {
			return err
		}
		if !found {
			base := entities.Document{
				DocumentID: documentID,
				Title:      doc.Title,
				Source:     doc.Source,
				Metadata:   doc.Metadata,
				ImportedAt: now.UTC(),
			}
			row := documentModelFromEntity(base)
			created := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Omit("sequence").
				Create(&row)
			if created.Error != nil {
				return created.Error
			}
			if created.RowsAffected > 0 {
				merged, _ := services.MergeDocument(base, doc)
				if err := insertDocumentContent(tx, entities.Document{DocumentID: documentID}, merged); err != nil {
					return err
				}
				outcome = ports.ImportOutcomeImported
				return nil
			}
			// A concurrent import created the row first; merge into it.
			existing, found, err = loadDocument(tx, documentID, true)
			if err != nil {
				return err
			}
			if !found {
				return domainerrors.ErrRepositoryInvariantBroke
			}
		}

		merged, changed := services.MergeDocument(existing, doc)
		if !changed {
			outcome = ports.ImportOutcomeUnchanged
			return nil
		}
		if err := tx.Model(&documentModel{}).
			Where("document_id = ?", documentID).
			Updates(map[string]any{
				"title":    merged.Title,
				"source":   merged.Source,
				"metadata": documentModelFromEntity(merged).Metadata,
			}).Error; err != nil {
			return err
		}
		if err := insertDocumentContent(tx, existing, merged); err != nil {
			return err
		}
		outcome = ports.ImportOutcomeMerged
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// insertDocumentContent writes the sentences and assertions present in next
// but absent from prev.
func insertDocumentContent(tx *gorm.DB, prev entities.Document, next entities.Document) error {
	known := make(map[int]struct{}, len(prev.Sentences))
	for _, sentence := range prev.Sentences {
		known[sentence.Index] = struct{}{}
	}
	var sentences []sentenceModel
	var assertions []assertionModel
	for _, sentence := range next.Sentences {
		if _, ok := known[sentence.Index]; !ok {
			sentences = append(sentences, sentenceModel{
				DocumentID:    next.DocumentID,
				SentenceIndex: sentence.Index,
				Text:          sentence.Text,
			})
		}
		for _, assertion := range sentence.Assertions {
			if _, exists := prev.FindAssertion(assertion.Key); exists {
				continue
			}
			assertions = append(assertions, assertionModelFromEntity(assertion))
		}
	}
	if len(sentences) > 0 {
		if err := tx.Create(&sentences).Error; err != nil {
			return mapUniqueViolation(err)
		}
	}
	if len(assertions) > 0 {
		if err := tx.Create(&assertions).Error; err != nil {
			return mapUniqueViolation(err)
		}
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, documentID string) (entities.Document, error) {
	doc, found, err := loadDocument(r.db.WithContext(ctx), strings.TrimSpace(documentID), false)
	if err != nil {
		return entities.Document{}, err
	}
	if !found {
		return entities.Document{}, domainerrors.ErrDocumentNotFound
	}
	return doc, nil
}

func (r *Repository) GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error) {
	var row submissionModel
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Submission{}, domainerrors.ErrRepositoryInvariantBroke
		}
		return entities.Submission{}, err
	}
	return row.toEntity(), nil
}

// WithDocument runs fn inside one transaction holding the document row lock.
// Staged writes go straight to the transaction and are mirrored in memory so
// fn observes its own writes.
func (r *Repository) WithDocument(
	ctx context.Context,
	documentID string,
	fn func(ctx context.Context, tx ports.DocumentTx) error,
) error {
	documentID = strings.TrimSpace(documentID)
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		doc, found, err := loadDocument(db, documentID, true)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.ErrDocumentNotFound
		}

		unit := &documentTx{db: db, doc: doc}
		var entryRows []decisionEntryModel
		if err := db.Where("document_id = ?", documentID).
			Order("sequence ASC").
			Find(&entryRows).Error; err != nil {
			return err
		}
		for _, row := range entryRows {
			unit.decisions = append(unit.decisions, row.toEntity())
		}
		var submissionRows []submissionModel
		if err := db.Where("document_id = ?", documentID).
			Order("committed_at ASC").
			Find(&submissionRows).Error; err != nil {
			return err
		}
		for _, row := range submissionRows {
			unit.submissions = append(unit.submissions, row.toEntity())
		}
		var leaseRow leaseModel
		err = db.Where("document_id = ?", documentID).First(&leaseRow).Error
		switch {
		case err == nil:
			lease := leaseRow.toEntity()
			unit.lease = &lease
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		return fn(ctx, unit)
	})
}

func (r *Repository) ListReviewCandidates(ctx context.Context) ([]services.ReviewCandidate, error) {
	db := r.db.WithContext(ctx)
	var docs []documentModel
	if err := db.Select("document_id", "sequence").
		Order("sequence ASC").
		Find(&docs).Error; err != nil {
		return nil, err
	}
	var reviews []submissionModel
	if err := db.Select("document_id", "reviewer_id", "committed_at").
		Order("committed_at ASC").
		Find(&reviews).Error; err != nil {
		return nil, err
	}
	var leases []leaseModel
	if err := db.Find(&leases).Error; err != nil {
		return nil, err
	}

	reviewers := make(map[string][]string)
	for _, row := range reviews {
		reviewers[row.DocumentID] = append(reviewers[row.DocumentID], row.ReviewerID)
	}
	leaseByDoc := make(map[string]entities.Lease, len(leases))
	for _, row := range leases {
		leaseByDoc[row.DocumentID] = row.toEntity()
	}

	candidates := make([]services.ReviewCandidate, 0, len(docs))
	for _, row := range docs {
		candidate := services.ReviewCandidate{
			DocumentID: row.DocumentID,
			Sequence:   row.Sequence,
			Reviewers:  reviewers[row.DocumentID],
		}
		if lease, ok := leaseByDoc[row.DocumentID]; ok {
			copied := lease
			candidate.Lease = &copied
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (r *Repository) GetLeaseByHolder(ctx context.Context, holderID string, now time.Time) (entities.Lease, bool, error) {
	var row leaseModel
	err := r.db.WithContext(ctx).
		Where("holder_id = ? AND expires_at > ?", holderID, now.UTC()).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Lease{}, false, nil
		}
		return entities.Lease{}, false, err
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListLeases(ctx context.Context, now time.Time) ([]entities.Lease, error) {
	var rows []leaseModel
	if err := r.db.WithContext(ctx).
		Where("expires_at > ?", now.UTC()).
		Order("document_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entities.Lease, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]entities.Lease, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []leaseModel
	if err := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entities.Lease, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// ScanCorpus reads inside one REPEATABLE READ, READ ONLY transaction, so
// every callback observes the same committed snapshot.
func (r *Repository) ScanCorpus(
	ctx context.Context,
	filter ports.CorpusFilter,
	fn func(doc entities.Document, decisions []entities.DecisionEntry) error,
) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&documentModel{}).Order("sequence ASC")
		if filter.DocumentID != "" {
			query = query.Where("document_id = ?", filter.DocumentID)
		}
		var ids []string
		if err := query.Pluck("document_id", &ids).Error; err != nil {
			return err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, found, err := loadDocument(tx, id, false)
			if err != nil {
				return err
			}
			if !found {
				continue
			}
			var entryRows []decisionEntryModel
			if err := tx.Where("document_id = ?", id).
				Order("sequence ASC").
				Find(&entryRows).Error; err != nil {
				return err
			}
			decisions := make([]entities.DecisionEntry, 0, len(entryRows))
			for _, row := range entryRows {
				decisions = append(decisions, row.toEntity())
			}
			if err := fn(doc, decisions); err != nil {
				return err
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func (r *Repository) RecordSnapshot(ctx context.Context, snapshot entities.ConsensusSnapshot, event ports.EventEnvelope) error {
	outboxRow, err := outboxModelFromEnvelope(event)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := snapshotModel{
			SnapshotID:  snapshot.SnapshotID,
			Path:        snapshot.Path,
			RecordCount: snapshot.RecordCount,
			SHA256:      snapshot.SHA256,
			CreatedBy:   snapshot.CreatedBy,
			CreatedAt:   snapshot.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return mapUniqueViolation(err)
		}
		if err := tx.Create(&outboxRow).Error; err != nil {
			return mapUniqueViolation(err)
		}
		return nil
	})
}

func (r *Repository) ListSnapshots(ctx context.Context) ([]entities.ConsensusSnapshot, error) {
	var rows []snapshotModel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entities.ConsensusSnapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, err
	}

	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", key).
			Delete(&idempotencyModel{}).
			Error; err != nil {
			return ports.IdempotencyRecord{}, false, err
		}
		return ports.IdempotencyRecord{}, false, nil
	}

	return row.toPort(), true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModelFromPort(record)
	createResult := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row)
	if createResult.Error != nil {
		return createResult.Error
	}
	if createResult.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := r.db.WithContext(ctx).
		Where("key = ?", record.Key).
		First(&existing).
		Error; err != nil {
		return err
	}
	if existing.RequestHash != record.RequestHash {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

// loadDocument reads a document aggregate, optionally locking its row.
func loadDocument(tx *gorm.DB, documentID string, lock bool) (entities.Document, bool, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row documentModel
	if err := query.Where("document_id = ?", documentID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Document{}, false, nil
		}
		return entities.Document{}, false, err
	}
	var sentences []sentenceModel
	if err := tx.Where("document_id = ?", documentID).
		Order("sentence_index ASC").
		Find(&sentences).Error; err != nil {
		return entities.Document{}, false, err
	}
	var assertions []assertionModel
	if err := tx.Where("document_id = ?", documentID).
		Order("sentence_index ASC, assertion_index ASC").
		Find(&assertions).Error; err != nil {
		return entities.Document{}, false, err
	}
	return assembleDocument(row, sentences, assertions), true, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func mapUniqueViolation(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	switch constraintName(err) {
	case leaseHolderConstraint:
		return domainerrors.ErrLeaseUnavailable
	default:
		return domainerrors.ErrRepositoryInvariantBroke
	}
}
