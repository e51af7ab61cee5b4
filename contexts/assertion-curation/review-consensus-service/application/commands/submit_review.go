package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type SubmitReviewCommand struct {
	ReviewerID     string
	DocumentID     string
	IdempotencyKey string
	Decisions      []services.ReviewDecision
	Additions      []services.ReviewAddition
}

type SubmitReviewResult struct {
	Submission entities.Submission
	Warnings   []domainerrors.Violation
	Replayed   bool
}

// SubmitReviewUseCase validates and commits a reviewer's complete decision
// set for a leased document.
type SubmitReviewUseCase struct {
	Documents      ports.DocumentRepository
	Vocabulary     ports.VocabularyProvider
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	FuzzyThreshold float64
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// Execute runs the submission in this order:
// 1) idempotency lookup/replay
// 2) lease check and full validation under the document lock
// 3) atomic write of assertions, decisions, submission, outbox event and
// lease release
// 4) idempotency record write.
func (u SubmitReviewUseCase) Execute(ctx context.Context, cmd SubmitReviewCommand) (SubmitReviewResult, error) {
	logger := application.ResolveLogger(u.Logger)
	reviewerID := strings.TrimSpace(cmd.ReviewerID)
	documentID := strings.TrimSpace(cmd.DocumentID)
	if reviewerID == "" {
		return SubmitReviewResult{}, domainerrors.ErrAuthRequired
	}
	if documentID == "" {
		return SubmitReviewResult{}, domainerrors.ErrInvalidRequest
	}
	now := u.now()

	logger.Info("review submit started",
		"event", "review_submit_started",
		"module", application.ModuleName,
		"layer", "application",
		"reviewer_id", reviewerID,
		"document_id", documentID,
		"decision_count", len(cmd.Decisions),
		"addition_count", len(cmd.Additions),
	)

	idempotencyKey := scopedIdempotencyKey(reviewerID, documentID, cmd.IdempotencyKey)
	requestHash := hashSubmitCommand(cmd)
	if idempotencyKey != "" && u.Idempotency != nil {
		record, found, err := u.Idempotency.Get(ctx, idempotencyKey, now)
		if err != nil {
			logger.Error("review submit idempotency lookup failed",
				"event", "review_submit_idempotency_lookup_failed",
				"module", application.ModuleName,
				"layer", "application",
				"reviewer_id", reviewerID,
				"document_id", documentID,
				"error", err.Error(),
			)
			return SubmitReviewResult{}, err
		}
		if found {
			if record.RequestHash != requestHash {
				logger.Warn("review submit idempotency conflict",
					"event", "review_submit_idempotency_conflict",
					"module", application.ModuleName,
					"layer", "application",
					"reviewer_id", reviewerID,
					"document_id", documentID,
				)
				return SubmitReviewResult{}, domainerrors.ErrIdempotencyKeyConflict
			}
			submission, err := u.Documents.GetSubmission(ctx, record.SubmissionID)
			if err != nil {
				return SubmitReviewResult{}, err
			}
			logger.Info("review submit replayed",
				"event", "review_submit_replayed",
				"module", application.ModuleName,
				"layer", "application",
				"reviewer_id", reviewerID,
				"document_id", documentID,
				"submission_id", submission.SubmissionID,
			)
			return SubmitReviewResult{Submission: submission, Replayed: true}, nil
		}
	}

	vocabulary, err := u.Vocabulary.Vocabulary(ctx)
	if err != nil {
		return SubmitReviewResult{}, err
	}

	var result SubmitReviewResult
	err = u.Documents.WithDocument(ctx, documentID, func(ctx context.Context, tx ports.DocumentTx) error {
		lease, ok := tx.Lease()
		if !ok || !lease.HeldBy(reviewerID, now) {
			return domainerrors.ErrLeaseExpired
		}
		doc := tx.Document()
		arbitrated := make(map[string]bool)
		for key, log := range entities.GroupDecisions(tx.Decisions()) {
			if _, done := entities.LatestArbitration(log); done {
				arbitrated[key] = true
			}
		}

		validated, err := services.ValidateSubmission(doc, arbitrated, cmd.Decisions, cmd.Additions, services.ValidationPolicy{
			Vocabulary:     vocabulary,
			FuzzyThreshold: u.FuzzyThreshold,
		})
		if err != nil {
			return err
		}

		submissionID, err := u.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		additions := services.AssignAdditionIndexes(doc, validated.Additions)
		for i := range additions {
			additions[i].CreatedBy = reviewerID
			additions[i].CreatedAt = now
		}

		entries := make([]entities.DecisionEntry, 0, len(validated.Decisions)+len(additions))
		for _, decision := range validated.Decisions {
			entry, err := u.newEntry(ctx, documentID, decision.Assertion.Key, reviewerID, submissionID, now)
			if err != nil {
				return err
			}
			entry.Action = decision.Action
			entry.Comment = decision.Comment
			entry.Proposed = decision.Proposed
			entries = append(entries, entry)
		}
		for _, assertion := range additions {
			entry, err := u.newEntry(ctx, documentID, assertion.Key, reviewerID, submissionID, now)
			if err != nil {
				return err
			}
			entry.Action = entities.ActionAdd
			entry.Comment = validated.Comments[assertion.Key]
			entries = append(entries, entry)
		}

		submission := entities.Submission{
			SubmissionID:    submissionID,
			DocumentID:      documentID,
			ReviewerID:      reviewerID,
			LeaseAcquiredAt: lease.AcquiredAt,
			DecisionCount:   len(validated.Decisions),
			AddedCount:      len(additions),
			CommittedAt:     now,
		}
		eventID, err := u.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		event, err := application.NewEnvelope(eventID, application.EventReviewSubmitted, "document_id", documentID, now, map[string]any{
			"submission_id":  submissionID,
			"document_id":    documentID,
			"reviewer_id":    reviewerID,
			"decision_count": submission.DecisionCount,
			"added_count":    submission.AddedCount,
			"committed_at":   now.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}

		if err := tx.InsertAssertions(additions); err != nil {
			return err
		}
		if err := tx.AppendDecisions(entries); err != nil {
			return err
		}
		if err := tx.RecordSubmission(submission); err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(event); err != nil {
			return err
		}
		if err := tx.DeleteLease(); err != nil {
			return err
		}
		result = SubmitReviewResult{Submission: submission, Warnings: validated.Warnings}
		return nil
	})
	if err != nil {
		logger.Warn("review submit rejected",
			"event", "review_submit_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"reviewer_id", reviewerID,
			"document_id", documentID,
			"error", err.Error(),
		)
		return SubmitReviewResult{}, err
	}

	if idempotencyKey != "" && u.Idempotency != nil {
		if err := u.Idempotency.Put(ctx, ports.IdempotencyRecord{
			Key:          idempotencyKey,
			RequestHash:  requestHash,
			SubmissionID: result.Submission.SubmissionID,
			ExpiresAt:    now.Add(u.idempotencyTTL()),
		}); err != nil {
			logger.Error("review submit idempotency write failed",
				"event", "review_submit_idempotency_write_failed",
				"module", application.ModuleName,
				"layer", "application",
				"submission_id", result.Submission.SubmissionID,
				"error", err.Error(),
			)
			return SubmitReviewResult{}, err
		}
	}

	logger.Info("review submitted",
		"event", "review_submitted",
		"module", application.ModuleName,
		"layer", "application",
		"reviewer_id", reviewerID,
		"document_id", documentID,
		"submission_id", result.Submission.SubmissionID,
		"decision_count", result.Submission.DecisionCount,
		"added_count", result.Submission.AddedCount,
		"warning_count", len(result.Warnings),
	)
	return result, nil
}

func (u SubmitReviewUseCase) newEntry(
	ctx context.Context,
	documentID string,
	assertionKey string,
	reviewerID string,
	submissionID string,
	now time.Time,
) (entities.DecisionEntry, error) {
	entryID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return entities.DecisionEntry{}, err
	}
	return entities.DecisionEntry{
		EntryID:      entryID,
		DocumentID:   documentID,
		AssertionKey: assertionKey,
		ActorID:      reviewerID,
		ActorRole:    entities.ActorRoleReviewer,
		SubmissionID: submissionID,
		CreatedAt:    now,
	}, nil
}

func (u SubmitReviewUseCase) idempotencyTTL() time.Duration {
	if u.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return u.IdempotencyTTL
}

func (u SubmitReviewUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func scopedIdempotencyKey(reviewerID string, documentID string, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return "review-submit:" + reviewerID + ":" + documentID + ":" + key
}

func hashSubmitCommand(cmd SubmitReviewCommand) string {
	payload, _ := json.Marshal(struct {
		ReviewerID string                    `json:"reviewer_id"`
		DocumentID string                    `json:"document_id"`
		Decisions  []services.ReviewDecision `json:"decisions"`
		Additions  []services.ReviewAddition `json:"additions"`
	}{
		ReviewerID: strings.TrimSpace(cmd.ReviewerID),
		DocumentID: strings.TrimSpace(cmd.DocumentID),
		Decisions:  cmd.Decisions,
		Additions:  cmd.Additions,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
