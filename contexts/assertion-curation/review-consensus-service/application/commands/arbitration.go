package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type DecideArbitrationCommand struct {
	AdminID      string
	IsAdmin      bool
	DocumentID   string
	AssertionKey string
	Decision     string
	Comment      string
}

type DecideArbitrationResult struct {
	Decision entities.ArbitrationDecision
	Replayed bool
}

// ArbitrationUseCase records terminal admin rulings on conflicting assertions.
type ArbitrationUseCase struct {
	Documents ports.DocumentRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

// Decide appends an arbitrate entry to a conflicting assertion's log. An
// identical repeat after resolution succeeds without writing; any other
// ruling on an arbitrated assertion is refused.
func (u ArbitrationUseCase) Decide(ctx context.Context, cmd DecideArbitrationCommand) (DecideArbitrationResult, error) {
	logger := application.ResolveLogger(u.Logger)
	adminID := strings.TrimSpace(cmd.AdminID)
	documentID := strings.TrimSpace(cmd.DocumentID)
	assertionKey := strings.TrimSpace(cmd.AssertionKey)
	if adminID == "" {
		return DecideArbitrationResult{}, domainerrors.ErrAuthRequired
	}
	if !cmd.IsAdmin {
		logger.Warn("arbitration attempted without admin role",
			"event", "review_arbitration_forbidden",
			"module", application.ModuleName,
			"layer", "application",
			"actor_id", adminID,
			"document_id", documentID,
		)
		return DecideArbitrationResult{}, domainerrors.ErrForbidden
	}
	if documentID == "" || assertionKey == "" {
		return DecideArbitrationResult{}, domainerrors.ErrInvalidRequest
	}
	decision, ok := entities.ParseArbitrationDecision(cmd.Decision)
	if !ok {
		return DecideArbitrationResult{}, domainerrors.ErrInvalidRequest
	}
	comment := strings.TrimSpace(cmd.Comment)
	now := u.now()

	var result DecideArbitrationResult
	err := u.Documents.WithDocument(ctx, documentID, func(ctx context.Context, tx ports.DocumentTx) error {
		assertion, ok := tx.Document().FindAssertion(assertionKey)
		if !ok {
			return domainerrors.ErrAssertionNotFound
		}
		log := entities.GroupDecisions(tx.Decisions())[assertionKey]
		review := services.EvaluateAssertion(assertionKey, log)
		if review.Arbitration != nil {
			existing := *review.Arbitration
			if existing.Decision == decision && services.NormalizeComment(existing.Comment) == services.NormalizeComment(comment) {
				result = DecideArbitrationResult{Decision: existing, Replayed: true}
				return nil
			}
			return domainerrors.ErrAlreadyArbitrated
		}
		if review.Status != services.ReviewStatusConflict {
			return domainerrors.ErrConflictNotFound
		}
		if decision != entities.ActionAccept && comment == "" {
			return &domainerrors.ValidationError{Violations: []domainerrors.Violation{{
				Level:          domainerrors.ViolationLevelError,
				Code:           "comment_required",
				Message:        "A comment is required unless the decision is accept.",
				Field:          "comment",
				SentenceIndex:  assertion.SentenceIndex,
				AssertionIndex: &assertion.AssertionIndex,
			}}}
		}

		entryID, err := u.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		entry := entities.DecisionEntry{
			EntryID:      entryID,
			DocumentID:   documentID,
			AssertionKey: assertionKey,
			ActorID:      adminID,
			ActorRole:    entities.ActorRoleAdmin,
			Action:       entities.ActionArbitrate,
			Decision:     decision,
			Comment:      comment,
			CreatedAt:    now,
		}
		eventID, err := u.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		event, err := application.NewEnvelope(eventID, application.EventArbitrationDecided, "document_id", documentID, now, map[string]any{
			"document_id":   documentID,
			"assertion_key": assertionKey,
			"admin_id":      adminID,
			"decision":      string(decision),
			"decided_at":    now.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return err
		}
		if err := tx.AppendDecisions([]entities.DecisionEntry{entry}); err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(event); err != nil {
			return err
		}
		result = DecideArbitrationResult{Decision: entities.ArbitrationDecision{
			AssertionKey: assertionKey,
			DocumentID:   documentID,
			AdminID:      adminID,
			Decision:     decision,
			Comment:      comment,
			DecidedAt:    now,
		}}
		return nil
	})
	if err != nil {
		logger.Warn("arbitration rejected",
			"event", "review_arbitration_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"admin_id", adminID,
			"document_id", documentID,
			"assertion_key", assertionKey,
			"error", err.Error(),
		)
		return DecideArbitrationResult{}, err
	}
	logger.Info("arbitration decided",
		"event", "review_arbitration_decided",
		"module", application.ModuleName,
		"layer", "application",
		"admin_id", adminID,
		"document_id", documentID,
		"assertion_key", assertionKey,
		"decision", string(result.Decision.Decision),
		"replayed", result.Replayed,
	)
	return result, nil
}

func (u ArbitrationUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
