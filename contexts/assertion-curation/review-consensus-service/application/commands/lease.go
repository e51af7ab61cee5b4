package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

const defaultLeaseTTL = 60 * time.Second

type AcquireLeaseCommand struct {
	ReviewerID string
}

type AcquireLeaseResult struct {
	Document  entities.Document
	Lease     entities.Lease
	Refreshed bool
}

type LeaseCommand struct {
	ReviewerID string
	DocumentID string
}

// LeaseUseCase grants, renews and releases exclusive document leases.
type LeaseUseCase struct {
	Documents         ports.DocumentRepository
	Leases            ports.LeaseRepository
	Clock             ports.Clock
	LeaseTTL          time.Duration
	RequiredReviewers int
	Logger            *slog.Logger
}

// Acquire hands the reviewer a document. A reviewer holding a live lease gets
// that lease refreshed; otherwise candidates are tried best first and a lost
// race on one document moves on to the next. It never waits on other
// reviewers and returns ErrNoTaskAvailable when nothing is assignable.
func (u LeaseUseCase) Acquire(ctx context.Context, cmd AcquireLeaseCommand) (AcquireLeaseResult, error) {
	logger := application.ResolveLogger(u.Logger)
	reviewerID := strings.TrimSpace(cmd.ReviewerID)
	if reviewerID == "" {
		return AcquireLeaseResult{}, domainerrors.ErrAuthRequired
	}
	now := u.now()

	current, found, err := u.Leases.GetLeaseByHolder(ctx, reviewerID, now)
	if err != nil {
		logger.Error("lease holder lookup failed",
			"event", "review_lease_holder_lookup_failed",
			"module", application.ModuleName,
			"layer", "application",
			"reviewer_id", reviewerID,
			"error", err.Error(),
		)
		return AcquireLeaseResult{}, err
	}
	if found {
		result, err := u.refresh(ctx, reviewerID, current.DocumentID, now)
		if err == nil {
			logger.Info("lease refreshed on acquire",
				"event", "review_lease_refreshed",
				"module", application.ModuleName,
				"layer", "application",
				"reviewer_id", reviewerID,
				"document_id", current.DocumentID,
			)
			return result, nil
		}
		if !errors.Is(err, domainerrors.ErrLeaseExpired) {
			return AcquireLeaseResult{}, err
		}
	}

	candidates, err := u.Leases.ListReviewCandidates(ctx)
	if err != nil {
		return AcquireLeaseResult{}, err
	}
	required := u.requiredReviewers()
	for _, candidate := range services.RankReviewCandidates(candidates, reviewerID, required, now) {
		var result AcquireLeaseResult
		err := u.Documents.WithDocument(ctx, candidate.DocumentID, func(_ context.Context, tx ports.DocumentTx) error {
			if lease, ok := tx.Lease(); ok && lease.Live(now) {
				return domainerrors.ErrLeaseUnavailable
			}
			reviewers := submissionReviewers(tx.Submissions())
			if len(reviewers) >= required || containsReviewer(reviewers, reviewerID) {
				return domainerrors.ErrLeaseUnavailable
			}
			lease, err := entities.NewLease(candidate.DocumentID, reviewerID, now, u.leaseTTL())
			if err != nil {
				return err
			}
			if err := tx.PutLease(lease); err != nil {
				return err
			}
			result = AcquireLeaseResult{Document: tx.Document(), Lease: lease}
			return nil
		})
		if errors.Is(err, domainerrors.ErrLeaseUnavailable) || errors.Is(err, domainerrors.ErrDocumentNotFound) {
			logger.Debug("lease candidate skipped",
				"event", "review_lease_candidate_skipped",
				"module", application.ModuleName,
				"layer", "application",
				"reviewer_id", reviewerID,
				"document_id", candidate.DocumentID,
			)
			continue
		}
		if err != nil {
			logger.Error("lease acquire failed",
				"event", "review_lease_acquire_failed",
				"module", application.ModuleName,
				"layer", "application",
				"reviewer_id", reviewerID,
				"document_id", candidate.DocumentID,
				"error", err.Error(),
			)
			return AcquireLeaseResult{}, err
		}
		logger.Info("lease acquired",
			"event", "review_lease_acquired",
			"module", application.ModuleName,
			"layer", "application",
			"reviewer_id", reviewerID,
			"document_id", candidate.DocumentID,
			"expires_at", result.Lease.ExpiresAt,
		)
		return result, nil
	}

	logger.Info("no document available for reviewer",
		"event", "review_lease_none_available",
		"module", application.ModuleName,
		"layer", "application",
		"reviewer_id", reviewerID,
		"candidate_count", len(candidates),
	)
	return AcquireLeaseResult{}, domainerrors.ErrNoTaskAvailable
}

// Renew extends the caller's live lease. A missing, expired or foreign lease
// is reported as ErrLeaseExpired so the client re-acquires.
func (u LeaseUseCase) Renew(ctx context.Context, cmd LeaseCommand) (entities.Lease, error) {
	logger := application.ResolveLogger(u.Logger)
	reviewerID := strings.TrimSpace(cmd.ReviewerID)
	documentID := strings.TrimSpace(cmd.DocumentID)
	if reviewerID == "" {
		return entities.Lease{}, domainerrors.ErrAuthRequired
	}
	if documentID == "" {
		return entities.Lease{}, domainerrors.ErrInvalidRequest
	}
	result, err := u.refresh(ctx, reviewerID, documentID, u.now())
	if err != nil {
		logger.Warn("lease renew rejected",
			"event", "review_lease_renew_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"reviewer_id", reviewerID,
			"document_id", documentID,
			"error", err.Error(),
		)
		return entities.Lease{}, err
	}
	logger.Debug("lease renewed",
		"event", "review_lease_renewed",
		"module", application.ModuleName,
		"layer", "application",
		"reviewer_id", reviewerID,
		"document_id", documentID,
		"expires_at", result.Lease.ExpiresAt,
	)
	return result.Lease, nil
}

// Release clears the caller's lease. It is idempotent: releasing an absent,
// expired or foreign lease succeeds without changing anything.
func (u LeaseUseCase) Release(ctx context.Context, cmd LeaseCommand) (bool, error) {
	logger := application.ResolveLogger(u.Logger)
	reviewerID := strings.TrimSpace(cmd.ReviewerID)
	documentID := strings.TrimSpace(cmd.DocumentID)
	if reviewerID == "" {
		return false, domainerrors.ErrAuthRequired
	}
	if documentID == "" {
		return false, domainerrors.ErrInvalidRequest
	}
	released := false
	err := u.Documents.WithDocument(ctx, documentID, func(_ context.Context, tx ports.DocumentTx) error {
		lease, ok := tx.Lease()
		if !ok || lease.HolderID != reviewerID {
			return nil
		}
		released = true
		return tx.DeleteLease()
	})
	if errors.Is(err, domainerrors.ErrDocumentNotFound) {
		err = nil
	}
	if err != nil {
		logger.Error("lease release failed",
			"event", "review_lease_release_failed",
			"module", application.ModuleName,
			"layer", "application",
			"reviewer_id", reviewerID,
			"document_id", documentID,
			"error", err.Error(),
		)
		return false, err
	}
	logger.Info("lease release processed",
		"event", "review_lease_released",
		"module", application.ModuleName,
		"layer", "application",
		"reviewer_id", reviewerID,
		"document_id", documentID,
		"released", released,
	)
	return released, nil
}

func (u LeaseUseCase) refresh(ctx context.Context, reviewerID string, documentID string, now time.Time) (AcquireLeaseResult, error) {
	var result AcquireLeaseResult
	err := u.Documents.WithDocument(ctx, documentID, func(_ context.Context, tx ports.DocumentTx) error {
		lease, ok := tx.Lease()
		if !ok || !lease.HeldBy(reviewerID, now) {
			return domainerrors.ErrLeaseExpired
		}
		renewed := lease.Renewed(now, u.leaseTTL())
		if err := tx.PutLease(renewed); err != nil {
			return err
		}
		result = AcquireLeaseResult{Document: tx.Document(), Lease: renewed, Refreshed: true}
		return nil
	})
	return result, err
}

func (u LeaseUseCase) leaseTTL() time.Duration {
	if u.LeaseTTL <= 0 {
		return defaultLeaseTTL
	}
	return u.LeaseTTL
}

func (u LeaseUseCase) requiredReviewers() int {
	if u.RequiredReviewers <= 0 {
		return services.DefaultRequiredReviewers
	}
	return u.RequiredReviewers
}

func (u LeaseUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}

func submissionReviewers(submissions []entities.Submission) []string {
	seen := make(map[string]struct{}, len(submissions))
	out := make([]string, 0, len(submissions))
	for _, submission := range submissions {
		if _, ok := seen[submission.ReviewerID]; ok {
			continue
		}
		seen[submission.ReviewerID] = struct{}{}
		out = append(out, submission.ReviewerID)
	}
	return out
}

func containsReviewer(reviewers []string, reviewerID string) bool {
	for _, reviewer := range reviewers {
		if reviewer == reviewerID {
			return true
		}
	}
	return false
}
