package queries

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// AdminStats is a point-in-time summary of review progress.
type AdminStats struct {
	Documents         int
	ReviewedDocuments int
	InReview          int
	ReviewedRatio     float64
	Reviewers         int
	Assertions        int
	OpenConflicts     int
	Arbitrations      int
	ActiveLeases      int
	LastSnapshotAt    *time.Time
}

// AdminUseCase serves admin-only reads over the decision logs.
type AdminUseCase struct {
	Corpus            ports.CorpusReader
	Leases            ports.LeaseRepository
	Snapshots         ports.SnapshotRepository
	Clock             ports.Clock
	RequiredReviewers int
	Logger            *slog.Logger
}

// ArbitrationHistory returns the arbitrate entries recorded for one
// assertion, oldest first. An assertion never arbitrated has an empty history.
func (u AdminUseCase) ArbitrationHistory(ctx context.Context, documentID string, assertionKey string) ([]entities.DecisionEntry, error) {
	documentID = strings.TrimSpace(documentID)
	assertionKey = strings.TrimSpace(assertionKey)
	if documentID == "" || assertionKey == "" {
		return nil, domainerrors.ErrInvalidRequest
	}

	history := make([]entities.DecisionEntry, 0)
	found := false
	err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{DocumentID: documentID},
		func(doc entities.Document, decisions []entities.DecisionEntry) error {
			found = true
			if _, ok := doc.FindAssertion(assertionKey); !ok {
				return domainerrors.ErrAssertionNotFound
			}
			for _, entry := range entities.GroupDecisions(decisions)[assertionKey] {
				if entry.IsArbitration() {
					history = append(history, entry)
				}
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domainerrors.ErrDocumentNotFound
	}
	return history, nil
}

// Stats scans the corpus once and counts documents, reviewers, conflicts and
// rulings. A document counts as reviewed once it reaches the reviewer quorum.
func (u AdminUseCase) Stats(ctx context.Context) (AdminStats, error) {
	logger := application.ResolveLogger(u.Logger)
	required := u.RequiredReviewers
	if required <= 0 {
		required = services.DefaultRequiredReviewers
	}

	var stats AdminStats
	reviewers := make(map[string]struct{})
	err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{}, func(doc entities.Document, decisions []entities.DecisionEntry) error {
		stats.Documents++
		docReviewers := entities.ReviewerIDs(decisions)
		for _, id := range docReviewers {
			reviewers[id] = struct{}{}
		}
		switch {
		case len(docReviewers) >= required:
			stats.ReviewedDocuments++
		case len(docReviewers) > 0:
			stats.InReview++
		}

		grouped := entities.GroupDecisions(decisions)
		for _, assertion := range doc.Assertions() {
			stats.Assertions++
			review := services.EvaluateAssertion(assertion.Key, grouped[assertion.Key])
			switch review.Status {
			case services.ReviewStatusConflict:
				stats.OpenConflicts++
			case services.ReviewStatusArbitrated:
				stats.Arbitrations++
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("admin stats scan failed",
			"event", "review_admin_stats_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return AdminStats{}, err
	}
	stats.Reviewers = len(reviewers)
	if stats.Documents > 0 {
		stats.ReviewedRatio = math.Round(float64(stats.ReviewedDocuments)/float64(stats.Documents)*1000) / 10
	}

	leases, err := u.Leases.ListLeases(ctx, u.now())
	if err != nil {
		return AdminStats{}, err
	}
	stats.ActiveLeases = len(leases)

	snapshots, err := u.Snapshots.ListSnapshots(ctx)
	if err != nil {
		return AdminStats{}, err
	}
	for _, snapshot := range snapshots {
		if stats.LastSnapshotAt == nil || snapshot.CreatedAt.After(*stats.LastSnapshotAt) {
			createdAt := snapshot.CreatedAt
			stats.LastSnapshotAt = &createdAt
		}
	}
	return stats, nil
}

func (u AdminUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
