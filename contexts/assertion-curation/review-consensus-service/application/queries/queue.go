package queries

import (
	"context"
	"log/slog"
	"strings"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type ListQueueQuery struct {
	DocumentID     string
	OnlyConflicts  bool
	IncludePending bool
	Limit          int
}

// DefaultListQueueQuery mirrors the queue's default view: conflicts only.
func DefaultListQueueQuery() ListQueueQuery {
	return ListQueueQuery{OnlyConflicts: true}
}

type QueueItem struct {
	services.AssertionReview
	Assertion entities.Assertion
	Log       []entities.DecisionEntry
}

type QueueSummary struct {
	Total     int
	Conflicts int
	Pending   int
}

type QueueResult struct {
	Items   []QueueItem
	Summary QueueSummary
}

// QueueUseCase derives the arbitration queue from the decision logs on every
// call. It holds no state, so identical logs always give identical queues.
type QueueUseCase struct {
	Corpus ports.CorpusReader
	Logger *slog.Logger
}

func (u QueueUseCase) ListQueue(ctx context.Context, query ListQueueQuery) (QueueResult, error) {
	logger := application.ResolveLogger(u.Logger)
	filter := services.QueueFilter{OnlyConflicts: query.OnlyConflicts, IncludePending: query.IncludePending}

	var items []QueueItem
	err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{DocumentID: strings.TrimSpace(query.DocumentID)},
		func(doc entities.Document, decisions []entities.DecisionEntry) error {
			grouped := entities.GroupDecisions(decisions)
			for _, assertion := range doc.Assertions() {
				log := grouped[assertion.Key]
				review := services.EvaluateAssertion(assertion.Key, log)
				review.DocumentID = doc.DocumentID
				if !filter.Admit(review) {
					continue
				}
				items = append(items, QueueItem{AssertionReview: review, Assertion: assertion, Log: log})
			}
			return nil
		})
	if err != nil {
		logger.Error("arbitration queue scan failed",
			"event", "review_queue_scan_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return QueueResult{}, err
	}

	reviews := make([]services.AssertionReview, len(items))
	byKey := make(map[string]QueueItem, len(items))
	for i, item := range items {
		reviews[i] = item.AssertionReview
		byKey[item.DocumentID+"/"+item.AssertionKey] = item
	}
	services.SortQueue(reviews)
	if query.Limit > 0 && len(reviews) > query.Limit {
		reviews = reviews[:query.Limit]
	}

	result := QueueResult{Items: make([]QueueItem, 0, len(reviews))}
	for _, review := range reviews {
		item := byKey[review.DocumentID+"/"+review.AssertionKey]
		result.Items = append(result.Items, item)
		switch review.Status {
		case services.ReviewStatusConflict:
			result.Summary.Conflicts++
		case services.ReviewStatusPending:
			result.Summary.Pending++
		}
	}
	result.Summary.Total = len(result.Items)
	return result, nil
}
