package services

import (
	"sort"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

// DefaultRequiredReviewers is the number of independent reviews after which a
// document is no longer assignable.
const DefaultRequiredReviewers = 2

// ReviewCandidate is the lease-relevant view of one document.
type ReviewCandidate struct {
	DocumentID string
	Sequence   int64
	Reviewers  []string
	Lease      *entities.Lease
}

// RankReviewCandidates returns the documents reviewerID may acquire, best
// first: documents waiting for one more independent reviewer before untouched
// ones, then by insertion sequence. Documents with a live lease, documents the
// reviewer already reviewed and fully reviewed documents are excluded.
func RankReviewCandidates(candidates []ReviewCandidate, reviewerID string, requiredReviewers int, now time.Time) []ReviewCandidate {
	if requiredReviewers <= 0 {
		requiredReviewers = DefaultRequiredReviewers
	}
	eligible := make([]ReviewCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Lease != nil && candidate.Lease.Live(now) {
			continue
		}
		if len(candidate.Reviewers) >= requiredReviewers {
			continue
		}
		if containsString(candidate.Reviewers, reviewerID) {
			continue
		}
		eligible = append(eligible, candidate)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		iStarted := len(eligible[i].Reviewers) > 0
		jStarted := len(eligible[j].Reviewers) > 0
		if iStarted != jStarted {
			return iStarted
		}
		return eligible[i].Sequence < eligible[j].Sequence
	})
	return eligible
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
