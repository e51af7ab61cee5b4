package services

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

type ReviewStatus string

const (
	ReviewStatusArbitrated ReviewStatus = "arbitrated"
	ReviewStatusConflict   ReviewStatus = "conflict"
	ReviewStatusConsensus  ReviewStatus = "consensus"
	ReviewStatusPending    ReviewStatus = "pending"
)

// AssertionReview is the derived review state of one assertion. It is a pure
// projection of the decision log and is never stored.
type AssertionReview struct {
	AssertionKey   string
	DocumentID     string
	Status         ReviewStatus
	ConflictReason string
	SupportCounts  map[entities.Action]int
	Reviewers      []string
	Latest         []entities.DecisionEntry
	Arbitration    *entities.ArbitrationDecision
	LastUpdated    time.Time
}

// EvaluateAssertion derives the review state from an assertion's decision log.
// Only each reviewer's latest entry counts; admin entries never take part in
// the reviewer comparison.
func EvaluateAssertion(assertionKey string, log []entities.DecisionEntry) AssertionReview {
	ordered := append([]entities.DecisionEntry(nil), log...)
	entities.SortDecisions(ordered)

	review := AssertionReview{
		AssertionKey:  assertionKey,
		SupportCounts: make(map[entities.Action]int),
	}
	latestByActor := make(map[string]entities.DecisionEntry)
	for _, entry := range ordered {
		review.DocumentID = entry.DocumentID
		if entry.CreatedAt.After(review.LastUpdated) {
			review.LastUpdated = entry.CreatedAt
		}
		if entry.ActorRole != entities.ActorRoleReviewer {
			continue
		}
		latestByActor[entry.ActorID] = entry
	}
	for actor, entry := range latestByActor {
		review.Reviewers = append(review.Reviewers, actor)
		review.Latest = append(review.Latest, entry)
		review.SupportCounts[entry.Action.Comparable()]++
	}
	sort.Strings(review.Reviewers)
	sort.Slice(review.Latest, func(i, j int) bool { return review.Latest[i].ActorID < review.Latest[j].ActorID })

	if arbitration, ok := entities.LatestArbitration(ordered); ok {
		review.Arbitration = &arbitration
		review.Status = ReviewStatusArbitrated
		return review
	}
	if len(review.Latest) < 2 {
		review.Status = ReviewStatusPending
		return review
	}
	if reason, conflict := disagreement(review.Latest); conflict {
		review.Status = ReviewStatusConflict
		review.ConflictReason = reason
		return review
	}
	review.Status = ReviewStatusConsensus
	return review
}

// disagreement compares every pair of latest reviewer entries.
func disagreement(latest []entities.DecisionEntry) (string, bool) {
	actionMismatch := false
	commentMismatch := false
	for i := 0; i < len(latest); i++ {
		for j := i + 1; j < len(latest); j++ {
			a, b := latest[i], latest[j]
			if a.Action.Comparable() != b.Action.Comparable() {
				actionMismatch = true
				continue
			}
			if a.Action != entities.ActionModify && a.Action != entities.ActionUncertain {
				continue
			}
			if NormalizeComment(a.Comment) != NormalizeComment(b.Comment) {
				commentMismatch = true
			}
		}
	}
	if !actionMismatch && !commentMismatch {
		return "", false
	}

	var reasons []string
	for _, entry := range latest {
		if entry.Action == entities.ActionReject && !containsString(reasons, "contains reject") {
			reasons = append(reasons, "contains reject")
		}
	}
	for _, entry := range latest {
		if entry.Action == entities.ActionUncertain && !containsString(reasons, "contains uncertain") {
			reasons = append(reasons, "contains uncertain")
		}
	}
	if !actionMismatch && commentMismatch {
		reasons = append(reasons, "comment mismatch")
	}
	if len(reasons) == 0 {
		return "mixed signals", true
	}
	return strings.Join(reasons, "; "), true
}

// NormalizeComment folds case, collapses whitespace and drops trailing
// punctuation so cosmetic differences never count as disagreement.
func NormalizeComment(comment string) string {
	folded := strings.Join(strings.Fields(strings.ToLower(comment)), " ")
	return strings.TrimRightFunc(folded, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// QueueFilter selects which evaluated assertions enter the arbitration queue.
type QueueFilter struct {
	OnlyConflicts  bool
	IncludePending bool
}

// Admit reports whether an evaluated assertion belongs in the queue.
// Arbitrated assertions never do, and neither do assertions nobody has
// reviewed beyond authoring them.
func (f QueueFilter) Admit(review AssertionReview) bool {
	if review.Status == ReviewStatusArbitrated || onlyAdds(review.Latest) {
		return false
	}
	switch review.Status {
	case ReviewStatusConflict:
		return true
	case ReviewStatusPending:
		return f.IncludePending
	default:
		return !f.OnlyConflicts
	}
}

func onlyAdds(latest []entities.DecisionEntry) bool {
	if len(latest) == 0 {
		return true
	}
	for _, entry := range latest {
		if entry.Action != entities.ActionAdd {
			return false
		}
	}
	return true
}

// SortQueue orders queue items by most recent activity, then key.
func SortQueue(items []AssertionReview) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].LastUpdated.Equal(items[j].LastUpdated) {
			return items[i].LastUpdated.After(items[j].LastUpdated)
		}
		if items[i].DocumentID != items[j].DocumentID {
			return items[i].DocumentID < items[j].DocumentID
		}
		return items[i].AssertionKey < items[j].AssertionKey
	})
}
