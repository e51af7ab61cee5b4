package services

import (
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

// FinalDecision is the consensus outcome for one assertion.
type FinalDecision struct {
	Status    entities.FinalStatus
	Basis     entities.ConsensusBasis
	Reviewers []string
	AdminID   string
	Comment   string
	DecidedAt time.Time
}

// ComputeFinal derives the final status from an assertion's decision log:
// an arbitration decides alone; otherwise a single reviewer's latest action,
// or the action all reviewers agree on. An assertion the conflict detector
// holds for arbitration is unresolved, as is anything else.
func ComputeFinal(assertionKey string, log []entities.DecisionEntry) FinalDecision {
	review := EvaluateAssertion(assertionKey, log)
	final := FinalDecision{
		Status:    entities.FinalStatusUnresolved,
		Basis:     entities.ConsensusBasisNone,
		Reviewers: review.Reviewers,
	}
	if review.Arbitration != nil {
		final.Status = entities.FinalStatusFromAction(review.Arbitration.Decision)
		final.Basis = entities.ConsensusBasisArbitration
		final.AdminID = review.Arbitration.AdminID
		final.Comment = review.Arbitration.Comment
		final.DecidedAt = review.Arbitration.DecidedAt
		return final
	}

	if review.Status == ReviewStatusConflict {
		return final
	}

	switch len(review.Latest) {
	case 0:
		return final
	case 1:
		entry := review.Latest[0]
		final.Status = entities.FinalStatusFromAction(entry.Action)
		final.Basis = entities.ConsensusBasisSingleReviewer
		final.Comment = entry.Comment
		final.DecidedAt = entry.CreatedAt
		return final
	}

	agreed := review.Latest[0].Action.Comparable()
	for _, entry := range review.Latest[1:] {
		if entry.Action.Comparable() != agreed {
			return final
		}
		if entry.CreatedAt.After(final.DecidedAt) {
			final.DecidedAt = entry.CreatedAt
		}
	}
	if review.Latest[0].CreatedAt.After(final.DecidedAt) {
		final.DecidedAt = review.Latest[0].CreatedAt
	}
	final.Status = entities.FinalStatusFromAction(agreed)
	final.Basis = entities.ConsensusBasisAgreement
	return final
}

// ComputeDocumentFinal evaluates every assertion of doc against its log.
func ComputeDocumentFinal(doc entities.Document, decisions []entities.DecisionEntry) map[string]FinalDecision {
	grouped := entities.GroupDecisions(decisions)
	out := make(map[string]FinalDecision)
	for _, assertion := range doc.Assertions() {
		out[assertion.Key] = ComputeFinal(assertion.Key, grouped[assertion.Key])
	}
	return out
}

// ConsensusRecords builds export rows for every finalized assertion of doc in
// sentence then assertion order. Unresolved assertions are skipped.
func ConsensusRecords(doc entities.Document, decisions []entities.DecisionEntry) []entities.ConsensusRecord {
	finals := ComputeDocumentFinal(doc, decisions)
	var out []entities.ConsensusRecord
	for _, sentence := range doc.Sentences {
		for _, assertion := range sentence.Assertions {
			final := finals[assertion.Key]
			if final.Status == entities.FinalStatusUnresolved {
				continue
			}
			out = append(out, entities.ConsensusRecord{
				AssertionKey:     assertion.Key,
				DocumentID:       doc.DocumentID,
				SentenceIndex:    sentence.Index,
				SentenceText:     sentence.Text,
				AssertionContent: assertion.AssertionContent,
				IsNew:            assertion.IsNew,
				FinalStatus:      final.Status,
				Basis:            final.Basis,
				Reviewers:        final.Reviewers,
				AdminID:          final.AdminID,
				Comment:          final.Comment,
				DecidedAt:        final.DecidedAt,
			})
		}
	}
	return out
}
