package httpadapter

import (
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/queries"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	httptransport "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

func mapDocument(doc entities.Document) httptransport.DocumentDTO {
	sentences := make([]httptransport.SentenceDTO, 0, len(doc.Sentences))
	for _, sentence := range doc.Sentences {
		assertions := make([]httptransport.AssertionDTO, 0, len(sentence.Assertions))
		for _, assertion := range sentence.Assertions {
			assertions = append(assertions, mapAssertion(assertion))
		}
		sentences = append(sentences, httptransport.SentenceDTO{
			SentenceIndex: sentence.Index,
			Text:          sentence.Text,
			Assertions:    assertions,
		})
	}
	return httptransport.DocumentDTO{
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		Source:     doc.Source,
		Metadata:   doc.Metadata,
		Sentences:  sentences,
	}
}

func mapAssertion(assertion entities.Assertion) httptransport.AssertionDTO {
	dto := mapContent(assertion.AssertionContent)
	dto.AssertionKey = assertion.Key
	dto.AssertionIndex = assertion.AssertionIndex
	dto.IsNew = assertion.IsNew
	dto.CreatedBy = assertion.CreatedBy
	dto.CreatedAt = assertion.CreatedAt
	return dto
}

func mapContent(content entities.AssertionContent) httptransport.AssertionDTO {
	return httptransport.AssertionDTO{
		Subject:     content.Subject,
		SubjectType: content.SubjectType,
		Predicate:   content.Predicate,
		Object:      content.Object,
		ObjectType:  content.ObjectType,
		Negation:    content.Negation,
	}
}

func contentFromDTO(dto httptransport.AssertionDTO) entities.AssertionContent {
	return entities.AssertionContent{
		Subject:     dto.Subject,
		SubjectType: dto.SubjectType,
		Predicate:   dto.Predicate,
		Object:      dto.Object,
		ObjectType:  dto.ObjectType,
		Negation:    dto.Negation,
	}
}

// MapDocumentDTO converts an import document. Assertion keys are derived on
// import, so any key in the payload is ignored.
func MapDocumentDTO(dto httptransport.DocumentDTO) entities.Document {
	doc := entities.Document{
		DocumentID: dto.DocumentID,
		Title:      dto.Title,
		Source:     dto.Source,
		Metadata:   dto.Metadata,
		Sentences:  make([]entities.Sentence, 0, len(dto.Sentences)),
	}
	for _, sentence := range dto.Sentences {
		out := entities.Sentence{Index: sentence.SentenceIndex, Text: sentence.Text}
		for _, assertion := range sentence.Assertions {
			out.Assertions = append(out.Assertions, entities.Assertion{
				AssertionContent: contentFromDTO(assertion),
			})
		}
		doc.Sentences = append(doc.Sentences, out)
	}
	return doc
}

func mapLease(lease entities.Lease) httptransport.LeaseDTO {
	return httptransport.LeaseDTO{
		DocumentID: lease.DocumentID,
		HolderID:   lease.HolderID,
		AcquiredAt: lease.AcquiredAt,
		RenewedAt:  lease.RenewedAt,
		ExpiresAt:  lease.ExpiresAt,
	}
}

func mapReviewDecisions(in []httptransport.ReviewDecisionRequest) []services.ReviewDecision {
	out := make([]services.ReviewDecision, 0, len(in))
	for _, item := range in {
		decision := services.ReviewDecision{
			AssertionKey: item.AssertionKey,
			Action:       item.Action,
			Comment:      item.Comment,
		}
		if item.Proposed != nil {
			proposed := contentFromDTO(*item.Proposed)
			decision.Proposed = &proposed
		}
		out = append(out, decision)
	}
	return out
}

func mapReviewAdditions(in []httptransport.ReviewAdditionRequest) []services.ReviewAddition {
	out := make([]services.ReviewAddition, 0, len(in))
	for _, item := range in {
		out = append(out, services.ReviewAddition{
			SentenceIndex: item.SentenceIndex,
			Content:       contentFromDTO(item.Assertion),
			Comment:       item.Comment,
		})
	}
	return out
}

// MapViolations converts validation findings to their wire shape.
func MapViolations(in []domainerrors.Violation) []httptransport.ViolationResponse {
	if len(in) == 0 {
		return nil
	}
	out := make([]httptransport.ViolationResponse, 0, len(in))
	for _, violation := range in {
		item := httptransport.ViolationResponse{
			Level:          string(violation.Level),
			Code:           violation.Code,
			Message:        violation.Message,
			Field:          violation.Field,
			SentenceIndex:  violation.SentenceIndex,
			AssertionIndex: violation.AssertionIndex,
			AdditionIndex:  violation.AdditionIndex,
			Addition:       violation.Addition,
		}
		if violation.Suggestion != nil {
			item.Suggestion = &httptransport.FuzzySuggestionDTO{
				Text:  violation.Suggestion.Text,
				Score: violation.Suggestion.Score,
			}
		}
		out = append(out, item)
	}
	return out
}

func mapQueueItem(item queries.QueueItem) httptransport.QueueItemResponse {
	counts := make(map[string]int, len(item.SupportCounts))
	for action, count := range item.SupportCounts {
		counts[string(action)] = count
	}
	reviewers := item.Reviewers
	if reviewers == nil {
		reviewers = []string{}
	}
	response := httptransport.QueueItemResponse{
		DocumentID:     item.DocumentID,
		AssertionKey:   item.AssertionKey,
		SentenceIndex:  item.Assertion.SentenceIndex,
		Assertion:      mapAssertion(item.Assertion),
		Status:         string(item.Status),
		ConflictReason: item.ConflictReason,
		SupportCounts:  counts,
		Reviewers:      reviewers,
		Log:            mapDecisionLog(item.Log),
		LastUpdated:    item.LastUpdated,
	}
	if item.Arbitration != nil {
		response.Arbitration = &httptransport.ArbitrationDTO{
			AdminID:   item.Arbitration.AdminID,
			Decision:  string(item.Arbitration.Decision),
			Comment:   item.Arbitration.Comment,
			DecidedAt: item.Arbitration.DecidedAt,
		}
	}
	return response
}

func mapDecisionLog(entries []entities.DecisionEntry) []httptransport.DecisionEntryDTO {
	log := make([]httptransport.DecisionEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dto := httptransport.DecisionEntryDTO{
			EntryID:      entry.EntryID,
			ActorID:      entry.ActorID,
			ActorRole:    string(entry.ActorRole),
			Action:       string(entry.Action),
			Decision:     string(entry.Decision),
			Comment:      entry.Comment,
			SubmissionID: entry.SubmissionID,
			CreatedAt:    entry.CreatedAt,
		}
		if entry.Proposed != nil {
			proposed := mapContent(*entry.Proposed)
			dto.Proposed = &proposed
		}
		log = append(log, dto)
	}
	return log
}

func mapSnapshot(snapshot entities.ConsensusSnapshot) httptransport.SnapshotResponse {
	return httptransport.SnapshotResponse{
		SnapshotID:  snapshot.SnapshotID,
		Path:        snapshot.Path,
		RecordCount: snapshot.RecordCount,
		SHA256:      snapshot.SHA256,
		CreatedBy:   snapshot.CreatedBy,
		CreatedAt:   snapshot.CreatedAt,
	}
}

func mapTerms(terms []entities.VocabularyTerm) []httptransport.VocabularyTermDTO {
	out := make([]httptransport.VocabularyTermDTO, 0, len(terms))
	for _, term := range terms {
		out = append(out, httptransport.VocabularyTermDTO{Name: term.Name, Description: term.Description})
	}
	return out
}
