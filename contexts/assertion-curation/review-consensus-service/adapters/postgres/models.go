package postgresadapter

import (
	"encoding/json"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"

	documentSequenceName = "review_document_seq"
	entrySequenceName    = "review_entry_seq"

	leaseHolderConstraint = "review_leases_holder_unique"
)

type documentModel struct {
	DocumentID string    `gorm:"column:document_id;primaryKey"`
	Title      string    `gorm:"column:title"`
	Source     string    `gorm:"column:source"`
	Metadata   []byte    `gorm:"column:metadata;type:jsonb"`
	Sequence   int64     `gorm:"column:sequence;not null;default:nextval('review_document_seq')"`
	ImportedAt time.Time `gorm:"column:imported_at"`
}

func (documentModel) TableName() string {
	return "review_documents"
}

func documentModelFromEntity(doc entities.Document) documentModel {
	metadata, _ := json.Marshal(doc.Metadata)
	return documentModel{
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		Source:     doc.Source,
		Metadata:   metadata,
		Sequence:   doc.Sequence,
		ImportedAt: doc.ImportedAt.UTC(),
	}
}

type sentenceModel struct {
	DocumentID    string `gorm:"column:document_id;primaryKey"`
	SentenceIndex int    `gorm:"column:sentence_index;primaryKey"`
	Text          string `gorm:"column:text"`
}

func (sentenceModel) TableName() string {
	return "review_sentences"
}

type assertionModel struct {
	AssertionKey   string    `gorm:"column:assertion_key;primaryKey"`
	DocumentID     string    `gorm:"column:document_id;index:review_assertions_document_idx"`
	SentenceIndex  int       `gorm:"column:sentence_index"`
	AssertionIndex int       `gorm:"column:assertion_index"`
	Subject        string    `gorm:"column:subject"`
	SubjectType    string    `gorm:"column:subject_type"`
	Predicate      string    `gorm:"column:predicate"`
	Object         string    `gorm:"column:object"`
	ObjectType     string    `gorm:"column:object_type"`
	Negation       bool      `gorm:"column:negation"`
	IsNew          bool      `gorm:"column:is_new"`
	CreatedBy      string    `gorm:"column:created_by"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (assertionModel) TableName() string {
	return "review_assertions"
}

func assertionModelFromEntity(assertion entities.Assertion) assertionModel {
	return assertionModel{
		AssertionKey:   assertion.Key,
		DocumentID:     assertion.DocumentID,
		SentenceIndex:  assertion.SentenceIndex,
		AssertionIndex: assertion.AssertionIndex,
		Subject:        assertion.Subject,
		SubjectType:    assertion.SubjectType,
		Predicate:      assertion.Predicate,
		Object:         assertion.Object,
		ObjectType:     assertion.ObjectType,
		Negation:       assertion.Negation,
		IsNew:          assertion.IsNew,
		CreatedBy:      assertion.CreatedBy,
		CreatedAt:      assertion.CreatedAt.UTC(),
	}
}

func (m assertionModel) toEntity() entities.Assertion {
	return entities.Assertion{
		Key:            m.AssertionKey,
		DocumentID:     m.DocumentID,
		SentenceIndex:  m.SentenceIndex,
		AssertionIndex: m.AssertionIndex,
		AssertionContent: entities.AssertionContent{
			Subject:     m.Subject,
			SubjectType: m.SubjectType,
			Predicate:   m.Predicate,
			Object:      m.Object,
			ObjectType:  m.ObjectType,
			Negation:    m.Negation,
		},
		IsNew:     m.IsNew,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// assembleDocument builds the aggregate from its rows. Sentences and
// assertions are expected in index order.
func assembleDocument(doc documentModel, sentences []sentenceModel, assertions []assertionModel) entities.Document {
	out := entities.Document{
		DocumentID: doc.DocumentID,
		Title:      doc.Title,
		Source:     doc.Source,
		Sequence:   doc.Sequence,
		ImportedAt: doc.ImportedAt.UTC(),
	}
	if len(doc.Metadata) > 0 {
		_ = json.Unmarshal(doc.Metadata, &out.Metadata)
	}
	bySentence := make(map[int][]entities.Assertion)
	for _, row := range assertions {
		bySentence[row.SentenceIndex] = append(bySentence[row.SentenceIndex], row.toEntity())
	}
	out.Sentences = make([]entities.Sentence, 0, len(sentences))
	for _, row := range sentences {
		out.Sentences = append(out.Sentences, entities.Sentence{
			Index:      row.SentenceIndex,
			Text:       row.Text,
			Assertions: bySentence[row.SentenceIndex],
		})
	}
	return out
}

type decisionEntryModel struct {
	EntryID      string    `gorm:"column:entry_id;primaryKey"`
	DocumentID   string    `gorm:"column:document_id;index:review_decision_entries_document_idx"`
	AssertionKey string    `gorm:"column:assertion_key"`
	ActorID      string    `gorm:"column:actor_id"`
	ActorRole    string    `gorm:"column:actor_role"`
	Action       string    `gorm:"column:action"`
	Decision     string    `gorm:"column:decision"`
	Comment      string    `gorm:"column:comment"`
	SubmissionID string    `gorm:"column:submission_id"`
	Proposed     []byte    `gorm:"column:proposed;type:jsonb"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	Sequence     int64     `gorm:"column:sequence;not null;default:nextval('review_entry_seq')"`
}

func (decisionEntryModel) TableName() string {
	return "review_decision_entries"
}

type proposedContent struct {
	Subject     string `json:"subject"`
	SubjectType string `json:"subject_type"`
	Predicate   string `json:"predicate"`
	Object      string `json:"object"`
	ObjectType  string `json:"object_type"`
	Negation    bool   `json:"negation"`
}

func decisionEntryModelFromEntity(entry entities.DecisionEntry) (decisionEntryModel, error) {
	row := decisionEntryModel{
		EntryID:      entry.EntryID,
		DocumentID:   entry.DocumentID,
		AssertionKey: entry.AssertionKey,
		ActorID:      entry.ActorID,
		ActorRole:    string(entry.ActorRole),
		Action:       string(entry.Action),
		Decision:     string(entry.Decision),
		Comment:      entry.Comment,
		SubmissionID: entry.SubmissionID,
		CreatedAt:    entry.CreatedAt.UTC(),
	}
	if entry.Proposed != nil {
		payload, err := json.Marshal(proposedContent(*entry.Proposed))
		if err != nil {
			return decisionEntryModel{}, err
		}
		row.Proposed = payload
	}
	return row, nil
}

func (m decisionEntryModel) toEntity() entities.DecisionEntry {
	entry := entities.DecisionEntry{
		EntryID:      m.EntryID,
		DocumentID:   m.DocumentID,
		AssertionKey: m.AssertionKey,
		ActorID:      m.ActorID,
		ActorRole:    entities.ActorRole(m.ActorRole),
		Action:       entities.Action(m.Action),
		Decision:     entities.Action(m.Decision),
		Comment:      m.Comment,
		SubmissionID: m.SubmissionID,
		CreatedAt:    m.CreatedAt.UTC(),
		Sequence:     m.Sequence,
	}
	if len(m.Proposed) > 0 {
		var proposed proposedContent
		if err := json.Unmarshal(m.Proposed, &proposed); err == nil {
			content := entities.AssertionContent(proposed)
			entry.Proposed = &content
		}
	}
	return entry
}

type submissionModel struct {
	SubmissionID    string    `gorm:"column:submission_id;primaryKey"`
	DocumentID      string    `gorm:"column:document_id;uniqueIndex:review_submissions_document_reviewer_unique"`
	ReviewerID      string    `gorm:"column:reviewer_id;uniqueIndex:review_submissions_document_reviewer_unique"`
	LeaseAcquiredAt time.Time `gorm:"column:lease_acquired_at"`
	DecisionCount   int       `gorm:"column:decision_count"`
	AddedCount      int       `gorm:"column:added_count"`
	CommittedAt     time.Time `gorm:"column:committed_at"`
}

func (submissionModel) TableName() string {
	return "review_submissions"
}

func submissionModelFromEntity(submission entities.Submission) submissionModel {
	return submissionModel{
		SubmissionID:    submission.SubmissionID,
		DocumentID:      submission.DocumentID,
		ReviewerID:      submission.ReviewerID,
		LeaseAcquiredAt: submission.LeaseAcquiredAt.UTC(),
		DecisionCount:   submission.DecisionCount,
		AddedCount:      submission.AddedCount,
		CommittedAt:     submission.CommittedAt.UTC(),
	}
}

func (m submissionModel) toEntity() entities.Submission {
	return entities.Submission{
		SubmissionID:    m.SubmissionID,
		DocumentID:      m.DocumentID,
		ReviewerID:      m.ReviewerID,
		LeaseAcquiredAt: m.LeaseAcquiredAt.UTC(),
		DecisionCount:   m.DecisionCount,
		AddedCount:      m.AddedCount,
		CommittedAt:     m.CommittedAt.UTC(),
	}
}

// leaseModel keys leases by document and holder, so the database itself
// enforces one holder per document and one document per holder.
type leaseModel struct {
	DocumentID string    `gorm:"column:document_id;primaryKey"`
	HolderID   string    `gorm:"column:holder_id;uniqueIndex:review_leases_holder_unique"`
	AcquiredAt time.Time `gorm:"column:acquired_at"`
	RenewedAt  time.Time `gorm:"column:renewed_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at;index:review_leases_expires_idx"`
}

func (leaseModel) TableName() string {
	return "review_leases"
}

func leaseModelFromEntity(lease entities.Lease) leaseModel {
	return leaseModel{
		DocumentID: lease.DocumentID,
		HolderID:   lease.HolderID,
		AcquiredAt: lease.AcquiredAt.UTC(),
		RenewedAt:  lease.RenewedAt.UTC(),
		ExpiresAt:  lease.ExpiresAt.UTC(),
	}
}

func (m leaseModel) toEntity() entities.Lease {
	return entities.Lease{
		DocumentID: m.DocumentID,
		HolderID:   m.HolderID,
		AcquiredAt: m.AcquiredAt.UTC(),
		RenewedAt:  m.RenewedAt.UTC(),
		ExpiresAt:  m.ExpiresAt.UTC(),
	}
}

type snapshotModel struct {
	SnapshotID  string    `gorm:"column:snapshot_id;primaryKey"`
	Path        string    `gorm:"column:path"`
	RecordCount int       `gorm:"column:record_count"`
	SHA256      string    `gorm:"column:sha256"`
	CreatedBy   string    `gorm:"column:created_by"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (snapshotModel) TableName() string {
	return "review_consensus_snapshots"
}

func (m snapshotModel) toEntity() entities.ConsensusSnapshot {
	return entities.ConsensusSnapshot{
		SnapshotID:  m.SnapshotID,
		Path:        m.Path,
		RecordCount: m.RecordCount,
		SHA256:      m.SHA256,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

type idempotencyModel struct {
	Key          string    `gorm:"column:key;primaryKey"`
	RequestHash  string    `gorm:"column:request_hash"`
	SubmissionID string    `gorm:"column:submission_id"`
	ExpiresAt    time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "review_idempotency"
}

func idempotencyModelFromPort(record ports.IdempotencyRecord) idempotencyModel {
	return idempotencyModel{
		Key:          record.Key,
		RequestHash:  record.RequestHash,
		SubmissionID: record.SubmissionID,
		ExpiresAt:    record.ExpiresAt.UTC(),
	}
}

func (m idempotencyModel) toPort() ports.IdempotencyRecord {
	return ports.IdempotencyRecord{
		Key:          m.Key,
		RequestHash:  m.RequestHash,
		SubmissionID: m.SubmissionID,
		ExpiresAt:    m.ExpiresAt.UTC(),
	}
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index:review_outbox_status_idx"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "review_outbox"
}

func outboxModelFromEnvelope(event ports.EventEnvelope) (outboxModel, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return outboxModel{}, err
	}
	return outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    event.OccurredAt.UTC(),
	}, nil
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
}
