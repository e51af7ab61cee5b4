package ports

import (
	"context"
	"io"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	contractsv1 "github.com/FreddieTree/manual-review-sub000/contracts/gen/events/v1"
)

type ImportOutcome string

const (
	ImportOutcomeImported  ImportOutcome = "imported"
	ImportOutcomeMerged    ImportOutcome = "merged"
	ImportOutcomeUnchanged ImportOutcome = "unchanged"
)

// DocumentRepository owns the corpus and the committed review history.
type DocumentRepository interface {
	// ImportDocument inserts a new document or merges unseen sentences and
	// assertions into an existing one.
	ImportDocument(ctx context.Context, doc entities.Document, now time.Time) (ImportOutcome, error)
	GetDocument(ctx context.Context, documentID string) (entities.Document, error)
	GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error)
	// WithDocument runs fn under exclusive access to one document. Writes staged
	// through the DocumentTx become visible atomically when fn returns nil and
	// are discarded otherwise.
	WithDocument(ctx context.Context, documentID string, fn func(ctx context.Context, tx DocumentTx) error) error
}

// DocumentTx is the per-document unit of work. State is loaded when the unit
// starts and reflects staged writes.
type DocumentTx interface {
	Document() entities.Document
	Decisions() []entities.DecisionEntry
	Submissions() []entities.Submission
	Lease() (entities.Lease, bool)
	PutLease(lease entities.Lease) error
	DeleteLease() error
	InsertAssertions(assertions []entities.Assertion) error
	AppendDecisions(entries []entities.DecisionEntry) error
	RecordSubmission(submission entities.Submission) error
	EnqueueOutbox(event EventEnvelope) error
}

// LeaseRepository serves lease reads that span documents.
type LeaseRepository interface {
	ListReviewCandidates(ctx context.Context) ([]services.ReviewCandidate, error)
	GetLeaseByHolder(ctx context.Context, holderID string, now time.Time) (entities.Lease, bool, error)
	ListLeases(ctx context.Context, now time.Time) ([]entities.Lease, error)
	ListExpiredLeases(ctx context.Context, now time.Time, limit int) ([]entities.Lease, error)
}

// CorpusFilter narrows a corpus scan. An empty DocumentID scans everything.
type CorpusFilter struct {
	DocumentID string
}

// CorpusReader provides point-in-time consistent reads: fn observes only
// fully committed units of work.
type CorpusReader interface {
	ScanCorpus(
		ctx context.Context,
		filter CorpusFilter,
		fn func(doc entities.Document, decisions []entities.DecisionEntry) error,
	) error
}

type SnapshotRepository interface {
	// RecordSnapshot must atomically persist the snapshot row and its event.
	RecordSnapshot(ctx context.Context, snapshot entities.ConsensusSnapshot, event EventEnvelope) error
	ListSnapshots(ctx context.Context) ([]entities.ConsensusSnapshot, error)
}

// PublishedArtifact describes a file made visible by a SnapshotWriter.
type PublishedArtifact struct {
	Path   string
	SHA256 string
	Bytes  int64
}

// SnapshotWriter publishes an artifact atomically: readers either see the
// complete file or nothing.
type SnapshotWriter interface {
	Publish(ctx context.Context, name string, write func(w io.Writer) error) (PublishedArtifact, error)
}

type VocabularyProvider interface {
	Vocabulary(ctx context.Context) (entities.Vocabulary, error)
}

// IdempotencyRecord maps a retry key to the committed submission it produced.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	SubmissionID string
	ExpiresAt    time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// OutboxMessage is a row ready to relay from the module outbox.
type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}
