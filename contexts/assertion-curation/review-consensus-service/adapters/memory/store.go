package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// Store is an in-memory adapter implementing the review-consensus ports for
// local runtime and tests. Mutations of one document are serialized by a
// per-document mutex; staged writes are applied under the global lock so
// readers only ever observe whole units of work.
type Store struct {
	mu          sync.RWMutex
	documents   map[string]entities.Document
	decisions   map[string][]entities.DecisionEntry
	submissions map[string]entities.Submission
	byDocument  map[string][]string
	leases      map[string]entities.Lease
	snapshots   []entities.ConsensusSnapshot
	artifacts   map[string][]byte
	outbox      map[string]ports.OutboxMessage
	outboxOrder []string
	outboxSent  map[string]time.Time

	locksMu  sync.Mutex
	docLocks map[string]*sync.Mutex

	idempotency *cache.Cache

	idSequence    uint64
	docSequence   int64
	entrySequence int64
	logger        *slog.Logger
}

// NewStore seeds the corpus and initializes review state.
func NewStore(seed []entities.Document, logger *slog.Logger) *Store {
	s := &Store{
		documents:   make(map[string]entities.Document),
		decisions:   make(map[string][]entities.DecisionEntry),
		submissions: make(map[string]entities.Submission),
		byDocument:  make(map[string][]string),
		leases:      make(map[string]entities.Lease),
		outbox:      make(map[string]ports.OutboxMessage),
		outboxOrder: make([]string, 0),
		outboxSent:  make(map[string]time.Time),
		artifacts:   make(map[string][]byte),
		docLocks:    make(map[string]*sync.Mutex),
		idempotency: cache.New(24*time.Hour, 10*time.Minute),
		logger:      application.ResolveLogger(logger),
	}
	now := time.Now().UTC()
	for _, doc := range seed {
		if _, err := s.ImportDocument(context.Background(), doc, now); err != nil {
			s.logger.Warn("seed document skipped",
				"event", "review_memory_seed_skipped",
				"module", application.ModuleName,
				"layer", "adapter",
				"document_id", doc.DocumentID,
				"error", err.Error(),
			)
		}
	}
	return s
}

func (s *Store) documentLock(documentID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.docLocks[documentID] = lock
	}
	return lock
}

func (s *Store) ImportDocument(_ context.Context, doc entities.Document, now time.Time) (ports.ImportOutcome, error) {
	documentID := strings.TrimSpace(doc.DocumentID)
	if documentID == "" {
		return "", domainerrors.ErrInvalidDocument
	}
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing, found := s.documents[documentID]
	s.mu.RUnlock()

	if !found {
		base := entities.Document{
			DocumentID: documentID,
			Title:      doc.Title,
			Source:     doc.Source,
			Metadata:   doc.Metadata,
			ImportedAt: now.UTC(),
		}
		merged, _ := services.MergeDocument(base, doc)
		s.mu.Lock()
		merged.Sequence = atomic.AddInt64(&s.docSequence, 1)
		s.documents[documentID] = merged
		s.mu.Unlock()
		return ports.ImportOutcomeImported, nil
	}

	merged, changed := services.MergeDocument(existing, doc)
	if !changed {
		return ports.ImportOutcomeUnchanged, nil
	}
	s.mu.Lock()
	s.documents[documentID] = merged
	s.mu.Unlock()
	return ports.ImportOutcomeMerged, nil
}

func (s *Store) GetDocument(_ context.Context, documentID string) (entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[strings.TrimSpace(documentID)]
	if !ok {
		return entities.Document{}, domainerrors.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	submission, ok := s.submissions[submissionID]
	if !ok {
		return entities.Submission{}, domainerrors.ErrRepositoryInvariantBroke
	}
	return submission, nil
}

func (s *Store) WithDocument(
	ctx context.Context,
	documentID string,
	fn func(ctx context.Context, tx ports.DocumentTx) error,
) error {
	documentID = strings.TrimSpace(documentID)
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	doc, ok := s.documents[documentID]
	if !ok {
		s.mu.RUnlock()
		return domainerrors.ErrDocumentNotFound
	}
	tx := &documentTx{
		doc:       doc.Clone(),
		decisions: append([]entities.DecisionEntry(nil), s.decisions[documentID]...),
	}
	for _, id := range s.byDocument[documentID] {
		tx.submissions = append(tx.submissions, s.submissions[id])
	}
	if lease, ok := s.leases[documentID]; ok {
		copied := lease
		tx.lease = &copied
	}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(documentID, tx)
}

func (s *Store) commit(documentID string, tx *documentTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.leaseChanged && tx.lease != nil {
		now := tx.lease.RenewedAt
		for otherID, other := range s.leases {
			if otherID == documentID || other.HolderID != tx.lease.HolderID {
				continue
			}
			if other.Live(now) {
				return domainerrors.ErrLeaseUnavailable
			}
		}
		for otherID, other := range s.leases {
			if otherID != documentID && other.HolderID == tx.lease.HolderID {
				delete(s.leases, otherID)
			}
		}
	}

	if len(tx.newAssertions) > 0 {
		s.documents[documentID] = tx.doc
	}
	for _, entry := range tx.newEntries {
		entry.Sequence = atomic.AddInt64(&s.entrySequence, 1)
		s.decisions[documentID] = append(s.decisions[documentID], entry)
	}
	for _, submission := range tx.newSubmissions {
		s.submissions[submission.SubmissionID] = submission
		s.byDocument[documentID] = append(s.byDocument[documentID], submission.SubmissionID)
	}
	if tx.leaseChanged {
		if tx.lease == nil {
			delete(s.leases, documentID)
		} else {
			s.leases[documentID] = *tx.lease
		}
	}
	for _, event := range tx.outbox {
		if err := s.appendOutboxLocked(event); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) appendOutboxLocked(event ports.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, exists := s.outbox[event.EventID]; exists {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outbox[event.EventID] = ports.OutboxMessage{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      payload,
		CreatedAt:    event.OccurredAt.UTC(),
	}
	s.outboxOrder = append(s.outboxOrder, event.EventID)
	return nil
}

func (s *Store) ListReviewCandidates(_ context.Context) ([]services.ReviewCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]services.ReviewCandidate, 0, len(s.documents))
	for documentID, doc := range s.documents {
		candidate := services.ReviewCandidate{DocumentID: documentID, Sequence: doc.Sequence}
		seen := make(map[string]struct{})
		for _, id := range s.byDocument[documentID] {
			reviewer := s.submissions[id].ReviewerID
			if _, ok := seen[reviewer]; ok {
				continue
			}
			seen[reviewer] = struct{}{}
			candidate.Reviewers = append(candidate.Reviewers, reviewer)
		}
		if lease, ok := s.leases[documentID]; ok {
			copied := lease
			candidate.Lease = &copied
		}
		candidates = append(candidates, candidate)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Sequence < candidates[j].Sequence })
	return candidates, nil
}

func (s *Store) GetLeaseByHolder(_ context.Context, holderID string, now time.Time) (entities.Lease, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lease := range s.leases {
		if lease.HeldBy(holderID, now) {
			return lease, true, nil
		}
	}
	return entities.Lease{}, false, nil
}

func (s *Store) ListLeases(_ context.Context, now time.Time) ([]entities.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Lease, 0, len(s.leases))
	for _, lease := range s.leases {
		if lease.Live(now) {
			out = append(out, lease)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *Store) ListExpiredLeases(_ context.Context, now time.Time, limit int) ([]entities.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entities.Lease, 0)
	for _, lease := range s.leases {
		if !lease.Live(now) {
			out = append(out, lease)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ScanCorpus copies the requested state under one read lock, then hands it to
// fn without holding the lock so slow consumers never block writers.
func (s *Store) ScanCorpus(
	ctx context.Context,
	filter ports.CorpusFilter,
	fn func(doc entities.Document, decisions []entities.DecisionEntry) error,
) error {
	type item struct {
		doc       entities.Document
		decisions []entities.DecisionEntry
	}
	s.mu.RLock()
	items := make([]item, 0, len(s.documents))
	for documentID, doc := range s.documents {
		if filter.DocumentID != "" && filter.DocumentID != documentID {
			continue
		}
		items = append(items, item{
			doc:       doc.Clone(),
			decisions: append([]entities.DecisionEntry(nil), s.decisions[documentID]...),
		})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].doc.Sequence < items[j].doc.Sequence })
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(it.doc, it.decisions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) RecordSnapshot(_ context.Context, snapshot entities.ConsensusSnapshot, event ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshots {
		if existing.SnapshotID == snapshot.SnapshotID {
			return domainerrors.ErrRepositoryInvariantBroke
		}
	}
	if err := s.appendOutboxLocked(event); err != nil {
		return err
	}
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *Store) ListSnapshots(_ context.Context) ([]entities.ConsensusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]entities.ConsensusSnapshot(nil), s.snapshots...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Publish implements ports.SnapshotWriter by keeping artifacts in memory.
// A failed write leaves nothing behind.
func (s *Store) Publish(ctx context.Context, name string, write func(io.Writer) error) (ports.PublishedArtifact, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return ports.PublishedArtifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.PublishedArtifact{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[name]; exists {
		return ports.PublishedArtifact{}, fmt.Errorf("snapshot %s already exists", name)
	}
	s.artifacts[name] = buf.Bytes()
	sum := sha256.Sum256(buf.Bytes())
	return ports.PublishedArtifact{
		Path:   "memory://" + name,
		SHA256: hex.EncodeToString(sum[:]),
		Bytes:  int64(buf.Len()),
	}, nil
}

// Artifact returns the bytes of a published snapshot.
func (s *Store) Artifact(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.artifacts[strings.TrimPrefix(path, "memory://")]
	return append([]byte(nil), data...), ok
}

// Get returns a live idempotency record. go-cache evicts on its own schedule;
// ExpiresAt is checked against the caller's clock as well.
func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	value, ok := s.idempotency.Get(key)
	if !ok {
		return ports.IdempotencyRecord{}, false, nil
	}
	record := value.(ports.IdempotencyRecord)
	if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
		s.idempotency.Delete(key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

// Put stores the record until its own ExpiresAt, not the cache default, so a
// configured TTL longer than a day still replays.
func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	ttl := idempotencyTTL(record.ExpiresAt)
	if err := s.idempotency.Add(record.Key, record, ttl); err != nil {
		value, ok := s.idempotency.Get(record.Key)
		if ok && value.(ports.IdempotencyRecord).RequestHash != record.RequestHash {
			return domainerrors.ErrIdempotencyKeyConflict
		}
		s.idempotency.Set(record.Key, record, ttl)
	}
	return nil
}

// idempotencyTTL maps ExpiresAt onto a go-cache lifetime. Records stamped by a
// clock behind the wall clock never expire in the cache; Get prunes them.
func idempotencyTTL(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return cache.DefaultExpiration
	}
	if ttl := time.Until(expiresAt); ttl > 0 {
		return ttl
	}
	return cache.NoExpiration
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	messages := make([]ports.OutboxMessage, 0, limit)
	for _, id := range s.outboxOrder {
		if _, sent := s.outboxSent[id]; sent {
			continue
		}
		if msg, ok := s.outbox[id]; ok {
			messages = append(messages, msg)
		}
		if len(messages) >= limit {
			break
		}
	}
	return messages, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outbox[outboxID]; !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	s.outboxSent[outboxID] = sentAt.UTC()
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	value := atomic.AddUint64(&s.idSequence, 1)
	return fmt.Sprintf("rc-%d", value), nil
}

// OutboxEvents returns every enqueued message in commit order.
func (s *Store) OutboxEvents() []ports.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]ports.OutboxMessage, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		if evt, ok := s.outbox[id]; ok {
			events = append(events, evt)
		}
	}
	return events
}

// DecisionLog returns a copy of a document's committed decision entries.
func (s *Store) DecisionLog(documentID string) []entities.DecisionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.DecisionEntry(nil), s.decisions[documentID]...)
}

type documentTx struct {
	doc            entities.Document
	decisions      []entities.DecisionEntry
	submissions    []entities.Submission
	lease          *entities.Lease
	leaseChanged   bool
	newAssertions  []entities.Assertion
	newEntries     []entities.DecisionEntry
	newSubmissions []entities.Submission
	outbox         []ports.EventEnvelope
}

func (t *documentTx) Document() entities.Document {
	return t.doc.Clone()
}

func (t *documentTx) Decisions() []entities.DecisionEntry {
	return append([]entities.DecisionEntry(nil), t.decisions...)
}

func (t *documentTx) Submissions() []entities.Submission {
	return append([]entities.Submission(nil), t.submissions...)
}

func (t *documentTx) Lease() (entities.Lease, bool) {
	if t.lease == nil {
		return entities.Lease{}, false
	}
	return *t.lease, true
}

func (t *documentTx) PutLease(lease entities.Lease) error {
	if lease.DocumentID != t.doc.DocumentID {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	t.lease = &lease
	t.leaseChanged = true
	return nil
}

func (t *documentTx) DeleteLease() error {
	t.lease = nil
	t.leaseChanged = true
	return nil
}

func (t *documentTx) InsertAssertions(assertions []entities.Assertion) error {
	for _, assertion := range assertions {
		if _, exists := t.doc.FindAssertion(assertion.Key); exists {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		placed := false
		for i := range t.doc.Sentences {
			if t.doc.Sentences[i].Index == assertion.SentenceIndex {
				t.doc.Sentences[i].Assertions = append(t.doc.Sentences[i].Assertions, assertion)
				placed = true
				break
			}
		}
		if !placed {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		t.newAssertions = append(t.newAssertions, assertion)
	}
	return nil
}

func (t *documentTx) AppendDecisions(entries []entities.DecisionEntry) error {
	for _, entry := range entries {
		if entry.DocumentID != t.doc.DocumentID {
			return domainerrors.ErrRepositoryInvariantBroke
		}
		t.decisions = append(t.decisions, entry)
		t.newEntries = append(t.newEntries, entry)
	}
	return nil
}

func (t *documentTx) RecordSubmission(submission entities.Submission) error {
	t.submissions = append(t.submissions, submission)
	t.newSubmissions = append(t.newSubmissions, submission)
	return nil
}

func (t *documentTx) EnqueueOutbox(event ports.EventEnvelope) error {
	t.outbox = append(t.outbox, event)
	return nil
}
