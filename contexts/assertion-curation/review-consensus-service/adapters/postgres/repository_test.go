package postgresadapter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
)

func TestMapUniqueViolationDistinguishesHolderIndex(t *testing.T) {
	holder := fmt.Errorf("insert lease: %w", &pgconn.PgError{Code: "23505", ConstraintName: leaseHolderConstraint})
	if !errors.Is(mapUniqueViolation(holder), domainerrors.ErrLeaseUnavailable) {
		t.Fatalf("expected lease unavailable for holder index violation")
	}
	other := &pgconn.PgError{Code: "23505", ConstraintName: "review_outbox_pkey"}
	if !errors.Is(mapUniqueViolation(other), domainerrors.ErrRepositoryInvariantBroke) {
		t.Fatalf("expected invariant error for other unique violations")
	}
	plain := errors.New("connection reset")
	if mapUniqueViolation(plain) != plain {
		t.Fatalf("expected non-unique errors to pass through")
	}
}

func TestAssembleDocumentGroupsAssertionsBySentence(t *testing.T) {
	doc := assembleDocument(
		documentModel{DocumentID: "D1", Title: "t", Metadata: []byte(`{"pmid":"42"}`), Sequence: 7},
		[]sentenceModel{{DocumentID: "D1", SentenceIndex: 0, Text: "a"}, {DocumentID: "D1", SentenceIndex: 1, Text: "b"}},
		[]assertionModel{
			{AssertionKey: "k1", DocumentID: "D1", SentenceIndex: 1, AssertionIndex: 1, Predicate: "TREATS"},
			{AssertionKey: "k2", DocumentID: "D1", SentenceIndex: 1, AssertionIndex: 2, Predicate: "CAUSES"},
		},
	)
	if doc.Sequence != 7 || doc.Metadata["pmid"] != "42" {
		t.Fatalf("unexpected document header: %+v", doc)
	}
	if len(doc.Sentences) != 2 || len(doc.Sentences[0].Assertions) != 0 || len(doc.Sentences[1].Assertions) != 2 {
		t.Fatalf("unexpected sentence layout: %+v", doc.Sentences)
	}
	if _, ok := doc.FindAssertion("k2"); !ok {
		t.Fatalf("expected assertion k2 to be attached")
	}
}

func TestDecisionEntryModelKeepsProposedContent(t *testing.T) {
	proposed := entities.AssertionContent{Subject: "aspirin", SubjectType: "phsu", Predicate: "TREATS", Object: "pain", ObjectType: "sosy"}
	row, err := decisionEntryModelFromEntity(entities.DecisionEntry{
		EntryID:    "e1",
		DocumentID: "D1",
		Action:     entities.ActionModify,
		Proposed:   &proposed,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	entry := row.toEntity()
	if entry.Proposed == nil || *entry.Proposed != proposed {
		t.Fatalf("expected proposed content to survive, got %+v", entry.Proposed)
	}
	if entry.Action != entities.ActionModify {
		t.Fatalf("unexpected action %q", entry.Action)
	}
}
