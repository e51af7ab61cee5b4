package services

import (
	"errors"
	"testing"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
)

var baseTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func testVocabulary() entities.Vocabulary {
	return entities.NewVocabulary(
		[]entities.VocabularyTerm{{Name: "treats"}, {Name: "CAUSES"}, {Name: "ASSOCIATED_WITH"}},
		[]entities.VocabularyTerm{{Name: "phsu"}, {Name: "DSYN"}, {Name: "sosy"}},
	)
}

func testDocument() entities.Document {
	doc := entities.Document{
		DocumentID: "D1",
		Sentences: []entities.Sentence{
			{
				Index: 0,
				Text:  "Aspirin reduces the risk of myocardial infarction in adults.",
				Assertions: []entities.Assertion{{
					AssertionContent: entities.AssertionContent{
						Subject: "Aspirin", SubjectType: "phsu", Predicate: "TREATS",
						Object: "myocardial infarction", ObjectType: "dsyn",
					},
				}},
			},
			{
				Index: 1,
				Text:  "Smoking causes chronic cough.",
			},
		},
	}
	doc.NormalizeKeys()
	return doc
}

func entry(actor string, action entities.Action, comment string, at time.Duration) entities.DecisionEntry {
	return entities.DecisionEntry{
		DocumentID:   "D1",
		AssertionKey: "A1",
		ActorID:      actor,
		ActorRole:    entities.ActorRoleReviewer,
		Action:       action,
		Comment:      comment,
		CreatedAt:    baseTime.Add(at),
	}
}

func arbitration(decision entities.Action, at time.Duration) entities.DecisionEntry {
	return entities.DecisionEntry{
		DocumentID:   "D1",
		AssertionKey: "A1",
		ActorID:      "admin-1",
		ActorRole:    entities.ActorRoleAdmin,
		Action:       entities.ActionArbitrate,
		Decision:     decision,
		Comment:      "subject corrected",
		CreatedAt:    baseTime.Add(at),
	}
}

func TestRankReviewCandidatesPrefersSecondReviewThenSequence(t *testing.T) {
	live := entities.Lease{DocumentID: "D4", HolderID: "r9", ExpiresAt: baseTime.Add(time.Minute)}
	expired := entities.Lease{DocumentID: "D5", HolderID: "r9", ExpiresAt: baseTime.Add(-time.Second)}
	ranked := RankReviewCandidates([]ReviewCandidate{
		{DocumentID: "D1", Sequence: 1},
		{DocumentID: "D2", Sequence: 2, Reviewers: []string{"r2"}},
		{DocumentID: "D3", Sequence: 3, Reviewers: []string{"r1"}},
		{DocumentID: "D4", Sequence: 4, Lease: &live},
		{DocumentID: "D5", Sequence: 5, Lease: &expired, Reviewers: []string{"r3"}},
		{DocumentID: "D6", Sequence: 0, Reviewers: []string{"r2", "r3"}},
	}, "r1", 2, baseTime)

	got := make([]string, 0, len(ranked))
	for _, candidate := range ranked {
		got = append(got, candidate.DocumentID)
	}
	want := []string{"D2", "D5", "D1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestValidateSubmissionRequiresCommentForUncertain(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key

	_, err := ValidateSubmission(doc, nil, []ReviewDecision{{AssertionKey: key, Action: "uncertain"}}, nil,
		ValidationPolicy{Vocabulary: testVocabulary()})
	var validationErr *domainerrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, domainerrors.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	violations := validationErr.Errors()
	if len(violations) != 1 || violations[0].Code != "comment_required" || violations[0].Field != "comment" {
		t.Fatalf("expected single comment_required violation, got %+v", violations)
	}
	if violations[0].AssertionIndex == nil || *violations[0].AssertionIndex != 1 || violations[0].SentenceIndex != 0 {
		t.Fatalf("expected violation anchored at sentence 0 assertion 1, got %+v", violations[0])
	}
}

func TestValidateSubmissionReportsMissingAndUnknownDecisions(t *testing.T) {
	doc := testDocument()
	_, err := ValidateSubmission(doc, nil, []ReviewDecision{{AssertionKey: "nope", Action: "accept"}}, nil,
		ValidationPolicy{Vocabulary: testVocabulary()})
	var validationErr *domainerrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	codes := map[string]bool{}
	for _, v := range validationErr.Errors() {
		codes[v.Code] = true
	}
	if !codes["unknown_assertion"] || !codes["missing_decision"] {
		t.Fatalf("expected unknown_assertion and missing_decision, got %+v", validationErr.Violations)
	}
}

func TestValidateSubmissionRejectsAdditionWithSubjectOutsideSentence(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key

	_, err := ValidateSubmission(doc, nil,
		[]ReviewDecision{{AssertionKey: key, Action: "accept"}},
		[]ReviewAddition{{SentenceIndex: 1, Content: entities.AssertionContent{
			Subject: "Smokng", SubjectType: "sosy", Predicate: "causes", Object: "chronic cough", ObjectType: "dsyn",
		}}},
		ValidationPolicy{Vocabulary: testVocabulary()})
	var validationErr *domainerrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	errs := validationErr.Errors()
	if len(errs) != 1 || errs[0].Field != "subject_match" || errs[0].Code != "subject_not_found" {
		t.Fatalf("expected subject_match violation, got %+v", errs)
	}
	if !errs[0].Addition || errs[0].AdditionIndex == nil || *errs[0].AdditionIndex != 0 {
		t.Fatalf("expected violation anchored to addition 0, got %+v", errs[0])
	}
	if errs[0].Suggestion == nil || errs[0].Suggestion.Text != "smoking" {
		t.Fatalf("expected fuzzy suggestion for smoking, got %+v", errs[0].Suggestion)
	}
	warnings := 0
	for _, v := range validationErr.Violations {
		if v.Level == domainerrors.ViolationLevelWarning && v.Code == "subject_fuzzy_match" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected one fuzzy warning, got %+v", validationErr.Violations)
	}
}

func TestValidateSubmissionChecksWhitelistAndRequiredFields(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key

	_, err := ValidateSubmission(doc, nil,
		[]ReviewDecision{{AssertionKey: key, Action: "accept"}},
		[]ReviewAddition{{SentenceIndex: 1, Content: entities.AssertionContent{
			Subject: "Smoking", SubjectType: "gene", Predicate: "LIKES", Object: "chronic cough",
		}}},
		ValidationPolicy{Vocabulary: testVocabulary()})
	var validationErr *domainerrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	codes := map[string]string{}
	for _, v := range validationErr.Errors() {
		codes[v.Code] = v.Field
	}
	if codes["field_required"] != "object_type" {
		t.Fatalf("expected object_type field_required, got %+v", codes)
	}
	if _, ok := codes["predicate_not_whitelisted"]; !ok {
		t.Fatalf("expected predicate violation, got %+v", codes)
	}
	if _, ok := codes["subject_type_not_whitelisted"]; !ok {
		t.Fatalf("expected subject type violation, got %+v", codes)
	}
}

func TestValidateSubmissionAcceptsCompleteReview(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key

	result, err := ValidateSubmission(doc, nil,
		[]ReviewDecision{{AssertionKey: key, Action: "Reject", Comment: "wrong subject"}},
		[]ReviewAddition{{SentenceIndex: 1, Content: entities.AssertionContent{
			Subject: "smoking", SubjectType: "SOSY", Predicate: "causes", Object: "Chronic Cough", ObjectType: "dsyn",
		}}},
		ValidationPolicy{Vocabulary: testVocabulary()})
	if err != nil {
		t.Fatalf("expected valid submission, got %v", err)
	}
	if len(result.Decisions) != 1 || result.Decisions[0].Action != entities.ActionReject {
		t.Fatalf("expected one reject decision, got %+v", result.Decisions)
	}
	if len(result.Additions) != 1 || !result.Additions[0].IsNew || result.Additions[0].Predicate != "CAUSES" {
		t.Fatalf("expected normalized addition, got %+v", result.Additions)
	}
}

func TestValidateSubmissionRejectsArbitratedAssertion(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key

	_, err := ValidateSubmission(doc, map[string]bool{key: true},
		[]ReviewDecision{{AssertionKey: key, Action: "accept"}}, nil,
		ValidationPolicy{Vocabulary: testVocabulary()})
	var validationErr *domainerrors.ValidationError
	if !errors.As(err, &validationErr) || validationErr.Errors()[0].Code != "assertion_arbitrated" {
		t.Fatalf("expected assertion_arbitrated violation, got %v", err)
	}
}

func TestEvaluateAssertionDetectsActionConflict(t *testing.T) {
	review := EvaluateAssertion("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionReject, "wrong subject", 0),
		entry("r2", entities.ActionAccept, "", time.Minute),
	})
	if review.Status != ReviewStatusConflict {
		t.Fatalf("expected conflict, got %s", review.Status)
	}
	if review.ConflictReason != "contains reject" {
		t.Fatalf("expected reject reason, got %q", review.ConflictReason)
	}
	if !review.LastUpdated.Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("expected last updated from latest entry, got %s", review.LastUpdated)
	}
}

func TestEvaluateAssertionUsesLatestEntryPerActor(t *testing.T) {
	review := EvaluateAssertion("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionReject, "wrong subject", 0),
		entry("r2", entities.ActionAccept, "", time.Minute),
		entry("r1", entities.ActionAccept, "", 2*time.Minute),
	})
	if review.Status != ReviewStatusConsensus {
		t.Fatalf("expected consensus after r1 changed mind, got %s", review.Status)
	}
}

func TestEvaluateAssertionComparesNormalizedComments(t *testing.T) {
	same := EvaluateAssertion("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionUncertain, "Needs  source.", 0),
		entry("r2", entities.ActionUncertain, "needs source", time.Minute),
	})
	if same.Status != ReviewStatusConsensus {
		t.Fatalf("expected cosmetic comment differences to agree, got %s", same.Status)
	}
	different := EvaluateAssertion("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionModify, "fix subject", 0),
		entry("r2", entities.ActionModify, "fix object", time.Minute),
	})
	if different.Status != ReviewStatusConflict || different.ConflictReason != "comment mismatch" {
		t.Fatalf("expected comment mismatch conflict, got %s %q", different.Status, different.ConflictReason)
	}
}

func TestEvaluateAssertionTreatsAddAsAccept(t *testing.T) {
	review := EvaluateAssertion("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionAdd, "", 0),
		entry("r2", entities.ActionAccept, "", time.Minute),
	})
	if review.Status != ReviewStatusConsensus {
		t.Fatalf("expected add and accept to agree, got %s", review.Status)
	}
}

func TestArbitrationSuppressesConflictAndFixesFinal(t *testing.T) {
	log := []entities.DecisionEntry{
		entry("r1", entities.ActionReject, "wrong subject", 0),
		entry("r2", entities.ActionAccept, "", time.Minute),
		arbitration(entities.ActionModify, 2*time.Minute),
		entry("r3", entities.ActionReject, "late", 3*time.Minute),
	}
	review := EvaluateAssertion("A1", log)
	if review.Status != ReviewStatusArbitrated {
		t.Fatalf("expected arbitrated, got %s", review.Status)
	}
	if (QueueFilter{OnlyConflicts: false, IncludePending: true}).Admit(review) {
		t.Fatalf("arbitrated assertion must never enter the queue")
	}
	final := ComputeFinal("A1", log)
	if final.Status != entities.FinalStatusModify || final.Basis != entities.ConsensusBasisArbitration {
		t.Fatalf("expected arbitrated modify, got %+v", final)
	}
}

func TestComputeFinalSingleAgreementAndUnresolved(t *testing.T) {
	single := ComputeFinal("A1", []entities.DecisionEntry{entry("r1", entities.ActionAdd, "", 0)})
	if single.Status != entities.FinalStatusAccept || single.Basis != entities.ConsensusBasisSingleReviewer {
		t.Fatalf("expected single reviewer accept, got %+v", single)
	}
	agreed := ComputeFinal("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionReject, "no", 0),
		entry("r2", entities.ActionReject, "wrong", time.Minute),
	})
	if agreed.Status != entities.FinalStatusReject || agreed.Basis != entities.ConsensusBasisAgreement {
		t.Fatalf("expected agreed reject, got %+v", agreed)
	}
	split := ComputeFinal("A1", []entities.DecisionEntry{
		entry("r1", entities.ActionReject, "no", 0),
		entry("r2", entities.ActionAccept, "", time.Minute),
	})
	if split.Status != entities.FinalStatusUnresolved {
		t.Fatalf("expected unresolved, got %+v", split)
	}
	if none := ComputeFinal("A1", nil); none.Status != entities.FinalStatusUnresolved {
		t.Fatalf("expected unresolved for empty log, got %+v", none)
	}
}

func TestConflictingCommentsStayOutOfConsensus(t *testing.T) {
	doc := testDocument()
	key := doc.Sentences[0].Assertions[0].Key
	log := []entities.DecisionEntry{
		entry("r1", entities.ActionUncertain, "dosage unclear", 0),
		entry("r2", entities.ActionUncertain, "population not stated", time.Minute),
	}
	for i := range log {
		log[i].AssertionKey = key
	}

	review := EvaluateAssertion(key, log)
	if review.Status != ReviewStatusConflict {
		t.Fatalf("expected conflict, got %s", review.Status)
	}
	if !(QueueFilter{OnlyConflicts: true}).Admit(review) {
		t.Fatalf("expected conflicting assertion in the arbitration queue")
	}
	if final := ComputeFinal(key, log); final.Status != entities.FinalStatusUnresolved || final.Basis != entities.ConsensusBasisNone {
		t.Fatalf("expected unresolved while awaiting arbitration, got %+v", final)
	}
	if records := ConsensusRecords(doc, log); len(records) != 0 {
		t.Fatalf("expected no consensus rows for a pending conflict, got %+v", records)
	}
}

func TestModifyWithSameCommentAgreesRegardlessOfProposal(t *testing.T) {
	first := entry("r1", entities.ActionModify, "fix subject", 0)
	first.Proposed = &entities.AssertionContent{Subject: "aspirin", SubjectType: "phsu", Predicate: "TREATS", Object: "mi", ObjectType: "dsyn"}
	second := entry("r2", entities.ActionModify, "Fix subject.", time.Minute)
	second.Proposed = &entities.AssertionContent{Subject: "acetylsalicylic acid", SubjectType: "phsu", Predicate: "TREATS", Object: "mi", ObjectType: "dsyn"}

	log := []entities.DecisionEntry{first, second}
	if review := EvaluateAssertion("A1", log); review.Status != ReviewStatusConsensus {
		t.Fatalf("expected consensus on matching modify comments, got %s %q", review.Status, review.ConflictReason)
	}
	if final := ComputeFinal("A1", log); final.Status != entities.FinalStatusModify || final.Basis != entities.ConsensusBasisAgreement {
		t.Fatalf("expected agreed modify, got %+v", final)
	}
}

func TestQueueFilterDefaultsAndPending(t *testing.T) {
	pending := EvaluateAssertion("A1", []entities.DecisionEntry{entry("r1", entities.ActionReject, "no", 0)})
	authored := EvaluateAssertion("A2", []entities.DecisionEntry{entry("r1", entities.ActionAdd, "", 0)})
	defaults := QueueFilter{OnlyConflicts: true}
	if defaults.Admit(pending) {
		t.Fatalf("pending should be hidden by default")
	}
	withPending := QueueFilter{OnlyConflicts: true, IncludePending: true}
	if !withPending.Admit(pending) {
		t.Fatalf("pending should be admitted when requested")
	}
	if withPending.Admit(authored) {
		t.Fatalf("assertions with only an add entry should never be queued")
	}
}

func TestBestFuzzySpan(t *testing.T) {
	best, score := BestFuzzySpan("Aspirin reduces the risk of myocardial infarction.", "myocardial infraction")
	if best != "myocardial infarction" {
		t.Fatalf("expected myocardial infarction span, got %q", best)
	}
	if score < DefaultFuzzyThreshold {
		t.Fatalf("expected score above threshold, got %f", score)
	}
	if _, score := BestFuzzySpan("", "x"); score != 0 {
		t.Fatalf("expected zero score for empty sentence, got %f", score)
	}
}

func TestMergeDocumentAddsOnlyUnseenContent(t *testing.T) {
	existing := testDocument()
	incoming := testDocument()
	incoming.Sentences[1].Assertions = []entities.Assertion{{
		AssertionContent: entities.AssertionContent{
			Subject: "Smoking", SubjectType: "sosy", Predicate: "CAUSES", Object: "chronic cough", ObjectType: "dsyn",
		},
	}}
	incoming.Sentences = append(incoming.Sentences, entities.Sentence{Index: 2, Text: "New sentence."})

	merged, changed := MergeDocument(existing, incoming)
	if !changed {
		t.Fatalf("expected merge to report changes")
	}
	if len(merged.Sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(merged.Sentences))
	}
	if got := len(merged.Assertions()); got != 2 {
		t.Fatalf("expected 2 assertions without duplicates, got %d", got)
	}
	if merged.Sentences[1].Assertions[0].AssertionIndex != 1 {
		t.Fatalf("expected first assertion index in sentence 1, got %d", merged.Sentences[1].Assertions[0].AssertionIndex)
	}

	again, changed := MergeDocument(merged, incoming)
	if changed || len(again.Assertions()) != 2 {
		t.Fatalf("expected re-import to be a no-op, changed=%v assertions=%d", changed, len(again.Assertions()))
	}
}
