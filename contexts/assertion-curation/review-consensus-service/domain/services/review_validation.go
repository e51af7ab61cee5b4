package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
)

// ReviewDecision is a reviewer's raw verdict on an existing assertion.
// Proposed is only meaningful for modify.
type ReviewDecision struct {
	AssertionKey string
	Action       string
	Comment      string
	Proposed     *entities.AssertionContent
}

// ReviewAddition is a reviewer-authored assertion for one sentence.
type ReviewAddition struct {
	SentenceIndex int
	Content       entities.AssertionContent
	Comment       string
}

type ValidationPolicy struct {
	Vocabulary     entities.Vocabulary
	FuzzyThreshold float64
}

type ValidatedDecision struct {
	Assertion entities.Assertion
	Action    entities.Action
	Comment   string
	Proposed  *entities.AssertionContent
}

// ValidatedSubmission is a submission that passed every blocking check.
// Additions carry their derived keys and IsNew but no creator or timestamps.
type ValidatedSubmission struct {
	Decisions []ValidatedDecision
	Additions []entities.Assertion
	Comments  map[string]string
	Warnings  []domainerrors.Violation
}

// ValidateSubmission checks a full review of doc. Every violation is
// collected; a *domainerrors.ValidationError is returned when at least one is
// error-level. arbitrated holds the keys that already have a terminal ruling.
func ValidateSubmission(
	doc entities.Document,
	arbitrated map[string]bool,
	decisions []ReviewDecision,
	additions []ReviewAddition,
	policy ValidationPolicy,
) (ValidatedSubmission, error) {
	threshold := policy.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	v := validator{doc: doc, vocabulary: policy.Vocabulary, threshold: threshold}

	result := ValidatedSubmission{Comments: make(map[string]string)}
	decided := make(map[string]bool, len(decisions))
	for _, decision := range decisions {
		key := strings.TrimSpace(decision.AssertionKey)
		assertion, ok := doc.FindAssertion(key)
		if !ok {
			v.add(domainerrors.Violation{
				Level:         domainerrors.ViolationLevelError,
				Code:          "unknown_assertion",
				Message:       fmt.Sprintf("Assertion %q does not belong to this document.", key),
				Field:         "assertion_key",
				SentenceIndex: -1,
			})
			continue
		}
		anchor := anchorFor(assertion)
		if decided[key] {
			v.add(anchor.violation("duplicate_decision", "action", "Assertion has more than one decision in this submission."))
			continue
		}
		decided[key] = true

		action, ok := entities.ParseReviewAction(decision.Action)
		if !ok {
			v.add(anchor.violation("invalid_action", "action",
				fmt.Sprintf("Action %q is not one of accept, reject, modify, uncertain.", decision.Action)))
			continue
		}
		if arbitrated[key] {
			v.add(anchor.violation("assertion_arbitrated", "action", "Assertion has a final arbitration decision and cannot be reviewed."))
			continue
		}
		comment := strings.TrimSpace(decision.Comment)
		if action.RequiresComment() && comment == "" {
			v.add(anchor.violation("comment_required", "comment",
				fmt.Sprintf("A comment is required when the action is %s.", action)))
		}

		var proposed *entities.AssertionContent
		if action == entities.ActionModify && decision.Proposed != nil {
			content := trimContent(*decision.Proposed)
			sentence, _ := doc.Sentence(assertion.SentenceIndex)
			v.checkContent(anchor, sentence.Text, content)
			if changes := countChanges(assertion.AssertionContent, content); changes > 1 {
				w := anchor.violation("multiple_changes", "", "More than one field changed. Prefer reject or uncertain and add a clean assertion.")
				w.Level = domainerrors.ViolationLevelWarning
				v.add(w)
			}
			proposed = &content
		}
		result.Decisions = append(result.Decisions, ValidatedDecision{
			Assertion: assertion,
			Action:    action,
			Comment:   comment,
			Proposed:  proposed,
		})
	}

	for _, assertion := range doc.Assertions() {
		if decided[assertion.Key] || arbitrated[assertion.Key] {
			continue
		}
		v.add(anchorFor(assertion).violation("missing_decision", "action", "Every existing assertion requires a decision."))
	}

	added := make(map[string]bool, len(additions))
	for i, addition := range additions {
		anchor := violationAnchor{sentenceIndex: addition.SentenceIndex, additionIndex: intPtr(i), addition: true}
		sentence, ok := doc.Sentence(addition.SentenceIndex)
		if !ok {
			v.add(anchor.violation("sentence_not_found", "sentence_index",
				fmt.Sprintf("Sentence %d does not exist in this document.", addition.SentenceIndex)))
			continue
		}
		content := trimContent(addition.Content)
		for _, field := range missingFields(content) {
			v.add(anchor.violation("field_required", field, fmt.Sprintf("Field %s is required.", field)))
		}
		v.checkContent(anchor, sentence.Text, content)

		key := entities.NewAssertionKey(doc.DocumentID, sentence.Index, content)
		if _, exists := doc.FindAssertion(key); exists || added[key] {
			v.add(anchor.violation("duplicate_assertion", "", "An identical assertion already exists for this sentence."))
			continue
		}
		added[key] = true
		result.Additions = append(result.Additions, entities.Assertion{
			Key:              key,
			DocumentID:       doc.DocumentID,
			SentenceIndex:    sentence.Index,
			AssertionContent: content,
			IsNew:            true,
		})
		if comment := strings.TrimSpace(addition.Comment); comment != "" {
			result.Comments[key] = comment
		}
	}

	sortViolations(v.violations)
	for _, violation := range v.violations {
		if violation.Level == domainerrors.ViolationLevelWarning {
			result.Warnings = append(result.Warnings, violation)
		}
	}
	if v.blocking {
		return ValidatedSubmission{}, &domainerrors.ValidationError{Violations: v.violations}
	}
	return result, nil
}

type validator struct {
	doc        entities.Document
	vocabulary entities.Vocabulary
	threshold  float64
	violations []domainerrors.Violation
	blocking   bool
}

func (v *validator) add(violation domainerrors.Violation) {
	if violation.Level == "" {
		violation.Level = domainerrors.ViolationLevelError
	}
	if violation.Level == domainerrors.ViolationLevelError {
		v.blocking = true
	}
	v.violations = append(v.violations, violation)
}

// checkContent runs sentence-span and whitelist checks on non-empty fields.
func (v *validator) checkContent(anchor violationAnchor, sentenceText string, content entities.AssertionContent) {
	v.checkSpan(anchor, sentenceText, "subject", content.Subject)
	v.checkSpan(anchor, sentenceText, "object", content.Object)
	if content.Predicate != "" && !v.vocabulary.IsPredicate(content.Predicate) {
		v.add(anchor.violation("predicate_not_whitelisted", "predicate",
			fmt.Sprintf("Predicate %q is not in the whitelist.", content.Predicate)))
	}
	if content.SubjectType != "" && !v.vocabulary.IsEntityType(content.SubjectType) {
		v.add(anchor.violation("subject_type_not_whitelisted", "subject_type",
			fmt.Sprintf("Subject type %q is not in the whitelist.", content.SubjectType)))
	}
	if content.ObjectType != "" && !v.vocabulary.IsEntityType(content.ObjectType) {
		v.add(anchor.violation("object_type_not_whitelisted", "object_type",
			fmt.Sprintf("Object type %q is not in the whitelist.", content.ObjectType)))
	}
}

func (v *validator) checkSpan(anchor violationAnchor, sentenceText string, field string, value string) {
	if value == "" || ContainsFold(sentenceText, value) {
		return
	}
	var suggestion *domainerrors.FuzzySuggestion
	if best, score := BestFuzzySpan(sentenceText, value); best != "" && score >= v.threshold {
		suggestion = &domainerrors.FuzzySuggestion{Text: best, Score: roundScore(score)}
		warning := anchor.violation(field+"_fuzzy_match", field,
			fmt.Sprintf("Closest phrase in the sentence is %q. Select an exact phrase from the sentence.", best))
		warning.Level = domainerrors.ViolationLevelWarning
		warning.Suggestion = suggestion
		v.add(warning)
	}
	notFound := anchor.violation(field+"_not_found", field+"_match",
		fmt.Sprintf("%s text is not found in the sentence (case-insensitive exact match required).", titleCase(field)))
	notFound.Suggestion = suggestion
	v.add(notFound)
}

type violationAnchor struct {
	sentenceIndex  int
	assertionIndex *int
	additionIndex  *int
	addition       bool
}

func anchorFor(assertion entities.Assertion) violationAnchor {
	return violationAnchor{sentenceIndex: assertion.SentenceIndex, assertionIndex: intPtr(assertion.AssertionIndex)}
}

func (a violationAnchor) violation(code string, field string, message string) domainerrors.Violation {
	return domainerrors.Violation{
		Level:          domainerrors.ViolationLevelError,
		Code:           code,
		Message:        message,
		Field:          field,
		SentenceIndex:  a.sentenceIndex,
		AssertionIndex: a.assertionIndex,
		AdditionIndex:  a.additionIndex,
		Addition:       a.addition,
	}
}

func missingFields(content entities.AssertionContent) []string {
	var out []string
	if content.Subject == "" {
		out = append(out, "subject")
	}
	if content.SubjectType == "" {
		out = append(out, "subject_type")
	}
	if content.Predicate == "" {
		out = append(out, "predicate")
	}
	if content.Object == "" {
		out = append(out, "object")
	}
	if content.ObjectType == "" {
		out = append(out, "object_type")
	}
	return out
}

func trimContent(content entities.AssertionContent) entities.AssertionContent {
	return entities.AssertionContent{
		Subject:     strings.TrimSpace(content.Subject),
		SubjectType: strings.ToLower(strings.TrimSpace(content.SubjectType)),
		Predicate:   strings.ToUpper(strings.TrimSpace(content.Predicate)),
		Object:      strings.TrimSpace(content.Object),
		ObjectType:  strings.ToLower(strings.TrimSpace(content.ObjectType)),
		Negation:    content.Negation,
	}
}

func countChanges(original entities.AssertionContent, updated entities.AssertionContent) int {
	changes := 0
	pairs := [][2]string{
		{original.Subject, updated.Subject},
		{original.SubjectType, updated.SubjectType},
		{original.Predicate, updated.Predicate},
		{original.Object, updated.Object},
		{original.ObjectType, updated.ObjectType},
	}
	for _, pair := range pairs {
		if !strings.EqualFold(strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])) {
			changes++
		}
	}
	if original.Negation != updated.Negation {
		changes++
	}
	return changes
}

// sortViolations orders findings by sentence, then assertion or addition slot.
func sortViolations(violations []domainerrors.Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if a.SentenceIndex != b.SentenceIndex {
			return a.SentenceIndex < b.SentenceIndex
		}
		if a.Addition != b.Addition {
			return !a.Addition
		}
		return slotOf(a) < slotOf(b)
	})
}

func slotOf(v domainerrors.Violation) int {
	if v.AssertionIndex != nil {
		return *v.AssertionIndex
	}
	if v.AdditionIndex != nil {
		return *v.AdditionIndex
	}
	return -1
}

func roundScore(score float64) float64 {
	return float64(int(score*1000+0.5)) / 1000
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}

func intPtr(v int) *int {
	return &v
}
