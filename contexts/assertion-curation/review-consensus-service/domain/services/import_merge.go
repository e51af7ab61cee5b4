package services

import (
	"sort"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

// MergeDocument folds incoming into existing: unseen sentences are appended
// and unseen assertions (by key) are added to their sentence. Existing
// sentences, assertions and metadata keys are never overwritten. The second
// return value reports whether anything was added.
func MergeDocument(existing entities.Document, incoming entities.Document) (entities.Document, bool) {
	merged := existing.Clone()
	incoming = incoming.Clone()
	incoming.DocumentID = existing.DocumentID
	incoming.NormalizeKeys()

	changed := false
	if merged.Title == "" && incoming.Title != "" {
		merged.Title = incoming.Title
		changed = true
	}
	if merged.Source == "" && incoming.Source != "" {
		merged.Source = incoming.Source
		changed = true
	}
	for k, v := range incoming.Metadata {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string)
		}
		if _, ok := merged.Metadata[k]; !ok {
			merged.Metadata[k] = v
			changed = true
		}
	}

	known := make(map[string]struct{})
	for _, assertion := range merged.Assertions() {
		known[assertion.Key] = struct{}{}
	}
	positions := make(map[int]int, len(merged.Sentences))
	for i, sentence := range merged.Sentences {
		positions[sentence.Index] = i
	}

	for _, sentence := range incoming.Sentences {
		pos, ok := positions[sentence.Index]
		if !ok {
			merged.Sentences = append(merged.Sentences, entities.Sentence{Index: sentence.Index, Text: sentence.Text})
			pos = len(merged.Sentences) - 1
			positions[sentence.Index] = pos
			changed = true
		}
		target := &merged.Sentences[pos]
		for _, assertion := range sentence.Assertions {
			if _, seen := known[assertion.Key]; seen {
				continue
			}
			known[assertion.Key] = struct{}{}
			assertion.AssertionIndex = nextAssertionIndex(*target)
			target.Assertions = append(target.Assertions, assertion)
			changed = true
		}
	}

	sort.SliceStable(merged.Sentences, func(i, j int) bool {
		return merged.Sentences[i].Index < merged.Sentences[j].Index
	})
	return merged, changed
}

// nextAssertionIndex returns the 1-based index the next assertion of the
// sentence receives.
func nextAssertionIndex(sentence entities.Sentence) int {
	next := 1
	for _, assertion := range sentence.Assertions {
		if assertion.AssertionIndex >= next {
			next = assertion.AssertionIndex + 1
		}
	}
	return next
}

// AssignAdditionIndexes gives reviewer-added assertions their positions after
// the existing assertions of their sentence.
func AssignAdditionIndexes(doc entities.Document, additions []entities.Assertion) []entities.Assertion {
	next := make(map[int]int)
	for _, sentence := range doc.Sentences {
		next[sentence.Index] = nextAssertionIndex(sentence)
	}
	out := make([]entities.Assertion, len(additions))
	for i, assertion := range additions {
		if _, ok := next[assertion.SentenceIndex]; !ok {
			next[assertion.SentenceIndex] = 1
		}
		assertion.AssertionIndex = next[assertion.SentenceIndex]
		next[assertion.SentenceIndex]++
		out[i] = assertion
	}
	return out
}
