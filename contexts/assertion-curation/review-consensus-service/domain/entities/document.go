package entities

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
)

type Document struct {
	DocumentID string
	Title      string
	Source     string
	Metadata   map[string]string
	Sentences  []Sentence
	Sequence   int64
	ImportedAt time.Time
}

type Sentence struct {
	Index      int
	Text       string
	Assertions []Assertion
}

// AssertionContent is the reviewable (subject, predicate, object) tuple.
type AssertionContent struct {
	Subject     string
	SubjectType string
	Predicate   string
	Object      string
	ObjectType  string
	Negation    bool
}

type Assertion struct {
	Key            string
	DocumentID     string
	SentenceIndex  int
	AssertionIndex int
	AssertionContent
	IsNew     bool
	CreatedBy string
	CreatedAt time.Time
}

// NewAssertionKey derives the stable assertion key. Inputs are trimmed and
// lower-cased so cosmetic edits do not fork an assertion's history. Each part
// is length-prefixed, so no field value can shift into its neighbour.
func NewAssertionKey(documentID string, sentenceIndex int, content AssertionContent) string {
	parts := []string{
		normalizeKeyPart(documentID),
		strconv.Itoa(sentenceIndex),
		normalizeKeyPart(content.Subject),
		normalizeKeyPart(content.SubjectType),
		normalizeKeyPart(content.Predicate),
		normalizeKeyPart(content.Object),
		normalizeKeyPart(content.ObjectType),
		strconv.FormatBool(content.Negation),
	}
	hash := sha1.New()
	for _, part := range parts {
		hash.Write([]byte(strconv.Itoa(len(part))))
		hash.Write([]byte{':'})
		hash.Write([]byte(part))
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func normalizeKeyPart(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Validate checks structural document invariants used by corpus import.
func (d Document) Validate() error {
	if strings.TrimSpace(d.DocumentID) == "" {
		return domainerrors.ErrInvalidDocument
	}
	seen := make(map[int]struct{}, len(d.Sentences))
	for _, sentence := range d.Sentences {
		if sentence.Index < 0 || strings.TrimSpace(sentence.Text) == "" {
			return domainerrors.ErrInvalidDocument
		}
		if _, dup := seen[sentence.Index]; dup {
			return domainerrors.ErrInvalidDocument
		}
		seen[sentence.Index] = struct{}{}
	}
	return nil
}

// Sentence returns the sentence with the given index.
func (d Document) Sentence(index int) (Sentence, bool) {
	for _, sentence := range d.Sentences {
		if sentence.Index == index {
			return sentence, true
		}
	}
	return Sentence{}, false
}

// Assertions flattens assertions in sentence then assertion order.
func (d Document) Assertions() []Assertion {
	var out []Assertion
	for _, sentence := range d.Sentences {
		out = append(out, sentence.Assertions...)
	}
	return out
}

func (d Document) FindAssertion(key string) (Assertion, bool) {
	for _, sentence := range d.Sentences {
		for _, assertion := range sentence.Assertions {
			if assertion.Key == key {
				return assertion, true
			}
		}
	}
	return Assertion{}, false
}

// NormalizeKeys fills DocumentID, SentenceIndex, AssertionIndex and Key on
// every assertion. Imported assertions keep their position as index.
func (d *Document) NormalizeKeys() {
	for si := range d.Sentences {
		sentence := &d.Sentences[si]
		for ai := range sentence.Assertions {
			assertion := &sentence.Assertions[ai]
			assertion.DocumentID = d.DocumentID
			assertion.SentenceIndex = sentence.Index
			if assertion.AssertionIndex <= 0 {
				assertion.AssertionIndex = ai + 1
			}
			if assertion.Key == "" {
				assertion.Key = NewAssertionKey(d.DocumentID, sentence.Index, assertion.AssertionContent)
			}
		}
	}
}

// Clone returns a deep copy so adapters never leak internal slices.
func (d Document) Clone() Document {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Sentences = make([]Sentence, len(d.Sentences))
	for i, sentence := range d.Sentences {
		out.Sentences[i] = Sentence{
			Index:      sentence.Index,
			Text:       sentence.Text,
			Assertions: append([]Assertion(nil), sentence.Assertions...),
		}
	}
	return out
}
