package application

import (
	"encoding/json"
	"io"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
)

// ConsensusLine is the JSONL wire shape of one exported consensus record.
type ConsensusLine struct {
	AssertionKey  string    `json:"assertion_key"`
	DocumentID    string    `json:"document_id"`
	SentenceIndex int       `json:"sentence_index"`
	Sentence      string    `json:"sentence"`
	Subject       string    `json:"subject"`
	SubjectType   string    `json:"subject_type"`
	Predicate     string    `json:"predicate"`
	Object        string    `json:"object"`
	ObjectType    string    `json:"object_type"`
	Negation      bool      `json:"negation"`
	IsNew         bool      `json:"is_new"`
	FinalStatus   string    `json:"final_status"`
	Basis         string    `json:"basis"`
	Reviewers     []string  `json:"reviewers"`
	AdminID       string    `json:"admin_id,omitempty"`
	Comment       string    `json:"comment,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

func ToConsensusLine(record entities.ConsensusRecord) ConsensusLine {
	reviewers := record.Reviewers
	if reviewers == nil {
		reviewers = []string{}
	}
	return ConsensusLine{
		AssertionKey:  record.AssertionKey,
		DocumentID:    record.DocumentID,
		SentenceIndex: record.SentenceIndex,
		Sentence:      record.SentenceText,
		Subject:       record.Subject,
		SubjectType:   record.SubjectType,
		Predicate:     record.Predicate,
		Object:        record.Object,
		ObjectType:    record.ObjectType,
		Negation:      record.Negation,
		IsNew:         record.IsNew,
		FinalStatus:   string(record.FinalStatus),
		Basis:         string(record.Basis),
		Reviewers:     reviewers,
		AdminID:       record.AdminID,
		Comment:       record.Comment,
		DecidedAt:     record.DecidedAt.UTC(),
	}
}

// JSONLWriter encodes consensus records one per line.
type JSONLWriter struct {
	encoder *json.Encoder
	count   int
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return &JSONLWriter{encoder: encoder}
}

func (w *JSONLWriter) Write(record entities.ConsensusRecord) error {
	if err := w.encoder.Encode(ToConsensusLine(record)); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *JSONLWriter) Count() int {
	return w.count
}
