package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func validEnvelope() Envelope {
	return Envelope{
		EventID:          "evt-1",
		EventType:        "review.submitted",
		OccurredAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceService:    "review-consensus-service",
		SchemaVersion:    SchemaVersion,
		PartitionKeyPath: "document_id",
		PartitionKey:     "D1",
		Data:             json.RawMessage(`{"document_id":"D1"}`),
	}
}

func TestEnvelopeValidate(t *testing.T) {
	if err := validEnvelope().Validate(); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}

	cases := map[string]func(*Envelope){
		"missing id":        func(e *Envelope) { e.EventID = " " },
		"missing type":      func(e *Envelope) { e.EventType = "" },
		"zero time":         func(e *Envelope) { e.OccurredAt = time.Time{} },
		"future schema":     func(e *Envelope) { e.SchemaVersion = SchemaVersion + 1 },
		"missing partition": func(e *Envelope) { e.PartitionKey = "" },
		"bad data":          func(e *Envelope) { e.Data = json.RawMessage(`{"x":`) },
	}
	for name, mutate := range cases {
		envelope := validEnvelope()
		mutate(&envelope)
		if envelope.Validate() == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
