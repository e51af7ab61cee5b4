// Package v1 holds the versioned event envelope published by review services
// to the outbox relay and any downstream broker.
package v1

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SchemaVersion is the envelope layout this package encodes. Fields may only
// be added, never renamed or removed, within one version.
const SchemaVersion = 1

type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Validate reports envelopes that consumers could not route or deduplicate.
func (e Envelope) Validate() error {
	var errs []error
	if strings.TrimSpace(e.EventID) == "" {
		errs = append(errs, errors.New("event_id is required"))
	}
	if strings.TrimSpace(e.EventType) == "" {
		errs = append(errs, errors.New("event_type is required"))
	}
	if e.OccurredAt.IsZero() {
		errs = append(errs, errors.New("occurred_at is required"))
	}
	if e.SchemaVersion < 1 || e.SchemaVersion > SchemaVersion {
		errs = append(errs, errors.New("schema_version is not supported"))
	}
	if e.PartitionKeyPath != "" && strings.TrimSpace(e.PartitionKey) == "" {
		errs = append(errs, errors.New("partition_key is required when partition_key_path is set"))
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		errs = append(errs, errors.New("data must be valid json"))
	}
	return errors.Join(errs...)
}
