package application

import (
	"encoding/json"
	"time"

	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
	contractsv1 "github.com/FreddieTree/manual-review-sub000/contracts/gen/events/v1"
)

const (
	EventReviewSubmitted            = "review.submitted"
	EventArbitrationDecided         = "arbitration.decided"
	EventLeaseReclaimed             = "lease.reclaimed"
	EventConsensusSnapshotPublished = "consensus.snapshot_published"
	sourceService                   = "review-consensus-service"
)

// NewEnvelope builds the canonical envelope for events of this context.
// Document-scoped events are partitioned by document_id so consumers see one
// document's history in order.
func NewEnvelope(
	eventID string,
	eventType string,
	partitionKeyPath string,
	partitionKey string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    contractsv1.SchemaVersion,
		PartitionKeyPath: partitionKeyPath,
		PartitionKey:     partitionKey,
		Data:             payload,
	}, nil
}
