package commands

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type ExportSnapshotCommand struct {
	AdminID string
	Confirm bool
}

// ExportSnapshotUseCase publishes an immutable JSONL artifact of every
// finalized assertion from one consistent corpus read.
type ExportSnapshotUseCase struct {
	Corpus    ports.CorpusReader
	Writer    ports.SnapshotWriter
	Snapshots ports.SnapshotRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func (u ExportSnapshotUseCase) Execute(ctx context.Context, cmd ExportSnapshotCommand) (entities.ConsensusSnapshot, error) {
	logger := application.ResolveLogger(u.Logger)
	adminID := strings.TrimSpace(cmd.AdminID)
	if !cmd.Confirm {
		return entities.ConsensusSnapshot{}, domainerrors.ErrConfirmationRequired
	}
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}
	snapshotID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return entities.ConsensusSnapshot{}, err
	}
	name := "consensus-" + now.Format("20060102T150405Z") + "-" + snapshotID + ".jsonl"

	var count int
	artifact, err := u.Writer.Publish(ctx, name, func(w io.Writer) error {
		out := application.NewJSONLWriter(w)
		err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{}, func(doc entities.Document, decisions []entities.DecisionEntry) error {
			for _, record := range services.ConsensusRecords(doc, decisions) {
				if err := out.Write(record); err != nil {
					return err
				}
			}
			return nil
		})
		count = out.Count()
		return err
	})
	if err != nil {
		logger.Error("consensus snapshot publish failed",
			"event", "review_snapshot_publish_failed",
			"module", application.ModuleName,
			"layer", "application",
			"snapshot_id", snapshotID,
			"error", err.Error(),
		)
		return entities.ConsensusSnapshot{}, err
	}

	snapshot := entities.ConsensusSnapshot{
		SnapshotID:  snapshotID,
		Path:        artifact.Path,
		RecordCount: count,
		SHA256:      artifact.SHA256,
		CreatedBy:   adminID,
		CreatedAt:   now,
	}
	eventID, err := u.IDGen.NewID(ctx)
	if err != nil {
		return entities.ConsensusSnapshot{}, err
	}
	event, err := application.NewEnvelope(eventID, application.EventConsensusSnapshotPublished, "snapshot_id", snapshotID, now, map[string]any{
		"snapshot_id":  snapshotID,
		"path":         artifact.Path,
		"record_count": count,
		"sha256":       artifact.SHA256,
		"created_by":   adminID,
	})
	if err != nil {
		return entities.ConsensusSnapshot{}, err
	}
	if err := u.Snapshots.RecordSnapshot(ctx, snapshot, event); err != nil {
		return entities.ConsensusSnapshot{}, err
	}

	logger.Info("consensus snapshot published",
		"event", "review_snapshot_published",
		"module", application.ModuleName,
		"layer", "application",
		"snapshot_id", snapshotID,
		"path", artifact.Path,
		"record_count", count,
		"bytes", artifact.Bytes,
	)
	return snapshot, nil
}
