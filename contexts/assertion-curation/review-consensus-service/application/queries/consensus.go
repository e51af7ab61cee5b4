package queries

import (
	"context"
	"log/slog"
	"strings"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/services"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type DocumentFinal struct {
	DocumentID string
	Assertions map[string]services.FinalDecision
}

// ConsensusUseCase serves read-only consensus projections.
type ConsensusUseCase struct {
	Corpus    ports.CorpusReader
	Snapshots ports.SnapshotRepository
	Logger    *slog.Logger
}

func (u ConsensusUseCase) ComputeFinal(ctx context.Context, documentID string) (DocumentFinal, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return DocumentFinal{}, domainerrors.ErrInvalidRequest
	}
	result := DocumentFinal{DocumentID: documentID}
	found := false
	err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{DocumentID: documentID},
		func(doc entities.Document, decisions []entities.DecisionEntry) error {
			found = true
			result.Assertions = services.ComputeDocumentFinal(doc, decisions)
			return nil
		})
	if err != nil {
		return DocumentFinal{}, err
	}
	if !found {
		return DocumentFinal{}, domainerrors.ErrDocumentNotFound
	}
	return result, nil
}

// ExportConsensus streams every finalized record from one consistent read and
// returns how many were emitted. Unresolved assertions are skipped.
func (u ConsensusUseCase) ExportConsensus(ctx context.Context, emit func(entities.ConsensusRecord) error) (int, error) {
	logger := application.ResolveLogger(u.Logger)
	count := 0
	err := u.Corpus.ScanCorpus(ctx, ports.CorpusFilter{}, func(doc entities.Document, decisions []entities.DecisionEntry) error {
		for _, record := range services.ConsensusRecords(doc, decisions) {
			if err := emit(record); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		logger.Error("consensus export failed",
			"event", "review_consensus_export_failed",
			"module", application.ModuleName,
			"layer", "application",
			"emitted", count,
			"error", err.Error(),
		)
		return count, err
	}
	logger.Info("consensus export completed",
		"event", "review_consensus_export_completed",
		"module", application.ModuleName,
		"layer", "application",
		"emitted", count,
	)
	return count, nil
}

func (u ConsensusUseCase) ListSnapshots(ctx context.Context) ([]entities.ConsensusSnapshot, error) {
	return u.Snapshots.ListSnapshots(ctx)
}
