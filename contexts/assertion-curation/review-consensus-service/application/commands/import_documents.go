package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type ImportDocumentsCommand struct {
	Documents []entities.Document
	// Rejected carries items the transport could not decode; they are
	// reported as failures alongside repository errors.
	Rejected []ImportFailure
	// Positions optionally gives each document's source position, such as
	// its line number. Without it failures report the slice index.
	Positions []int
}

func (c ImportDocumentsCommand) position(i int) int {
	if i < len(c.Positions) {
		return c.Positions[i]
	}
	return i
}

type ImportFailure struct {
	Position   int
	DocumentID string
	Message    string
}

type ImportDocumentsResult struct {
	Imported  int
	Merged    int
	Unchanged int
	Failed    int
	Errors    []ImportFailure
}

// ImportDocumentsUseCase loads corpus documents. Each document is imported
// independently; one bad document never aborts the batch.
type ImportDocumentsUseCase struct {
	Documents ports.DocumentRepository
	Clock     ports.Clock
	Logger    *slog.Logger
}

func (u ImportDocumentsUseCase) Execute(ctx context.Context, cmd ImportDocumentsCommand) (ImportDocumentsResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	result := ImportDocumentsResult{Errors: append([]ImportFailure(nil), cmd.Rejected...)}
	result.Failed = len(cmd.Rejected)
	for i, doc := range cmd.Documents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		doc.DocumentID = strings.TrimSpace(doc.DocumentID)
		if err := doc.Validate(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportFailure{Position: cmd.position(i), DocumentID: doc.DocumentID, Message: err.Error()})
			continue
		}
		outcome, err := u.Documents.ImportDocument(ctx, doc, now)
		if err != nil {
			logger.Warn("document import failed",
				"event", "review_document_import_failed",
				"module", application.ModuleName,
				"layer", "application",
				"document_id", doc.DocumentID,
				"error", err.Error(),
			)
			result.Failed++
			result.Errors = append(result.Errors, ImportFailure{
				Position:   cmd.position(i),
				DocumentID: doc.DocumentID,
				Message:    fmt.Sprintf("import failed: %v", err),
			})
			continue
		}
		switch outcome {
		case ports.ImportOutcomeImported:
			result.Imported++
		case ports.ImportOutcomeMerged:
			result.Merged++
		default:
			result.Unchanged++
		}
	}

	logger.Info("document import completed",
		"event", "review_document_import_completed",
		"module", application.ModuleName,
		"layer", "application",
		"imported", result.Imported,
		"merged", result.Merged,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
	)
	return result, nil
}
