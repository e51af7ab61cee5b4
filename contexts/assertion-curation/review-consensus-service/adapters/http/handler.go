package httpadapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/commands"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/queries"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	domainerrors "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/errors"
	httptransport "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/transport/http"
)

const maxImportLineBytes = 8 << 20

type Handler struct {
	Leases      commands.LeaseUseCase
	Reviews     commands.SubmitReviewUseCase
	Arbitration commands.ArbitrationUseCase
	Imports     commands.ImportDocumentsUseCase
	Snapshots   commands.ExportSnapshotUseCase
	Tasks       queries.TaskUseCase
	Queue       queries.QueueUseCase
	Consensus   queries.ConsensusUseCase
	Admin       queries.AdminUseCase
	Logger      *slog.Logger
}

// Actor is the caller identity resolved by the transport.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) requireUser() error {
	if strings.TrimSpace(a.UserID) == "" {
		return domainerrors.ErrAuthRequired
	}
	return nil
}

func (a Actor) requireAdmin() error {
	if err := a.requireUser(); err != nil {
		return err
	}
	if !a.IsAdmin {
		return domainerrors.ErrForbidden
	}
	return nil
}

func (h Handler) AcquireTaskHandler(ctx context.Context, actor Actor) (httptransport.AcquireTaskResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.AcquireTaskResponse{}, err
	}
	result, err := h.Leases.Acquire(ctx, commands.AcquireLeaseCommand{ReviewerID: actor.UserID})
	if errors.Is(err, domainerrors.ErrNoTaskAvailable) {
		return httptransport.AcquireTaskResponse{NoMoreTasks: true}, nil
	}
	if err != nil {
		return httptransport.AcquireTaskResponse{}, err
	}
	doc := mapDocument(result.Document)
	lease := mapLease(result.Lease)
	return httptransport.AcquireTaskResponse{
		Document:  &doc,
		Lease:     &lease,
		Refreshed: result.Refreshed,
	}, nil
}

func (h Handler) GetTaskHandler(ctx context.Context, actor Actor, documentID string) (httptransport.TaskResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.TaskResponse{}, err
	}
	task, err := h.Tasks.GetTask(ctx, actor.UserID, documentID)
	if err != nil {
		return httptransport.TaskResponse{}, err
	}
	return httptransport.TaskResponse{
		Document: mapDocument(task.Document),
		Lease:    mapLease(task.Lease),
	}, nil
}

func (h Handler) RenewLeaseHandler(ctx context.Context, actor Actor, documentID string) (httptransport.RenewLeaseResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.RenewLeaseResponse{}, err
	}
	lease, err := h.Leases.Renew(ctx, commands.LeaseCommand{ReviewerID: actor.UserID, DocumentID: documentID})
	if err != nil {
		return httptransport.RenewLeaseResponse{}, err
	}
	return httptransport.RenewLeaseResponse{Status: "ok", ExpiresAt: lease.ExpiresAt}, nil
}

func (h Handler) ReleaseLeaseHandler(ctx context.Context, actor Actor, documentID string) (httptransport.ReleaseLeaseResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.ReleaseLeaseResponse{}, err
	}
	released, err := h.Leases.Release(ctx, commands.LeaseCommand{ReviewerID: actor.UserID, DocumentID: documentID})
	if err != nil {
		return httptransport.ReleaseLeaseResponse{}, err
	}
	return httptransport.ReleaseLeaseResponse{Status: "ok", Released: released}, nil
}

func (h Handler) SubmitReviewHandler(
	ctx context.Context,
	actor Actor,
	documentID string,
	idempotencyKey string,
	req httptransport.SubmitReviewRequest,
) (httptransport.SubmitReviewResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.SubmitReviewResponse{}, err
	}
	result, err := h.Reviews.Execute(ctx, commands.SubmitReviewCommand{
		ReviewerID:     actor.UserID,
		DocumentID:     documentID,
		IdempotencyKey: idempotencyKey,
		Decisions:      mapReviewDecisions(req.Decisions),
		Additions:      mapReviewAdditions(req.Additions),
	})
	if err != nil {
		return httptransport.SubmitReviewResponse{}, err
	}
	return httptransport.SubmitReviewResponse{
		Status:        "ok",
		SubmissionID:  result.Submission.SubmissionID,
		DecisionCount: result.Submission.DecisionCount,
		AddedCount:    result.Submission.AddedCount,
		Warnings:      MapViolations(result.Warnings),
		Replayed:      result.Replayed,
	}, nil
}

func (h Handler) ListQueueHandler(ctx context.Context, actor Actor, query queries.ListQueueQuery) (httptransport.QueueResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.QueueResponse{}, err
	}
	result, err := h.Queue.ListQueue(ctx, query)
	if err != nil {
		return httptransport.QueueResponse{}, err
	}
	items := make([]httptransport.QueueItemResponse, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, mapQueueItem(item))
	}
	return httptransport.QueueResponse{
		Items: items,
		Summary: httptransport.QueueSummaryResponse{
			Total:     result.Summary.Total,
			Conflicts: result.Summary.Conflicts,
			Pending:   result.Summary.Pending,
		},
	}, nil
}

func (h Handler) DecideArbitrationHandler(
	ctx context.Context,
	actor Actor,
	req httptransport.DecideArbitrationRequest,
) (httptransport.DecideArbitrationResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.DecideArbitrationResponse{}, err
	}
	result, err := h.Arbitration.Decide(ctx, commands.DecideArbitrationCommand{
		AdminID:      actor.UserID,
		IsAdmin:      actor.IsAdmin,
		DocumentID:   req.DocumentID,
		AssertionKey: req.AssertionKey,
		Decision:     req.Decision,
		Comment:      req.Comment,
	})
	if err != nil {
		return httptransport.DecideArbitrationResponse{}, err
	}
	return httptransport.DecideArbitrationResponse{
		Status:       "ok",
		DocumentID:   result.Decision.DocumentID,
		AssertionKey: result.Decision.AssertionKey,
		Decision:     string(result.Decision.Decision),
		AdminID:      result.Decision.AdminID,
		DecidedAt:    result.Decision.DecidedAt,
		Replayed:     result.Replayed,
	}, nil
}

func (h Handler) DocumentFinalHandler(ctx context.Context, actor Actor, documentID string) (httptransport.DocumentFinalResponse, error) {
	if err := actor.requireUser(); err != nil {
		return httptransport.DocumentFinalResponse{}, err
	}
	final, err := h.Consensus.ComputeFinal(ctx, documentID)
	if err != nil {
		return httptransport.DocumentFinalResponse{}, err
	}
	keys := make([]string, 0, len(final.Assertions))
	for key := range final.Assertions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]httptransport.FinalDecisionDTO, 0, len(keys))
	for _, key := range keys {
		decision := final.Assertions[key]
		reviewers := decision.Reviewers
		if reviewers == nil {
			reviewers = []string{}
		}
		items = append(items, httptransport.FinalDecisionDTO{
			AssertionKey: key,
			Status:       string(decision.Status),
			Basis:        string(decision.Basis),
			Reviewers:    reviewers,
			AdminID:      decision.AdminID,
			Comment:      decision.Comment,
			DecidedAt:    decision.DecidedAt,
		})
	}
	return httptransport.DocumentFinalResponse{DocumentID: final.DocumentID, Assertions: items}, nil
}

// ExportConsensusHandler streams finalized records as JSON lines into w.
func (h Handler) ExportConsensusHandler(ctx context.Context, actor Actor, w io.Writer) (int, error) {
	if err := actor.requireAdmin(); err != nil {
		return 0, err
	}
	writer := application.NewJSONLWriter(w)
	return h.Consensus.ExportConsensus(ctx, writer.Write)
}

func (h Handler) ExportSnapshotHandler(
	ctx context.Context,
	actor Actor,
	req httptransport.ExportSnapshotRequest,
) (httptransport.SnapshotResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.SnapshotResponse{}, err
	}
	snapshot, err := h.Snapshots.Execute(ctx, commands.ExportSnapshotCommand{AdminID: actor.UserID, Confirm: req.Confirm})
	if err != nil {
		return httptransport.SnapshotResponse{}, err
	}
	return mapSnapshot(snapshot), nil
}

func (h Handler) ListSnapshotsHandler(ctx context.Context, actor Actor) (httptransport.SnapshotListResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.SnapshotListResponse{}, err
	}
	snapshots, err := h.Consensus.ListSnapshots(ctx)
	if err != nil {
		return httptransport.SnapshotListResponse{}, err
	}
	items := make([]httptransport.SnapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, mapSnapshot(snapshot))
	}
	return httptransport.SnapshotListResponse{Items: items}, nil
}

func (h Handler) ListLeasesHandler(ctx context.Context, actor Actor) (httptransport.LeaseListResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.LeaseListResponse{}, err
	}
	leases, err := h.Tasks.ListLeases(ctx)
	if err != nil {
		return httptransport.LeaseListResponse{}, err
	}
	items := make([]httptransport.LeaseDTO, 0, len(leases))
	for _, lease := range leases {
		items = append(items, mapLease(lease))
	}
	return httptransport.LeaseListResponse{Items: items}, nil
}

func (h Handler) ArbitrationHistoryHandler(
	ctx context.Context,
	actor Actor,
	documentID string,
	assertionKey string,
) (httptransport.ArbitrationHistoryResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.ArbitrationHistoryResponse{}, err
	}
	history, err := h.Admin.ArbitrationHistory(ctx, documentID, assertionKey)
	if err != nil {
		return httptransport.ArbitrationHistoryResponse{}, err
	}
	return httptransport.ArbitrationHistoryResponse{
		DocumentID:   strings.TrimSpace(documentID),
		AssertionKey: strings.TrimSpace(assertionKey),
		History:      mapDecisionLog(history),
	}, nil
}

func (h Handler) AdminStatsHandler(ctx context.Context, actor Actor) (httptransport.AdminStatsResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.AdminStatsResponse{}, err
	}
	stats, err := h.Admin.Stats(ctx)
	if err != nil {
		return httptransport.AdminStatsResponse{}, err
	}
	return httptransport.AdminStatsResponse{
		TotalDocuments:    stats.Documents,
		ReviewedDocuments: stats.ReviewedDocuments,
		InReview:          stats.InReview,
		ReviewedRatio:     stats.ReviewedRatio,
		TotalReviewers:    stats.Reviewers,
		TotalAssertions:   stats.Assertions,
		OpenConflicts:     stats.OpenConflicts,
		Arbitrations:      stats.Arbitrations,
		ActiveLeases:      stats.ActiveLeases,
		LastExportAt:      stats.LastSnapshotAt,
	}, nil
}

func (h Handler) ImportDocumentsHandler(
	ctx context.Context,
	actor Actor,
	req httptransport.ImportDocumentsRequest,
) (httptransport.ImportDocumentsResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.ImportDocumentsResponse{}, err
	}
	docs := make([]entities.Document, 0, len(req.Documents))
	for _, dto := range req.Documents {
		docs = append(docs, MapDocumentDTO(dto))
	}
	return h.importDocuments(ctx, commands.ImportDocumentsCommand{Documents: docs})
}

// ImportDocumentsJSONLHandler imports one document per line. Lines that fail
// to decode are reported as failures and do not stop the import.
func (h Handler) ImportDocumentsJSONLHandler(ctx context.Context, actor Actor, r io.Reader) (httptransport.ImportDocumentsResponse, error) {
	if err := actor.requireAdmin(); err != nil {
		return httptransport.ImportDocumentsResponse{}, err
	}
	cmd, err := DecodeDocumentsJSONL(r)
	if err != nil {
		return httptransport.ImportDocumentsResponse{}, err
	}
	return h.importDocuments(ctx, cmd)
}

func (h Handler) importDocuments(ctx context.Context, cmd commands.ImportDocumentsCommand) (httptransport.ImportDocumentsResponse, error) {
	result, err := h.Imports.Execute(ctx, cmd)
	if err != nil {
		return httptransport.ImportDocumentsResponse{}, err
	}
	failures := make([]httptransport.ImportFailureDTO, 0, len(result.Errors))
	for _, failure := range result.Errors {
		failures = append(failures, httptransport.ImportFailureDTO{
			Position:   failure.Position,
			DocumentID: failure.DocumentID,
			Message:    failure.Message,
		})
	}
	return httptransport.ImportDocumentsResponse{
		Imported:  result.Imported,
		Merged:    result.Merged,
		Unchanged: result.Unchanged,
		Failed:    result.Failed,
		Errors:    failures,
	}, nil
}

func (h Handler) VocabularyHandler(ctx context.Context) (httptransport.VocabularyResponse, error) {
	vocab, err := h.Tasks.Vocabulary(ctx)
	if err != nil {
		return httptransport.VocabularyResponse{}, err
	}
	return httptransport.VocabularyResponse{
		Predicates:  mapTerms(vocab.Predicates()),
		EntityTypes: mapTerms(vocab.EntityTypes()),
	}, nil
}

// DecodeDocumentsJSONL reads one document per non-blank line. Decodable
// documents keep their line position so failures can be reported against it.
func DecodeDocumentsJSONL(r io.Reader) (commands.ImportDocumentsCommand, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLineBytes)
	var cmd commands.ImportDocumentsCommand
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var dto httptransport.DocumentDTO
		if err := json.Unmarshal([]byte(raw), &dto); err != nil {
			cmd.Rejected = append(cmd.Rejected, commands.ImportFailure{
				Position: line,
				Message:  fmt.Sprintf("line %d: invalid json: %v", line, err),
			})
			continue
		}
		cmd.Documents = append(cmd.Documents, MapDocumentDTO(dto))
		cmd.Positions = append(cmd.Positions, line)
	}
	if err := scanner.Err(); err != nil {
		return commands.ImportDocumentsCommand{}, fmt.Errorf("read import stream: %w", err)
	}
	return cmd, nil
}
