package workers

import (
	"context"
	"log/slog"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// LeaseReclaimer deletes leases that passed expires_at so their documents
// become assignable again. Abandoned work is never committed on reclaim.
type LeaseReclaimer struct {
	Documents ports.DocumentRepository
	Leases    ports.LeaseRepository
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce reclaims one batch and returns how many leases were removed. Each
// lease is re-checked under its document lock, so a lease renewed after the
// listing survives.
func (r LeaseReclaimer) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(r.Logger)
	now := time.Now().UTC()
	if r.Clock != nil {
		now = r.Clock.Now().UTC()
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	expired, err := r.Leases.ListExpiredLeases(ctx, now, limit)
	if err != nil {
		logger.Error("lease reclaim sweep failed",
			"event", "review_lease_reclaim_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	reclaimed := 0
	for _, candidate := range expired {
		removed := false
		err := r.Documents.WithDocument(ctx, candidate.DocumentID, func(ctx context.Context, tx ports.DocumentTx) error {
			lease, ok := tx.Lease()
			if !ok || lease.Live(now) || lease.HolderID != candidate.HolderID {
				return nil
			}
			eventID, err := r.IDGen.NewID(ctx)
			if err != nil {
				return err
			}
			event, err := application.NewEnvelope(eventID, application.EventLeaseReclaimed, "document_id", lease.DocumentID, now, map[string]any{
				"document_id": lease.DocumentID,
				"holder_id":   lease.HolderID,
				"acquired_at": lease.AcquiredAt.UTC().Format(time.RFC3339Nano),
				"expired_at":  lease.ExpiresAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return err
			}
			if err := tx.DeleteLease(); err != nil {
				return err
			}
			removed = true
			return tx.EnqueueOutbox(event)
		})
		if err != nil {
			logger.Error("lease reclaim failed",
				"event", "review_lease_reclaim_document_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"document_id", candidate.DocumentID,
				"error", err.Error(),
			)
			return reclaimed, err
		}
		if removed {
			reclaimed++
		}
	}

	if reclaimed > 0 {
		logger.Info("lease reclaim sweep completed",
			"event", "review_lease_reclaim_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"reclaimed_count", reclaimed,
		)
	}
	return reclaimed, nil
}
