package reviewconsensus

import (
	"log/slog"
	"time"

	httpadapter "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/http"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/memory"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/adapters/vocabulary"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/commands"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/queries"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application/workers"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/domain/entities"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Reclaimer workers.LeaseReclaimer
	Relay     workers.OutboxRelay
	Store     *memory.Store
}

type Dependencies struct {
	Documents         ports.DocumentRepository
	Leases            ports.LeaseRepository
	Corpus            ports.CorpusReader
	Snapshots         ports.SnapshotRepository
	SnapshotWriter    ports.SnapshotWriter
	Vocabulary        ports.VocabularyProvider
	Idempotency       ports.IdempotencyStore
	Outbox            ports.OutboxRepository
	Publisher         ports.EventPublisher
	Clock             ports.Clock
	IDGen             ports.IDGenerator
	LeaseTTL          time.Duration
	RequiredReviewers int
	FuzzyThreshold    float64
	IdempotencyTTL    time.Duration
	WorkerBatchSize   int
	Logger            *slog.Logger
}

func NewModule(deps Dependencies) Module {
	leaseUseCase := commands.LeaseUseCase{
		Documents:         deps.Documents,
		Leases:            deps.Leases,
		Clock:             deps.Clock,
		LeaseTTL:          deps.LeaseTTL,
		RequiredReviewers: deps.RequiredReviewers,
		Logger:            deps.Logger,
	}
	submitUseCase := commands.SubmitReviewUseCase{
		Documents:      deps.Documents,
		Vocabulary:     deps.Vocabulary,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		FuzzyThreshold: deps.FuzzyThreshold,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	arbitrationUseCase := commands.ArbitrationUseCase{
		Documents: deps.Documents,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	importUseCase := commands.ImportDocumentsUseCase{
		Documents: deps.Documents,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	}
	snapshotUseCase := commands.ExportSnapshotUseCase{
		Corpus:    deps.Corpus,
		Writer:    deps.SnapshotWriter,
		Snapshots: deps.Snapshots,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Leases:      leaseUseCase,
			Reviews:     submitUseCase,
			Arbitration: arbitrationUseCase,
			Imports:     importUseCase,
			Snapshots:   snapshotUseCase,
			Tasks: queries.TaskUseCase{
				Documents: deps.Documents,
				Leases:    deps.Leases,
				Vocab:     deps.Vocabulary,
				Clock:     deps.Clock,
			},
			Queue: queries.QueueUseCase{
				Corpus: deps.Corpus,
				Logger: deps.Logger,
			},
			Consensus: queries.ConsensusUseCase{
				Corpus:    deps.Corpus,
				Snapshots: deps.Snapshots,
				Logger:    deps.Logger,
			},
			Admin: queries.AdminUseCase{
				Corpus:            deps.Corpus,
				Leases:            deps.Leases,
				Snapshots:         deps.Snapshots,
				Clock:             deps.Clock,
				RequiredReviewers: deps.RequiredReviewers,
				Logger:            deps.Logger,
			},
			Logger: deps.Logger,
		},
		Reclaimer: workers.LeaseReclaimer{
			Documents: deps.Documents,
			Leases:    deps.Leases,
			Clock:     deps.Clock,
			IDGen:     deps.IDGen,
			BatchSize: deps.WorkerBatchSize,
			Logger:    deps.Logger,
		},
		Relay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.WorkerBatchSize,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to one memory store and the built-in
// vocabulary. Snapshots are kept in memory.
func NewInMemoryModule(seed []entities.Document, logger *slog.Logger) Module {
	store := memory.NewStore(seed, logger)
	module := NewModule(Dependencies{
		Documents:         store,
		Leases:            store,
		Corpus:            store,
		Snapshots:         store,
		SnapshotWriter:    store,
		Vocabulary:        vocabulary.NewDefaultProvider(),
		Idempotency:       store,
		Outbox:            store,
		Clock:             store,
		IDGen:             store,
		LeaseTTL:          60 * time.Second,
		RequiredReviewers: 2,
		IdempotencyTTL:    24 * time.Hour,
		Logger:            logger,
	})
	module.Store = store
	return module
}
