package repository

import (
	"context"
	"time"

	"mayagen/internal/domain/model"
)

// JobRepository is the persisted table of atomic work items. Every status
// transition that matters for correctness goes through a single
// atomically-committed conditional update here.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// InsertAll inserts a batch's child jobs. Callers run it inside a
	// transaction so expansion creates all rows or none.
	InsertAll(ctx context.Context, tx Tx, jobs []*model.Job) error

	// ClaimNext atomically selects the next QUEUED job for the given
	// provider lane and marks it PROCESSING. Jobs without a batch parent
	// rank strictly before batch children; within a tier oldest first.
	// Rows locked by concurrent claimers are skipped, never waited on.
	// Returns domain.ErrNotFound when no eligible row exists.
	ClaimNext(ctx context.Context, provider string) (*model.Job, error)

	// Queue position inputs. A nil before counts all QUEUED rows in the
	// tier; otherwise only rows created strictly earlier.
	CountQueuedSingles(ctx context.Context, before *time.Time) (int, error)
	CountQueuedBatchMembers(ctx context.Context, before *time.Time) (int, error)

	// Child outcome counts for progress recomputation.
	CountBatchOutcomes(ctx context.Context, tx Tx, batchID string) (completed, failed int, err error)
	CountEditBatchOutcomes(ctx context.Context, tx Tx, editBatchID string) (completed, failed int, err error)

	// Bulk cancellation of still-QUEUED children; PROCESSING jobs are left
	// alone (cancellation is "stop starting new work", not preemption).
	CancelQueuedByBatch(ctx context.Context, tx Tx, batchID string) (int64, error)
	CancelQueuedByEditBatch(ctx context.Context, tx Tx, editBatchID string) (int64, error)

	// FinishProcessing records a claimed job's terminal outcome. The update
	// only lands while the row is still PROCESSING; false means ownership
	// was lost (a recovery sweep re-queued the row) and the caller must
	// discard its result so the retry stays authoritative.
	FinishProcessing(ctx context.Context, job *model.Job) (bool, error)

	// ResetProcessing re-queues PROCESSING jobs whose last update is older
	// than olderThan (recovery sweep). Zero re-queues them all.
	ResetProcessing(ctx context.Context, olderThan time.Duration) (int64, error)

	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
	ListByBatch(ctx context.Context, batchID string) ([]*model.Job, error)
	ListByEditBatch(ctx context.Context, editBatchID string) ([]*model.Job, error)
}
