package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mayagen/internal/domain/ports/repository"
)

// restartMessage is recorded on batches whose expansion a crash interrupted.
const restartMessage = "server restarted during generation"

// RecoverySweep repairs state left behind by an unclean shutdown.
//
// Jobs stuck in PROCESSING go back to QUEUED: a render is side-effect free
// until its image is saved, so re-running it is safe. Batches stuck in
// GENERATING are failed instead, because some child rows may already have
// been inserted and re-expanding would duplicate them.
//
// RunOnce is the startup pass: it runs before any dispatcher or expander
// loop, so everything still marked in flight is an orphan and gets reset.
// RunStale is the runtime variant; it only touches rows idle longer than
// the grace period, so a job actively rendering keeps its claim.
type RecoverySweep struct {
	jobs        repository.JobRepository
	batches     repository.BatchRepository
	editBatches repository.EditBatchRepository
	grace       time.Duration
	log         *zerolog.Logger
}

func NewRecoverySweep(
	jobs repository.JobRepository,
	batches repository.BatchRepository,
	editBatches repository.EditBatchRepository,
	grace time.Duration,
	log *zerolog.Logger,
) *RecoverySweep {
	l := log.With().Str("component", "recovery").Logger()
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	return &RecoverySweep{
		jobs:        jobs,
		batches:     batches,
		editBatches: editBatches,
		grace:       grace,
		log:         &l,
	}
}

// RunOnce resets everything left in flight. Only safe while no dispatcher
// or expander loop is running.
func (r *RecoverySweep) RunOnce(ctx context.Context) error {
	return r.sweep(ctx, 0)
}

// RunStale resets only rows untouched for longer than the grace period.
// Safe to trigger at any time: claims and progress writes refresh
// updated_at, so live work stays out of reach.
func (r *RecoverySweep) RunStale(ctx context.Context) error {
	return r.sweep(ctx, r.grace)
}

func (r *RecoverySweep) sweep(ctx context.Context, olderThan time.Duration) error {
	requeued, err := r.jobs.ResetProcessing(ctx, olderThan)
	if err != nil {
		return err
	}
	failedBatches, err := r.batches.FailGenerating(ctx, restartMessage, olderThan)
	if err != nil {
		return err
	}
	failedEdits, err := r.editBatches.FailGenerating(ctx, restartMessage, olderThan)
	if err != nil {
		return err
	}

	if requeued > 0 || failedBatches > 0 || failedEdits > 0 {
		r.log.Warn().
			Int64("jobs_requeued", requeued).
			Int64("batches_failed", failedBatches).
			Int64("edit_batches_failed", failedEdits).
			Msg("recovered interrupted work")
	} else {
		r.log.Info().Msg("no interrupted work found")
	}
	return nil
}
