package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/adapter"
	"mayagen/internal/domain/ports/repository"
	"mayagen/internal/infra/metrics"
	"mayagen/internal/infra/storage"
	"mayagen/internal/usecase"
)

// Dispatcher runs one provider lane: it claims the next eligible job,
// renders it through the lane's adapter, persists the outcome and triggers
// a progress recompute on the parent batch. Jobs within a lane run strictly
// sequentially; a slow or dead provider never blocks other lanes.
type Dispatcher struct {
	provider adapter.ImageProvider
	jobs     repository.JobRepository
	progress *usecase.ProgressUseCase
	store    *storage.Store
	interval time.Duration
	log      *zerolog.Logger
}

func NewDispatcher(
	provider adapter.ImageProvider,
	jobs repository.JobRepository,
	progress *usecase.ProgressUseCase,
	store *storage.Store,
	interval time.Duration,
	log *zerolog.Logger,
) *Dispatcher {
	l := log.With().Str("component", "dispatcher").Str("lane", provider.Name()).Logger()
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		provider: provider,
		jobs:     jobs,
		progress: progress,
		store:    store,
		interval: interval,
		log:      &l,
	}
}

// Run polls for work until the context is cancelled. The pool is sized to
// one worker per lane, so at most one render is in flight here at a time.
func (d *Dispatcher) Run(ctx context.Context, pool *Pool) {
	d.log.Info().Msg("dispatcher started")
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				// Drain the lane before going back to sleep.
				for d.processOne(ctx) {
					if ctx.Err() != nil {
						return nil
					}
				}
				return nil
			})
		}
	}
}

// processOne claims and executes a single job. Returns false when the lane
// queue is empty so the caller can back off.
func (d *Dispatcher) processOne(ctx context.Context) bool {
	job, err := d.jobs.ClaimNext(ctx, d.provider.Name())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.log.Error().Err(err).Msg("claim failed")
		}
		return false
	}

	d.log.Info().Str("job_id", job.ID).Str("prompt", truncate(job.Prompt, 40)).Msg("processing job")
	start := time.Now()

	err = d.execute(ctx, job)
	elapsed := time.Since(start)

	finalStatus := model.JobStatusCompleted
	if err != nil {
		finalStatus = model.JobStatusFailed
		job.ErrorMessage = err.Error()
		job.Filename = ""
		job.FilePath = ""
		d.log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	}
	job.Status = finalStatus

	metrics.IncJobProcessed(d.provider.Name(), string(finalStatus))
	metrics.ObserveRender(d.provider.Name(), job.Model, elapsed, err == nil)

	// Use a background context for the final update: a shutdown must not
	// leave the row stuck in PROCESSING when the outcome is already known.
	done, serr := d.jobs.FinishProcessing(context.Background(), job)
	if serr != nil {
		d.log.Error().Err(serr).Str("job_id", job.ID).Msg("could not persist job outcome")
		return true
	}
	if !done {
		// A recovery sweep re-queued the row mid-render. The retry owns
		// the job now; this result is discarded.
		d.log.Warn().Str("job_id", job.ID).Msg("job re-queued while rendering, result discarded")
		return true
	}
	d.log.Info().Str("job_id", job.ID).Str("status", string(finalStatus)).
		Dur("duration", elapsed).Msg("job finished")

	d.recomputeParent(job)
	return true
}

// execute renders the job and stores the output image.
func (d *Dispatcher) execute(ctx context.Context, job *model.Job) error {
	data, err := d.provider.Render(ctx, job)
	if err != nil {
		return err
	}

	// Edit jobs get their filename here: only the executor knows the
	// final render timestamp.
	if job.Filename == "" {
		job.Filename = fmt.Sprintf("edit_%s_%s.png",
			time.Now().Format("20060102_150405"), shortID(job.ID))
	}
	category := job.Category
	if job.Kind == model.JobKindImageEdit {
		category = "edits"
	}
	path, err := d.store.SaveImage(category, job.Filename, data)
	if err != nil {
		return fmt.Errorf("store output: %w", err)
	}
	job.FilePath = path
	return nil
}

func (d *Dispatcher) recomputeParent(job *model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch {
	case job.BatchID != "":
		err = d.progress.RecomputeBatch(ctx, job.BatchID)
	case job.EditBatchID != "":
		err = d.progress.RecomputeEditBatch(ctx, job.EditBatchID)
	default:
		return
	}
	if err != nil {
		d.log.Error().Err(err).Str("job_id", job.ID).Msg("progress recompute failed")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
