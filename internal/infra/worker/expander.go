package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
	"mayagen/internal/infra/metrics"
	"mayagen/internal/usecase"
)

// Expander turns queued batches into job rows, exactly once per batch.
//
// The QUEUED -> GENERATING transition is committed before any prompt is
// generated, so a crash mid-expansion is distinguishable from "never
// started"; the recovery sweep then fails the batch instead of risking
// duplicate children on a retry. Child rows are inserted in one
// transaction: all of them become visible, or none.
type Expander struct {
	batches     repository.BatchRepository
	editBatches repository.EditBatchRepository
	jobs        repository.JobRepository
	tm          repository.TransactionManager
	interval    time.Duration
	log         *zerolog.Logger
}

func NewExpander(
	batches repository.BatchRepository,
	editBatches repository.EditBatchRepository,
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	interval time.Duration,
	log *zerolog.Logger,
) *Expander {
	l := log.With().Str("component", "expander").Logger()
	if interval <= 0 {
		interval = time.Second
	}
	return &Expander{
		batches:     batches,
		editBatches: editBatches,
		jobs:        jobs,
		tm:          tm,
		interval:    interval,
		log:         &l,
	}
}

func (e *Expander) Run(ctx context.Context) {
	e.log.Info().Msg("batch expander started")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("batch expander stopping")
			return
		case <-ticker.C:
			for e.ExpandNextBatch(ctx) {
			}
			for e.ExpandNextEditBatch(ctx) {
			}
		}
	}
}

// ExpandNextBatch claims and expands the oldest queued batch. Returns true
// if a batch was found.
func (e *Expander) ExpandNextBatch(ctx context.Context) bool {
	batch, err := e.batches.ClaimNextQueued(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Error().Err(err).Msg("could not claim batch")
		}
		return false
	}
	e.log.Info().Str("batch_id", batch.ID).Str("name", batch.Name).
		Int("total", batch.TotalImages).Msg("expanding batch")

	if err := e.expandBatch(ctx, batch); err != nil {
		e.log.Error().Err(err).Str("batch_id", batch.ID).Msg("batch expansion failed")
		batch.Status = model.BatchStatusFailed
		batch.ErrorMessage = err.Error()
		if serr := e.batches.Save(context.Background(), nil, batch); serr != nil {
			e.log.Error().Err(serr).Str("batch_id", batch.ID).Msg("could not persist batch failure")
		}
		metrics.IncBatchExpanded("batch", "failed")
		return true
	}
	metrics.IncBatchExpanded("batch", "expanded")
	return true
}

func (e *Expander) expandBatch(ctx context.Context, batch *model.Batch) error {
	prompts := usecase.GeneratePrompts(batch.TargetSubject, batch.TotalImages, batch.Variations, batch.Template)
	if len(prompts) != batch.TotalImages {
		return fmt.Errorf("prompt generation produced %d of %d prompts", len(prompts), batch.TotalImages)
	}

	children := make([]*model.Job, 0, len(prompts))
	for i, prompt := range prompts {
		children = append(children, &model.Job{
			ID:       uuid.NewString(),
			Kind:     model.JobKindBatch,
			Prompt:   prompt,
			Width:    batch.Width,
			Height:   batch.Height,
			Model:    batch.Model,
			Provider: batch.Provider,
			Category: batch.Category,
			IsPublic: batch.IsPublic,
			Filename: childFilename(batch.Category, batch.ID, i),
			Status:   model.JobStatusQueued,
			UserID:   batch.UserID,
			BatchID:  batch.ID,
		})
	}

	err := e.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return e.jobs.InsertAll(ctx, tx, children)
	})
	if err != nil {
		return err
	}
	e.log.Info().Str("batch_id", batch.ID).Int("jobs", len(children)).Msg("batch expanded")
	return nil
}

// ExpandNextEditBatch fans a queued edit batch's precomputed prompt list
// out into edit jobs, one per prompt, all sharing the source image.
func (e *Expander) ExpandNextEditBatch(ctx context.Context) bool {
	batch, err := e.editBatches.ClaimNextQueued(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Error().Err(err).Msg("could not claim edit batch")
		}
		return false
	}
	e.log.Info().Str("edit_batch_id", batch.ID).Int("total", batch.TotalVariations).
		Msg("expanding edit batch")

	if err := e.expandEditBatch(ctx, batch); err != nil {
		e.log.Error().Err(err).Str("edit_batch_id", batch.ID).Msg("edit batch expansion failed")
		batch.Status = model.BatchStatusFailed
		batch.ErrorMessage = err.Error()
		if serr := e.editBatches.Save(context.Background(), nil, batch); serr != nil {
			e.log.Error().Err(serr).Str("edit_batch_id", batch.ID).Msg("could not persist edit batch failure")
		}
		metrics.IncBatchExpanded("edit_batch", "failed")
		return true
	}
	metrics.IncBatchExpanded("edit_batch", "expanded")
	return true
}

func (e *Expander) expandEditBatch(ctx context.Context, batch *model.EditBatch) error {
	if len(batch.Prompts) == 0 {
		return errors.New("edit batch has no prompts")
	}

	children := make([]*model.Job, 0, len(batch.Prompts))
	for _, prompt := range batch.Prompts {
		children = append(children, &model.Job{
			ID:             uuid.NewString(),
			Kind:           model.JobKindImageEdit,
			Prompt:         prompt,
			Width:          batch.Width,
			Height:         batch.Height,
			Model:          batch.Model,
			Provider:       batch.Provider,
			Category:       "edits",
			IsPublic:       batch.IsPublic,
			InputImagePath: batch.InputImagePath,
			// Filename intentionally left empty: the executor assigns
			// it at render time.
			Status:      model.JobStatusQueued,
			UserID:      batch.UserID,
			EditBatchID: batch.ID,
		})
	}

	err := e.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return e.jobs.InsertAll(ctx, tx, children)
	})
	if err != nil {
		return err
	}
	e.log.Info().Str("edit_batch_id", batch.ID).Int("jobs", len(children)).Msg("edit batch expanded")
	return nil
}

// childFilename is deterministic and collision-free: batch id plus sequence
// index.
func childFilename(category, batchID string, seq int) string {
	return fmt.Sprintf("%s_%s_%04d.png",
		strings.ReplaceAll(category, "/", "_"), shortID(batchID), seq+1)
}
