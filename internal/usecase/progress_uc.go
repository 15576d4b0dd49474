package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
)

// BatchProgress is the cached summary shape served to status polls.
type BatchProgress struct {
	BatchID   string  `json:"batch_id"`
	Status    string  `json:"status"`
	Generated int     `json:"generated"`
	Failed    int     `json:"failed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// ProgressCache is implemented by the redis progress cache. A nil cache
// disables caching. Get returns domain.ErrNotFound on a miss.
type ProgressCache interface {
	Store(ctx context.Context, p BatchProgress) error
	Get(ctx context.Context, batchID string) (BatchProgress, error)
	Delete(ctx context.Context, batchID string) error
}

// ProgressUseCase recomputes a batch's generated/failed counters from the
// job store. The stored counters are pure caches: recounting keeps progress
// idempotent and correct after out-of-order completions, retries and
// crashes, where increment-in-place would drift.
type ProgressUseCase struct {
	jobs        repository.JobRepository
	batches     repository.BatchRepository
	editBatches repository.EditBatchRepository
	tm          repository.TransactionManager
	cache       ProgressCache
	log         *zerolog.Logger
}

func NewProgressUseCase(
	jobs repository.JobRepository,
	batches repository.BatchRepository,
	editBatches repository.EditBatchRepository,
	tm repository.TransactionManager,
	cache ProgressCache,
	log *zerolog.Logger,
) *ProgressUseCase {
	l := log.With().Str("component", "progress").Logger()
	return &ProgressUseCase{
		jobs:        jobs,
		batches:     batches,
		editBatches: editBatches,
		tm:          tm,
		cache:       cache,
		log:         &l,
	}
}

// RecomputeBatch recounts child outcomes and flips the batch to completed
// once every child reached a terminal outcome. The batch does not
// distinguish "all succeeded" from "some failed"; failed_count stays
// visible on the completed record.
func (uc *ProgressUseCase) RecomputeBatch(ctx context.Context, batchID string) error {
	var snapshot BatchProgress

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := uc.batches.FindByID(ctx, tx, batchID)
		if err != nil {
			return err
		}
		completed, failed, err := uc.jobs.CountBatchOutcomes(ctx, tx, batchID)
		if err != nil {
			return err
		}

		batch.GeneratedCount = completed
		batch.FailedCount = failed
		if batch.Status == model.BatchStatusGenerating && batch.Processed() >= batch.TotalImages {
			batch.Status = model.BatchStatusCompleted
			uc.log.Info().Str("batch_id", batch.ID).
				Int("generated", completed).Int("failed", failed).
				Msg("batch completed")
		}
		snapshot = BatchProgress{
			BatchID:   batch.ID,
			Status:    string(batch.Status),
			Generated: completed,
			Failed:    failed,
			Total:     batch.TotalImages,
			Percent:   batch.Progress(),
		}
		return uc.batches.Save(ctx, tx, batch)
	})
	if err != nil {
		return err
	}

	uc.warm(ctx, snapshot)
	return nil
}

// RecomputeEditBatch mirrors RecomputeBatch for edit batches.
func (uc *ProgressUseCase) RecomputeEditBatch(ctx context.Context, editBatchID string) error {
	var snapshot BatchProgress

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := uc.editBatches.FindByID(ctx, tx, editBatchID)
		if err != nil {
			return err
		}
		completed, failed, err := uc.jobs.CountEditBatchOutcomes(ctx, tx, editBatchID)
		if err != nil {
			return err
		}

		batch.GeneratedCount = completed
		batch.FailedCount = failed
		if batch.Status == model.BatchStatusGenerating && batch.Processed() >= batch.TotalVariations {
			batch.Status = model.BatchStatusCompleted
			uc.log.Info().Str("edit_batch_id", batch.ID).
				Int("generated", completed).Int("failed", failed).
				Msg("edit batch completed")
		}
		snapshot = BatchProgress{
			BatchID:   batch.ID,
			Status:    string(batch.Status),
			Generated: completed,
			Failed:    failed,
			Total:     batch.TotalVariations,
			Percent:   batch.Progress(),
		}
		return uc.editBatches.Save(ctx, tx, batch)
	})
	if err != nil {
		return err
	}

	uc.warm(ctx, snapshot)
	return nil
}

// BatchSnapshot serves a status poll. A cache hit skips the store entirely;
// on a miss the stored counters are served and re-cached for the next poll.
func (uc *ProgressUseCase) BatchSnapshot(ctx context.Context, batchID string) (BatchProgress, error) {
	if uc.cache != nil {
		if p, err := uc.cache.Get(ctx, batchID); err == nil {
			return p, nil
		}
	}
	batch, err := uc.batches.FindByID(ctx, nil, batchID)
	if err != nil {
		return BatchProgress{}, err
	}
	p := BatchProgress{
		BatchID:   batch.ID,
		Status:    string(batch.Status),
		Generated: batch.GeneratedCount,
		Failed:    batch.FailedCount,
		Total:     batch.TotalImages,
		Percent:   batch.Progress(),
	}
	uc.warm(ctx, p)
	return p, nil
}

// EditBatchSnapshot mirrors BatchSnapshot for edit batches.
func (uc *ProgressUseCase) EditBatchSnapshot(ctx context.Context, editBatchID string) (BatchProgress, error) {
	if uc.cache != nil {
		if p, err := uc.cache.Get(ctx, editBatchID); err == nil {
			return p, nil
		}
	}
	batch, err := uc.editBatches.FindByID(ctx, nil, editBatchID)
	if err != nil {
		return BatchProgress{}, err
	}
	p := BatchProgress{
		BatchID:   batch.ID,
		Status:    string(batch.Status),
		Generated: batch.GeneratedCount,
		Failed:    batch.FailedCount,
		Total:     batch.TotalVariations,
		Percent:   batch.Progress(),
	}
	uc.warm(ctx, p)
	return p, nil
}

// Invalidate drops a cached snapshot so the next poll sees the store,
// e.g. right after a cancel.
func (uc *ProgressUseCase) Invalidate(ctx context.Context, batchID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Delete(ctx, batchID); err != nil {
		uc.log.Warn().Err(err).Str("batch_id", batchID).Msg("progress cache delete failed")
	}
}

func (uc *ProgressUseCase) warm(ctx context.Context, p BatchProgress) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Store(ctx, p); err != nil {
		uc.log.Warn().Err(err).Str("batch_id", p.BatchID).Msg("progress cache store failed")
	}
}
