package usecase

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
	"mayagen/internal/infra/logging"
)

const maxBatchSize = 500

type CreateBatchParams struct {
	Name          string
	Category      string
	TargetSubject string
	TotalImages   int
	Variations    map[string][]string
	Template      string
	Model         string
	Provider      string
	Width         int
	Height        int
	IsPublic      bool
	UserID        string
}

type BatchUseCase struct {
	batches repository.BatchRepository
	jobs    repository.JobRepository
	tm      repository.TransactionManager
	shares  *ShareTokenService
	log     *zerolog.Logger
}

func NewBatchUseCase(
	batches repository.BatchRepository,
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	shares *ShareTokenService,
	log *zerolog.Logger,
) *BatchUseCase {
	l := log.With().Str("component", "batches").Logger()
	return &BatchUseCase{batches: batches, jobs: jobs, tm: tm, shares: shares, log: &l}
}

// Create enqueues a batch; the expander will pick it up on its next poll.
func (uc *BatchUseCase) Create(ctx context.Context, p CreateBatchParams) (*model.Batch, error) {
	defer logging.TraceDuration(uc.log, "BatchUC.Create")()

	if strings.TrimSpace(p.TargetSubject) == "" || p.TotalImages < 1 || p.TotalImages > maxBatchSize ||
		p.Provider == "" || p.Model == "" || p.Width <= 0 || p.Height <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	if p.Name == "" {
		p.Name = "Untitled Batch"
	}
	if p.Category == "" {
		p.Category = "uncategorized"
	}

	batch := &model.Batch{
		ID:            uuid.NewString(),
		Name:          p.Name,
		Category:      p.Category,
		TargetSubject: p.TargetSubject,
		TotalImages:   p.TotalImages,
		Variations:    p.Variations,
		Template:      p.Template,
		Status:        model.BatchStatusQueued,
		Model:         p.Model,
		Provider:      p.Provider,
		Width:         p.Width,
		Height:        p.Height,
		IsPublic:      p.IsPublic,
		UserID:        p.UserID,
	}
	if err := uc.batches.Save(ctx, nil, batch); err != nil {
		return nil, err
	}
	uc.log.Info().Str("batch_id", batch.ID).Int("total", batch.TotalImages).Msg("batch enqueued")
	return batch, nil
}

func (uc *BatchUseCase) Get(ctx context.Context, id string) (*model.Batch, error) {
	return uc.batches.FindByID(ctx, nil, id)
}

func (uc *BatchUseCase) List(ctx context.Context, userID string, limit int) ([]*model.Batch, error) {
	return uc.batches.ListByUser(ctx, userID, limit)
}

func (uc *BatchUseCase) Jobs(ctx context.Context, batchID string) ([]*model.Job, error) {
	return uc.jobs.ListByBatch(ctx, batchID)
}

// Cancel flips the batch to cancelled and bulk-cancels its still-QUEUED
// children in one transaction. PROCESSING children run to completion:
// cancellation stops new work, it does not preempt.
func (uc *BatchUseCase) Cancel(ctx context.Context, id string) error {
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := uc.batches.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status.Terminal() {
			return domain.ErrBatchNotCancelable
		}
		batch.Status = model.BatchStatusCancelled
		if err := uc.batches.Save(ctx, tx, batch); err != nil {
			return err
		}
		n, err := uc.jobs.CancelQueuedByBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		uc.log.Info().Str("batch_id", id).Int64("cancelled_jobs", n).Msg("batch cancelled")
		return nil
	})
}

// Share mints and stores a share token, enabling unauthenticated read
// access. Idempotent: an existing token is returned as-is.
func (uc *BatchUseCase) Share(ctx context.Context, id string) (string, error) {
	batch, err := uc.batches.FindByID(ctx, nil, id)
	if err != nil {
		return "", err
	}
	if batch.ShareToken != "" {
		return batch.ShareToken, nil
	}
	token, err := uc.shares.Mint(batch.ID)
	if err != nil {
		return "", err
	}
	batch.ShareToken = token
	if err := uc.batches.Save(ctx, nil, batch); err != nil {
		return "", err
	}
	return token, nil
}

func (uc *BatchUseCase) Unshare(ctx context.Context, id string) error {
	batch, err := uc.batches.FindByID(ctx, nil, id)
	if err != nil {
		return err
	}
	batch.ShareToken = ""
	return uc.batches.Save(ctx, nil, batch)
}

func (uc *BatchUseCase) GetShared(ctx context.Context, token string) (*model.Batch, error) {
	return uc.batches.FindByShareToken(ctx, token)
}

// Preview returns a handful of sample prompts for the batch form without
// enqueuing anything.
func (uc *BatchUseCase) Preview(targetSubject string, variations map[string][]string, template string, count int) []string {
	return SamplePrompts(targetSubject, variations, template, count)
}
