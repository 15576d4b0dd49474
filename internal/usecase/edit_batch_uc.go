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

const maxEditBatchSize = 100

type CreateEditBatchParams struct {
	Name           string
	InputImagePath string

	// Either an explicit prompt list or a subject + variations + template
	// spec expanded here, at creation time. Expansion for edit batches is
	// precomputed so the stored record is self-contained.
	Prompts         []string
	TargetSubject   string
	Variations      map[string][]string
	Template        string
	TotalVariations int

	Model    string
	Provider string
	Width    int
	Height   int
	IsPublic bool
	UserID   string
}

type EditBatchUseCase struct {
	editBatches repository.EditBatchRepository
	jobs        repository.JobRepository
	tm          repository.TransactionManager
	shares      *ShareTokenService
	log         *zerolog.Logger
}

func NewEditBatchUseCase(
	editBatches repository.EditBatchRepository,
	jobs repository.JobRepository,
	tm repository.TransactionManager,
	shares *ShareTokenService,
	log *zerolog.Logger,
) *EditBatchUseCase {
	l := log.With().Str("component", "edit_batches").Logger()
	return &EditBatchUseCase{editBatches: editBatches, jobs: jobs, tm: tm, shares: shares, log: &l}
}

// Create enqueues an edit batch. The prompt list is finalized here and
// capped to TotalVariations; the expander only fans it out into jobs.
func (uc *EditBatchUseCase) Create(ctx context.Context, p CreateEditBatchParams) (*model.EditBatch, error) {
	defer logging.TraceDuration(uc.log, "EditBatchUC.Create")()

	if p.InputImagePath == "" || p.TotalVariations < 1 || p.TotalVariations > maxEditBatchSize ||
		p.Provider == "" || p.Model == "" {
		return nil, domain.ErrInvalidArgument
	}

	var prompts []string
	switch {
	case len(p.Prompts) > 0:
		if len(p.Prompts) > p.TotalVariations {
			p.Prompts = p.Prompts[:p.TotalVariations]
		}
		prompts = p.Prompts
	case strings.TrimSpace(p.Template) != "" || strings.TrimSpace(p.TargetSubject) != "":
		prompts = GeneratePrompts(p.TargetSubject, p.TotalVariations, p.Variations, p.Template)
	default:
		return nil, domain.ErrInvalidArgument
	}

	if p.Name == "" {
		p.Name = "Untitled Edit Batch"
	}
	if p.Width <= 0 {
		p.Width = 1024
	}
	if p.Height <= 0 {
		p.Height = 1024
	}

	batch := &model.EditBatch{
		ID:              uuid.NewString(),
		Name:            p.Name,
		InputImagePath:  p.InputImagePath,
		Prompts:         prompts,
		TotalVariations: len(prompts),
		Status:          model.BatchStatusQueued,
		Model:           p.Model,
		Provider:        p.Provider,
		Width:           p.Width,
		Height:          p.Height,
		IsPublic:        p.IsPublic,
		UserID:          p.UserID,
	}
	if err := uc.editBatches.Save(ctx, nil, batch); err != nil {
		return nil, err
	}
	uc.log.Info().Str("edit_batch_id", batch.ID).Int("total", batch.TotalVariations).Msg("edit batch enqueued")
	return batch, nil
}

func (uc *EditBatchUseCase) Get(ctx context.Context, id string) (*model.EditBatch, error) {
	return uc.editBatches.FindByID(ctx, nil, id)
}

func (uc *EditBatchUseCase) List(ctx context.Context, userID string, limit int) ([]*model.EditBatch, error) {
	return uc.editBatches.ListByUser(ctx, userID, limit)
}

func (uc *EditBatchUseCase) Jobs(ctx context.Context, id string) ([]*model.Job, error) {
	return uc.jobs.ListByEditBatch(ctx, id)
}

func (uc *EditBatchUseCase) Cancel(ctx context.Context, id string) error {
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		batch, err := uc.editBatches.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if batch.Status.Terminal() {
			return domain.ErrBatchNotCancelable
		}
		batch.Status = model.BatchStatusCancelled
		if err := uc.editBatches.Save(ctx, tx, batch); err != nil {
			return err
		}
		n, err := uc.jobs.CancelQueuedByEditBatch(ctx, tx, id)
		if err != nil {
			return err
		}
		uc.log.Info().Str("edit_batch_id", id).Int64("cancelled_jobs", n).Msg("edit batch cancelled")
		return nil
	})
}

func (uc *EditBatchUseCase) Share(ctx context.Context, id string) (string, error) {
	batch, err := uc.editBatches.FindByID(ctx, nil, id)
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
	if err := uc.editBatches.Save(ctx, nil, batch); err != nil {
		return "", err
	}
	return token, nil
}

func (uc *EditBatchUseCase) Unshare(ctx context.Context, id string) error {
	batch, err := uc.editBatches.FindByID(ctx, nil, id)
	if err != nil {
		return err
	}
	batch.ShareToken = ""
	return uc.editBatches.Save(ctx, nil, batch)
}

func (uc *EditBatchUseCase) GetShared(ctx context.Context, token string) (*model.EditBatch, error) {
	return uc.editBatches.FindByShareToken(ctx, token)
}
