package repository

import (
	"context"
	"time"

	"mayagen/internal/domain/model"
)

type BatchRepository interface {
	Save(ctx context.Context, tx Tx, b *model.Batch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Batch, error)
	FindByShareToken(ctx context.Context, token string) (*model.Batch, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Batch, error)

	// ClaimNextQueued selects the oldest QUEUED batch and commits its
	// transition to GENERATING before returning, so a crash mid-expansion
	// is distinguishable from "never started". Returns domain.ErrNotFound
	// when nothing is queued.
	ClaimNextQueued(ctx context.Context) (*model.Batch, error)

	// FailGenerating marks GENERATING batches FAILED with the given
	// diagnostic (recovery sweep; expansion is not resumable). Only rows
	// whose last update is older than olderThan are touched; zero means
	// all of them.
	FailGenerating(ctx context.Context, message string, olderThan time.Duration) (int64, error)
}

type EditBatchRepository interface {
	Save(ctx context.Context, tx Tx, b *model.EditBatch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.EditBatch, error)
	FindByShareToken(ctx context.Context, token string) (*model.EditBatch, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.EditBatch, error)

	ClaimNextQueued(ctx context.Context) (*model.EditBatch, error)
	FailGenerating(ctx context.Context, message string, olderThan time.Duration) (int64, error)
}
