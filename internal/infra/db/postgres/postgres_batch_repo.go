package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewBatchRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *batchRepo {
	return &batchRepo{pool: pool, tm: tm}
}

const batchColumns = `
id, name, category, target_subject, total_images, variations,
COALESCE(template, ''), status, generated_count, failed_count,
model, provider, width, height, is_public, COALESCE(user_id, ''),
COALESCE(share_token, ''), COALESCE(error_message, ''), created_at, updated_at`

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	var status string
	var variations []byte
	err := row.Scan(
		&b.ID, &b.Name, &b.Category, &b.TargetSubject, &b.TotalImages,
		&variations, &b.Template, &status, &b.GeneratedCount, &b.FailedCount,
		&b.Model, &b.Provider, &b.Width, &b.Height, &b.IsPublic, &b.UserID,
		&b.ShareToken, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	b.Status = model.BatchStatus(status)
	if len(variations) > 0 {
		if err := json.Unmarshal(variations, &b.Variations); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &b, nil
}

func (r *batchRepo) Save(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()

	variations, err := json.Marshal(b.Variations)
	if err != nil {
		return fmt.Errorf("marshal variations: %w", err)
	}

	const q = `
INSERT INTO batches (
  id, name, category, target_subject, total_images, variations, template,
  status, generated_count, failed_count, model, provider, width, height,
  is_public, user_id, share_token, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13,
        $14, $15, NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), $19, $20)
ON CONFLICT (id) DO UPDATE SET
  status          = EXCLUDED.status,
  generated_count = EXCLUDED.generated_count,
  failed_count    = EXCLUDED.failed_count,
  share_token     = EXCLUDED.share_token,
  error_message   = EXCLUDED.error_message,
  updated_at      = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		b.ID, b.Name, b.Category, b.TargetSubject, b.TotalImages, variations,
		b.Template, b.Status, b.GeneratedCount, b.FailedCount, b.Model,
		b.Provider, b.Width, b.Height, b.IsPublic, b.UserID, b.ShareToken,
		b.ErrorMessage, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM batches WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func (r *batchRepo) FindByShareToken(ctx context.Context, token string) (*model.Batch, error) {
	q := `SELECT ` + batchColumns + ` FROM batches WHERE share_token = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, token)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func (r *batchRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + batchColumns + ` FROM batches WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ClaimNextQueued commits the QUEUED -> GENERATING transition before the
// caller starts expanding, so a crash mid-expansion is visible as a stuck
// GENERATING row rather than a silently retryable QUEUED one.
func (r *batchRepo) ClaimNextQueued(ctx context.Context) (*model.Batch, error) {
	var batch *model.Batch

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		q := `
SELECT ` + batchColumns + `
FROM batches
WHERE status = 'queued'
ORDER BY created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q)
		if err != nil {
			return err
		}
		claimed, err := scanBatch(row)
		if err != nil {
			return err
		}

		claimed.Status = model.BatchStatusGenerating
		if err := r.Save(ctx, tx, claimed); err != nil {
			return err
		}
		batch = claimed
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return batch, err
}

func (r *batchRepo) FailGenerating(ctx context.Context, message string, olderThan time.Duration) (int64, error) {
	const q = `
UPDATE batches SET status = 'failed', error_message = $1, updated_at = now()
WHERE status = 'generating' AND updated_at < $2;`
	tag, err := r.pool.Exec(ctx, q, message, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("fail generating batches: %w", err)
	}
	return tag.RowsAffected(), nil
}
