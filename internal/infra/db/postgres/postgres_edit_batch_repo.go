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

var _ repository.EditBatchRepository = (*editBatchRepo)(nil)

type editBatchRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewEditBatchRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *editBatchRepo {
	return &editBatchRepo{pool: pool, tm: tm}
}

const editBatchColumns = `
id, name, input_image_path, prompts, total_variations, status,
generated_count, failed_count, model, provider, width, height, is_public,
COALESCE(user_id, ''), COALESCE(share_token, ''), COALESCE(error_message, ''),
created_at, updated_at`

func scanEditBatch(row pgx.Row) (*model.EditBatch, error) {
	var b model.EditBatch
	var status string
	var prompts []byte
	err := row.Scan(
		&b.ID, &b.Name, &b.InputImagePath, &prompts, &b.TotalVariations,
		&status, &b.GeneratedCount, &b.FailedCount, &b.Model, &b.Provider,
		&b.Width, &b.Height, &b.IsPublic, &b.UserID, &b.ShareToken,
		&b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	b.Status = model.BatchStatus(status)
	if len(prompts) > 0 {
		if err := json.Unmarshal(prompts, &b.Prompts); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &b, nil
}

func (r *editBatchRepo) Save(ctx context.Context, tx repository.Tx, b *model.EditBatch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()

	prompts, err := json.Marshal(b.Prompts)
	if err != nil {
		return fmt.Errorf("marshal prompts: %w", err)
	}

	const q = `
INSERT INTO edit_batches (
  id, name, input_image_path, prompts, total_variations, status,
  generated_count, failed_count, model, provider, width, height, is_public,
  user_id, share_token, error_message, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
        NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), $17, $18)
ON CONFLICT (id) DO UPDATE SET
  status          = EXCLUDED.status,
  generated_count = EXCLUDED.generated_count,
  failed_count    = EXCLUDED.failed_count,
  share_token     = EXCLUDED.share_token,
  error_message   = EXCLUDED.error_message,
  updated_at      = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		b.ID, b.Name, b.InputImagePath, prompts, b.TotalVariations, b.Status,
		b.GeneratedCount, b.FailedCount, b.Model, b.Provider, b.Width,
		b.Height, b.IsPublic, b.UserID, b.ShareToken, b.ErrorMessage,
		b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save edit batch: %w", err)
	}
	return nil
}

func (r *editBatchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.EditBatch, error) {
	q := `SELECT ` + editBatchColumns + ` FROM edit_batches WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanEditBatch(row)
}

func (r *editBatchRepo) FindByShareToken(ctx context.Context, token string) (*model.EditBatch, error) {
	q := `SELECT ` + editBatchColumns + ` FROM edit_batches WHERE share_token = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, token)
	if err != nil {
		return nil, err
	}
	return scanEditBatch(row)
}

func (r *editBatchRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.EditBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + editBatchColumns + ` FROM edit_batches WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list edit batches: %w", err)
	}
	defer rows.Close()

	var out []*model.EditBatch
	for rows.Next() {
		b, err := scanEditBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *editBatchRepo) ClaimNextQueued(ctx context.Context) (*model.EditBatch, error) {
	var batch *model.EditBatch

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		q := `
SELECT ` + editBatchColumns + `
FROM edit_batches
WHERE status = 'queued'
ORDER BY created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q)
		if err != nil {
			return err
		}
		claimed, err := scanEditBatch(row)
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

func (r *editBatchRepo) FailGenerating(ctx context.Context, message string, olderThan time.Duration) (int64, error) {
	const q = `
UPDATE edit_batches SET status = 'failed', error_message = $1, updated_at = now()
WHERE status = 'generating' AND updated_at < $2;`
	tag, err := r.pool.Exec(ctx, q, message, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("fail generating edit batches: %w", err)
	}
	return tag.RowsAffected(), nil
}
