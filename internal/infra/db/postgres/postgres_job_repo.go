package postgres

import (
	"context"
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

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

const jobColumns = `
id, kind, prompt, negative_prompt, width, height, model, provider, category,
is_public, COALESCE(input_image_path, ''), COALESCE(filename, ''),
COALESCE(file_path, ''), status, COALESCE(error_message, ''),
COALESCE(user_id, ''), COALESCE(batch_id, ''), COALESCE(edit_batch_id, ''),
created_at, updated_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Kind, &j.Prompt, &j.NegativePrompt, &j.Width, &j.Height,
		&j.Model, &j.Provider, &j.Category, &j.IsPublic, &j.InputImagePath,
		&j.Filename, &j.FilePath, &status, &j.ErrorMessage, &j.UserID,
		&j.BatchID, &j.EditBatchID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (
  id, kind, prompt, negative_prompt, width, height, model, provider, category,
  is_public, input_image_path, filename, file_path, status, error_message,
  user_id, batch_id, edit_batch_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
        NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), $14, NULLIF($15, ''),
        NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), $19, $20)
ON CONFLICT (id) DO UPDATE SET
  status        = EXCLUDED.status,
  filename      = EXCLUDED.filename,
  file_path     = EXCLUDED.file_path,
  error_message = EXCLUDED.error_message,
  updated_at    = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Kind, job.Prompt, job.NegativePrompt, job.Width, job.Height,
		job.Model, job.Provider, job.Category, job.IsPublic, job.InputImagePath,
		job.Filename, job.FilePath, job.Status, job.ErrorMessage,
		job.UserID, job.BatchID, job.EditBatchID, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) InsertAll(ctx context.Context, tx repository.Tx, jobs []*model.Job) error {
	for _, j := range jobs {
		if err := r.Save(ctx, tx, j); err != nil {
			return err
		}
	}
	return nil
}

// ClaimNext is the queue-pop primitive. Direct submissions outrank batch
// children; within a tier oldest first. FOR UPDATE SKIP LOCKED keeps
// concurrent claimers from blocking each other or double-claiming a row.
func (r *jobRepo) ClaimNext(ctx context.Context, provider string) (*model.Job, error) {
	var job *model.Job

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		q := `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = 'QUEUED' AND provider = $1
ORDER BY
  CASE WHEN batch_id IS NULL AND edit_batch_id IS NULL THEN 0 ELSE 1 END ASC,
  created_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, q, provider)
		if err != nil {
			return err
		}
		claimed, err := scanJob(row)
		if err != nil {
			return err
		}

		claimed.Status = model.JobStatusProcessing
		if err := r.Save(ctx, tx, claimed); err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *jobRepo) CountQueuedSingles(ctx context.Context, before *time.Time) (int, error) {
	return r.countQueued(ctx, true, before)
}

func (r *jobRepo) CountQueuedBatchMembers(ctx context.Context, before *time.Time) (int, error) {
	return r.countQueued(ctx, false, before)
}

func (r *jobRepo) countQueued(ctx context.Context, singles bool, before *time.Time) (int, error) {
	parent := "batch_id IS NULL AND edit_batch_id IS NULL"
	if !singles {
		parent = "(batch_id IS NOT NULL OR edit_batch_id IS NOT NULL)"
	}
	q := `SELECT COUNT(1) FROM jobs WHERE status = 'QUEUED' AND ` + parent
	args := []interface{}{}
	if before != nil {
		q += ` AND created_at < $1`
		args = append(args, *before)
	}
	var n int
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queued: %w", err)
	}
	return n, nil
}

func (r *jobRepo) CountBatchOutcomes(ctx context.Context, tx repository.Tx, batchID string) (int, int, error) {
	return r.countOutcomes(ctx, tx, "batch_id", batchID)
}

func (r *jobRepo) CountEditBatchOutcomes(ctx context.Context, tx repository.Tx, editBatchID string) (int, int, error) {
	return r.countOutcomes(ctx, tx, "edit_batch_id", editBatchID)
}

func (r *jobRepo) countOutcomes(ctx context.Context, tx repository.Tx, column, id string) (int, int, error) {
	q := `
SELECT
  COUNT(1) FILTER (WHERE status = 'COMPLETED'),
  COUNT(1) FILTER (WHERE status = 'FAILED')
FROM jobs WHERE ` + column + ` = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, 0, err
	}
	var completed, failed int
	if err := row.Scan(&completed, &failed); err != nil {
		return 0, 0, fmt.Errorf("count outcomes: %w", err)
	}
	return completed, failed, nil
}

func (r *jobRepo) CancelQueuedByBatch(ctx context.Context, tx repository.Tx, batchID string) (int64, error) {
	return r.cancelQueued(ctx, tx, "batch_id", batchID)
}

func (r *jobRepo) CancelQueuedByEditBatch(ctx context.Context, tx repository.Tx, editBatchID string) (int64, error) {
	return r.cancelQueued(ctx, tx, "edit_batch_id", editBatchID)
}

func (r *jobRepo) cancelQueued(ctx context.Context, tx repository.Tx, column, id string) (int64, error) {
	q := `
UPDATE jobs SET status = 'CANCELLED', updated_at = now()
WHERE ` + column + ` = $1 AND status = 'QUEUED';`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, fmt.Errorf("cancel queued: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FinishProcessing commits a terminal outcome for a claimed job. The WHERE
// clause is the ownership check: once a recovery sweep has re-queued the
// row, the late result no longer matches and is dropped on the floor.
func (r *jobRepo) FinishProcessing(ctx context.Context, job *model.Job) (bool, error) {
	if !model.JobStatusProcessing.CanTransitionTo(job.Status) {
		return false, fmt.Errorf("finish processing: illegal transition PROCESSING -> %s", job.Status)
	}

	const q = `
UPDATE jobs SET
  status        = $2,
  filename      = NULLIF($3, ''),
  file_path     = NULLIF($4, ''),
  error_message = NULLIF($5, ''),
  updated_at    = now()
WHERE id = $1 AND status = 'PROCESSING';`
	tag, err := r.pool.Exec(ctx, q, job.ID, job.Status, job.Filename, job.FilePath, job.ErrorMessage)
	if err != nil {
		return false, fmt.Errorf("finish processing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *jobRepo) ResetProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	const q = `
UPDATE jobs SET status = 'QUEUED', updated_at = now()
WHERE status = 'PROCESSING' AND updated_at < $1;`
	tag, err := r.pool.Exec(ctx, q, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reset processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *jobRepo) CountByStatus(ctx context.Context) (map[model.JobStatus]int, error) {
	const q = `SELECT status, COUNT(1) FROM jobs GROUP BY status;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.JobStatus(status)] = n
	}
	return out, rows.Err()
}

func (r *jobRepo) ListByBatch(ctx context.Context, batchID string) ([]*model.Job, error) {
	return r.listByParent(ctx, "batch_id", batchID)
}

func (r *jobRepo) ListByEditBatch(ctx context.Context, editBatchID string) ([]*model.Job, error) {
	return r.listByParent(ctx, "edit_batch_id", editBatchID)
}

func (r *jobRepo) listByParent(ctx context.Context, column, id string) ([]*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + column + ` = $1 ORDER BY created_at ASC;`
	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("list by parent: %w", err)
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
