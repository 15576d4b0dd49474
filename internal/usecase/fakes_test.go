//go:build !integration

package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
)

// ---------------- in-memory infra mocks (repos/tx) ----------------

type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*model.Job{}}
}

func (m *memJobRepo) Save(_ context.Context, _ repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	m.jobs[cp.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) InsertAll(ctx context.Context, tx repository.Tx, jobs []*model.Job) error {
	for _, j := range jobs {
		if err := m.Save(ctx, tx, j); err != nil {
			return err
		}
	}
	return nil
}

func (m *memJobRepo) ClaimNext(_ context.Context, provider string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var eligible []*model.Job
	for _, j := range m.jobs {
		if j.Status == model.JobStatusQueued && j.Provider == provider {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(eligible, func(a, b int) bool {
		ta, tb := eligible[a].HasParent(), eligible[b].HasParent()
		if ta != tb {
			return !ta
		}
		return eligible[a].CreatedAt.Before(eligible[b].CreatedAt)
	})
	next := eligible[0]
	next.Status = model.JobStatusProcessing
	cp := *next
	return &cp, nil
}

func (m *memJobRepo) countQueued(parent bool, before *time.Time) int {
	n := 0
	for _, j := range m.jobs {
		if j.Status != model.JobStatusQueued || j.HasParent() != parent {
			continue
		}
		if before != nil && !j.CreatedAt.Before(*before) {
			continue
		}
		n++
	}
	return n
}

func (m *memJobRepo) CountQueuedSingles(_ context.Context, before *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countQueued(false, before), nil
}

func (m *memJobRepo) CountQueuedBatchMembers(_ context.Context, before *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countQueued(true, before), nil
}

func (m *memJobRepo) CountBatchOutcomes(_ context.Context, _ repository.Tx, batchID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var completed, failed int
	for _, j := range m.jobs {
		if j.BatchID != batchID {
			continue
		}
		switch j.Status {
		case model.JobStatusCompleted:
			completed++
		case model.JobStatusFailed:
			failed++
		}
	}
	return completed, failed, nil
}

func (m *memJobRepo) CountEditBatchOutcomes(_ context.Context, _ repository.Tx, editBatchID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var completed, failed int
	for _, j := range m.jobs {
		if j.EditBatchID != editBatchID {
			continue
		}
		switch j.Status {
		case model.JobStatusCompleted:
			completed++
		case model.JobStatusFailed:
			failed++
		}
	}
	return completed, failed, nil
}

func (m *memJobRepo) CancelQueuedByBatch(_ context.Context, _ repository.Tx, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.BatchID == batchID && j.Status == model.JobStatusQueued {
			j.Status = model.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) CancelQueuedByEditBatch(_ context.Context, _ repository.Tx, editBatchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.EditBatchID == editBatchID && j.Status == model.JobStatusQueued {
			j.Status = model.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) FinishProcessing(_ context.Context, job *model.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[job.ID]
	if !ok || cur.Status != model.JobStatusProcessing {
		return false, nil
	}
	cp := *job
	cp.UpdatedAt = time.Now()
	m.jobs[cp.ID] = &cp
	return true, nil
}

func (m *memJobRepo) ResetProcessing(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, j := range m.jobs {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobStatusQueued
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) CountByStatus(_ context.Context) (map[model.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.JobStatus]int{}
	for _, j := range m.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (m *memJobRepo) listByParent(batchID, editBatchID string) []*model.Job {
	var out []*model.Job
	for _, j := range m.jobs {
		if (batchID != "" && j.BatchID == batchID) || (editBatchID != "" && j.EditBatchID == editBatchID) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (m *memJobRepo) ListByBatch(_ context.Context, batchID string) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByParent(batchID, ""), nil
}

func (m *memJobRepo) ListByEditBatch(_ context.Context, editBatchID string) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByParent("", editBatchID), nil
}

type memBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.Batch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: map[string]*model.Batch{}}
}

func (m *memBatchRepo) Save(_ context.Context, _ repository.Tx, b *model.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	m.batches[cp.ID] = &cp
	return nil
}

func (m *memBatchRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBatchRepo) FindByShareToken(_ context.Context, token string) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.ShareToken != "" && b.ShareToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memBatchRepo) ListByUser(_ context.Context, userID string, limit int) ([]*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Batch
	for _, b := range m.batches {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memBatchRepo) ClaimNextQueued(_ context.Context) (*model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.Batch
	for _, b := range m.batches {
		if b.Status != model.BatchStatusQueued {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.BatchStatusGenerating
	cp := *oldest
	return &cp, nil
}

func (m *memBatchRepo) FailGenerating(_ context.Context, message string, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, b := range m.batches {
		if b.Status == model.BatchStatusGenerating && b.UpdatedAt.Before(cutoff) {
			b.Status = model.BatchStatusFailed
			b.ErrorMessage = message
			n++
		}
	}
	return n, nil
}

type memEditBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.EditBatch
}

func newMemEditBatchRepo() *memEditBatchRepo {
	return &memEditBatchRepo{batches: map[string]*model.EditBatch{}}
}

func (m *memEditBatchRepo) Save(_ context.Context, _ repository.Tx, b *model.EditBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	m.batches[cp.ID] = &cp
	return nil
}

func (m *memEditBatchRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.EditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memEditBatchRepo) FindByShareToken(_ context.Context, token string) (*model.EditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.ShareToken != "" && b.ShareToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memEditBatchRepo) ListByUser(_ context.Context, userID string, limit int) ([]*model.EditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EditBatch
	for _, b := range m.batches {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEditBatchRepo) ClaimNextQueued(_ context.Context) (*model.EditBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.EditBatch
	for _, b := range m.batches {
		if b.Status != model.BatchStatusQueued {
			continue
		}
		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.BatchStatusGenerating
	cp := *oldest
	return &cp, nil
}

func (m *memEditBatchRepo) FailGenerating(_ context.Context, message string, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, b := range m.batches {
		if b.Status == model.BatchStatusGenerating && b.UpdatedAt.Before(cutoff) {
			b.Status = model.BatchStatusFailed
			b.ErrorMessage = message
			n++
		}
	}
	return n, nil
}
