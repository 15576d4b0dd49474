//go:build !integration

package worker_test

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

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(context.Context, repository.Tx) error) error {
	return fn(ctx, nil)
}

// fakeProvider renders through an injectable function so tests can force
// success or failure per job.
type fakeProvider struct {
	name   string
	render func(ctx context.Context, job *model.Job) ([]byte, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Render(ctx context.Context, job *model.Job) ([]byte, error) {
	return p.render(ctx, job)
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*model.Job)}
}

func (r *fakeJobRepo) Save(_ context.Context, _ repository.Tx, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	r.jobs[cp.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJobRepo) InsertAll(_ context.Context, _ repository.Tx, jobs []*model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		cp := *job
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		r.jobs[cp.ID] = &cp
	}
	return nil
}

func (r *fakeJobRepo) ClaimNext(_ context.Context, provider string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var eligible []*model.Job
	for _, j := range r.jobs {
		if j.Status == model.JobStatusQueued && j.Provider == provider {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(eligible, func(a, b int) bool {
		if eligible[a].HasParent() != eligible[b].HasParent() {
			return !eligible[a].HasParent()
		}
		return eligible[a].CreatedAt.Before(eligible[b].CreatedAt)
	})
	eligible[0].Status = model.JobStatusProcessing
	eligible[0].UpdatedAt = time.Now()
	cp := *eligible[0]
	return &cp, nil
}

func (r *fakeJobRepo) CountQueuedSingles(context.Context, *time.Time) (int, error)      { return 0, nil }
func (r *fakeJobRepo) CountQueuedBatchMembers(context.Context, *time.Time) (int, error) { return 0, nil }

func (r *fakeJobRepo) CountBatchOutcomes(_ context.Context, _ repository.Tx, batchID string) (int, int, error) {
	return r.countOutcomes(func(j *model.Job) bool { return j.BatchID == batchID })
}

func (r *fakeJobRepo) CountEditBatchOutcomes(_ context.Context, _ repository.Tx, editBatchID string) (int, int, error) {
	return r.countOutcomes(func(j *model.Job) bool { return j.EditBatchID == editBatchID })
}

func (r *fakeJobRepo) countOutcomes(match func(*model.Job) bool) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var completed, failed int
	for _, j := range r.jobs {
		if !match(j) {
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

func (r *fakeJobRepo) CancelQueuedByBatch(_ context.Context, _ repository.Tx, batchID string) (int64, error) {
	return r.cancelQueued(func(j *model.Job) bool { return j.BatchID == batchID })
}

func (r *fakeJobRepo) CancelQueuedByEditBatch(_ context.Context, _ repository.Tx, editBatchID string) (int64, error) {
	return r.cancelQueued(func(j *model.Job) bool { return j.EditBatchID == editBatchID })
}

func (r *fakeJobRepo) cancelQueued(match func(*model.Job) bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if match(j) && j.Status == model.JobStatusQueued {
			j.Status = model.JobStatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) FinishProcessing(_ context.Context, job *model.Job) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[job.ID]
	if !ok || cur.Status != model.JobStatusProcessing {
		return false, nil
	}
	cp := *job
	cp.UpdatedAt = time.Now()
	r.jobs[cp.ID] = &cp
	return true, nil
}

func (r *fakeJobRepo) ResetProcessing(_ context.Context, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, j := range r.jobs {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobStatusQueued
			j.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *fakeJobRepo) CountByStatus(context.Context) (map[model.JobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.JobStatus]int)
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out, nil
}

func (r *fakeJobRepo) ListByBatch(_ context.Context, batchID string) ([]*model.Job, error) {
	return r.listBy(func(j *model.Job) bool { return j.BatchID == batchID })
}

func (r *fakeJobRepo) ListByEditBatch(_ context.Context, editBatchID string) ([]*model.Job, error) {
	return r.listBy(func(j *model.Job) bool { return j.EditBatchID == editBatchID })
}

func (r *fakeJobRepo) listBy(match func(*model.Job) bool) ([]*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Job
	for _, j := range r.jobs {
		if match(j) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.Batch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[string]*model.Batch)}
}

func (r *fakeBatchRepo) Save(_ context.Context, _ repository.Tx, b *model.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	r.batches[cp.ID] = &cp
	return nil
}

func (r *fakeBatchRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBatchRepo) FindByShareToken(context.Context, string) (*model.Batch, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeBatchRepo) ListByUser(context.Context, string, int) ([]*model.Batch, error) {
	return nil, nil
}

func (r *fakeBatchRepo) ClaimNextQueued(context.Context) (*model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *model.Batch
	for _, b := range r.batches {
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
	oldest.UpdatedAt = time.Now()
	cp := *oldest
	return &cp, nil
}

func (r *fakeBatchRepo) FailGenerating(_ context.Context, message string, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, b := range r.batches {
		if b.Status == model.BatchStatusGenerating && b.UpdatedAt.Before(cutoff) {
			b.Status = model.BatchStatusFailed
			b.ErrorMessage = message
			n++
		}
	}
	return n, nil
}

type fakeEditBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.EditBatch
}

func newFakeEditBatchRepo() *fakeEditBatchRepo {
	return &fakeEditBatchRepo{batches: make(map[string]*model.EditBatch)}
}

func (r *fakeEditBatchRepo) Save(_ context.Context, _ repository.Tx, b *model.EditBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	r.batches[cp.ID] = &cp
	return nil
}

func (r *fakeEditBatchRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.EditBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeEditBatchRepo) FindByShareToken(context.Context, string) (*model.EditBatch, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeEditBatchRepo) ListByUser(context.Context, string, int) ([]*model.EditBatch, error) {
	return nil, nil
}

func (r *fakeEditBatchRepo) ClaimNextQueued(context.Context) (*model.EditBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *model.EditBatch
	for _, b := range r.batches {
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
	oldest.UpdatedAt = time.Now()
	cp := *oldest
	return &cp, nil
}

func (r *fakeEditBatchRepo) FailGenerating(_ context.Context, message string, olderThan time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var n int64
	for _, b := range r.batches {
		if b.Status == model.BatchStatusGenerating && b.UpdatedAt.Before(cutoff) {
			b.Status = model.BatchStatusFailed
			b.ErrorMessage = message
			n++
		}
	}
	return n, nil
}
