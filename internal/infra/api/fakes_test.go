//go:build !integration

package api_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
	"mayagen/internal/usecase"
)

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(context.Context, repository.Tx) error) error {
	return fn(ctx, nil)
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *fakeSweeper) RunStale(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *fakeSweeper) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
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

func (r *fakeJobRepo) ClaimNext(context.Context, string) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeJobRepo) CountQueuedSingles(_ context.Context, before *time.Time) (int, error) {
	return r.countQueued(false, before)
}

func (r *fakeJobRepo) CountQueuedBatchMembers(_ context.Context, before *time.Time) (int, error) {
	return r.countQueued(true, before)
}

func (r *fakeJobRepo) countQueued(withParent bool, before *time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, j := range r.jobs {
		if j.Status != model.JobStatusQueued || j.HasParent() != withParent {
			continue
		}
		if before != nil && !j.CreatedAt.Before(*before) {
			continue
		}
		n++
	}
	return n, nil
}

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

func (r *fakeBatchRepo) FindByShareToken(_ context.Context, token string) (*model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.ShareToken != "" && b.ShareToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeBatchRepo) ListByUser(_ context.Context, userID string, limit int) ([]*model.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Batch
	for _, b := range r.batches {
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

func (r *fakeBatchRepo) ClaimNextQueued(context.Context) (*model.Batch, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeBatchRepo) FailGenerating(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
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

func (r *fakeEditBatchRepo) FindByShareToken(_ context.Context, token string) (*model.EditBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.batches {
		if b.ShareToken != "" && b.ShareToken == token {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEditBatchRepo) ListByUser(_ context.Context, userID string, limit int) ([]*model.EditBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.EditBatch
	for _, b := range r.batches {
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

func (r *fakeEditBatchRepo) ClaimNextQueued(context.Context) (*model.EditBatch, error) {
	return nil, domain.ErrNotFound
}

func (r *fakeEditBatchRepo) FailGenerating(context.Context, string, time.Duration) (int64, error) {
	return 0, nil
}

type fakeProgressCache struct {
	mu        sync.Mutex
	snapshots map[string]usecase.BatchProgress
	deleted   []string
}

func newFakeProgressCache() *fakeProgressCache {
	return &fakeProgressCache{snapshots: make(map[string]usecase.BatchProgress)}
}

func (c *fakeProgressCache) Store(_ context.Context, p usecase.BatchProgress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[p.BatchID] = p
	return nil
}

func (c *fakeProgressCache) Get(_ context.Context, batchID string) (usecase.BatchProgress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.snapshots[batchID]
	if !ok {
		return usecase.BatchProgress{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *fakeProgressCache) Delete(_ context.Context, batchID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, batchID)
	c.deleted = append(c.deleted, batchID)
	return nil
}

func (c *fakeProgressCache) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}
