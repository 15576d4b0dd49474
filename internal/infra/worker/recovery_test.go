//go:build !integration

package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mayagen/internal/domain/model"
	"mayagen/internal/infra/worker"
)

func TestRecoverySweepRepairsInterruptedWork(t *testing.T) {
	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	edits := newFakeEditBatchRepo()
	log := zerolog.Nop()
	sweep := worker.NewRecoverySweep(jobs, batches, edits, 0, &log)
	ctx := context.Background()

	for _, j := range []*model.Job{
		{ID: "stuck", Status: model.JobStatusProcessing, Provider: "mock"},
		{ID: "waiting", Status: model.JobStatusQueued, Provider: "mock"},
		{ID: "done", Status: model.JobStatusCompleted, Provider: "mock"},
	} {
		if err := jobs.Save(ctx, nil, j); err != nil {
			t.Fatal(err)
		}
	}
	if err := batches.Save(ctx, nil, &model.Batch{ID: "b1", Status: model.BatchStatusGenerating}); err != nil {
		t.Fatal(err)
	}
	if err := edits.Save(ctx, nil, &model.EditBatch{ID: "e1", Status: model.BatchStatusGenerating}); err != nil {
		t.Fatal(err)
	}

	if err := sweep.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	j, _ := jobs.FindByID(ctx, nil, "stuck")
	if j.Status != model.JobStatusQueued {
		t.Fatalf("interrupted job status = %s, want QUEUED", j.Status)
	}
	j, _ = jobs.FindByID(ctx, nil, "done")
	if j.Status != model.JobStatusCompleted {
		t.Fatalf("completed job disturbed: %s", j.Status)
	}

	b, _ := batches.FindByID(ctx, nil, "b1")
	if b.Status != model.BatchStatusFailed {
		t.Fatalf("batch status = %s, want failed", b.Status)
	}
	if b.ErrorMessage != "server restarted during generation" {
		t.Fatalf("batch message = %q", b.ErrorMessage)
	}
	e, _ := edits.FindByID(ctx, nil, "e1")
	if e.Status != model.BatchStatusFailed {
		t.Fatalf("edit batch status = %s, want failed", e.Status)
	}
}

func TestRecoverySweepIsIdempotent(t *testing.T) {
	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	edits := newFakeEditBatchRepo()
	log := zerolog.Nop()
	sweep := worker.NewRecoverySweep(jobs, batches, edits, 0, &log)
	ctx := context.Background()

	if err := jobs.Save(ctx, nil, &model.Job{ID: "stuck", Status: model.JobStatusProcessing}); err != nil {
		t.Fatal(err)
	}
	if err := sweep.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sweep.RunOnce(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	j, _ := jobs.FindByID(ctx, nil, "stuck")
	if j.Status != model.JobStatusQueued {
		t.Fatalf("status = %s after repeated sweeps", j.Status)
	}
}

// A manual sweep while dispatchers are live must not steal claims from
// jobs that are actively rendering. Only rows idle past the grace period
// are fair game.
func TestRunStaleOnlyResetsIdleWork(t *testing.T) {
	jobs := newFakeJobRepo()
	batches := newFakeBatchRepo()
	edits := newFakeEditBatchRepo()
	log := zerolog.Nop()
	sweep := worker.NewRecoverySweep(jobs, batches, edits, time.Minute, &log)
	ctx := context.Background()

	rendering := &model.Job{ID: "rendering", Status: model.JobStatusProcessing, Provider: "mock"}
	if err := jobs.Save(ctx, nil, rendering); err != nil {
		t.Fatal(err)
	}
	abandoned := &model.Job{
		ID: "abandoned", Status: model.JobStatusProcessing, Provider: "mock",
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if err := jobs.Save(ctx, nil, abandoned); err != nil {
		t.Fatal(err)
	}
	expanding := &model.Batch{ID: "expanding", Status: model.BatchStatusGenerating}
	if err := batches.Save(ctx, nil, expanding); err != nil {
		t.Fatal(err)
	}
	stuck := &model.Batch{
		ID: "stuck", Status: model.BatchStatusGenerating,
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if err := batches.Save(ctx, nil, stuck); err != nil {
		t.Fatal(err)
	}

	if err := sweep.RunStale(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	j, _ := jobs.FindByID(ctx, nil, "rendering")
	if j.Status != model.JobStatusProcessing {
		t.Fatalf("live claim stolen: %s", j.Status)
	}
	j, _ = jobs.FindByID(ctx, nil, "abandoned")
	if j.Status != model.JobStatusQueued {
		t.Fatalf("abandoned job status = %s, want QUEUED", j.Status)
	}

	b, _ := batches.FindByID(ctx, nil, "expanding")
	if b.Status != model.BatchStatusGenerating {
		t.Fatalf("live expansion failed out: %s", b.Status)
	}
	b, _ = batches.FindByID(ctx, nil, "stuck")
	if b.Status != model.BatchStatusFailed {
		t.Fatalf("stuck batch status = %s, want failed", b.Status)
	}
}
