package usecase

import (
	"context"

	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
)

// QueuePositionUseCase answers "where am I in line" for a pending job.
//
// Two priority tiers: directly-submitted jobs (no batch parent) are always
// reported ahead of batch-expanded jobs, regardless of submission order;
// within a tier, older created_at first.
type QueuePositionUseCase struct {
	jobs repository.JobRepository
}

func NewQueuePositionUseCase(jobs repository.JobRepository) *QueuePositionUseCase {
	return &QueuePositionUseCase{jobs: jobs}
}

// Position returns nil for jobs outside the queue (completed, failed,
// cancelled), 0 for a PROCESSING job, and a 1-based position otherwise.
func (uc *QueuePositionUseCase) Position(ctx context.Context, job *model.Job) (*int, error) {
	if job.Status == model.JobStatusProcessing {
		pos := 0
		return &pos, nil
	}
	if job.Status != model.JobStatusQueued {
		return nil, nil
	}

	if !job.HasParent() {
		ahead, err := uc.jobs.CountQueuedSingles(ctx, &job.CreatedAt)
		if err != nil {
			return nil, err
		}
		pos := ahead + 1
		return &pos, nil
	}

	// Every tier-1 job is ahead of me, plus older tier-2 jobs.
	tier1, err := uc.jobs.CountQueuedSingles(ctx, nil)
	if err != nil {
		return nil, err
	}
	tier2Ahead, err := uc.jobs.CountQueuedBatchMembers(ctx, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	pos := tier1 + tier2Ahead + 1
	return &pos, nil
}
