package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mayagen/internal/domain"
	"mayagen/internal/domain/model"
	"mayagen/internal/domain/ports/repository"
	"mayagen/internal/infra/logging"
)

// EnqueueJobParams is the boundary contract for a direct client submission.
// The core only requires prompt/size/provider/model to be present; business
// authorization is the HTTP layer's problem.
type EnqueueJobParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Model          string
	Provider       string
	Category       string
	IsPublic       bool
	UserID         string

	// Set for edit jobs.
	InputImagePath string
}

type JobUseCase struct {
	jobs     repository.JobRepository
	queuePos *QueuePositionUseCase
	log      *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, queuePos *QueuePositionUseCase, log *zerolog.Logger) *JobUseCase {
	l := log.With().Str("component", "jobs").Logger()
	return &JobUseCase{jobs: jobs, queuePos: queuePos, log: &l}
}

// Enqueue inserts a directly-submitted job (no batch parent, tier-1
// priority).
func (uc *JobUseCase) Enqueue(ctx context.Context, p EnqueueJobParams) (*model.Job, error) {
	defer logging.TraceDuration(uc.log, "JobUC.Enqueue")()

	if strings.TrimSpace(p.Prompt) == "" || p.Width <= 0 || p.Height <= 0 ||
		p.Provider == "" || p.Model == "" {
		return nil, domain.ErrInvalidArgument
	}
	if p.Category == "" {
		p.Category = "uncategorized"
	}

	kind := model.JobKindTextToImage
	filename := fmt.Sprintf("%s_%d_%s.png",
		strings.ReplaceAll(p.Category, "/", "_"), time.Now().Unix(), shortID(uuid.NewString()))
	if p.InputImagePath != "" {
		// Edit jobs get their filename from the executor at render time.
		kind = model.JobKindImageEdit
		filename = ""
	}

	job := &model.Job{
		ID:             uuid.NewString(),
		Kind:           kind,
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Width:          p.Width,
		Height:         p.Height,
		Model:          p.Model,
		Provider:       p.Provider,
		Category:       p.Category,
		IsPublic:       p.IsPublic,
		InputImagePath: p.InputImagePath,
		Filename:       filename,
		Status:         model.JobStatusQueued,
		UserID:         p.UserID,
	}
	if err := uc.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", job.ID).Str("provider", job.Provider).Msg("job enqueued")
	return job, nil
}

// Get returns the job plus its live queue position (nil when the job is not
// in the queue). Safe to call concurrently with any in-flight transition:
// it reads one consistent row and positions are purely informational.
func (uc *JobUseCase) Get(ctx context.Context, id string) (*model.Job, *int, error) {
	job, err := uc.jobs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	pos, err := uc.queuePos.Position(ctx, job)
	if err != nil {
		return nil, nil, err
	}
	return job, pos, nil
}

// QueueSnapshot reports job counts per status for the admin view.
func (uc *JobUseCase) QueueSnapshot(ctx context.Context) (map[model.JobStatus]int, error) {
	return uc.jobs.CountByStatus(ctx)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
