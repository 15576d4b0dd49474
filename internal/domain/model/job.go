package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the job state machine:
// QUEUED -> PROCESSING -> COMPLETED|FAILED, plus QUEUED -> CANCELLED.
// The recovery sweep's PROCESSING -> QUEUED reset is also legal.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusCancelled
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusQueued
	}
	return false
}

type JobKind string

const (
	JobKindTextToImage JobKind = "TEXT_TO_IMAGE"
	JobKindImageEdit   JobKind = "IMAGE_EDIT"
	JobKindBatch       JobKind = "BATCH"
)

// Job is one atomic unit of image render/edit work. Coordination between
// dispatchers, the expander and the recovery sweep happens exclusively
// through conditional updates on the persisted job row.
type Job struct {
	ID             string
	Kind           JobKind
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Model          string
	Provider       string
	Category       string
	IsPublic       bool

	// Edit jobs reference the shared source image; Filename stays empty
	// until the executor assigns it at render time.
	InputImagePath string

	// Output reference. Set only when the job completes.
	Filename string
	FilePath string

	Status       JobStatus
	ErrorMessage string

	UserID string

	// At most one of BatchID / EditBatchID is set; empty means the job was
	// submitted directly and rides the higher priority tier.
	BatchID     string
	EditBatchID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasParent reports whether the job came out of a batch expansion.
func (j *Job) HasParent() bool { return j.BatchID != "" || j.EditBatchID != "" }
