package model

import "time"

type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusGenerating BatchStatus = "generating"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// Batch is a parametric multiplier over text-to-image jobs: a subject plus
// named variation lists, expanded exactly once into TotalImages child jobs.
type Batch struct {
	ID            string
	Name          string
	Category      string
	TargetSubject string
	TotalImages   int

	// Variation category -> option strings, e.g. "colors" -> [red, blue].
	Variations map[string][]string

	// Optional custom template, e.g. "A {color} {target} in {environment}".
	Template string

	Status BatchStatus

	// Derived caches. Always recomputed from the job store, never
	// incremented in place.
	GeneratedCount int
	FailedCount    int

	// Defaults applied to child jobs.
	Model    string
	Provider string
	Width    int
	Height   int
	IsPublic bool

	UserID       string
	ShareToken   string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Processed returns how many children reached a terminal outcome.
func (b *Batch) Processed() int { return b.GeneratedCount + b.FailedCount }

// Progress returns completion as a 0-100 percentage.
func (b *Batch) Progress() float64 {
	if b.TotalImages <= 0 {
		return 0
	}
	return float64(b.Processed()) / float64(b.TotalImages) * 100
}

// EditBatch parametrizes edits of one fixed source image. Unlike Batch the
// prompt list is precomputed at creation time and capped to TotalVariations.
type EditBatch struct {
	ID              string
	Name            string
	InputImagePath  string
	Prompts         []string
	TotalVariations int

	Status BatchStatus

	GeneratedCount int
	FailedCount    int

	Model    string
	Provider string
	Width    int
	Height   int
	IsPublic bool

	UserID       string
	ShareToken   string
	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b *EditBatch) Processed() int { return b.GeneratedCount + b.FailedCount }

func (b *EditBatch) Progress() float64 {
	if b.TotalVariations <= 0 {
		return 0
	}
	return float64(b.Processed()) / float64(b.TotalVariations) * 100
}
