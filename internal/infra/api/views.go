package api

import (
	"time"

	"mayagen/internal/domain/model"
)

type jobView struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Prompt        string    `json:"prompt"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Model         string    `json:"model"`
	Provider      string    `json:"provider"`
	Category      string    `json:"category"`
	IsPublic      bool      `json:"is_public"`
	Filename      string    `json:"filename,omitempty"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	BatchID       string    `json:"batch_id,omitempty"`
	EditBatchID   string    `json:"edit_batch_id,omitempty"`
	QueuePosition *int      `json:"queue_position,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toJobView(j *model.Job, position *int) jobView {
	return jobView{
		ID:            j.ID,
		Kind:          string(j.Kind),
		Prompt:        j.Prompt,
		Width:         j.Width,
		Height:        j.Height,
		Model:         j.Model,
		Provider:      j.Provider,
		Category:      j.Category,
		IsPublic:      j.IsPublic,
		Filename:      j.Filename,
		Status:        string(j.Status),
		ErrorMessage:  j.ErrorMessage,
		BatchID:       j.BatchID,
		EditBatchID:   j.EditBatchID,
		QueuePosition: position,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func toJobViews(jobs []*model.Job) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobView(j, nil))
	}
	return out
}

type batchView struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Category       string              `json:"category"`
	TargetSubject  string              `json:"target_subject"`
	TotalImages    int                 `json:"total_images"`
	Variations     map[string][]string `json:"variations,omitempty"`
	Template       string              `json:"template,omitempty"`
	Status         string              `json:"status"`
	GeneratedCount int                 `json:"generated_count"`
	FailedCount    int                 `json:"failed_count"`
	Progress       float64             `json:"progress"`
	Model          string              `json:"model"`
	Provider       string              `json:"provider"`
	Width          int                 `json:"width"`
	Height         int                 `json:"height"`
	IsPublic       bool                `json:"is_public"`
	ShareToken     string              `json:"share_token,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func toBatchView(b *model.Batch) batchView {
	return batchView{
		ID:             b.ID,
		Name:           b.Name,
		Category:       b.Category,
		TargetSubject:  b.TargetSubject,
		TotalImages:    b.TotalImages,
		Variations:     b.Variations,
		Template:       b.Template,
		Status:         string(b.Status),
		GeneratedCount: b.GeneratedCount,
		FailedCount:    b.FailedCount,
		Progress:       b.Progress(),
		Model:          b.Model,
		Provider:       b.Provider,
		Width:          b.Width,
		Height:         b.Height,
		IsPublic:       b.IsPublic,
		ShareToken:     b.ShareToken,
		ErrorMessage:   b.ErrorMessage,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

type editBatchView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Prompts         []string  `json:"prompts,omitempty"`
	TotalVariations int       `json:"total_variations"`
	Status          string    `json:"status"`
	GeneratedCount  int       `json:"generated_count"`
	FailedCount     int       `json:"failed_count"`
	Progress        float64   `json:"progress"`
	Model           string    `json:"model"`
	Provider        string    `json:"provider"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	IsPublic        bool      `json:"is_public"`
	ShareToken      string    `json:"share_token,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toEditBatchView(b *model.EditBatch) editBatchView {
	return editBatchView{
		ID:              b.ID,
		Name:            b.Name,
		Prompts:         b.Prompts,
		TotalVariations: b.TotalVariations,
		Status:          string(b.Status),
		GeneratedCount:  b.GeneratedCount,
		FailedCount:     b.FailedCount,
		Progress:        b.Progress(),
		Model:           b.Model,
		Provider:        b.Provider,
		Width:           b.Width,
		Height:          b.Height,
		IsPublic:        b.IsPublic,
		ShareToken:      b.ShareToken,
		ErrorMessage:    b.ErrorMessage,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}
