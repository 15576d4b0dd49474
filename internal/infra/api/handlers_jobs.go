package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mayagen/internal/domain/model"
	"mayagen/internal/usecase"
)

type generateRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Model          string `json:"model"`
	Provider       string `json:"provider"`
	Category       string `json:"category"`
	IsPublic       bool   `json:"is_public"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.applyDefaults(&req.Provider, &req.Model, &req.Width, &req.Height)

	job, err := s.jobUC.Enqueue(r.Context(), usecase.EnqueueJobParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Model:          req.Model,
		Provider:       req.Provider,
		Category:       req.Category,
		IsPublic:       req.IsPublic,
		UserID:         userID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobView(job, nil))
}

func (s *Server) handleImageGet(w http.ResponseWriter, r *http.Request) {
	job, position, err := s.jobUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job, position))
}

// handleImageFile streams the rendered image for a completed job.
func (s *Server) handleImageFile(w http.ResponseWriter, r *http.Request) {
	job, _, err := s.jobUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if job.Status != model.JobStatusCompleted || job.FilePath == "" {
		writeError(w, http.StatusConflict, "image not ready")
		return
	}
	f, err := s.store.Open(job.FilePath)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("could not open image file")
		writeError(w, http.StatusNotFound, "image file missing")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, job.Filename, stat.ModTime(), f)
}

// applyDefaults fills provider/model/size from config when the request
// omits them.
func (s *Server) applyDefaults(provider, model *string, width, height *int) {
	if *provider == "" {
		*provider = s.defaults.Default
	}
	if *model == "" {
		*model = s.defaults.DefaultModel
	}
	if *width <= 0 {
		*width = s.defaults.DefaultWidth
	}
	if *height <= 0 {
		*height = s.defaults.DefaultHeight
	}
}
