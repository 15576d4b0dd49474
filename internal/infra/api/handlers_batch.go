package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mayagen/internal/usecase"
)

type batchCreateRequest struct {
	Name          string              `json:"name"`
	Category      string              `json:"category"`
	TargetSubject string              `json:"target_subject"`
	TotalImages   int                 `json:"total_images"`
	Variations    map[string][]string `json:"variations"`
	Template      string              `json:"template"`
	Model         string              `json:"model"`
	Provider      string              `json:"provider"`
	Width         int                 `json:"width"`
	Height        int                 `json:"height"`
	IsPublic      bool                `json:"is_public"`
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	s.applyDefaults(&req.Provider, &req.Model, &req.Width, &req.Height)

	batch, err := s.batchUC.Create(r.Context(), usecase.CreateBatchParams{
		Name:          req.Name,
		Category:      req.Category,
		TargetSubject: req.TargetSubject,
		TotalImages:   req.TotalImages,
		Variations:    req.Variations,
		Template:      req.Template,
		Model:         req.Model,
		Provider:      req.Provider,
		Width:         req.Width,
		Height:        req.Height,
		IsPublic:      req.IsPublic,
		UserID:        userID(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchView(batch))
}

func (s *Server) handleBatchList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := s.batchUC.List(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]batchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, toBatchView(b))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	batch, err := s.batchUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchView(batch))
}

// handleBatchProgress is the cheap poll endpoint: a cache hit is served
// without touching Postgres at all.
func (s *Server) handleBatchProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.progress.BatchSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleBatchJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.batchUC.Jobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobViews(jobs))
}

func (s *Server) handleBatchCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.batchUC.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	// A stale cached snapshot would keep reporting the old status.
	s.progress.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleBatchShare(w http.ResponseWriter, r *http.Request) {
	token, err := s.batchUC.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"share_token": token})
}

func (s *Server) handleBatchUnshare(w http.ResponseWriter, r *http.Request) {
	if err := s.batchUC.Unshare(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchPreviewRequest struct {
	TargetSubject string              `json:"target_subject"`
	Variations    map[string][]string `json:"variations"`
	Template      string              `json:"template"`
	Count         int                 `json:"count"`
}

// handleBatchPreview returns sample prompts without enqueueing anything,
// so users can sanity-check a variation spec before committing a batch.
func (s *Server) handleBatchPreview(w http.ResponseWriter, r *http.Request) {
	var req batchPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Count <= 0 {
		req.Count = 5
	}
	prompts := s.batchUC.Preview(req.TargetSubject, req.Variations, req.Template, req.Count)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prompts":             prompts,
		"unique_combinations": usecase.EstimateUniqueCombinations(req.Variations),
	})
}
