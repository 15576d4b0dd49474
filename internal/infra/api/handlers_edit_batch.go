package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mayagen/internal/domain"
	"mayagen/internal/usecase"
)

// handleEditBatchCreate accepts a multipart form: an "image" file plus the
// batch fields as form values. The source image is stored once and shared
// by every child job.
func (s *Server) handleEditBatchCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit)
	if err := r.ParseMultipartForm(s.bodyLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image file")
		return
	}

	uid := userID(r)
	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." {
		filename = "input.png"
	}
	inputPath, err := s.store.SaveInput(uid, filename, data)
	if err != nil {
		s.log.Error().Err(err).Msg("could not store input image")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	params, err := editBatchParamsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params.InputImagePath = inputPath
	params.UserID = uid
	s.applyDefaults(&params.Provider, &params.Model, &params.Width, &params.Height)

	batch, err := s.editUC.Create(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEditBatchView(batch))
}

func editBatchParamsFromForm(r *http.Request) (usecase.CreateEditBatchParams, error) {
	p := usecase.CreateEditBatchParams{
		Name:          r.FormValue("name"),
		TargetSubject: r.FormValue("target_subject"),
		Template:      r.FormValue("template"),
		Model:         r.FormValue("model"),
		Provider:      r.FormValue("provider"),
	}
	p.TotalVariations, _ = strconv.Atoi(r.FormValue("total_variations"))
	p.Width, _ = strconv.Atoi(r.FormValue("width"))
	p.Height, _ = strconv.Atoi(r.FormValue("height"))
	p.IsPublic, _ = strconv.ParseBool(r.FormValue("is_public"))

	if raw := r.FormValue("prompts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Prompts); err != nil {
			return p, errors.New("prompts must be a JSON string array")
		}
	}
	if raw := r.FormValue("variations"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Variations); err != nil {
			return p, errors.New("variations must be a JSON object of string arrays")
		}
	}
	return p, nil
}

func (s *Server) handleEditBatchList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	batches, err := s.editUC.List(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]editBatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, toEditBatchView(b))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleEditBatchGet(w http.ResponseWriter, r *http.Request) {
	batch, err := s.editUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditBatchView(batch))
}

func (s *Server) handleEditBatchProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.progress.EditBatchSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleEditBatchJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.editUC.Jobs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobViews(jobs))
}

func (s *Server) handleEditBatchCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.editUC.Cancel(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.progress.Invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleEditBatchShare(w http.ResponseWriter, r *http.Request) {
	token, err := s.editUC.Share(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"share_token": token})
}

func (s *Server) handleEditBatchUnshare(w http.ResponseWriter, r *http.Request) {
	if err := s.editUC.Unshare(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShared resolves a share token to its batch, trying regular batches
// first, then edit batches. No authentication: the token is the capability.
func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if batch, err := s.batchUC.GetShared(r.Context(), token); err == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"type":  "batch",
			"batch": toBatchView(batch),
		})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		writeDomainError(w, err)
		return
	}

	batch, err := s.editUC.GetShared(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":  "edit_batch",
		"batch": toEditBatchView(batch),
	})
}

func (s *Server) handleSharedJobs(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if batch, err := s.batchUC.GetShared(r.Context(), token); err == nil {
		jobs, err := s.batchUC.Jobs(r.Context(), batch.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toJobViews(jobs))
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		writeDomainError(w, err)
		return
	}

	batch, err := s.editUC.GetShared(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	jobs, err := s.editUC.Jobs(r.Context(), batch.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobViews(jobs))
}
