package api

import "net/http"

func (s *Server) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobUC.QueueSnapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make(map[string]int, len(counts))
	for status, n := range counts {
		out[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue": out})
}

// handleAdminRecover triggers a stale-work sweep. Safe while dispatchers
// are running: rows updated within the grace period keep their claim.
func (s *Server) handleAdminRecover(w http.ResponseWriter, r *http.Request) {
	if err := s.sweep.RunStale(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("manual recovery sweep failed")
		writeError(w, http.StatusInternalServerError, "recovery sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
