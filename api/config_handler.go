package api

import (
	"net/http"
)

// handleConfigKeys returns the masked status of every credential. Keys
// themselves are never returned.
func (s *Server) handleConfigKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusNotFound, "not found", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: s.keys()})
}
