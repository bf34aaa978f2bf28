package httpapi

import (
	"net/http"

	"github.com/radionest/clarinet/internal/store"
)

func (s *Server) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Records.GetStatusCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handlePerTypeStatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Records.GetPerTypeStatusCounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handlePerTypeUniqueUsers(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Records.GetPerTypeUniqueUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type bulkUpdateStatusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

func (s *Server) handleBulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := s.db.Records.BulkUpdateStatus(r.Context(), req.IDs, store.RecordStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}
