package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/store"
)

func parseRecordID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, clarineterr.Validationf("invalid record id")
	}
	return id, nil
}

// criteriaFromQuery maps the record-listing query parameters onto
// store.RecordSearchCriteria, mirroring the original's find_by_criteria
// query surface (§4.A).
func criteriaFromQuery(q map[string][]string) store.RecordSearchCriteria {
	get := func(key string) *string {
		if vs, ok := q[key]; ok && len(vs) > 0 && vs[0] != "" {
			v := vs[0]
			return &v
		}
		return nil
	}
	var c store.RecordSearchCriteria
	c.PatientID = get("patient_id")
	c.PatientAnonID = get("patient_anon_id")
	c.StudyUID = get("study_uid")
	c.AnonStudyUID = get("anon_study_uid")
	c.SeriesUID = get("series_uid")
	c.AnonSeriesUID = get("anon_series_uid")
	c.UserID = get("user_id")
	c.RecordTypeName = get("record_type_name")
	if v := get("status"); v != nil {
		s := store.RecordStatus(*v)
		c.Status = &s
	}
	if v := get("wo_user"); v != nil {
		b := *v == "true" || *v == "1"
		c.WoUser = &b
	}
	if v := get("skip"); v != nil {
		if n, err := strconv.Atoi(*v); err == nil {
			c.Skip = n
		}
	}
	if v := get("limit"); v != nil {
		if n, err := strconv.Atoi(*v); err == nil {
			c.Limit = n
		}
	}
	return c
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	criteria := criteriaFromQuery(r.URL.Query())
	records, err := s.db.Records.FindByCriteria(r.Context(), criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type createRecordRequest struct {
	PatientID      string          `json:"patient_id"`
	StudyUID       *string         `json:"study_uid"`
	SeriesUID      *string         `json:"series_uid"`
	RecordTypeName string          `json:"record_type_name"`
	UserID         *string         `json:"user_id"`
	Data           json.RawMessage `json:"data"`
	ContextInfo    *string         `json:"context_info"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rt, err := s.db.RecordTypes.Get(r.Context(), req.RecordTypeName)
	if err != nil {
		writeError(w, err)
		return
	}

	rec := &store.Record{
		PatientID:      req.PatientID,
		StudyUID:       req.StudyUID,
		SeriesUID:      req.SeriesUID,
		RecordTypeName: req.RecordTypeName,
		UserID:         req.UserID,
		ContextInfo:    req.ContextInfo,
	}
	if len(req.Data) > 0 {
		rec.Data = req.Data
	}
	if err := store.ValidatePayload(rt, rec.Data); err != nil && len(rec.Data) > 0 {
		writeError(w, err)
		return
	}

	if err := s.db.Records.CheckConstraints(r.Context(), req.RecordTypeName, rec); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.db.Records.CreateWithRelations(r.Context(), rec, rt.Level)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.flows != nil {
		s.flows.HandleRecordStatusChange(r.Context(), created, "")
	}
	writeJSON(w, http.StatusCreated, created)
}

type patchRecordRequest struct {
	Status *store.RecordStatus `json:"status"`
}

func (s *Server) handlePatchRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req patchRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status == nil {
		writeError(w, clarineterr.Validationf("status is required"))
		return
	}

	updated, old, err := s.db.Records.UpdateStatus(r.Context(), id, *req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.flows != nil {
		s.flows.HandleRecordStatusChange(r.Context(), updated, old)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSubmitRecordData(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := readAll(r)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := s.db.Records.UpdateData(r.Context(), id, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type claimRecordRequest struct {
	RecordTypeName string `json:"record_type_name"`
}

func (s *Server) handleClaimRecord(w http.ResponseWriter, r *http.Request) {
	var req claimRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	user := userFromContext(r.Context())
	criteria := store.RecordSearchCriteria{
		RecordTypeName: &req.RecordTypeName,
		Status:         statusPtr(store.StatusPending),
	}
	claimed, err := s.db.Records.ClaimRecord(r.Context(), criteria, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.flows != nil {
		s.flows.HandleRecordStatusChange(r.Context(), claimed, store.StatusPending)
	}
	writeJSON(w, http.StatusOK, claimed)
}

func statusPtr(s store.RecordStatus) *store.RecordStatus { return &s }
