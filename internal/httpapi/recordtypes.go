package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/store"
)

func (s *Server) handleListRecordTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.db.RecordTypes.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleGetRecordType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rt, err := s.db.RecordTypes.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

type recordTypeRequest struct {
	Description              string            `json:"description"`
	Label                    string            `json:"label"`
	DataSchema               json.RawMessage   `json:"data_schema"`
	Level                    store.RecordLevel `json:"level"`
	Role                     *string           `json:"role"`
	MinUsers                 *int              `json:"min_users"`
	MaxUsers                 *int              `json:"max_users"`
	InputFiles               []store.FileSpec  `json:"input_files"`
	OutputFiles              []store.FileSpec  `json:"output_files"`
	SlicerScript             *string           `json:"slicer_script"`
	SlicerScriptArgs         map[string]string `json:"slicer_script_args"`
	SlicerResultValidatorArg map[string]string `json:"slicer_result_validator_args"`
}

func (s *Server) handleCreateRecordType(w http.ResponseWriter, r *http.Request) {
	var req recordTypeRequest
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, clarineterr.Validationf("name query parameter is required"))
		return
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rt := &store.RecordType{
		Name: name, Description: req.Description, Label: req.Label,
		DataSchema: req.DataSchema, Level: req.Level, Role: req.Role,
		MinUsers: req.MinUsers, MaxUsers: req.MaxUsers,
		InputFiles: req.InputFiles, OutputFiles: req.OutputFiles,
		SlicerScript: req.SlicerScript, SlicerScriptArgs: req.SlicerScriptArgs,
		SlicerResultValidatorArg: req.SlicerResultValidatorArg,
	}
	created, err := s.db.RecordTypes.Create(r.Context(), rt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// patchRecordTypeRequest mirrors the PATCH endpoint's documented
// contract (§6): data_schema, slicer_script_args, and
// slicer_result_validator_args arrive as JSON-encoded strings and must
// be parsed server-side, with malformed JSON rejected as 422.
type patchRecordTypeRequest struct {
	Description               *string `json:"description"`
	Label                     *string `json:"label"`
	DataSchema                *string `json:"data_schema"`
	Role                      *string `json:"role"`
	MinUsers                  *int    `json:"min_users"`
	MaxUsers                  *int    `json:"max_users"`
	SlicerScript              *string `json:"slicer_script"`
	SlicerScriptArgs          *string `json:"slicer_script_args"`
	SlicerResultValidatorArgs *string `json:"slicer_result_validator_args"`
}

func (s *Server) handlePatchRecordType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	existing, err := s.db.RecordTypes.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	var req patchRecordTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.Label != nil {
		existing.Label = *req.Label
	}
	if req.Role != nil {
		existing.Role = req.Role
	}
	if req.MinUsers != nil {
		existing.MinUsers = req.MinUsers
	}
	if req.MaxUsers != nil {
		existing.MaxUsers = req.MaxUsers
	}
	if req.SlicerScript != nil {
		existing.SlicerScript = req.SlicerScript
	}
	if req.DataSchema != nil {
		if _, err := store.ValidateSchema([]byte(*req.DataSchema)); err != nil {
			writeError(w, err)
			return
		}
		existing.DataSchema = []byte(*req.DataSchema)
	}
	if req.SlicerScriptArgs != nil {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(*req.SlicerScriptArgs), &parsed); err != nil {
			writeError(w, clarineterr.Validationf("invalid JSON for slicer_script_args: %v", err))
			return
		}
		existing.SlicerScriptArgs = parsed
	}
	if req.SlicerResultValidatorArgs != nil {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(*req.SlicerResultValidatorArgs), &parsed); err != nil {
			writeError(w, clarineterr.Validationf("invalid JSON for slicer_result_validator_args: %v", err))
			return
		}
		existing.SlicerResultValidatorArg = parsed
	}

	updated, err := s.db.RecordTypes.Update(r.Context(), existing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRecordType(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.db.RecordTypes.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
