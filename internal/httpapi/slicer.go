package httpapi

import (
	"log"
	"net/http"
	"strconv"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/store"
)

// handleRunSlicerScript drives a record's configured Slicer script
// against the assigned user's per-user Slicer endpoint, templating
// its declared script args against the record's working-folder
// placeholders (§4.A) before injecting them as script-local variables.
func (s *Server) handleRunSlicerScript(w http.ResponseWriter, r *http.Request) {
	if s.slicer == nil {
		writeError(w, clarineterr.ProtocolAssociationf(nil, "slicer helper script not configured on this server"))
		return
	}

	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.db.Records.GetWithRelations(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec.RecordType == nil || rec.RecordType.SlicerScript == nil {
		writeError(w, clarineterr.NotFoundf("record type %s has no script configured", rec.RecordTypeName))
		return
	}
	if rec.UserID == nil {
		writeError(w, clarineterr.Validationf("record has no assigned user"))
		return
	}

	ip, err := s.db.Sessions.MostRecentIPForUser(r.Context(), *rec.UserID)
	if err != nil {
		if kind, _ := clarineterr.KindOf(err); kind == clarineterr.NotFound {
			err = clarineterr.ProtocolAssociationf(err, "no live session addresses a Slicer endpoint for user %s", *rec.UserID)
		}
		writeError(w, err)
		return
	}

	vars := rec.TemplateVars(s.cfg.StoragePath, s.cfg.AnonIDPrefix)
	args := make(map[string]any, len(rec.RecordType.SlicerScriptArgs))
	for k, v := range rec.RecordType.SlicerScriptArgs {
		expanded, missing := store.ExpandTemplate(v, vars)
		if len(missing) > 0 {
			log.Printf("[slicer] record %d: unresolved placeholders in %s: %v", rec.ID, k, missing)
		}
		args[k] = expanded
	}

	baseURL := "http://" + ip + ":" + strconv.Itoa(s.cfg.SlicerPort)
	result, err := s.slicer.Execute(r.Context(), baseURL, *rec.RecordType.SlicerScript, args)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
