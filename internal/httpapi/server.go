// Package httpapi wires the record/auth/admin HTTP surface (§6, §10)
// onto chi, sitting alongside the dicomweb proxy mount. Grounded
// structurally on Aureuma-si/apps/ReleaseParty/backend/internal/api's
// Server/Router/writeJSON shape.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/flow"
	"github.com/radionest/clarinet/internal/session"
	"github.com/radionest/clarinet/internal/slicer"
	"github.com/radionest/clarinet/internal/store"
)

// Server holds every component the record/auth/admin routes depend on.
type Server struct {
	db     *store.DB
	auth   *session.Authenticator
	flows  *flow.Engine
	slicer *slicer.Service
	cfg    *config.Config
}

// New constructs a Server. slicerSvc may be nil when no helper script
// was configured; routes that need it return 503 in that case.
func New(db *store.DB, auth *session.Authenticator, flows *flow.Engine, slicerSvc *slicer.Service, cfg *config.Config) *Server {
	return &Server{db: db, auth: auth, flows: flows, slicer: slicerSvc, cfg: cfg}
}

// Router builds the /api router: auth, records, record types, admin.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.With(s.requireAuth).Post("/logout", s.handleLogout)
		r.With(s.requireAuth).Get("/me", s.handleMe)
	})

	r.Route("/records", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/", s.handleListRecords)
		r.Post("/", s.handleCreateRecord)
		r.Patch("/{id}", s.handlePatchRecord)
		r.Post("/{id}/data", s.handleSubmitRecordData)
		r.Post("/{id}/run-slicer", s.handleRunSlicerScript)
		r.Post("/claim", s.handleClaimRecord)

		r.Route("/types", func(r chi.Router) {
			r.Get("/", s.handleListRecordTypes)
			r.Post("/", s.handleCreateRecordType)
			r.Get("/{name}", s.handleGetRecordType)
			r.Patch("/{name}", s.handlePatchRecordType)
			r.Delete("/{name}", s.handleDeleteRecordType)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAuth, s.requireSuperuser)
		r.Get("/stats/status-counts", s.handleStatusCounts)
		r.Get("/stats/per-type-status-counts", s.handlePerTypeStatusCounts)
		r.Get("/stats/per-type-unique-users", s.handlePerTypeUniqueUsers)
		r.Post("/records/bulk-status", s.handleBulkUpdateStatus)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, clarineterr.StatusOf(err), map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return clarineterr.Validationf("invalid JSON body: %v", err)
	}
	return nil
}

func readAll(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, clarineterr.Validationf("invalid request body: %v", err)
	}
	return body, nil
}
