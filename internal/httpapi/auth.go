package httpapi

import (
	"net/http"

	"github.com/radionest/clarinet/internal/clarineterr"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, clarineterr.Validationf("invalid form body"))
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeError(w, clarineterr.Validationf("username and password are required"))
		return
	}

	sess, err := s.auth.Login(r.Context(), username, password, requestIP(r), r.UserAgent())
	if err != nil {
		if kind, _ := clarineterr.KindOf(err); kind == clarineterr.Unauthorized {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeError(w, err)
		return
	}
	s.auth.SetCookie(w, sess)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.auth.CookieName())
	if err == nil {
		_ = s.auth.Logout(r.Context(), cookie.Value)
	}
	s.auth.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// meResponse omits PasswordHash: the full store.User must never cross
// the HTTP boundary as-is.
type meResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	IsActive    bool     `json:"is_active"`
	IsSuperuser bool     `json:"is_superuser"`
	Roles       []string `json:"roles"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		ID: user.ID, Email: user.Email, IsActive: user.IsActive,
		IsSuperuser: user.IsSuperuser, Roles: user.Roles,
	})
}
