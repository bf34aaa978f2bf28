package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/store"
)

type ctxKey int

const userCtxKey ctxKey = 0

func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requireAuth validates the session cookie and attaches the resolved
// user to the request context, or writes a 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.auth.CookieName())
		token := ""
		if err == nil {
			token = cookie.Value
		}
		user, err := s.auth.Validate(r.Context(), token, requestIP(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSuperuser gates admin routes; must run after requireAuth.
func (s *Server) requireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || !user.IsSuperuser {
			writeError(w, clarineterr.Forbiddenf("superuser access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(userCtxKey).(*store.User)
	return u
}
