package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/session"
)

func TestRequireAuthRejectsMissingCookie(t *testing.T) {
	cfg := config.DefaultConfig()
	auth := session.New(nil, &cfg)
	srv := New(nil, auth, nil, nil, &cfg)

	called := false
	handler := srv.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.False(t, called, "handler must not run without a valid session")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSuperuserRejectsNonSuperuserContext(t *testing.T) {
	cfg := config.DefaultConfig()
	auth := session.New(nil, &cfg)
	srv := New(nil, auth, nil, nil, &cfg)

	handler := srv.requireSuperuser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without superuser context")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/stats/status-counts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
