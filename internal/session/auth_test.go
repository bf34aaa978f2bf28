package session

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/store"
)

func TestNewTokenProducesURLSafeBase64OfExpectedLength(t *testing.T) {
	tok, err := newToken()
	require.NoError(t, err)
	// 16 raw bytes, base64 raw-url-encoded (no padding) -> ceil(16*8/6) = 22 chars.
	require.Len(t, tok, 22)
}

func TestNewTokenProducesDistinctValues(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestCookieNameReflectsConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CookieName = "clarinet_session"
	auth := New(nil, &cfg)
	require.Equal(t, "clarinet_session", auth.CookieName())
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	cfg := config.DefaultConfig()
	auth := New(nil, &cfg)
	_, err := auth.Validate(context.Background(), "", "127.0.0.1")
	require.Error(t, err)
}

func TestSetCookieWritesHttpOnlySecureCookie(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CookieName = "clarinet_session"
	cfg.Debug = false
	auth := New(nil, &cfg)

	sess := &store.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	rec := httptest.NewRecorder()
	auth.SetCookie(rec, sess)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "clarinet_session", c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, "/", c.Path)
}

func TestSetCookieIsNotSecureInDebugMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Debug = true
	auth := New(nil, &cfg)

	sess := &store.Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	rec := httptest.NewRecorder()
	auth.SetCookie(rec, sess)

	require.False(t, rec.Result().Cookies()[0].Secure)
}

func TestClearCookieExpiresImmediately(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.CookieName = "clarinet_session"
	auth := New(nil, &cfg)

	rec := httptest.NewRecorder()
	auth.ClearCookie(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "clarinet_session", cookies[0].Name)
	require.Equal(t, -1, cookies[0].MaxAge)
}
