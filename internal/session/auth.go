// Package session implements the cookie-backed session authenticator
// (component B): login, per-request validation against an in-memory
// identity cache, and the optional sliding-refresh / idle-timeout / IP
// binding / concurrent-session-limit features.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/config"
	"github.com/radionest/clarinet/internal/store"
	"github.com/radionest/clarinet/internal/ttlru"
)

// Identity is what the cache stores per token: the user plus the bits
// of the originating session needed to re-check idle/IP rules without a
// DB round trip.
type Identity struct {
	User    *store.User
	Session *store.Session
}

// Authenticator is the session component (B).
type Authenticator struct {
	db    *store.DB
	cfg   *config.Config
	cache *ttlru.Cache[string, Identity]
}

// New constructs an Authenticator. A cache TTL of 0 disables caching
// entirely: Validate always falls through to the store.
func New(db *store.DB, cfg *config.Config) *Authenticator {
	ttl := time.Duration(cfg.SessionCacheTTLSeconds) * time.Second
	return &Authenticator{
		db:    db,
		cfg:   cfg,
		cache: ttlru.New[string, Identity](cfg.SessionCacheMaxEntries, ttl),
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16) // 128 bits
	if _, err := rand.Read(buf); err != nil {
		return "", clarineterr.Internalf(err, "generate session token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Login verifies credentials and creates a new session. When the
// concurrent-session limit is configured and already reached, the
// oldest live session for the user is evicted first.
func (a *Authenticator) Login(ctx context.Context, email, password, ip, userAgent string) (*store.Session, error) {
	u, err := a.db.Users.GetByEmail(ctx, email)
	if err != nil {
		return nil, clarineterr.Unauthorizedf("invalid credentials")
	}
	if !u.IsActive {
		return nil, clarineterr.Forbiddenf("account is disabled")
	}
	if !store.CheckPassword(u.PasswordHash, password) {
		return nil, clarineterr.Unauthorizedf("invalid credentials")
	}

	if a.cfg.SessionConcurrentLimit > 0 {
		count, err := a.db.Sessions.CountForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if count >= a.cfg.SessionConcurrentLimit {
			oldest, err := a.db.Sessions.OldestForUser(ctx, u.ID)
			if err == nil {
				a.cache.Delete(oldest)
				_ = a.db.Sessions.Delete(ctx, oldest)
			}
		}
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &store.Session{
		Token:      token,
		UserID:     u.ID,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(time.Duration(a.cfg.SessionExpireHours) * time.Hour),
	}
	if ip != "" {
		sess.IPAddress = &ip
	}
	if userAgent != "" {
		sess.UserAgent = &userAgent
	}
	if _, err := a.db.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	a.cache.Put(token, Identity{User: u, Session: sess})
	return sess, nil
}

// Validate resolves a cookie token to a user, enforcing all of §4.B's
// cache-invalidation rules. requestIP is only consulted when IP binding
// is enabled in configuration.
func (a *Authenticator) Validate(ctx context.Context, token, requestIP string) (*store.User, error) {
	if token == "" {
		return nil, clarineterr.Unauthorizedf("missing session token")
	}

	cacheEnabled := a.cfg.SessionCacheTTLSeconds > 0
	var id Identity
	var hit bool
	if cacheEnabled {
		id, hit = a.cache.Get(token)
	}
	if !hit {
		sess, err := a.db.Sessions.Get(ctx, token)
		if err != nil {
			return nil, clarineterr.Unauthorizedf("invalid session")
		}
		u, err := a.db.Users.Get(ctx, sess.UserID)
		if err != nil {
			return nil, clarineterr.Unauthorizedf("invalid session")
		}
		id = Identity{User: u, Session: sess}
	}

	now := time.Now()

	if now.After(id.Session.ExpiresAt) {
		a.cache.Delete(token)
		_ = a.db.Sessions.Delete(ctx, token)
		return nil, clarineterr.Unauthorizedf("session expired")
	}
	if !id.User.IsActive {
		a.cache.Delete(token)
		_ = a.db.Sessions.Delete(ctx, token)
		return nil, clarineterr.Forbiddenf("account is disabled")
	}
	if a.cfg.SessionIdleTimeoutMinutes > 0 {
		idle := now.Sub(id.Session.LastAccess)
		if idle > time.Duration(a.cfg.SessionIdleTimeoutMinutes)*time.Minute {
			a.cache.Delete(token)
			_ = a.db.Sessions.Delete(ctx, token)
			return nil, clarineterr.Unauthorizedf("session idle too long")
		}
	}
	if a.cfg.SessionIPCheck && id.Session.IPAddress != nil && requestIP != "" && *id.Session.IPAddress != requestIP {
		return nil, clarineterr.Forbiddenf("session bound to a different address")
	}

	var newExpiry *time.Time
	if a.cfg.SessionSlidingRefresh {
		total := time.Duration(a.cfg.SessionExpireHours) * time.Hour
		elapsed := now.Sub(id.Session.CreatedAt)
		if total > 0 && elapsed > total/2 {
			extended := now.Add(total)
			newExpiry = &extended
			id.Session.ExpiresAt = extended
		}
	}
	id.Session.LastAccess = now
	if err := a.db.Sessions.Touch(ctx, token, now, newExpiry); err != nil {
		return nil, err
	}
	if cacheEnabled {
		a.cache.Put(token, id)
	}
	return id.User, nil
}

// Logout destroys a session in both the cache and the store.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	a.cache.Delete(token)
	return a.db.Sessions.Delete(ctx, token)
}

// CookieName returns the configured session cookie name.
func (a *Authenticator) CookieName() string { return a.cfg.CookieName }

// SetCookie writes the session cookie for a freshly created session.
func (a *Authenticator) SetCookie(w http.ResponseWriter, sess *store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   !a.cfg.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on logout.
func (a *Authenticator) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !a.cfg.Debug,
		SameSite: http.SameSiteLaxMode,
	})
}
