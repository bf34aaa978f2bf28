package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// SessionRepo is the repository for access-token sessions. The identity
// cache in the session component (B) sits in front of this and should
// only fall through to it on a cache miss.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new access token.
func (r *SessionRepo) Create(ctx context.Context, s *Session) (*Session, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO accesstoken (token, user_id, created_at, last_access, expires_at, ip_address, user_agent)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.Token, s.UserID, s.CreatedAt, s.LastAccess, s.ExpiresAt, s.IPAddress, s.UserAgent,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	return s, nil
}

// Get fetches a session by its token.
func (r *SessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	s := &Session{}
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, created_at, last_access, expires_at, ip_address, user_agent
		 FROM accesstoken WHERE token = $1`, token,
	).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.LastAccess, &s.ExpiresAt, &s.IPAddress, &s.UserAgent)
	if err != nil {
		return nil, translate(err, "session not found")
	}
	return s, nil
}

// Touch refreshes last_access and, when sliding refresh is enabled,
// extends expires_at to now+ttl.
func (r *SessionRepo) Touch(ctx context.Context, token string, now time.Time, newExpiry *time.Time) error {
	var err error
	if newExpiry != nil {
		_, err = r.pool.Exec(ctx,
			`UPDATE accesstoken SET last_access = $1, expires_at = $2 WHERE token = $3`,
			now, *newExpiry, token,
		)
	} else {
		_, err = r.pool.Exec(ctx, `UPDATE accesstoken SET last_access = $1 WHERE token = $2`, now, token)
	}
	return translate(err, "")
}

// Delete revokes a single session (logout).
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accesstoken WHERE token = $1`, token)
	if err != nil {
		return translate(err, "")
	}
	if tag.RowsAffected() == 0 {
		return clarineterr.NotFoundf("session not found")
	}
	return nil
}

// DeleteAllForUser revokes every session belonging to a user.
func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM accesstoken WHERE user_id = $1`, userID)
	return translate(err, "")
}

// CountForUser reports how many live sessions a user currently holds,
// used to enforce the concurrent-session limit.
func (r *SessionRepo) CountForUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM accesstoken WHERE user_id = $1 AND expires_at > now()`, userID,
	).Scan(&n)
	return n, translate(err, "")
}

// OldestForUser returns the token of the user's least-recently-used
// live session, so the concurrent-session limit can evict it.
func (r *SessionRepo) OldestForUser(ctx context.Context, userID string) (string, error) {
	var token string
	err := r.pool.QueryRow(ctx,
		`SELECT token FROM accesstoken WHERE user_id = $1 AND expires_at > now() ORDER BY last_access ASC LIMIT 1`,
		userID,
	).Scan(&token)
	if err != nil {
		return "", translate(err, "no sessions for user")
	}
	return token, nil
}

// MostRecentIPForUser returns the IP address bound to a user's most
// recently active live session, used to address their per-user Slicer
// endpoint. Returns NotFound if the user has no live session or none
// carries an address.
func (r *SessionRepo) MostRecentIPForUser(ctx context.Context, userID string) (string, error) {
	var ip *string
	err := r.pool.QueryRow(ctx,
		`SELECT ip_address FROM accesstoken
		 WHERE user_id = $1 AND expires_at > now() AND ip_address IS NOT NULL
		 ORDER BY last_access DESC LIMIT 1`,
		userID,
	).Scan(&ip)
	if err != nil {
		return "", translate(err, "no addressable session for user")
	}
	if ip == nil {
		return "", clarineterr.NotFoundf("no addressable session for user")
	}
	return *ip, nil
}

// DeleteExpired removes sessions whose expiry has passed as of cutoff,
// in batches, for use by the session-cleanup sweeper pass.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM accesstoken WHERE token IN (
			SELECT token FROM accesstoken WHERE expires_at < $1 LIMIT $2
		 )`,
		cutoff, batchSize,
	)
	if err != nil {
		return 0, translate(err, "")
	}
	return int(tag.RowsAffected()), nil
}

// DeleteCreatedBefore removes sessions created before cutoff regardless
// of expiry, enforcing the absolute retention window independently of
// expires_at.
func (r *SessionRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM accesstoken WHERE token IN (
			SELECT token FROM accesstoken WHERE created_at < $1 LIMIT $2
		 )`,
		cutoff, batchSize,
	)
	if err != nil {
		return 0, translate(err, "")
	}
	return int(tag.RowsAffected()), nil
}
