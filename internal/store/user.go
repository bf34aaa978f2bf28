package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// UserRepo is the repository for User aggregates.
type UserRepo struct {
	pool *pgxpool.Pool
}

// HashPassword bcrypt-hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", clarineterr.Internalf(err, "hash password")
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches a stored bcrypt hash.
func CheckPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Create inserts a new user. Password must already be hashed; callers
// use HashPassword before calling this, keeping the repository free of
// policy about cost factors.
func (r *UserRepo) Create(ctx context.Context, u *User) (*User, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO "user" (id, email, password_hash, is_active, is_superuser) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.IsActive, u.IsSuperuser,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	if len(u.Roles) > 0 {
		if err := r.setRoles(ctx, u.ID, u.Roles); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Get fetches a user by id, with roles loaded.
func (r *UserRepo) Get(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, is_active, is_superuser FROM "user" WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser)
	if err != nil {
		return nil, translate(err, "user "+id+" not found")
	}
	roles, err := r.roles(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

// GetByEmail looks up a user by email, case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, is_active, is_superuser FROM "user" WHERE email = $1`,
		strings.ToLower(email),
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser)
	if err != nil {
		return nil, translate(err, "user with email "+email+" not found")
	}
	roles, err := r.roles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return u, nil
}

// SetActive toggles a user's active flag, used to revoke access without
// deleting the account.
func (r *UserRepo) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE "user" SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return translate(err, "")
	}
	if tag.RowsAffected() == 0 {
		return clarineterr.NotFoundf("user %s not found", id)
	}
	return nil
}

// AssignRoles replaces a user's role set.
func (r *UserRepo) AssignRoles(ctx context.Context, userID string, roles []string) error {
	return r.setRoles(ctx, userID, roles)
}

func (r *UserRepo) setRoles(ctx context.Context, userID string, roles []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return translate(err, "")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM userroleslink WHERE user_id = $1`, userID); err != nil {
		return translate(err, "")
	}
	for _, role := range roles {
		if _, err := tx.Exec(ctx,
			`INSERT INTO userrole (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, role,
		); err != nil {
			return translate(err, "")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO userroleslink (user_id, role_name) VALUES ($1, $2)`, userID, role,
		); err != nil {
			return translate(err, "")
		}
	}
	return tx.Commit(ctx)
}

func (r *UserRepo) roles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_name FROM userroleslink WHERE user_id = $1 ORDER BY role_name`, userID,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// List returns every user.
func (r *UserRepo) List(ctx context.Context) ([]*User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, email, password_hash, is_active, is_superuser FROM "user" ORDER BY email`)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsSuperuser); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
