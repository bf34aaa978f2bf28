package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// PatientRepo is the repository for Patient aggregates.
type PatientRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new patient and returns it with its assigned auto_id.
func (r *PatientRepo) Create(ctx context.Context, p *Patient) (*Patient, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO patient (id, name, anon_name) VALUES ($1, $2, $3)
		 RETURNING auto_id`,
		p.ID, p.Name, p.AnonName,
	)
	if err := row.Scan(&p.AutoID); err != nil {
		return nil, translate(err, "")
	}
	return p, nil
}

// Get fetches a patient by external identifier.
func (r *PatientRepo) Get(ctx context.Context, id string) (*Patient, error) {
	p := &Patient{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, auto_id, name, anon_name FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.AutoID, &p.Name, &p.AnonName)
	if err != nil {
		return nil, translate(err, "patient "+id+" not found")
	}
	return p, nil
}

// GetByAutoID resolves the anonymized id pattern `<prefix>_<auto_id>`.
func (r *PatientRepo) GetByAnonID(ctx context.Context, anonID string) (*Patient, error) {
	idx := strings.LastIndex(anonID, "_")
	if idx < 0 {
		return nil, clarineterr.Validationf("malformed anon patient id %q", anonID)
	}
	autoID, err := strconv.ParseInt(anonID[idx+1:], 10, 64)
	if err != nil {
		return nil, clarineterr.Validationf("malformed anon patient id %q", anonID)
	}
	p := &Patient{}
	dberr := r.pool.QueryRow(ctx,
		`SELECT id, auto_id, name, anon_name FROM patient WHERE auto_id = $1`, autoID,
	).Scan(&p.ID, &p.AutoID, &p.Name, &p.AnonName)
	if dberr != nil {
		return nil, translate(dberr, "patient with anon id "+anonID+" not found")
	}
	return p, nil
}

// List returns patients in auto_id order.
func (r *PatientRepo) List(ctx context.Context, skip, limit int) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, auto_id, name, anon_name FROM patient ORDER BY auto_id OFFSET $1 LIMIT $2`,
		skip, limit,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p := &Patient{}
		if err := rows.Scan(&p.ID, &p.AutoID, &p.Name, &p.AnonName); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
