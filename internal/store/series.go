package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// SeriesRepo is the repository for Series aggregates.
type SeriesRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new series under a study.
func (r *SeriesRepo) Create(ctx context.Context, s *Series) (*Series, error) {
	if s.Number < 1 || s.Number > 99999 {
		return nil, clarineterr.Validationf("series number %d out of range 1..99999", s.Number)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO series (uid, study_uid, number, description, anon_uid) VALUES ($1, $2, $3, $4, $5)`,
		s.UID, s.StudyUID, s.Number, s.Description, s.AnonUID,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	return s, nil
}

// Get fetches a series by UID.
func (r *SeriesRepo) Get(ctx context.Context, uid string) (*Series, error) {
	s := &Series{}
	err := r.pool.QueryRow(ctx,
		`SELECT uid, study_uid, number, description, anon_uid FROM series WHERE uid = $1`, uid,
	).Scan(&s.UID, &s.StudyUID, &s.Number, &s.Description, &s.AnonUID)
	if err != nil {
		return nil, translate(err, "series "+uid+" not found")
	}
	return s, nil
}

// ListByStudy returns all series owned by a study.
func (r *SeriesRepo) ListByStudy(ctx context.Context, studyUID string) ([]*Series, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uid, study_uid, number, description, anon_uid FROM series WHERE study_uid = $1 ORDER BY number`,
		studyUID,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []*Series
	for rows.Next() {
		s := &Series{}
		if err := rows.Scan(&s.UID, &s.StudyUID, &s.Number, &s.Description, &s.AnonUID); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
