package store

import (
	"context"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

var studyUIDPattern = regexp.MustCompile(`^[0-9.]{5,64}$`)

// ValidateStudyUID enforces the DICOM-formatted UID shape from §3.
func ValidateStudyUID(uid string) error {
	if !studyUIDPattern.MatchString(uid) {
		return clarineterr.Validationf("study_uid %q is not a valid DICOM UID (digits and dots, 5..64 chars)", uid)
	}
	return nil
}

// StudyRepo is the repository for Study aggregates.
type StudyRepo struct {
	pool *pgxpool.Pool
}

// Create inserts a new study under a patient.
func (r *StudyRepo) Create(ctx context.Context, s *Study) (*Study, error) {
	if err := ValidateStudyUID(s.UID); err != nil {
		return nil, err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO study (uid, patient_id, acquisition_date, anon_uid) VALUES ($1, $2, $3, $4)`,
		s.UID, s.PatientID, s.AcquisitionDate, s.AnonUID,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	return s, nil
}

// Get fetches a study by UID.
func (r *StudyRepo) Get(ctx context.Context, uid string) (*Study, error) {
	s := &Study{}
	err := r.pool.QueryRow(ctx,
		`SELECT uid, patient_id, acquisition_date, anon_uid FROM study WHERE uid = $1`, uid,
	).Scan(&s.UID, &s.PatientID, &s.AcquisitionDate, &s.AnonUID)
	if err != nil {
		return nil, translate(err, "study "+uid+" not found")
	}
	return s, nil
}

// ListByPatient returns all studies owned by a patient.
func (r *StudyRepo) ListByPatient(ctx context.Context, patientID string) ([]*Study, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT uid, patient_id, acquisition_date, anon_uid FROM study WHERE patient_id = $1`,
		patientID,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []*Study
	for rows.Next() {
		s := &Study{}
		if err := rows.Scan(&s.UID, &s.PatientID, &s.AcquisitionDate, &s.AnonUID); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete cascade-deletes a study's series and records (via FK ON DELETE
// CASCADE).
func (r *StudyRepo) Delete(ctx context.Context, uid string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM study WHERE uid = $1`, uid)
	if err != nil {
		return translate(err, "")
	}
	if tag.RowsAffected() == 0 {
		return clarineterr.NotFoundf("study %s not found", uid)
	}
	return nil
}
