// Package store implements the entity store (A): persistent domain
// objects and the higher-level operations the rest of the system needs,
// backed by PostgreSQL via pgx.
package store

import (
	"strconv"
	"time"
)

// RecordLevel is the granularity a RecordType operates at.
type RecordLevel string

const (
	LevelPatient RecordLevel = "PATIENT"
	LevelStudy   RecordLevel = "STUDY"
	LevelSeries  RecordLevel = "SERIES"
)

// RecordStatus is the lifecycle state of a Record.
type RecordStatus string

const (
	StatusPending  RecordStatus = "pending"
	StatusInWork   RecordStatus = "inwork"
	StatusFinished RecordStatus = "finished"
	StatusFailed   RecordStatus = "failed"
	StatusPaused   RecordStatus = "paused"
)

// Patient is the top of the clinical hierarchy.
type Patient struct {
	ID       string  // external identifier, unique
	AutoID   int64   // monotonically assigned
	Name     string
	AnonName *string // unique when set
}

// AnonID derives the anonymized patient identifier.
func (p *Patient) AnonID(prefix string) string {
	return prefix + "_" + strconv.FormatInt(p.AutoID, 10)
}

// Study belongs to a Patient.
type Study struct {
	UID             string // DICOM-formatted, unique
	PatientID       string
	AcquisitionDate time.Time
	AnonUID         *string
}

// Series belongs to a Study.
type Series struct {
	UID         string
	StudyUID    string
	Number      int
	Description *string
	AnonUID     *string
}

// FileSpec names a glob pattern a RecordType expects to find or produce.
type FileSpec struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
}

// RecordType defines a kind of clinical work.
type RecordType struct {
	Name                     string
	Description              string
	Label                    string
	DataSchema               []byte // raw JSON Schema, nullable
	Level                    RecordLevel
	Role                     *string
	MinUsers                 *int
	MaxUsers                 *int
	InputFiles               []FileSpec
	OutputFiles              []FileSpec
	SlicerScript             *string
	SlicerScriptArgs         map[string]string
	SlicerResultValidatorArg map[string]string
}

// Record is a unit of clinical work.
type Record struct {
	ID             int64
	PatientID      string
	StudyUID       *string
	SeriesUID      *string
	RecordTypeName string
	UserID         *string
	Status         RecordStatus
	Data           []byte // raw JSON
	Files          map[string]string
	ContextInfo    *string
	CreatedAt      time.Time
	ChangedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time

	// Populated by read paths that must pre-load relations (A's
	// invariant: lazy loading after the fact is not permitted).
	Patient    *Patient
	Study      *Study
	Series     *Series
	RecordType *RecordType
}

// ValidateLevel enforces the §3 level invariant before a Record may be
// persisted.
func (r *Record) ValidateLevel(level RecordLevel) error {
	switch level {
	case LevelPatient:
		if r.StudyUID != nil || r.SeriesUID != nil {
			return errLevelInvariant("PATIENT-level record must not set study_uid or series_uid")
		}
	case LevelStudy:
		if r.StudyUID == nil {
			return errLevelInvariant("STUDY-level record requires study_uid")
		}
		if r.SeriesUID != nil {
			return errLevelInvariant("STUDY-level record must not set series_uid")
		}
	case LevelSeries:
		if r.StudyUID == nil || r.SeriesUID == nil {
			return errLevelInvariant("SERIES-level record requires study_uid and series_uid")
		}
	}
	return nil
}

// User is an authenticated principal.
type User struct {
	ID           string // uuid
	Email        string // unique, case-insensitive
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	Roles        []string
}

// Role groups users and permitted record types.
type Role struct {
	Name string
}

// Session is an opaque access token.
type Session struct {
	Token      string
	UserID     string
	CreatedAt  time.Time
	LastAccess time.Time
	ExpiresAt  time.Time
	IPAddress  *string
	UserAgent  *string
}
