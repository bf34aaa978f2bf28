package store

import (
	"path/filepath"
	"strings"
)

// WorkingFolder returns the on-disk directory a record's Slicer script
// operates in, rooted at storageRoot and narrowed by the record type's
// level: PATIENT stops at the patient directory, STUDY adds the study
// UID, SERIES goes one level deeper still.
func (rec *Record) WorkingFolder(storageRoot string, level RecordLevel, anonIDPrefix string) string {
	parts := []string{storageRoot, rec.Patient.AnonID(anonIDPrefix)}
	if level == LevelStudy || level == LevelSeries {
		if rec.Study != nil && rec.Study.AnonUID != nil {
			parts = append(parts, *rec.Study.AnonUID)
		}
	}
	if level == LevelSeries {
		if rec.Series != nil && rec.Series.AnonUID != nil {
			parts = append(parts, *rec.Series.AnonUID)
		}
	}
	return filepath.Join(parts...)
}

// TemplateVars builds the placeholder set a Slicer script argument
// template may reference. A placeholder whose value cannot be resolved
// (e.g. study_uid requested on a patient-level record) is omitted
// rather than erroring: the caller logs the gap and leaves the
// template unexpanded, per the documented silent-fallback behavior.
func (rec *Record) TemplateVars(storageRoot, anonIDPrefix string) map[string]string {
	vars := map[string]string{
		"patient_id":            rec.PatientID,
		"clarinet_storage_path": storageRoot,
	}
	if rec.Patient != nil && rec.Patient.AnonName != nil {
		vars["patient_anon_name"] = *rec.Patient.AnonName
	}
	if rec.StudyUID != nil {
		vars["study_uid"] = *rec.StudyUID
	}
	if rec.Study != nil && rec.Study.AnonUID != nil {
		vars["study_anon_uid"] = *rec.Study.AnonUID
	}
	if rec.SeriesUID != nil {
		vars["series_uid"] = *rec.SeriesUID
	}
	if rec.Series != nil && rec.Series.AnonUID != nil {
		vars["series_anon_uid"] = *rec.Series.AnonUID
	}
	if rec.UserID != nil {
		vars["user_id"] = *rec.UserID
	}
	return vars
}

// ExpandTemplate substitutes every `{key}` placeholder in s with vars,
// leaving any placeholder with no matching key untouched in the
// output, surfaced to the caller via missing for logging.
func ExpandTemplate(s string, vars map[string]string) (expanded string, missing []string) {
	out := s
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	for _, key := range []string{
		"patient_id", "patient_anon_name", "study_uid", "study_anon_uid",
		"series_uid", "series_anon_uid", "user_id", "clarinet_storage_path",
	} {
		placeholder := "{" + key + "}"
		if strings.Contains(out, placeholder) {
			missing = append(missing, key)
		}
	}
	return out, missing
}
