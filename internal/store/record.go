package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// RecordRepo is the repository for Record aggregates, the busiest
// component of the entity store: almost every flow and DICOMweb
// operation in the system eventually reads or writes through it.
type RecordRepo struct {
	pool *pgxpool.Pool
	db   *DB // back-reference: relation loading spans multiple repos
}

// comparisonOp is a supported operator for data-column queries
// (Record.data->key <op> value).
type comparisonOp string

const (
	OpEq       comparisonOp = "eq"
	OpGT       comparisonOp = "gt"
	OpLT       comparisonOp = "lt"
	OpContains comparisonOp = "contains"
)

// DataQuery filters on a single key inside Record.data.
type DataQuery struct {
	Key   string
	Op    comparisonOp
	Value string
}

// RecordSearchCriteria mirrors the filter surface the record-listing
// and record-claiming endpoints expose. Every field is optional; a zero
// value means "no filter on this dimension" except where a tri-state
// pointer is documented otherwise.
type RecordSearchCriteria struct {
	PatientID      *string
	PatientAnonID  *string
	SeriesUID      *string
	AnonSeriesUID  *string
	StudyUID       *string
	AnonStudyUID   *string
	UserID         *string
	RecordTypeName *string
	Status         *RecordStatus

	// WoUser is a tri-state filter: nil means "no filter", true means
	// "user_id IS NULL", false means "user_id IS NOT NULL". Matches the
	// `wo_user: bool | None` semantics of the original repository
	// exactly (resolves the open question in SPEC_FULL.md §9).
	WoUser *bool

	RandomOne bool
	DataQuery []DataQuery

	Skip  int
	Limit int
}

// anonUIDFilter renders the tri-state sentinel semantics used by
// anon_study_uid / anon_series_uid filters: unset means no filter,
// "Null" means IS NULL, "*" means IS NOT NULL, anything else is an
// exact match. Ported from _apply_anon_uid_filter.
func anonUIDFilter(column string, value *string, args *[]any) string {
	if value == nil {
		return ""
	}
	switch *value {
	case "Null":
		return fmt.Sprintf(" AND %s IS NULL", column)
	case "*":
		return fmt.Sprintf(" AND %s IS NOT NULL", column)
	default:
		*args = append(*args, *value)
		return fmt.Sprintf(" AND %s = $%d", column, len(*args))
	}
}

func dataQuerySQL(q DataQuery, args *[]any) (string, error) {
	var op string
	switch q.Op {
	case OpEq:
		op = "="
	case OpGT:
		op = ">"
	case OpLT:
		op = "<"
	case OpContains:
		op = "LIKE"
	default:
		return "", clarineterr.Validationf("unsupported data query operator %q", q.Op)
	}
	*args = append(*args, q.Key)
	keyIdx := len(*args)
	if q.Op == OpContains {
		*args = append(*args, "%"+q.Value+"%")
	} else {
		*args = append(*args, q.Value)
	}
	valIdx := len(*args)
	return fmt.Sprintf(" AND (data->>$%d) %s $%d", keyIdx, op, valIdx), nil
}

// parseAnonPatientID extracts the trailing auto_id integer from an
// anonymized patient id of the form "<prefix>_<n>" (e.g. "CLN_7" ->
// 7), matching _apply_anon_uid_filter's sibling in the original
// repository: split on "_", parse the trailing integer, match against
// Patient.auto_id.
func parseAnonPatientID(anonID string) (int64, error) {
	idx := strings.LastIndex(anonID, "_")
	if idx < 0 || idx == len(anonID)-1 {
		return 0, clarineterr.Validationf("invalid anonymized patient id %q", anonID)
	}
	n, err := strconv.ParseInt(anonID[idx+1:], 10, 64)
	if err != nil {
		return 0, clarineterr.Validationf("invalid anonymized patient id %q", anonID)
	}
	return n, nil
}

func (c RecordSearchCriteria) buildWhere() (string, []any, error) {
	var where strings.Builder
	var args []any
	where.WriteString(" WHERE 1=1")

	if c.PatientID != nil {
		args = append(args, *c.PatientID)
		fmt.Fprintf(&where, " AND patient_id = $%d", len(args))
	}
	if c.PatientAnonID != nil {
		autoID, err := parseAnonPatientID(*c.PatientAnonID)
		if err != nil {
			return "", nil, err
		}
		args = append(args, autoID)
		fmt.Fprintf(&where, " AND patient_id IN (SELECT id FROM patient WHERE auto_id = $%d)", len(args))
	}
	if c.StudyUID != nil {
		args = append(args, *c.StudyUID)
		fmt.Fprintf(&where, " AND study_uid = $%d", len(args))
	}
	if c.SeriesUID != nil {
		args = append(args, *c.SeriesUID)
		fmt.Fprintf(&where, " AND series_uid = $%d", len(args))
	}
	where.WriteString(anonUIDFilter("study_uid", c.AnonStudyUID, &args))
	where.WriteString(anonUIDFilter("series_uid", c.AnonSeriesUID, &args))
	if c.UserID != nil {
		args = append(args, *c.UserID)
		fmt.Fprintf(&where, " AND user_id = $%d", len(args))
	}
	if c.RecordTypeName != nil {
		args = append(args, *c.RecordTypeName)
		fmt.Fprintf(&where, " AND record_type_name = $%d", len(args))
	}
	if c.Status != nil {
		args = append(args, string(*c.Status))
		fmt.Fprintf(&where, " AND status = $%d", len(args))
	}
	if c.WoUser != nil {
		if *c.WoUser {
			where.WriteString(" AND user_id IS NULL")
		} else {
			where.WriteString(" AND user_id IS NOT NULL")
		}
	}
	for _, q := range c.DataQuery {
		clause, err := dataQuerySQL(q, &args)
		if err != nil {
			return "", nil, err
		}
		where.WriteString(clause)
	}
	return where.String(), args, nil
}

const recordColumns = `id, patient_id, study_uid, series_uid, record_type_name, user_id, status,
	data, files, context_info, created_at, changed_at, started_at, finished_at`

func scanRecord(row pgx.Row) (*Record, error) {
	r := &Record{}
	var files []byte
	err := row.Scan(&r.ID, &r.PatientID, &r.StudyUID, &r.SeriesUID, &r.RecordTypeName, &r.UserID,
		&r.Status, &r.Data, &files, &r.ContextInfo, &r.CreatedAt, &r.ChangedAt, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal(files, &r.Files)
	return r, nil
}

// Get fetches a bare record by id.
func (r *RecordRepo) Get(ctx context.Context, id int64) (*Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM record WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("record %d not found", id))
	}
	return rec, nil
}

// GetWithRelations fetches a record and eager-loads its patient, study,
// series and record type, mirroring get_with_relations's selectinload
// eager-loading so callers never need to lazy-load afterward.
func (r *RecordRepo) GetWithRelations(ctx context.Context, id int64) (*Record, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.loadRelations(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *RecordRepo) loadRelations(ctx context.Context, rec *Record) error {
	p, err := r.db.Patients.Get(ctx, rec.PatientID)
	if err != nil {
		return err
	}
	rec.Patient = p

	if rec.StudyUID != nil {
		s, err := r.db.Studies.Get(ctx, *rec.StudyUID)
		if err != nil {
			return err
		}
		rec.Study = s
	}
	if rec.SeriesUID != nil {
		s, err := r.db.Series.Get(ctx, *rec.SeriesUID)
		if err != nil {
			return err
		}
		rec.Series = s
	}
	rt, err := r.db.RecordTypes.Get(ctx, rec.RecordTypeName)
	if err != nil {
		return err
	}
	rec.RecordType = rt
	return nil
}

// FindByUser returns every record assigned to a user.
func (r *RecordRepo) FindByUser(ctx context.Context, userID string) ([]*Record, error) {
	return r.FindByCriteria(ctx, RecordSearchCriteria{UserID: &userID, Limit: -1})
}

// FindPendingByUser returns records assigned to a user that are not yet
// in a terminal or paused state.
func (r *RecordRepo) FindPendingByUser(ctx context.Context, userID string) ([]*Record, error) {
	where, args, err := (RecordSearchCriteria{UserID: &userID}).buildWhere()
	if err != nil {
		return nil, err
	}
	where += fmt.Sprintf(" AND status NOT IN ($%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3)
	args = append(args, string(StatusFinished), string(StatusFailed), string(StatusPaused))

	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM record`+where, args...)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()
	return scanRecordRows(rows)
}

func scanRecordRows(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, translate(err, "")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateWithRelations inserts a record after validating its level
// invariant against the owning record type.
func (r *RecordRepo) CreateWithRelations(ctx context.Context, rec *Record, level RecordLevel) (*Record, error) {
	if err := rec.ValidateLevel(level); err != nil {
		return nil, err
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if len(rec.Data) == 0 {
		rec.Data = []byte("{}")
	}
	files, _ := json.Marshal(rec.Files)

	err := r.pool.QueryRow(ctx,
		`INSERT INTO record (patient_id, study_uid, series_uid, record_type_name, user_id, status, data, files, context_info)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING id, created_at, changed_at`,
		rec.PatientID, rec.StudyUID, rec.SeriesUID, rec.RecordTypeName, rec.UserID, rec.Status, rec.Data, files, rec.ContextInfo,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.ChangedAt)
	if err != nil {
		return nil, translate(err, "")
	}
	return rec, nil
}

// UpdateStatus transitions a record's status and returns the record
// alongside its prior status, so callers (the flow engine) can compare
// old vs. new the way handle_record_status_change does.
func (r *RecordRepo) UpdateStatus(ctx context.Context, id int64, status RecordStatus) (*Record, RecordStatus, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	old := rec.Status
	now := time.Now()

	var startedAt, finishedAt any
	startedAt = rec.StartedAt
	finishedAt = rec.FinishedAt
	if status == StatusInWork && rec.StartedAt == nil {
		startedAt = now
	}
	if (status == StatusFinished || status == StatusFailed) && rec.FinishedAt == nil {
		finishedAt = now
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE record SET status = $1, changed_at = $2, started_at = $3, finished_at = $4 WHERE id = $5`,
		status, now, startedAt, finishedAt, id,
	)
	if err != nil {
		return nil, "", translate(err, "")
	}
	rec.Status = status
	rec.ChangedAt = now
	return rec, old, nil
}

// UpdateData replaces a record's data payload, validating it against
// the owning record type's data_schema first.
func (r *RecordRepo) UpdateData(ctx context.Context, id int64, data []byte) (*Record, error) {
	rec, err := r.GetWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ValidatePayload(rec.RecordType, data); err != nil {
		return nil, err
	}
	_, err = r.pool.Exec(ctx, `UPDATE record SET data = $1, changed_at = now() WHERE id = $2`, data, id)
	if err != nil {
		return nil, translate(err, "")
	}
	rec.Data = data
	return rec, nil
}

// SetFiles records the files a record's slicer run produced.
func (r *RecordRepo) SetFiles(ctx context.Context, id int64, files map[string]string) (*Record, error) {
	raw, _ := json.Marshal(files)
	_, err := r.pool.Exec(ctx, `UPDATE record SET files = $1, changed_at = now() WHERE id = $2`, raw, id)
	if err != nil {
		return nil, translate(err, "")
	}
	return r.Get(ctx, id)
}

// AssignUser claims a record for a user, moving it to inwork. Fails if
// the user doesn't exist (a caller bug, not a client error in the
// original, but mapped to NotFound here since there is no distinct
// UserNotFoundError kind worth adding for a single call site).
func (r *RecordRepo) AssignUser(ctx context.Context, id int64, userID string) (*Record, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM "user" WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, translate(err, "")
	}
	if !exists {
		return nil, clarineterr.NotFoundf("user %s not found", userID)
	}
	now := time.Now()
	_, err := r.pool.Exec(ctx,
		`UPDATE record SET user_id = $1, status = $2, changed_at = $3 WHERE id = $4`,
		userID, StatusInWork, now, id,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	return r.Get(ctx, id)
}

// ClaimRecord assigns one pseudo-randomly chosen record matching
// criteria to a user. The lookup, the constraint check and the
// assignment are separate statements, not one transaction. If the
// chosen record fails CheckConstraints, that error is returned and no
// other candidate is tried.
func (r *RecordRepo) ClaimRecord(ctx context.Context, criteria RecordSearchCriteria, userID string) (*Record, error) {
	criteria.RandomOne = true
	candidates, err := r.FindByCriteria(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, clarineterr.NotFoundf("no record available matching criteria")
	}
	if err := r.CheckConstraints(ctx, candidates[0].RecordTypeName, candidates[0]); err != nil {
		return nil, err
	}
	return r.AssignUser(ctx, candidates[0].ID, userID)
}

// BulkUpdateStatus updates status for every id that exists, silently
// skipping ids that don't (matches the original's best-effort
// semantics for admin bulk operations).
func (r *RecordRepo) BulkUpdateStatus(ctx context.Context, ids []int64, status RecordStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE record SET status = $1, changed_at = now() WHERE id = ANY($2)`,
		status, ids,
	)
	if err != nil {
		return 0, translate(err, "")
	}
	return int(tag.RowsAffected()), nil
}

// InvalidateRecord resets or annotates a record in response to a
// downstream failure. mode="hard" resets status to pending; mode="soft"
// only appends reason to context_info. Neither mode touches user_id —
// this matches the original repository's invalidate_record exactly and
// resolves the open question in SPEC_FULL.md §9: re-assignment after
// invalidation is a separate, explicit operation.
func (r *RecordRepo) InvalidateRecord(ctx context.Context, id int64, mode string, reason *string, sourceRecordID int64) (*Record, error) {
	msg := ""
	if reason != nil {
		msg = *reason
	} else {
		msg = fmt.Sprintf("Invalidated by record #%d", sourceRecordID)
	}

	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var context string
	if rec.ContextInfo != nil {
		context = *rec.ContextInfo + "\n" + msg
	} else {
		context = msg
	}

	switch mode {
	case "hard":
		_, err = r.pool.Exec(ctx,
			`UPDATE record SET status = $1, context_info = $2, changed_at = now() WHERE id = $3`,
			StatusPending, context, id,
		)
	case "soft":
		_, err = r.pool.Exec(ctx,
			`UPDATE record SET context_info = $1, changed_at = now() WHERE id = $2`,
			context, id,
		)
	default:
		return nil, clarineterr.Validationf("unknown invalidate mode %q", mode)
	}
	if err != nil {
		return nil, translate(err, "")
	}
	return r.Get(ctx, id)
}

// CountByTypeAndContext counts records of a type scoped to a patient,
// study or series.
func (r *RecordRepo) CountByTypeAndContext(ctx context.Context, typeName string, patientID string, studyUID, seriesUID *string) (int, error) {
	criteria := RecordSearchCriteria{
		RecordTypeName: &typeName,
		PatientID:      &patientID,
		StudyUID:       studyUID,
		SeriesUID:      seriesUID,
	}
	where, args, err := criteria.buildWhere()
	if err != nil {
		return 0, err
	}
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM record`+where, args...).Scan(&count); err != nil {
		return 0, translate(err, "")
	}
	return count, nil
}

// GetRecordType resolves a record type by name, raising NotFound rather
// than leaving the caller to handle a nil type.
func (r *RecordRepo) GetRecordType(ctx context.Context, name string) (*RecordType, error) {
	return r.db.RecordTypes.Get(ctx, name)
}

// CheckConstraints enforces a record type's max_users limit: the
// number of existing records of this type sharing rec's study and
// series must be below max_users, or the new record is refused.
func (r *RecordRepo) CheckConstraints(ctx context.Context, typeName string, rec *Record) error {
	rt, err := r.GetRecordType(ctx, typeName)
	if err != nil {
		return err
	}
	if rt.MaxUsers == nil {
		return nil
	}
	count, err := r.CountByTypeAndContext(ctx, typeName, rec.PatientID, rec.StudyUID, rec.SeriesUID)
	if err != nil {
		return err
	}
	if count >= *rt.MaxUsers {
		return clarineterr.Conflictf("the maximum users per record limit (%d of %d) is reached", count, *rt.MaxUsers)
	}
	return nil
}

// FindByCriteria is the general-purpose record search used by listing
// and claiming endpoints alike, mirroring find_by_criteria's composed
// filters plus its random_one post-selection.
func (r *RecordRepo) FindByCriteria(ctx context.Context, c RecordSearchCriteria) ([]*Record, error) {
	where, args, err := c.buildWhere()
	if err != nil {
		return nil, err
	}
	query := `SELECT DISTINCT ` + recordColumns + ` FROM record` + where
	if !c.RandomOne {
		if c.Limit > 0 {
			args = append(args, c.Limit)
			query += fmt.Sprintf(" OFFSET %d LIMIT $%d", c.Skip, len(args))
		} else if c.Skip > 0 {
			query += fmt.Sprintf(" OFFSET %d", c.Skip)
		}
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()
	out, err := scanRecordRows(rows)
	if err != nil {
		return nil, err
	}
	if c.RandomOne && len(out) > 0 {
		// Mirrors random.choice(results): pick a pseudo-random element
		// rather than always the first, so concurrent claimants spread
		// across the candidate set instead of hammering one record.
		idx := int(time.Now().UnixNano() % int64(len(out)))
		return []*Record{out[idx]}, nil
	}
	return out, nil
}

// GetStatusCounts returns the count of records per status.
func (r *RecordRepo) GetStatusCounts(ctx context.Context) (map[RecordStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM record GROUP BY status`)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()
	out := map[RecordStatus]int{}
	for rows.Next() {
		var status RecordStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translate(err, "")
		}
		out[status] = count
	}
	return out, rows.Err()
}

// GetPerTypeStatusCounts returns status counts grouped by record type.
func (r *RecordRepo) GetPerTypeStatusCounts(ctx context.Context) (map[string]map[RecordStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT record_type_name, status, COUNT(*) FROM record GROUP BY record_type_name, status`)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()
	out := map[string]map[RecordStatus]int{}
	for rows.Next() {
		var typeName string
		var status RecordStatus
		var count int
		if err := rows.Scan(&typeName, &status, &count); err != nil {
			return nil, translate(err, "")
		}
		if out[typeName] == nil {
			out[typeName] = map[RecordStatus]int{}
		}
		out[typeName][status] = count
	}
	return out, rows.Err()
}

// GetPerTypeUniqueUsers returns the number of distinct users who have
// worked a given record type.
func (r *RecordRepo) GetPerTypeUniqueUsers(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT record_type_name, COUNT(DISTINCT user_id) FROM record WHERE user_id IS NOT NULL GROUP BY record_type_name`)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typeName string
		var count int
		if err := rows.Scan(&typeName, &count); err != nil {
			return nil, translate(err, "")
		}
		out[typeName] = count
	}
	return out, rows.Err()
}

// AvailableTypeCount is one row of get_available_type_counts: how many
// pending records of a type a given user is eligible to claim.
type AvailableTypeCount struct {
	RecordTypeName string
	Count          int
}

// GetAvailableTypeCounts returns, for each record type the user's roles
// grant access to, the count of pending unassigned records. Batches the
// RecordType lookups via the earlier query's GROUP BY instead of
// fetching one row at a time, avoiding the N+1 the original guards
// against with its own batch fetch.
func (r *RecordRepo) GetAvailableTypeCounts(ctx context.Context, userID string) ([]AvailableTypeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT rt.name, COUNT(DISTINCT r.id)
		 FROM recordtype rt
		 JOIN record r ON r.record_type_name = rt.name
		 JOIN userroleslink url ON url.role_name = rt.role OR rt.role IS NULL
		 WHERE url.user_id = $1 AND r.status = $2 AND r.user_id IS NULL
		 GROUP BY rt.name
		 ORDER BY rt.name`,
		userID, StatusPending,
	)
	if err != nil {
		return nil, translate(err, "")
	}
	defer rows.Close()

	var out []AvailableTypeCount
	for rows.Next() {
		var c AvailableTypeCount
		if err := rows.Scan(&c.RecordTypeName, &c.Count); err != nil {
			return nil, translate(err, "")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
