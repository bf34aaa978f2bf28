package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/clarineterr"
)

func TestAnonUIDFilterUnsetReturnsEmpty(t *testing.T) {
	var args []any
	clause := anonUIDFilter("study_uid", nil, &args)
	require.Empty(t, clause)
	require.Empty(t, args)
}

func TestAnonUIDFilterNullSentinel(t *testing.T) {
	var args []any
	val := "Null"
	clause := anonUIDFilter("study_uid", &val, &args)
	require.Equal(t, " AND study_uid IS NULL", clause)
	require.Empty(t, args)
}

func TestAnonUIDFilterWildcardSentinel(t *testing.T) {
	var args []any
	val := "*"
	clause := anonUIDFilter("series_uid", &val, &args)
	require.Equal(t, " AND series_uid IS NOT NULL", clause)
	require.Empty(t, args)
}

func TestAnonUIDFilterExactMatchAppendsArg(t *testing.T) {
	args := []any{"existing"}
	val := "ANON123"
	clause := anonUIDFilter("study_uid", &val, &args)
	require.Equal(t, " AND study_uid = $2", clause)
	require.Equal(t, []any{"existing", "ANON123"}, args)
}

func TestDataQuerySQLSupportedOperators(t *testing.T) {
	cases := []struct {
		op       comparisonOp
		wantStmt string
		wantVal  any
	}{
		{OpEq, " AND (data->>$1) = $2", "v"},
		{OpGT, " AND (data->>$1) > $2", "v"},
		{OpLT, " AND (data->>$1) < $2", "v"},
		{OpContains, " AND (data->>$1) LIKE $2", "%v%"},
	}
	for _, c := range cases {
		var args []any
		clause, err := dataQuerySQL(DataQuery{Key: "k", Op: c.op, Value: "v"}, &args)
		require.NoError(t, err)
		require.Equal(t, c.wantStmt, clause)
		require.Equal(t, []any{"k", c.wantVal}, args)
	}
}

func TestDataQuerySQLRejectsUnsupportedOperator(t *testing.T) {
	var args []any
	_, err := dataQuerySQL(DataQuery{Key: "k", Op: "bogus", Value: "v"}, &args)
	require.Error(t, err)
	kind, ok := clarineterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, clarineterr.Validation, kind)
}

func TestBuildWhereNoFiltersIsTautology(t *testing.T) {
	var c RecordSearchCriteria
	where, args, err := c.buildWhere()
	require.NoError(t, err)
	require.Equal(t, " WHERE 1=1", where)
	require.Empty(t, args)
}

func TestBuildWhereCombinesFilters(t *testing.T) {
	patientID := "P1"
	status := StatusFinished
	woUser := true
	c := RecordSearchCriteria{
		PatientID:      &patientID,
		RecordTypeName: strPtr("quality_check"),
		Status:         &status,
		WoUser:         &woUser,
		DataQuery: []DataQuery{
			{Key: "score", Op: OpGT, Value: "5"},
		},
	}
	where, args, err := c.buildWhere()
	require.NoError(t, err)
	require.Contains(t, where, "patient_id = $1")
	require.Contains(t, where, "record_type_name = $2")
	require.Contains(t, where, "status = $3")
	require.Contains(t, where, "user_id IS NULL")
	require.Contains(t, where, "(data->>$4) > $5")
	require.Equal(t, []any{"P1", "quality_check", "finished", "score", "5"}, args)
}

func TestBuildWherePatientAnonIDResolvesToAutoID(t *testing.T) {
	anonID := "CLN_7"
	c := RecordSearchCriteria{PatientAnonID: &anonID}
	where, args, err := c.buildWhere()
	require.NoError(t, err)
	require.Contains(t, where, "auto_id = $1")
	require.Equal(t, []any{int64(7)}, args)
}

func TestBuildWherePatientAnonIDRejectsUnparseableSuffix(t *testing.T) {
	anonID := "CLN_notanumber"
	c := RecordSearchCriteria{PatientAnonID: &anonID}
	_, _, err := c.buildWhere()
	require.Error(t, err)
	kind, ok := clarineterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, clarineterr.Validation, kind)
}

func TestParseAnonPatientIDUsesTrailingUnderscoreSegment(t *testing.T) {
	n, err := parseAnonPatientID("CLN_ANON_7")
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}

func TestBuildWhereWoUserFalseMeansNotNull(t *testing.T) {
	woUser := false
	c := RecordSearchCriteria{WoUser: &woUser}
	where, _, err := c.buildWhere()
	require.NoError(t, err)
	require.Contains(t, where, "user_id IS NOT NULL")
}

func TestBuildWhereAnonUIDFiltersComposeWithPlainFilters(t *testing.T) {
	anonStudy := "*"
	c := RecordSearchCriteria{AnonStudyUID: &anonStudy}
	where, args, err := c.buildWhere()
	require.NoError(t, err)
	require.Contains(t, where, "study_uid IS NOT NULL")
	require.Empty(t, args)
}

func TestBuildWherePropagatesDataQueryError(t *testing.T) {
	c := RecordSearchCriteria{DataQuery: []DataQuery{{Key: "k", Op: "bogus", Value: "v"}}}
	_, _, err := c.buildWhere()
	require.Error(t, err)
}

func strPtr(s string) *string { return &s }
