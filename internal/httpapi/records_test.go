package httpapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/store"
)

func TestCriteriaFromQueryMapsFilters(t *testing.T) {
	q := url.Values{
		"patient_id":       {"p1"},
		"study_uid":        {"1.2.3"},
		"status":           {"pending"},
		"wo_user":          {"true"},
		"skip":             {"10"},
		"limit":            {"25"},
		"record_type_name": {"segmentation"},
	}

	c := criteriaFromQuery(q)

	require.NotNil(t, c.PatientID)
	require.Equal(t, "p1", *c.PatientID)
	require.NotNil(t, c.StudyUID)
	require.Equal(t, "1.2.3", *c.StudyUID)
	require.NotNil(t, c.Status)
	require.Equal(t, store.StatusPending, *c.Status)
	require.NotNil(t, c.WoUser)
	require.True(t, *c.WoUser)
	require.Equal(t, 10, c.Skip)
	require.Equal(t, 25, c.Limit)
	require.NotNil(t, c.RecordTypeName)
	require.Equal(t, "segmentation", *c.RecordTypeName)
}

func TestCriteriaFromQueryEmptyLeavesFiltersNil(t *testing.T) {
	c := criteriaFromQuery(url.Values{})

	require.Nil(t, c.PatientID)
	require.Nil(t, c.StudyUID)
	require.Nil(t, c.Status)
	require.Nil(t, c.WoUser)
	require.Equal(t, 0, c.Skip)
	require.Equal(t, 0, c.Limit)
}

func TestCriteriaFromQueryWoUserFalseValue(t *testing.T) {
	c := criteriaFromQuery(url.Values{"wo_user": {"false"}})

	require.NotNil(t, c.WoUser)
	require.False(t, *c.WoUser)
}
