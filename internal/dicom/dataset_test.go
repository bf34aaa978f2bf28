package dicom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagStringFormatsAsGroupElementHex(t *testing.T) {
	require.Equal(t, "(0008,0018)", TagSOPInstanceUID.String())
}

func TestDatasetSetAndGet(t *testing.T) {
	ds := NewDataset()
	ds.SetString(TagPatientID, VRCS, "P1")

	e, ok := ds.Get(TagPatientID)
	require.True(t, ok)
	require.Equal(t, "P1", e.Value)
}

func TestDatasetGetMissingTagReturnsFalse(t *testing.T) {
	ds := NewDataset()
	_, ok := ds.Get(TagPatientID)
	require.False(t, ok)
}

func TestDatasetStringReturnsEmptyForMissingOrNonStringValue(t *testing.T) {
	ds := NewDataset()
	require.Equal(t, "", ds.String(TagPatientID))

	ds.Set(TagPixelData, VROB, []byte{1, 2, 3})
	require.Equal(t, "", ds.String(TagPixelData))
}

func TestDatasetBytesReturnsNilForMissingOrNonByteValue(t *testing.T) {
	ds := NewDataset()
	require.Nil(t, ds.Bytes(TagPixelData))

	ds.SetString(TagPatientID, VRCS, "P1")
	require.Nil(t, ds.Bytes(TagPatientID))
}

func TestDatasetBytesRoundTrip(t *testing.T) {
	ds := NewDataset()
	ds.Set(TagPixelData, VROB, []byte{1, 2, 3})
	require.Equal(t, []byte{1, 2, 3}, ds.Bytes(TagPixelData))
}

func TestDatasetSetPreservesFirstInsertionOrder(t *testing.T) {
	ds := NewDataset()
	ds.SetString(TagPatientID, VRCS, "P1")
	ds.SetString(TagStudyInstanceUID, VRUI, "1.2.3")
	ds.SetString(TagPatientID, VRCS, "P1-updated") // replace, shouldn't move order

	elems := ds.Elements()
	require.Len(t, elems, 2)
	require.Equal(t, TagPatientID, elems[0].Tag)
	require.Equal(t, "P1-updated", elems[0].Value)
	require.Equal(t, TagStudyInstanceUID, elems[1].Tag)
}

func TestBuildIdentifierStudyLevelOmitsSeriesKey(t *testing.T) {
	patientID := "P1"
	ds := BuildIdentifier(LevelStudy, Query{PatientID: &patientID})

	require.Equal(t, string(LevelStudy), ds.String(TagQueryRetrieveLevel))
	require.Equal(t, "P1", ds.String(TagPatientID))
	require.Equal(t, "", ds.String(TagStudyInstanceUID))
	_, ok := ds.Get(TagSeriesInstanceUID)
	require.False(t, ok, "series key must be entirely absent above series level")
}

func TestBuildIdentifierSeriesLevelIncludesEmptySeriesReturnKey(t *testing.T) {
	ds := BuildIdentifier(LevelSeries, Query{})
	_, ok := ds.Get(TagSeriesInstanceUID)
	require.True(t, ok, "series level must include series key even unfiltered")
	require.Equal(t, "", ds.String(TagSeriesInstanceUID))
}

func TestBuildIdentifierIncludesOptionalModalityAndDateOnlyWhenSet(t *testing.T) {
	ds := BuildIdentifier(LevelStudy, Query{})
	_, ok := ds.Get(TagModality)
	require.False(t, ok)
	_, ok = ds.Get(TagStudyDate)
	require.False(t, ok)

	modality := "CT"
	date := "20260101"
	ds = BuildIdentifier(LevelStudy, Query{Modality: &modality, StudyDate: &date})
	require.Equal(t, "CT", ds.String(TagModality))
	require.Equal(t, "20260101", ds.String(TagStudyDate))
}

func TestBuildIdentifierFiltersByNonNilFields(t *testing.T) {
	studyUID := "1.2.3"
	ds := BuildIdentifier(LevelImage, Query{StudyInstanceUID: &studyUID})
	require.Equal(t, "1.2.3", ds.String(TagStudyInstanceUID))
	require.Equal(t, "", ds.String(TagSeriesInstanceUID))
}
