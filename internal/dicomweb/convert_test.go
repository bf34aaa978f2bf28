package dicomweb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/dicom"
)

func sampleDataset() *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VRUI, "1.2.3.4")
	ds.SetString(dicom.TagModality, dicom.VRCS, "CT")
	ds.Set(dicom.TagPixelData, dicom.VROB, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	return ds
}

func noopBulkDataURI(studyUID, seriesUID, sopInstanceUID string) string {
	return "http://pacs.example/studies/" + studyUID + "/series/" + seriesUID + "/instances/" + sopInstanceUID + "/pixeldata"
}

func TestDatasetToJSONReplacesPixelDataWithBulkDataURI(t *testing.T) {
	ds := sampleDataset()

	out := DatasetToJSON(ds, "study-1", "series-1", noopBulkDataURI)

	elem, ok := out["7FE00010"]
	require.True(t, ok, "expected PixelData tag to be present in the output")
	require.Equal(t, "OW", elem.VR)
	require.Empty(t, elem.Value, "PixelData bytes must not be inlined")
	require.Equal(t, "http://pacs.example/studies/study-1/series/series-1/instances/1.2.3.4/pixeldata", elem.BulkDataURI)
}

func TestDatasetToJSONInlinesNonPixelElements(t *testing.T) {
	ds := sampleDataset()

	out := DatasetToJSON(ds, "study-1", "series-1", noopBulkDataURI)

	modality, ok := out["00080060"]
	require.True(t, ok, "expected Modality tag to be present")
	require.Equal(t, "CS", modality.VR)
	require.Equal(t, []any{"CT"}, modality.Value)
	require.Empty(t, modality.BulkDataURI)
}

func TestDatasetToJSONDoesNotMutateSource(t *testing.T) {
	ds := sampleDataset()
	before := ds.Bytes(dicom.TagPixelData)

	DatasetToJSON(ds, "study-1", "series-1", noopBulkDataURI)

	after := ds.Bytes(dicom.TagPixelData)
	require.Equal(t, before, after, "converting to JSON must not mutate the source dataset's PixelData")
}

func TestDatasetsToJSONConvertsEachDataset(t *testing.T) {
	datasets := []*dicom.Dataset{sampleDataset(), sampleDataset()}

	out := DatasetsToJSON(datasets, "study-1", "series-1", noopBulkDataURI)

	require.Len(t, out, 2)
	for _, elem := range out {
		_, ok := elem["7FE00010"]
		require.True(t, ok, "expected every converted dataset to carry a PixelData BulkDataURI entry")
	}
}
