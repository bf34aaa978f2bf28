// Package dicomweb implements the QIDO-RS/WADO-RS proxy surface (§4.E):
// DICOM-JSON conversion, frame extraction, and the chi routes that tie
// them to the DICOM client and series cache.
package dicomweb

import (
	"fmt"

	"github.com/radionest/clarinet/internal/dicom"
)

// BulkDataURIFunc builds the absolute URL a PixelData element's
// BulkDataURI should point at, for a given instance.
type BulkDataURIFunc func(studyUID, seriesUID, sopInstanceUID string) string

// jsonElement is one element of a DICOM-JSON object, keyed by tag in
// the caller (a map[string]jsonElement), per PS3.18 Annex F.
type jsonElement struct {
	VR          string `json:"vr"`
	Value       []any  `json:"Value,omitempty"`
	BulkDataURI string `json:"BulkDataURI,omitempty"`
}

// DatasetToJSON converts ds to its DICOM-JSON representation without
// mutating ds: the PixelData element, if present, is replaced by a
// BulkDataURI reference rather than copied into the JSON body.
func DatasetToJSON(ds *dicom.Dataset, studyUID, seriesUID string, bulkDataURI BulkDataURIFunc) map[string]jsonElement {
	out := make(map[string]jsonElement)
	sop := ds.String(dicom.TagSOPInstanceUID)

	for _, e := range ds.Elements() {
		key := fmt.Sprintf("%04X%04X", e.Tag.Group, e.Tag.Element)
		if e.Tag == dicom.TagPixelData {
			out[key] = jsonElement{
				VR:          "OW",
				BulkDataURI: bulkDataURI(studyUID, seriesUID, sop),
			}
			continue
		}
		switch v := e.Value.(type) {
		case string:
			out[key] = jsonElement{VR: string(e.VR), Value: []any{v}}
		case []byte:
			// Any other binary element is small enough to inline
			// (overlays, LUTs); only PixelData gets bulk-data treatment.
			out[key] = jsonElement{VR: string(e.VR), Value: []any{v}}
		default:
			out[key] = jsonElement{VR: string(e.VR), Value: []any{v}}
		}
	}
	return out
}

// DatasetsToJSON converts a slice of datasets, flattening into one
// DICOM-JSON array, used by the QIDO-RS list endpoints and the
// parallel per-study metadata endpoint.
func DatasetsToJSON(datasets []*dicom.Dataset, studyUID, seriesUID string, bulkDataURI BulkDataURIFunc) []map[string]jsonElement {
	out := make([]map[string]jsonElement, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, DatasetToJSON(ds, studyUID, seriesUID, bulkDataURI))
	}
	return out
}
