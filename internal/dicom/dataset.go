// Package dicom implements a minimal DICOM dataset model and DIMSE
// client sufficient for C-FIND/C-GET/C-MOVE/C-STORE against a PACS. No
// DIMSE/DICOM wire-protocol library exists anywhere in the retrieved
// dependency corpus, so the dataset model, association state machine
// and PDU framing here are hand-rolled against general DICOM domain
// knowledge rather than adapted from a library.
package dicom

import "fmt"

// Tag is a DICOM data element tag (group, element).
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Well-known tags used by the query/retrieve and storage paths.
var (
	TagSOPClassUID           = Tag{0x0008, 0x0016}
	TagSOPInstanceUID        = Tag{0x0008, 0x0018}
	TagStudyInstanceUID      = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID     = Tag{0x0020, 0x000E}
	TagPatientID             = Tag{0x0010, 0x0020}
	TagPatientName           = Tag{0x0010, 0x0010}
	TagStudyDate             = Tag{0x0008, 0x0020}
	TagModality              = Tag{0x0008, 0x0060}
	TagSeriesNumber          = Tag{0x0020, 0x0011}
	TagSeriesDescription     = Tag{0x0008, 0x103E}
	TagInstanceNumber        = Tag{0x0020, 0x0013}
	TagQueryRetrieveLevel    = Tag{0x0008, 0x0052}
	TagPixelData          = Tag{0x7FE0, 0x0010}
	TagTransferSyntaxUID  = Tag{0x0002, 0x0010}
	TagNumberOfFrames     = Tag{0x0028, 0x0008}
)

// VR is a DICOM value representation.
type VR string

const (
	VRUI VR = "UI" // unique identifier
	VRCS VR = "CS" // code string
	VRPN VR = "PN" // person name
	VRDA VR = "DA" // date
	VRIS VR = "IS" // integer string
	VROB VR = "OB" // other byte (pixel data, encapsulated)
)

// Element is a single DICOM data element. Value holds the decoded
// representation (string for text-like VRs, []byte for OB/OW).
type Element struct {
	Tag   Tag
	VR    VR
	Value any
}

// Dataset is an ordered set of elements, the unit exchanged in
// identifier datasets (C-FIND/C-MOVE) and stored instances (C-GET/
// C-STORE).
type Dataset struct {
	elements map[Tag]*Element
	order    []Tag
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{elements: make(map[Tag]*Element)}
}

// Set inserts or replaces an element, preserving first-insertion order.
func (d *Dataset) Set(tag Tag, vr VR, value any) {
	if _, exists := d.elements[tag]; !exists {
		d.order = append(d.order, tag)
	}
	d.elements[tag] = &Element{Tag: tag, VR: vr, Value: value}
}

// SetString is a convenience for the common text-VR case.
func (d *Dataset) SetString(tag Tag, vr VR, value string) {
	d.Set(tag, vr, value)
}

// Get returns an element and whether it was present.
func (d *Dataset) Get(tag Tag) (*Element, bool) {
	e, ok := d.elements[tag]
	return e, ok
}

// String returns the string value of tag, or "" if absent or not a
// string.
func (d *Dataset) String(tag Tag) string {
	e, ok := d.elements[tag]
	if !ok {
		return ""
	}
	s, _ := e.Value.(string)
	return s
}

// Bytes returns the []byte value of tag, or nil if absent.
func (d *Dataset) Bytes(tag Tag) []byte {
	e, ok := d.elements[tag]
	if !ok {
		return nil
	}
	b, _ := e.Value.([]byte)
	return b
}

// Elements returns the dataset's elements in insertion order.
func (d *Dataset) Elements() []*Element {
	out := make([]*Element, 0, len(d.order))
	for _, tag := range d.order {
		out = append(out, d.elements[tag])
	}
	return out
}

// InformationModel selects the root of a C-FIND/C-MOVE query.
type InformationModel string

const (
	PatientRootFind InformationModel = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootMove InformationModel = "1.2.840.10008.5.1.4.1.2.1.2"
	StudyRootFind   InformationModel = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootMove   InformationModel = "1.2.840.10008.5.1.4.1.2.2.2"
)

// QueryLevel is the DICOM query/retrieve level.
type QueryLevel string

const (
	LevelPatient QueryLevel = "PATIENT"
	LevelStudy   QueryLevel = "STUDY"
	LevelSeries  QueryLevel = "SERIES"
	LevelImage   QueryLevel = "IMAGE"
)

// Query is the caller-facing identifier used to build a C-FIND/C-MOVE
// identifier dataset. A nil PatientID, StudyInstanceUID or (at series
// and image level) SeriesInstanceUID becomes an empty return key, i.e.
// "return this key without filtering"; a nil Modality or StudyDate is
// omitted from the identifier entirely.
type Query struct {
	PatientID        *string
	StudyInstanceUID *string
	SeriesInstanceUID *string
	Modality         *string
	StudyDate        *string
}

// BuildIdentifier constructs the identifier dataset for the given query
// level, copying each non-nil field from q and adding an empty
// return-key for fields the caller didn't constrain. Mirrors the
// original's "copy every non-null field, empty string for
// return-without-filter" construction exactly.
func BuildIdentifier(level QueryLevel, q Query) *Dataset {
	ds := NewDataset()
	ds.SetString(TagQueryRetrieveLevel, VRCS, string(level))

	setOrEmpty := func(tag Tag, vr VR, v *string) {
		if v != nil {
			ds.SetString(tag, vr, *v)
		} else {
			ds.SetString(tag, vr, "")
		}
	}

	setOrEmpty(TagPatientID, VRCS, q.PatientID)
	setOrEmpty(TagStudyInstanceUID, VRUI, q.StudyInstanceUID)
	if level == LevelSeries || level == LevelImage {
		setOrEmpty(TagSeriesInstanceUID, VRUI, q.SeriesInstanceUID)
	}
	if q.Modality != nil {
		ds.SetString(TagModality, VRCS, *q.Modality)
	}
	if q.StudyDate != nil {
		ds.SetString(TagStudyDate, VRDA, *q.StudyDate)
	}
	return ds
}
