package dicom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWireRoundTripPreservesStringAndByteElements(t *testing.T) {
	ds := NewDataset()
	ds.SetString(TagPatientID, VRCS, "P1")
	ds.Set(TagPixelData, VROB, []byte{1, 2, 3})

	w := ToWire(ds)
	restored := FromWire(w)

	require.Equal(t, "P1", restored.String(TagPatientID))
	require.Equal(t, []byte{1, 2, 3}, restored.Bytes(TagPixelData))
}

func TestWireRoundTripPreservesElementOrder(t *testing.T) {
	ds := NewDataset()
	ds.SetString(TagStudyInstanceUID, VRUI, "1.2.3")
	ds.SetString(TagPatientID, VRCS, "P1")

	restored := FromWire(ToWire(ds))
	elems := restored.Elements()
	require.Len(t, elems, 2)
	require.Equal(t, TagStudyInstanceUID, elems[0].Tag)
	require.Equal(t, TagPatientID, elems[1].Tag)
}
