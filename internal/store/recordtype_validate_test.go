package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/clarineterr"
)

func TestValidateSchemaAcceptsWellFormedSchema(t *testing.T) {
	raw := []byte(`{"type": "object", "properties": {"score": {"type": "number"}}}`)
	sch, err := ValidateSchema(raw)
	require.NoError(t, err)
	require.NotNil(t, sch)
}

func TestValidateSchemaRejectsInvalidJSON(t *testing.T) {
	_, err := ValidateSchema([]byte(`{not json`))
	require.Error(t, err)
	kind, ok := clarineterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, clarineterr.Validation, kind)
}

func TestValidateSchemaRejectsNonSchemaJSON(t *testing.T) {
	_, err := ValidateSchema([]byte(`{"type": "not-a-real-type"}`))
	require.Error(t, err)
	kind, ok := clarineterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, clarineterr.Validation, kind)
}

func TestValidatePayloadWithNoSchemaAcceptsAnything(t *testing.T) {
	rt := &RecordType{Name: "quality_check"}
	err := ValidatePayload(rt, []byte(`{"anything": true}`))
	require.NoError(t, err)
}

func TestValidatePayloadAcceptsMatchingData(t *testing.T) {
	rt := &RecordType{
		Name:       "quality_check",
		DataSchema: []byte(`{"type": "object", "properties": {"score": {"type": "number"}}, "required": ["score"]}`),
	}
	err := ValidatePayload(rt, []byte(`{"score": 4}`))
	require.NoError(t, err)
}

func TestValidatePayloadRejectsDataViolatingSchema(t *testing.T) {
	rt := &RecordType{
		Name:       "quality_check",
		DataSchema: []byte(`{"type": "object", "properties": {"score": {"type": "number"}}, "required": ["score"]}`),
	}
	err := ValidatePayload(rt, []byte(`{"score": "not-a-number"}`))
	require.Error(t, err)
	kind, ok := clarineterr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, clarineterr.Validation, kind)
}

func TestValidatePayloadRejectsMalformedJSONPayload(t *testing.T) {
	rt := &RecordType{
		Name:       "quality_check",
		DataSchema: []byte(`{"type": "object"}`),
	}
	err := ValidatePayload(rt, []byte(`{not json`))
	require.Error(t, err)
}

func TestNullableJSONReturnsNilForEmpty(t *testing.T) {
	require.Nil(t, nullableJSON(nil))
	require.Nil(t, nullableJSON([]byte{}))
}

func TestNullableJSONPassesThroughNonEmpty(t *testing.T) {
	raw := []byte(`{"a":1}`)
	got := nullableJSON(raw)
	require.Equal(t, raw, got)
}
