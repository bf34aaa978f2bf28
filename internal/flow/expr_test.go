package flow

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radionest/clarinet/internal/store"
)

func ctxWithData(recordName string, data string) Context {
	return Context{
		recordName: &store.Record{RecordTypeName: recordName, Data: []byte(data)},
	}
}

func TestFieldEqConstant(t *testing.T) {
	ctx := ctxWithData("order", `{"modality":"CT"}`)
	expr := FieldRef("order", "modality").Eq("CT")

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.True(t, matched)
}

func TestFieldEqConstantNoMatch(t *testing.T) {
	ctx := ctxWithData("order", `{"modality":"MR"}`)
	expr := FieldRef("order", "modality").Eq("CT")

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.False(t, matched)
}

func TestFieldComparisonNumeric(t *testing.T) {
	ctx := ctxWithData("order", `{"priority":5}`)
	expr := FieldRef("order", "priority").Gt(3)

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.True(t, matched, "expected 5 > 3 to match")
}

func TestFieldUnresolvedPathIsFalseNotError(t *testing.T) {
	ctx := ctxWithData("order", `{"modality":"CT"}`)
	expr := FieldRef("order", "nested.missing").Eq("x")

	matched, err := expr.eval(ctx)
	require.NoError(t, err, "unresolved path should not error")
	require.False(t, matched)
}

func TestAndShortCircuits(t *testing.T) {
	ctx := ctxWithData("order", `{"modality":"CT","priority":1}`)
	expr := And(
		FieldRef("order", "modality").Eq("MR"), // false
		FieldRef("order", "priority").Eq(1),     // would be true
	)

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.False(t, matched, "expected And to be false when left side is false")
}

func TestOrMatchesOnEitherSide(t *testing.T) {
	ctx := ctxWithData("order", `{"modality":"CT"}`)
	expr := Or(
		FieldRef("order", "modality").Eq("MR"),
		FieldRef("order", "modality").Eq("CT"),
	)

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.True(t, matched, "expected Or to match on the right side")
}

func TestFieldResolvesAgainstAnotherField(t *testing.T) {
	ctx := Context{
		"order":  &store.Record{RecordTypeName: "order", Data: []byte(`{"expected_modality":"CT"}`)},
		"series": &store.Record{RecordTypeName: "series", Data: []byte(`{"modality":"CT"}`)},
	}
	expr := FieldRef("series", "modality").Eq(FieldRef("order", "expected_modality"))

	matched, err := expr.eval(ctx)
	require.NoError(t, err)
	require.True(t, matched, "expected cross-record field comparison to match")
}

func TestElseAlwaysTrue(t *testing.T) {
	matched, err := Else().eval(Context{})
	require.NoError(t, err)
	require.True(t, matched)
	require.True(t, isElse(Else()))
}
