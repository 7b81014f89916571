package executor

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	schema "github.com/hanpama/blogql/internal/schema"
)

func TestCoerceInt(t *testing.T) {
	for _, in := range []any{3, int32(3), int64(3), float64(3), float32(3), json.Number("3")} {
		got, err := coerceToInt(in)
		require.NoError(t, err, "%T", in)
		require.Equal(t, 3, got)
	}

	for _, in := range []any{2.5, "3", true, json.Number("3.5"), int64(math.MaxInt32) + 1} {
		_, err := coerceToInt(in)
		require.Error(t, err, "%v", in)
	}
}

func TestCoerceValueWrappers(t *testing.T) {
	_, err := coerceValue(nil, nil, schema.NonNullType(schema.NamedType("String")))
	require.EqualError(t, err, "cannot provide null for non-null type")

	got, err := coerceValue(nil, nil, schema.NamedType("Int"))
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = coerceValue(nil, "go", schema.ListType(schema.NamedType("String")))
	require.NoError(t, err)
	require.Equal(t, []any{"go"}, got)

	_, err = coerceValue(nil, []any{1, nil}, schema.ListType(schema.NonNullType(schema.NamedType("Int"))))
	require.Error(t, err)

	got, err = coerceValue(nil, 7, schema.NamedType("ID"))
	require.NoError(t, err)
	require.Equal(t, "7", got)

	// unknown scalars pass through untouched
	got, err = coerceValue(schema.NewSchema(""), "2024-01-02T03:04:05Z", schema.NamedType("DateTime"))
	require.NoError(t, err)
	require.Equal(t, "2024-01-02T03:04:05Z", got)
}

func TestCoerceEnumAndOneOf(t *testing.T) {
	sch := schema.NewSchema("")
	sch.AddType(schema.NewType("SortOrder", schema.TypeKindEnum, "").
		AddEnumValue(schema.NewEnumValue("asc", "")).
		AddEnumValue(schema.NewEnumValue("desc", "")))
	sch.AddType(schema.NewType("UserLookup", schema.TypeKindInputObject, "").
		SetOneOf(true).
		AddInputField(schema.NewInputValue("id", "", schema.NamedType("Int"))).
		AddInputField(schema.NewInputValue("email", "", schema.NamedType("String"))))

	got, err := coerceValue(sch, schema.EnumLiteral("desc"), schema.NamedType("SortOrder"))
	require.NoError(t, err)
	require.Equal(t, "desc", got)

	_, err = coerceValue(sch, "sideways", schema.NamedType("SortOrder"))
	require.EqualError(t, err, "sideways is not a value of enum SortOrder")

	got, err = coerceValue(sch, map[string]any{"email": "alice@example.com"}, schema.NamedType("UserLookup"))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"email": "alice@example.com"}, got)

	_, err = coerceValue(sch, map[string]any{"id": 1, "email": "alice@example.com"}, schema.NamedType("UserLookup"))
	require.EqualError(t, err, "exactly one field of input type UserLookup must be set")

	_, err = coerceValue(sch, "alice", schema.NamedType("UserLookup"))
	require.Error(t, err)
}
