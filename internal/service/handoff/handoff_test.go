package handoff

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestExtract_MarkerAnywhereWithTrailingText(t *testing.T) {
	u, err := Extract(`prefix INTAKE: {"name":"Jane Doe"} trailing`)
	require.NoError(t, err)
	require.NotNil(t, u)

	assert.Equal(t, "Jane Doe", *u.Get(FieldName))
	assert.Equal(t, 1, u.Len())
	for _, f := range []Field{FieldPhone, FieldCity, FieldState, FieldReason} {
		assert.False(t, u.Has(f), "field %s should be absent", f)
	}
}

func TestExtract_NoMarker(t *testing.T) {
	u, err := Extract("no marker here")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestExtract_Malformed(t *testing.T) {
	for _, text := range []string{
		`INTAKE: {not valid json`,
		`INTAKE:`,
		"INTAKE:   \n{\"name\":\"Jane\"}",
		`INTAKE: ["Jane"]`,
		`INTAKE: null`,
		`INTAKE: "Jane"`,
	} {
		u, err := Extract(text)
		assert.Nil(t, u, text)
		assert.True(t, errors.Is(err, ErrMalformed), "%q: %v", text, err)
	}
}

func TestExtract_StopsAtLineBreak(t *testing.T) {
	u, err := Extract("Thanks Jane.\nINTAKE: {\"city\":\"Jackson\",\"state\":\"MS\"}\r\nAnything else?")
	require.NoError(t, err)
	assert.Equal(t, "Jackson", *u.Get(FieldCity))
	assert.Equal(t, "MS", *u.Get(FieldState))
}

func TestExtract_ScalarsAndNulls(t *testing.T) {
	u, err := Extract(`INTAKE: {"phone":6015551212,"reason":null,"city":{"n":"x"},"extra":"ignored"}`)
	require.NoError(t, err)

	assert.Equal(t, "6015551212", *u.Get(FieldPhone))
	assert.True(t, u.Has(FieldReason))
	assert.Nil(t, u.Get(FieldReason))
	assert.False(t, u.Has(FieldCity))
	assert.Equal(t, 2, u.Len())
}

func TestRecord_IncrementalMerge(t *testing.T) {
	var rec Record

	first, err := Extract(`INTAKE: {"name":"Jane"}`)
	require.NoError(t, err)
	rec.Apply(first)

	second, err := Extract(`INTAKE: {"phone":"6015551212"}`)
	require.NoError(t, err)
	rec.Apply(second)

	assert.Equal(t, "Jane", *rec.Name)
	assert.Equal(t, "6015551212", *rec.Phone)
	assert.Nil(t, rec.City)
}

func TestRecord_FailedExtractionLeavesRecordIntact(t *testing.T) {
	rec := NewRecord("+16015550000")
	u, _ := Extract(`INTAKE: {"name":"Jane"}`)
	rec.Apply(u)

	for _, text := range []string{"no marker here", `INTAKE: {not valid json`} {
		u, _ := Extract(text)
		rec.Apply(u)
	}

	assert.Equal(t, "Jane", *rec.Name)
	assert.Equal(t, "+16015550000", *rec.Phone)
}

func TestRecord_ExplicitNullOverwrites(t *testing.T) {
	rec := Record{Name: ptr("Jane"), Reason: ptr("housing")}
	u, err := Extract(`INTAKE: {"reason":null}`)
	require.NoError(t, err)

	rec.Apply(u)

	assert.Equal(t, "Jane", *rec.Name)
	assert.Nil(t, rec.Reason)
}

func TestRecord_LastWriteWinsPerField(t *testing.T) {
	var rec Record
	for _, text := range []string{
		`INTAKE: {"name":"Jane","city":"Jackson"}`,
		`INTAKE: {"name":"Jane Doe"}`,
	} {
		u, err := Extract(text)
		require.NoError(t, err)
		rec.Apply(u)
	}

	assert.Equal(t, "Jane Doe", *rec.Get(FieldName))
	assert.Equal(t, "Jackson", *rec.Get(FieldCity))
}

func TestNewRecord(t *testing.T) {
	assert.Nil(t, NewRecord("").Phone)
	assert.Equal(t, "+16015550000", *NewRecord("+16015550000").Phone)
}

func TestRecord_JSONKeepsNulls(t *testing.T) {
	b, err := json.Marshal(Record{Name: ptr("Jane")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Jane","phone":null,"city":null,"state":null,"reason":null}`, string(b))
}

func TestRecord_ApplyCopiesValues(t *testing.T) {
	u, err := Extract(`INTAKE: {"name":"Jane"}`)
	require.NoError(t, err)

	var a, b Record
	a.Apply(u)
	b.Apply(u)
	*a.Name = "changed"

	assert.Equal(t, "Jane", *b.Name)
}
