package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		path    string
		want    string
		wantHit bool
	}{
		{name: "object", raw: `{"a":{"b":"X"}}`, path: "a.b", want: "X", wantHit: true},
		{name: "double encoded", raw: `"{\"firstName\":\"Ann\"}"`, path: "firstName", want: "Ann", wantHit: true},
		{name: "malformed", raw: `{"a":`, path: "a"},
		{name: "string that is not json", raw: `"hello"`, path: "hello"},
		{name: "array at top level", raw: `[1,2]`, path: "0"},
		{name: "empty", raw: ``, path: "a"},
		{name: "null leaf", raw: `{"a":null}`, path: "a"},
		{name: "traverse into string", raw: `{"a":"text"}`, path: "a.b"},
		{name: "empty segment", raw: `{"a":{"b":1}}`, path: "a..b"},
		{name: "number", raw: `{"age":30}`, path: "age", want: "30", wantHit: true},
		{name: "fraction", raw: `{"score":4.5}`, path: "score", want: "4.5", wantHit: true},
		{name: "bool", raw: `{"ok":true}`, path: "ok", want: "true", wantHit: true},
		{name: "list", raw: `{"skills":["go","sql",3]}`, path: "skills", want: "go,sql,3", wantHit: true},
		{name: "map", raw: `{"addr":{"city":"Pune"}}`, path: "addr", want: `{"city":"Pune"}`, wantHit: true},
		{name: "dashed key", raw: `{"first-name":"Ann"}`, path: "first-name", want: "Ann", wantHit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := ParsePayload([]byte(tt.raw))
			assert.Equal(t, KindMap, payload.Kind)

			v, ok := payload.Lookup(tt.path)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.want, v.String())
			}
		})
	}
}

func TestValue_Interface_RoundTrip(t *testing.T) {
	in := map[string]interface{}{
		"name":   "Ann",
		"age":    float64(30),
		"tags":   []interface{}{"a", true},
		"nested": map[string]interface{}{"x": nil},
	}

	out := FromInterface(in).Interface()
	assert.Equal(t, in, out)
}

func TestFromInterface_JSONNumber(t *testing.T) {
	v := FromInterface(json.Number("12"))
	assert.Equal(t, KindNumber, v.Kind)
	assert.Equal(t, "12", v.String())
}

func TestApplicant_Field(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := &Applicant{ID: "1", FormID: "F1", Status: "approved", CreatedAt: created}

	v, ok := a.Field("status")
	require.True(t, ok)
	assert.Equal(t, "approved", v)

	v, ok = a.Field("form_id")
	require.True(t, ok)
	assert.Equal(t, "F1", v)

	v, ok = a.Field("createdAt")
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T10:00:00Z", v)

	_, ok = a.Field("email")
	assert.False(t, ok, "empty email counts as absent")

	_, ok = a.Field("firstName")
	assert.False(t, ok)
}
