package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "empty object", body: `{}`},
		{name: "nested", body: `{"job_name":"t1","rows":[1,2.5,{"a":null}],"dry_run":true}`},
		{name: "array top level", body: `[1,2]`, wantErr: ErrNotObject.Error()},
		{name: "string top level", body: `"hello"`, wantErr: ErrNotObject.Error()},
		{name: "invalid json", body: `{"job_name":`, wantErr: "failed to decode job payload"},
		{name: "trailing data", body: `{} {}`, wantErr: "trailing data"},
		{name: "empty body", body: ``, wantErr: "failed to decode job payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Decode([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, obj)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, obj)
		})
	}
}

func TestDecode_PreservesShape(t *testing.T) {
	obj, err := Decode([]byte(`{"job_name":"t1","count":12345678901234,"ratio":0.5,"tags":["a","b"],"meta":{"ok":true,"none":null}}`))
	require.NoError(t, err)

	name, ok := obj["job_name"].AsString()
	require.True(t, ok)
	assert.Equal(t, "t1", name)

	count, ok := obj["count"].AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(12345678901234), count)

	ratio, ok := obj["ratio"].AsFloat()
	require.True(t, ok)
	assert.Equal(t, 0.5, ratio)

	tags, ok := obj["tags"].AsArray()
	require.True(t, ok)
	require.Len(t, tags, 2)
	assert.Equal(t, KindString, tags[1].Kind())

	meta, ok := obj["meta"].AsObject()
	require.True(t, ok)
	flag, ok := meta["ok"].AsBool()
	require.True(t, ok)
	assert.True(t, flag)
	assert.Equal(t, KindNull, meta["none"].Kind())

	_, ok = obj["missing"].AsString()
	assert.False(t, ok, "absent keys read as null")
}

func TestEncodeDecode_IntegersStayExact(t *testing.T) {
	in := Object{
		"job_name": String("t1"),
		"big":      Int(9007199254740993),
		"list":     Array(Number(1.5), Bool(false), Null()),
	}

	body, err := Encode(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_name":"t1","big":9007199254740993,"list":[1.5,false,null]}`, string(body))

	out, err := Decode(body)
	require.NoError(t, err)
	big, ok := out["big"].AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), big)
}

func TestEncode_NilObject(t *testing.T) {
	body, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(body))
}

func TestNewJobRequest(t *testing.T) {
	tests := []struct {
		name     string
		payload  Object
		wantName string
		wantDate string
	}{
		{name: "explicit identity", payload: Object{"job_name": String("t1"), "processing_date": String("2024-01-01")}, wantName: "t1", wantDate: "2024-01-01"},
		{name: "default identity", payload: Object{"foo": Int(1)}, wantName: "worker-job"},
		{name: "non-string job_name ignored", payload: Object{"job_name": Int(7)}, wantName: "worker-job"},
		{name: "empty job_name ignored", payload: Object{"job_name": String("")}, wantName: "worker-job"},
		{name: "nil payload", payload: nil, wantName: "worker-job"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewJobRequest(tt.payload, "worker-job")
			assert.Equal(t, tt.wantName, req.JobName)
			assert.Equal(t, tt.wantDate, req.ProcessingDate)
			assert.NotNil(t, req.Payload)
		})
	}
}

func TestFromInterface(t *testing.T) {
	v, err := FromInterface(map[string]any{
		"a": 1,
		"b": []any{"x", 2.5, nil},
		"c": json.Number("3"),
	})
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())

	_, err = FromInterface(map[string]any{"bad": struct{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "bad"`)
}

func TestObject_InterfaceAndKeys(t *testing.T) {
	obj := Object{"b": Int(2), "a": String("x")}
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	assert.Equal(t, map[string]any{"a": "x", "b": json.Number("2")}, obj.Interface())
}
