package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueID(t *testing.T) {
	a, b := UniqueID(), UniqueID()
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}

func TestParseJSONArg(t *testing.T) {
	assert.Equal(t, map[string]any{"n": 1.0}, ParseJSONArg(`{"n":1}`))
	assert.Equal(t, []any{"a", true}, ParseJSONArg(`["a",true]`))
	assert.Equal(t, 3.5, ParseJSONArg("3.5"))
	assert.Equal(t, "hello world", ParseJSONArg("hello world"))
	assert.Equal(t, "hi", ParseJSONArg(`"hi"`))
}

func TestMustToJSON(t *testing.T) {
	assert.JSONEq(t, `{"a":[1,2]}`, MustToJSON(map[string]any{"a": []int{1, 2}}))
}

func TestWriteResp(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteResp(rec, 201, map[string]string{"status": "ok"})

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
