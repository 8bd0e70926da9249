package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRecords_Collection(t *testing.T) {
	payload := json.RawMessage(`{"collection":[{"id":1},{"id":2}],"pagination":{"skippages":0}}`)
	records, err := ExtractRecords(payload, PayloadShape{Kind: ShapeCollection})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.JSONEq(t, `{"id":1}`, string(records[0]))
}

func TestExtractRecords_Items(t *testing.T) {
	payload := json.RawMessage(`{"items":[{"sku":"a"}],"cursor":"next"}`)
	records, err := ExtractRecords(payload, PayloadShape{Kind: ShapeItems})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestExtractRecords_Named(t *testing.T) {
	payload := json.RawMessage(`{"levels":[{"sku":"a","qty":3},{"sku":"b","qty":0}]}`)
	records, err := ExtractRecords(payload, PayloadShape{Kind: ShapeNamed, Name: "levels"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestExtractRecords_AbsentKeyIsEmpty(t *testing.T) {
	payload := json.RawMessage(`{"pagination":{"results":0}}`)
	records, err := ExtractRecords(payload, PayloadShape{Kind: ShapeCollection})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractRecords_EmptyArray(t *testing.T) {
	payload := json.RawMessage(`{"collection":[]}`)
	records, err := ExtractRecords(payload, PayloadShape{Kind: ShapeCollection})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExtractRecords_Errors(t *testing.T) {
	_, err := ExtractRecords(json.RawMessage(`[1,2,3]`), PayloadShape{Kind: ShapeCollection})
	assert.Error(t, err, "top level must be an object")

	_, err = ExtractRecords(json.RawMessage(`{"collection":"oops"}`), PayloadShape{Kind: ShapeCollection})
	assert.Error(t, err, "array key must hold an array")
}

func TestNextCursor(t *testing.T) {
	cur, ok := NextCursor(json.RawMessage(`{"items":[],"cursor":"abc"}`))
	assert.True(t, ok)
	assert.Equal(t, "abc", cur)

	_, ok = NextCursor(json.RawMessage(`{"items":[]}`))
	assert.False(t, ok)

	_, ok = NextCursor(json.RawMessage(`{"items":[],"cursor":""}`))
	assert.False(t, ok, "empty cursor terminates pagination")

	_, ok = NextCursor(json.RawMessage(`not json`))
	assert.False(t, ok)
}
