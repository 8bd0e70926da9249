package ingest

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// ExtractRecords pulls the business records out of a page payload according
// to the endpoint's resolved shape. A payload whose array key is absent
// yields an empty slice, which callers treat as a terminal empty page.
func ExtractRecords(payload json.RawMessage, shape PayloadShape) ([]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return nil, eris.Wrap(err, "payload: not a JSON object")
	}

	raw, ok := top[shape.ArrayKey()]
	if !ok {
		return nil, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, eris.Wrapf(err, "payload: %q is not an array", shape.ArrayKey())
	}
	return records, nil
}

// NextCursor extracts the opaque pagination token from a cursor-style page.
// The second return is false when no (or an empty) cursor is present, which
// is itself a termination signal independent of record count.
func NextCursor(payload json.RawMessage) (string, bool) {
	var top struct {
		Cursor string `json:"cursor"`
	}
	if err := json.Unmarshal(payload, &top); err != nil {
		return "", false
	}
	return top.Cursor, top.Cursor != ""
}
