package ingest

import (
	"context"
	"encoding/json"
	"time"
)

// RawPage is one immutable record of a single API response page. Pages are
// never mutated after insert; deduplication of business entities is the
// responsibility of the downstream extraction layer.
type RawPage struct {
	IngestedAt  time.Time       `json:"ingested_at"`
	Source      Source          `json:"source"`
	Endpoint    string          `json:"endpoint"`
	PageNumber  int             `json:"page_number"` // 0-based
	RecordCount int             `json:"record_count"`
	Payload     json.RawMessage `json:"payload"`
}

// RawPageSink is the append-only landing zone for raw payloads.
type RawPageSink interface {
	// Append durably stores one page. No dedup is performed.
	Append(ctx context.Context, page RawPage) error

	// Clear removes all pages for a source. Used only by full-refresh runs.
	Clear(ctx context.Context, source Source) error
}
