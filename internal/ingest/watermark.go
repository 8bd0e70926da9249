package ingest

import (
	"context"
	"encoding/json"
	"time"
)

// Watermark tracks incremental progress for one endpoint. Exactly one row
// exists per (endpoint, source); both value fields are nil until the first
// successful sync. Values never regress.
type Watermark struct {
	Endpoint        string     `json:"endpoint"`
	Source          Source     `json:"source"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
	LastNumericID   *int64     `json:"last_numeric_id,omitempty"`
	LastIngestionAt time.Time  `json:"last_ingestion_at"`
	TotalRecords    int64      `json:"total_records"`
	LastRunRecords  int64      `json:"last_run_records"`
}

// WatermarkStore persists watermarks keyed by (endpoint, source). It is read
// before a sync and written once per endpoint after a fully successful pass.
type WatermarkStore interface {
	// Get returns the watermark for an endpoint, or nil if none exists yet.
	Get(ctx context.Context, source Source, endpoint string) (*Watermark, error)

	// Put inserts or replaces the watermark row.
	Put(ctx context.Context, wm Watermark) error

	// List returns all watermarks for a source, ordered by endpoint.
	List(ctx context.Context, source Source) ([]Watermark, error)
}

// Advance merges a run's outcome into the watermark. Candidate values only
// replace stored values when strictly greater; an absent candidate keeps the
// old value. Run statistics are always updated.
func (w *Watermark) Advance(c *Candidate, now time.Time, records int64) {
	if c != nil {
		if c.ts != nil && (w.LastUpdated == nil || c.ts.After(*w.LastUpdated)) {
			t := *c.ts
			w.LastUpdated = &t
		}
		if c.id != nil && (w.LastNumericID == nil || *c.id > *w.LastNumericID) {
			id := *c.id
			w.LastNumericID = &id
		}
	}
	w.LastIngestionAt = now
	w.LastRunRecords = records
	w.TotalRecords += records
}

// Candidate accumulates the maximum watermark value observed across all
// records of a run. APIs do not guarantee record order, so this is a
// monotonic max-accumulator rather than "the last record's value".
type Candidate struct {
	ts *time.Time
	id *int64
}

// Observe inspects one record and raises the candidate if the configured
// watermark field carries a higher value. Records missing the field, or
// carrying an unparseable value, are ignored.
func (c *Candidate) Observe(rec json.RawMessage, cfg EndpointConfig) {
	if cfg.WatermarkType == WatermarkNone || cfg.WatermarkAttr == "" {
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(rec, &fields); err != nil {
		return
	}
	raw, ok := fields[cfg.WatermarkAttr]
	if !ok {
		return
	}

	switch cfg.WatermarkType {
	case WatermarkTimestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return
		}
		if c.ts == nil || t.After(*c.ts) {
			c.ts = &t
		}
	case WatermarkNumericID:
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			return
		}
		if c.id == nil || id > *c.id {
			c.id = &id
		}
	}
}

// Timestamp returns the accumulated timestamp value, if any.
func (c *Candidate) Timestamp() *time.Time { return c.ts }

// NumericID returns the accumulated numeric ID value, if any.
func (c *Candidate) NumericID() *int64 { return c.id }

// Empty reports whether no watermark value was observed.
func (c *Candidate) Empty() bool { return c.ts == nil && c.id == nil }

// timestampLayouts are accepted watermark timestamp formats, tried in order.
// The ledger API emits fractional seconds, the shop API plain RFC3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
