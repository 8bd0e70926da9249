package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects how the orchestrator treats previously landed data.
type Mode string

const (
	// ModeFull clears the sink for the source before ingesting.
	ModeFull Mode = "full"
	// ModeIncremental appends, relying on watermarks to fetch only new data.
	ModeIncremental Mode = "incremental"
)

// EndpointResult is one endpoint's outcome within a sync run.
type EndpointResult struct {
	Endpoint string        `json:"endpoint"`
	Source   Source        `json:"source"`
	Pages    int           `json:"pages"`
	Records  int64         `json:"records"`
	Terminal TerminalReason `json:"terminal,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Failed reports whether this endpoint's sync failed.
func (r EndpointResult) Failed() bool { return r.Error != "" }

// SyncReport aggregates per-endpoint outcomes of one orchestrator run.
// Errors are captured here, never propagated, so one misbehaving endpoint
// cannot block ingestion of the others.
type SyncReport struct {
	RunID       uuid.UUID        `json:"run_id"`
	Source      Source           `json:"source"`
	Mode        Mode             `json:"mode"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Results     []EndpointResult `json:"results"`
}

// TotalRecords sums records across all endpoints.
func (r *SyncReport) TotalRecords() int64 {
	var n int64
	for _, res := range r.Results {
		n += res.Records
	}
	return n
}

// FailedCount returns how many endpoints failed.
func (r *SyncReport) FailedCount() int {
	var n int
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// String renders the report as a human-readable multi-line summary suitable
// for logging and alerting.
func (r *SyncReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sync run %s source=%s mode=%s\n", r.RunID, r.Source, r.Mode)

	for _, res := range r.Results {
		if res.Failed() {
			fmt.Fprintf(&b, "  %-24s FAILED  %s\n", res.Endpoint, res.Error)
			continue
		}
		fmt.Fprintf(&b, "  %-24s ok      pages=%d records=%d (%s, %s)\n",
			res.Endpoint, res.Pages, res.Records, res.Terminal, res.Duration.Round(time.Millisecond))
	}

	fmt.Fprintf(&b, "%d endpoints, %d succeeded, %d failed, %d records in %s",
		len(r.Results),
		len(r.Results)-r.FailedCount(),
		r.FailedCount(),
		r.TotalRecords(),
		r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond),
	)
	return b.String()
}
