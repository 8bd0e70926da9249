package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one endpoint's sync within a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// RunEntry is one row of the sync run history.
type RunEntry struct {
	ID          int64      `json:"id"`
	RunID       uuid.UUID  `json:"run_id"`
	Source      Source     `json:"source"`
	Endpoint    string     `json:"endpoint"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Pages       int        `json:"pages"`
	Records     int64      `json:"records"`
	Error       string     `json:"error,omitempty"`
}

// RunLog records per-endpoint sync outcomes for observability. The
// orchestrator treats it as best-effort: a failing run log never fails a sync.
type RunLog interface {
	// Start records the beginning of one endpoint's sync and returns its row ID.
	Start(ctx context.Context, runID uuid.UUID, source Source, endpoint string) (int64, error)

	// Complete marks an endpoint sync as successfully completed.
	Complete(ctx context.Context, id int64, pages int, records int64) error

	// Fail marks an endpoint sync as failed with an error message.
	Fail(ctx context.Context, id int64, errMsg string) error

	// ListRecent returns the newest entries, most recent first.
	ListRecent(ctx context.Context, limit int) ([]RunEntry, error)
}
