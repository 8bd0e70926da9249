package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/northgate-data/ingest-cli/internal/db"
	"github.com/northgate-data/ingest-cli/internal/ingest"
)

// PostgresStore implements the watermark store, raw page sink, and run log
// on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore backed by the given connection pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies pending schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Get returns the watermark for an endpoint, or nil if none exists yet.
func (s *PostgresStore) Get(ctx context.Context, source ingest.Source, endpoint string) (*ingest.Watermark, error) {
	var wm ingest.Watermark
	err := s.pool.QueryRow(ctx,
		`SELECT endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records
		 FROM raw_data.watermarks WHERE source = $1 AND endpoint = $2`,
		string(source), endpoint,
	).Scan(&wm.Endpoint, &wm.Source, &wm.LastUpdated, &wm.LastNumericID, &wm.LastIngestionAt, &wm.TotalRecords, &wm.LastRunRecords)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "store: get watermark %s/%s", source, endpoint)
	}
	return &wm, nil
}

// Put inserts or replaces the watermark row for (endpoint, source).
func (s *PostgresStore) Put(ctx context.Context, wm ingest.Watermark) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO raw_data.watermarks
		   (endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (endpoint, source) DO UPDATE SET
		   last_updated      = EXCLUDED.last_updated,
		   last_numeric_id   = EXCLUDED.last_numeric_id,
		   last_ingestion_at = EXCLUDED.last_ingestion_at,
		   total_records     = EXCLUDED.total_records,
		   last_run_records  = EXCLUDED.last_run_records`,
		wm.Endpoint, string(wm.Source), wm.LastUpdated, wm.LastNumericID, wm.LastIngestionAt, wm.TotalRecords, wm.LastRunRecords,
	)
	if err != nil {
		return eris.Wrapf(err, "store: put watermark %s/%s", wm.Source, wm.Endpoint)
	}
	return nil
}

// List returns all watermarks for a source, ordered by endpoint.
func (s *PostgresStore) List(ctx context.Context, source ingest.Source) ([]ingest.Watermark, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records
		 FROM raw_data.watermarks WHERE source = $1 ORDER BY endpoint`,
		string(source),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list watermarks for %s", source)
	}
	defer rows.Close()

	var result []ingest.Watermark
	for rows.Next() {
		var wm ingest.Watermark
		if err := rows.Scan(&wm.Endpoint, &wm.Source, &wm.LastUpdated, &wm.LastNumericID, &wm.LastIngestionAt, &wm.TotalRecords, &wm.LastRunRecords); err != nil {
			return nil, eris.Wrap(err, "store: scan watermark row")
		}
		result = append(result, wm)
	}
	return result, rows.Err()
}

// Append durably stores one raw page.
func (s *PostgresStore) Append(ctx context.Context, page ingest.RawPage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO raw_data.raw_pages (ingested_at, source, endpoint, page_number, record_count, payload)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		page.IngestedAt, string(page.Source), page.Endpoint, page.PageNumber, page.RecordCount, []byte(page.Payload),
	)
	if err != nil {
		return eris.Wrapf(err, "store: append raw page %s/%s #%d", page.Source, page.Endpoint, page.PageNumber)
	}
	return nil
}

// Clear removes all raw pages for a source. Used only by full-refresh runs.
func (s *PostgresStore) Clear(ctx context.Context, source ingest.Source) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM raw_data.raw_pages WHERE source = $1`,
		string(source),
	)
	if err != nil {
		return eris.Wrapf(err, "store: clear raw pages for %s", source)
	}
	return nil
}

// Start records the beginning of one endpoint's sync and returns its row ID.
func (s *PostgresStore) Start(ctx context.Context, runID uuid.UUID, source ingest.Source, endpoint string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO raw_data.sync_runs (run_id, source, endpoint, status, started_at)
		 VALUES ($1, $2, $3, 'running', now()) RETURNING id`,
		runID, string(source), endpoint,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "store: start sync run for %s/%s", source, endpoint)
	}
	return id, nil
}

// Complete marks an endpoint sync as successfully completed.
func (s *PostgresStore) Complete(ctx context.Context, id int64, pages int, records int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_data.sync_runs
		 SET status = 'complete', completed_at = now(), pages = $1, records = $2
		 WHERE id = $3`,
		pages, records, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete sync run %d", id)
	}
	return nil
}

// Fail marks an endpoint sync as failed with an error message.
func (s *PostgresStore) Fail(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_data.sync_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail sync run %d", id)
	}
	return nil
}

// ListRecent returns the newest run entries, most recent first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]ingest.RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, source, endpoint, status, started_at, completed_at, pages, records, error
		 FROM raw_data.sync_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list sync runs")
	}
	defer rows.Close()

	var entries []ingest.RunEntry
	for rows.Next() {
		var e ingest.RunEntry
		var completedAt *time.Time
		var errStr *string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.Endpoint, &e.Status, &e.StartedAt, &completedAt, &e.Pages, &e.Records, &errStr); err != nil {
			return nil, eris.Wrap(err, "store: scan sync run row")
		}
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
