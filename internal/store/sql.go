package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/northgate-data/ingest-cli/internal/ingest"

	// Warehouse drivers registered for database/sql.
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavor for DDL differences between warehouses.
type Dialect string

const (
	DialectSQLite    Dialect = "sqlite"
	DialectSnowflake Dialect = "snowflake"
)

// SQLStore implements the watermark store, raw page sink, and run log on
// database/sql. It serves the embedded SQLite warehouse used for local
// development and the Snowflake warehouse used in production. DML is shared
// between dialects; only the DDL differs.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens a database/sql warehouse. The driver name matches the
// dialect: "sqlite" for modernc or "snowflake" for gosnowflake.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "store: open %s warehouse", dialect)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, eris.Wrapf(err, "store: ping %s warehouse", dialect)
	}
	if dialect == DialectSQLite {
		// WAL lets status queries run while a sync is writing.
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
			conn.Close()
			return nil, eris.Wrap(err, "store: set sqlite pragmas")
		}
	}
	return &SQLStore{db: conn, dialect: dialect}, nil
}

// NewSQL wraps an existing database/sql handle. Used by tests with sqlmock.
func NewSQL(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error { return s.db.Close() }

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS raw_pages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	ingested_at  TIMESTAMP NOT NULL,
	source       TEXT      NOT NULL,
	endpoint     TEXT      NOT NULL,
	page_number  INTEGER   NOT NULL,
	record_count INTEGER   NOT NULL,
	payload      TEXT      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_pages_source_endpoint
	ON raw_pages (source, endpoint, ingested_at);
CREATE TABLE IF NOT EXISTS watermarks (
	endpoint          TEXT      NOT NULL,
	source            TEXT      NOT NULL,
	last_updated      TIMESTAMP,
	last_numeric_id   INTEGER,
	last_ingestion_at TIMESTAMP NOT NULL,
	total_records     INTEGER   NOT NULL DEFAULT 0,
	last_run_records  INTEGER   NOT NULL DEFAULT 0,
	PRIMARY KEY (endpoint, source)
);
CREATE TABLE IF NOT EXISTS sync_runs (
	id           INTEGER   PRIMARY KEY,
	run_id       TEXT      NOT NULL,
	source       TEXT      NOT NULL,
	endpoint     TEXT      NOT NULL,
	status       TEXT      NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	pages        INTEGER   NOT NULL DEFAULT 0,
	records      INTEGER   NOT NULL DEFAULT 0,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at
	ON sync_runs (started_at);
`

var snowflakeDDL = []string{
	`CREATE TABLE IF NOT EXISTS raw_pages (
		id           BIGINT IDENTITY PRIMARY KEY,
		ingested_at  TIMESTAMP_TZ NOT NULL,
		source       VARCHAR      NOT NULL,
		endpoint     VARCHAR      NOT NULL,
		page_number  INTEGER      NOT NULL,
		record_count INTEGER      NOT NULL,
		payload      VARIANT      NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		endpoint          VARCHAR      NOT NULL,
		source            VARCHAR      NOT NULL,
		last_updated      TIMESTAMP_TZ,
		last_numeric_id   BIGINT,
		last_ingestion_at TIMESTAMP_TZ NOT NULL,
		total_records     BIGINT       NOT NULL DEFAULT 0,
		last_run_records  BIGINT       NOT NULL DEFAULT 0,
		PRIMARY KEY (endpoint, source)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id           BIGINT       PRIMARY KEY,
		run_id       VARCHAR      NOT NULL,
		source       VARCHAR      NOT NULL,
		endpoint     VARCHAR      NOT NULL,
		status       VARCHAR      NOT NULL,
		started_at   TIMESTAMP_TZ NOT NULL,
		completed_at TIMESTAMP_TZ,
		pages        INTEGER      NOT NULL DEFAULT 0,
		records      BIGINT       NOT NULL DEFAULT 0,
		error        VARCHAR
	)`,
}

// Migrate creates the warehouse tables if they do not exist. Snowflake
// executes one statement per call, SQLite takes the whole script.
func (s *SQLStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.sql"), zap.String("dialect", string(s.dialect)))

	switch s.dialect {
	case DialectSQLite:
		if _, err := s.db.ExecContext(ctx, sqliteDDL); err != nil {
			return eris.Wrap(err, "store: create sqlite tables")
		}
	case DialectSnowflake:
		for _, stmt := range snowflakeDDL {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return eris.Wrap(err, "store: create snowflake tables")
			}
		}
	default:
		return eris.Errorf("store: unknown dialect %q", s.dialect)
	}

	log.Info("warehouse schema ready")
	return nil
}

// Get returns the watermark for an endpoint, or nil if none exists yet.
func (s *SQLStore) Get(ctx context.Context, source ingest.Source, endpoint string) (*ingest.Watermark, error) {
	var (
		wm          ingest.Watermark
		lastUpdated sql.NullTime
		lastID      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records
		 FROM watermarks WHERE source = ? AND endpoint = ?`,
		string(source), endpoint,
	).Scan(&wm.Endpoint, &wm.Source, &lastUpdated, &lastID, &wm.LastIngestionAt, &wm.TotalRecords, &wm.LastRunRecords)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get watermark %s/%s", source, endpoint)
	}
	if lastUpdated.Valid {
		t := lastUpdated.Time.UTC()
		wm.LastUpdated = &t
	}
	if lastID.Valid {
		id := lastID.Int64
		wm.LastNumericID = &id
	}
	return &wm, nil
}

// Put replaces the watermark row for (endpoint, source). Delete-then-insert
// inside a transaction is the upsert shared by both dialects; Snowflake has
// no ON CONFLICT clause.
func (s *SQLStore) Put(ctx context.Context, wm ingest.Watermark) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "store: begin watermark upsert")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM watermarks WHERE endpoint = ? AND source = ?`,
		wm.Endpoint, string(wm.Source),
	); err != nil {
		return eris.Wrapf(err, "store: delete watermark %s/%s", wm.Source, wm.Endpoint)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO watermarks
		   (endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		wm.Endpoint, string(wm.Source), nullTime(wm.LastUpdated), nullInt(wm.LastNumericID),
		wm.LastIngestionAt, wm.TotalRecords, wm.LastRunRecords,
	); err != nil {
		return eris.Wrapf(err, "store: insert watermark %s/%s", wm.Source, wm.Endpoint)
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrapf(err, "store: commit watermark %s/%s", wm.Source, wm.Endpoint)
	}
	return nil
}

// List returns all watermarks for a source, ordered by endpoint.
func (s *SQLStore) List(ctx context.Context, source ingest.Source) ([]ingest.Watermark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, source, last_updated, last_numeric_id, last_ingestion_at, total_records, last_run_records
		 FROM watermarks WHERE source = ? ORDER BY endpoint`,
		string(source),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list watermarks for %s", source)
	}
	defer rows.Close()

	var result []ingest.Watermark
	for rows.Next() {
		var (
			wm          ingest.Watermark
			lastUpdated sql.NullTime
			lastID      sql.NullInt64
		)
		if err := rows.Scan(&wm.Endpoint, &wm.Source, &lastUpdated, &lastID, &wm.LastIngestionAt, &wm.TotalRecords, &wm.LastRunRecords); err != nil {
			return nil, eris.Wrap(err, "store: scan watermark row")
		}
		if lastUpdated.Valid {
			t := lastUpdated.Time.UTC()
			wm.LastUpdated = &t
		}
		if lastID.Valid {
			id := lastID.Int64
			wm.LastNumericID = &id
		}
		result = append(result, wm)
	}
	return result, rows.Err()
}

// Append durably stores one raw page.
func (s *SQLStore) Append(ctx context.Context, page ingest.RawPage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_pages (ingested_at, source, endpoint, page_number, record_count, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		page.IngestedAt, string(page.Source), page.Endpoint, page.PageNumber, page.RecordCount, string(page.Payload),
	)
	if err != nil {
		return eris.Wrapf(err, "store: append raw page %s/%s #%d", page.Source, page.Endpoint, page.PageNumber)
	}
	return nil
}

// Clear removes all raw pages for a source. Used only by full-refresh runs.
func (s *SQLStore) Clear(ctx context.Context, source ingest.Source) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM raw_pages WHERE source = ?`, string(source))
	if err != nil {
		return eris.Wrapf(err, "store: clear raw pages for %s", source)
	}
	return nil
}

// Start records the beginning of one endpoint's sync and returns its row ID.
// IDs are assigned client-side; neither driver supports RETURNING portably.
func (s *SQLStore) Start(ctx context.Context, runID uuid.UUID, source ingest.Source, endpoint string) (int64, error) {
	id := time.Now().UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, run_id, source, endpoint, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, runID.String(), string(source), endpoint, string(ingest.RunRunning), time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "store: start sync run for %s/%s", source, endpoint)
	}
	return id, nil
}

// Complete marks an endpoint sync as successfully completed.
func (s *SQLStore) Complete(ctx context.Context, id int64, pages int, records int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, completed_at = ?, pages = ?, records = ? WHERE id = ?`,
		string(ingest.RunComplete), time.Now().UTC(), pages, records, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete sync run %d", id)
	}
	return nil
}

// Fail marks an endpoint sync as failed with an error message.
func (s *SQLStore) Fail(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		string(ingest.RunFailed), time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail sync run %d", id)
	}
	return nil
}

// ListRecent returns the newest run entries, most recent first.
func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]ingest.RunEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source, endpoint, status, started_at, completed_at, pages, records, error
		 FROM sync_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list sync runs")
	}
	defer rows.Close()

	var entries []ingest.RunEntry
	for rows.Next() {
		var (
			e           ingest.RunEntry
			runID       string
			completedAt sql.NullTime
			errStr      sql.NullString
		)
		if err := rows.Scan(&e.ID, &runID, &e.Source, &e.Endpoint, &e.Status, &e.StartedAt, &completedAt, &e.Pages, &e.Records, &errStr); err != nil {
			return nil, eris.Wrap(err, "store: scan sync run row")
		}
		if parsed, err := uuid.Parse(runID); err == nil {
			e.RunID = parsed
		}
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			e.CompletedAt = &t
		}
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
