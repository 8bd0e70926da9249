package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/northgate-data/ingest-cli/internal/ingest"
	"github.com/northgate-data/ingest-cli/internal/store"
)

// warehouse bundles the three storage roles every command needs.
type warehouse interface {
	ingest.WatermarkStore
	ingest.RawPageSink
	ingest.RunLog
	Migrate(ctx context.Context) error
}

// openWarehouse connects to the configured warehouse backend. The returned
// func releases the connection.
func openWarehouse(ctx context.Context) (warehouse, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			return nil, nil, eris.New("no database_url configured (set store.database_url or INGEST_STORE_DATABASE_URL)")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, eris.Wrap(err, "create connection pool")
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, eris.Wrap(err, "ping database")
		}
		fmt.Println("Connected to warehouse")
		return store.NewPostgres(pool), pool.Close, nil

	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ingest.db"
		}
		st, err := store.OpenSQL(ctx, store.DialectSQLite, dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	case "snowflake":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			return nil, nil, eris.New("snowflake driver requires store.database_url (a gosnowflake DSN)")
		}
		st, err := store.OpenSQL(ctx, store.DialectSnowflake, dsn)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil

	default:
		return nil, nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildRegistry loads the built-in endpoints plus any operator overrides.
func buildRegistry() (*ingest.Registry, error) {
	reg := ingest.NewRegistry()
	if cfg.Ingest.EndpointsFile != "" {
		if err := reg.LoadFile(cfg.Ingest.EndpointsFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
