package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/config"
	"github.com/sells-group/crc-cores/internal/cores"
	"github.com/sells-group/crc-cores/internal/resilience"
	"github.com/sells-group/crc-cores/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		return store.NewMongo(ctx, cfg.Store.DatabaseURL, cfg.Store.Database, store.MongoOptions{
			InsertBatchSize: cfg.Pipeline.InsertBatchSize,
		})
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "crc.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the config for mode, connects and migrates. Migration
// is retried because it is the first round trip to the server.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("cmd", "migrate "+cfg.Store.Driver)
	if err := resilience.Do(ctx, retry, st.Migrate); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func collectionsFromConfig(c config.CollectionsConfig) cores.Collections {
	cols := cores.DefaultCollections()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cols.CoresRaw, c.CoresRaw)
	set(&cols.MapServer, c.MapServer)
	set(&cols.Scraped, c.Scraped)
	set(&cols.GMU, c.GMU)
	set(&cols.Output, c.Output)
	return cols
}
