package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-cli/internal/store"
)

// initStore opens the configured store and ensures the upload log and the
// given record tables exist.
func initStore(ctx context.Context, tables ...string) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "kpi.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx, tables...); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// tableFlag returns the --table flag value, falling back to config.
func tableFlag(override string) string {
	if override != "" {
		return override
	}
	return cfg.Store.Table
}
