package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/registry-scraper/internal/store"
)

// initStore opens the crawl-history database and applies migrations.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
