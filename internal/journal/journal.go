package journal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/bulk"
	"github.com/andresuchdata/cloudpath/internal/config"
)

// Store is a plan journal the caller must Close.
type Store interface {
	bulk.Journal
	io.Closer
}

// Open returns the journal named by driver, or nil for "none".
func Open(ctx context.Context, driver string, cfg *config.Config) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "none":
		return nil, nil
	case "badger":
		return OpenBadger(cfg.Journal.BadgerDir)
	case "postgres":
		db, err := NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return pg, nil
	case "redis":
		return NewRedis(ctx, cfg.Cache)
	}
	return nil, fmt.Errorf("unknown journal driver %q (want none, badger, postgres or redis)", driver)
}

const defaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
