package store

import (
	"context"
	"fmt"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Options selects a backend.
type Options struct {
	Driver   string // sqlite | postgres
	Path     string // sqlite file
	DSN      string // postgres connection string
	MaxConns int32
}

// Open returns the Repository for opts.Driver with its schema initialized.
func Open(ctx context.Context, opts Options) (Repository, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStore(ctx, opts.Path)
	case "postgres":
		return NewPostgresStore(ctx, opts.DSN, PostgresOptions{MaxConns: opts.MaxConns})
	default:
		return nil, amerrors.ConfigError("store.driver", fmt.Sprintf("unsupported driver %q", opts.Driver))
	}
}
