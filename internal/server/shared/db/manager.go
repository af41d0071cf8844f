// Package db wires the PostgreSQL connection, schema migrations, and
// repository construction behind a single manager.
package db

import (
	"context"
	"database/sql"

	"github.com/avolkov/authgate/internal/server/users"
)

// RepositoryManager vends the repositories backed by a shared connection pool.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Conn() *sql.DB
	Users() users.Repository
	Close() error
}
