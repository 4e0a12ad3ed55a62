package pgx

import (
	"context"
	"sync"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// CascadeDBStorage implements store.CascadeStorage on PostgreSQL with
// pgvector for paragraph similarity search. Writes are serialized with a
// mutex so concurrent build updates cannot interleave.
type CascadeDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

// NewCascadeDBStorageWithConnection creates a CascadeDBStorage over an
// existing connection or pool.
func NewCascadeDBStorageWithConnection(conn pgxIConn) *CascadeDBStorage {
	return &CascadeDBStorage{conn: conn}
}
