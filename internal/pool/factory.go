package pool

import (
	"context"
	"database/sql"
)

// SQLFactory creates dedicated sessions from a *sql.DB. Optional init
// statements run once per new connection (sqlite pragmas are
// per-connection settings).
type SQLFactory struct {
	db   *sql.DB
	kind Kind
	init []string
}

// NewSQLFactory wraps db. initStmts are executed on every new
// connection before it enters the pool.
func NewSQLFactory(db *sql.DB, kind Kind, initStmts ...string) *SQLFactory {
	return &SQLFactory{db: db, kind: kind, init: initStmts}
}

func (f *SQLFactory) Kind() Kind { return f.kind }

func (f *SQLFactory) Connect(ctx context.Context) (Conn, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	for _, stmt := range f.init {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
