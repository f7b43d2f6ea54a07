package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/database/queries"
	"github.com/ngenohkevin/circulation/internal/store"
)

// Store is the PostgreSQL implementation of store.Store
type Store struct {
	*queries.Queries
	db *Database
}

var _ store.Store = (*Store)(nil)

// NewStore creates a store on the connection pool
func NewStore(db *Database, opts ...queries.Option) *Store {
	return &Store{Queries: queries.New(db.Pool, opts...), db: db}
}

// InTx runs fn in one read committed transaction, committing only if fn succeeds.
// Each statement after a row or advisory lock sees rows committed while it waited.
// The locks are released at commit or rollback.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	return pgx.BeginTxFunc(ctx, s.db.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(s.Queries.WithTx(tx))
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Health(ctx)
}
