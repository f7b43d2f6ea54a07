// Package queries implements store.Querier on PostgreSQL.
//
// SQL is built with goqu's postgres dialect in prepared mode and executed
// through pgx, so the same Queries value works on a pool or inside a
// transaction.
package queries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the dialect
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ngenohkevin/circulation/internal/store"
)

const (
	tableBranches     = "branches"
	tableItems        = "library_items"
	tableCopies       = "item_copies"
	tablePatrons      = "patrons"
	tableTransactions = "transactions"
	tableReservations = "reservations"
	tableFines        = "fines"

	colID        = "id"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

var dialect = goqu.Dialect("postgres")

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries runs circulation record operations against one DBTX
type Queries struct {
	db     DBTX
	logger *slog.Logger
}

// Option configures Queries
type Option func(*Queries)

// WithLogger logs every statement at debug level with its duration
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queries) {
		q.logger = logger
	}
}

// New creates Queries on db
func New(db DBTX, opts ...Option) *Queries {
	q := &Queries{db: db}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// WithTx returns a copy of q bound to tx
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx, logger: q.logger}
}

var _ store.Querier = (*Queries)(nil)

type sqlBuilder interface {
	ToSQL() (string, []any, error)
}

func (q *Queries) logQuery(op, sql string, start time.Time, err error) {
	if q.logger == nil {
		return
	}
	if err != nil {
		q.logger.Error("query failed", "op", op, "query", sql, "error", err)
		return
	}
	q.logger.Debug("query executed", "op", op, "query", sql, "duration_ms", time.Since(start).Milliseconds())
}

func (q *Queries) exec(ctx context.Context, op string, b sqlBuilder) (int64, error) {
	sql, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build %s: %w", op, err)
	}
	start := time.Now()
	tag, err := q.db.Exec(ctx, sql, args...)
	q.logQuery(op, sql, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// execOne runs an update that must touch exactly one row
func (q *Queries) execOne(ctx context.Context, op string, b sqlBuilder) error {
	n, err := q.exec(ctx, op, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *Queries) queryRow(ctx context.Context, op string, b sqlBuilder, dest ...any) error {
	sql, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", op, err)
	}
	start := time.Now()
	err = q.db.QueryRow(ctx, sql, args...).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		q.logQuery(op, sql, start, nil)
		return store.ErrNotFound
	}
	q.logQuery(op, sql, start, err)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// queryRows scans every row with scan and collects the results
func queryRows[T any](ctx context.Context, q *Queries, op string, b sqlBuilder, scan func(pgx.Row) (T, error)) ([]T, error) {
	sql, args, err := b.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", op, err)
	}
	start := time.Now()
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		q.logQuery(op, sql, start, err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", op, err)
		}
		out = append(out, v)
	}
	err = rows.Err()
	q.logQuery(op, sql, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return out, nil
}

func selectFrom(table string, cols []any) *goqu.SelectDataset {
	return dialect.From(table).Prepared(true).Select(cols...)
}

// whereAll adds the equality filters in ex, if there are any
func whereAll(stmt *goqu.SelectDataset, ex goqu.Ex) *goqu.SelectDataset {
	if len(ex) == 0 {
		return stmt
	}
	return stmt.Where(ex)
}

func byID(id int64) goqu.Ex {
	return goqu.Ex{colID: id}
}

func columns(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = goqu.C(n)
	}
	return out
}
