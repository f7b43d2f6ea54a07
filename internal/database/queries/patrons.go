package queries

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
)

var patronColumns = columns(colID, "first_name", "last_name", "email", "balance", "card_expiration_date", "is_active", colCreatedAt, colUpdatedAt)

func scanPatron(row pgx.Row) (models.Patron, error) {
	var p models.Patron
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Balance, &p.CardExpirationDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func patronRecord(p models.Patron) goqu.Record {
	return goqu.Record{
		"first_name":           p.FirstName,
		"last_name":            p.LastName,
		"email":                p.Email,
		"balance":              p.Balance,
		"card_expiration_date": p.CardExpirationDate,
		"is_active":            p.IsActive,
	}
}

func (q *Queries) GetPatron(ctx context.Context, id int64) (models.Patron, error) {
	var p models.Patron
	err := q.queryRow(ctx, "get patron", selectFrom(tablePatrons, patronColumns).Where(byID(id)),
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Balance, &p.CardExpirationDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) ListPatrons(ctx context.Context) ([]models.Patron, error) {
	return queryRows(ctx, q, "list patrons", selectFrom(tablePatrons, patronColumns).Order(goqu.C(colID).Asc()), scanPatron)
}

func (q *Queries) CreatePatron(ctx context.Context, p models.Patron) (models.Patron, error) {
	stmt := dialect.Insert(tablePatrons).Prepared(true).
		Rows(patronRecord(p)).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create patron", stmt, &p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) UpdatePatron(ctx context.Context, p models.Patron) error {
	record := patronRecord(p)
	record[colUpdatedAt] = goqu.L("now()")
	return q.execOne(ctx, "update patron", dialect.Update(tablePatrons).Prepared(true).Set(record).Where(byID(p.ID)))
}

// LockPatron takes the row lock on a patron until the transaction ends
func (q *Queries) LockPatron(ctx context.Context, patronID int64) error {
	stmt := dialect.From(tablePatrons).Prepared(true).
		Select(goqu.C(colID)).
		Where(byID(patronID)).
		ForUpdate(exp.Wait)
	var id int64
	return q.queryRow(ctx, "lock patron", stmt, &id)
}
