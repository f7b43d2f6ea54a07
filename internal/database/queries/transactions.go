package queries

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

var transactionColumns = columns(colID, "copy_id", "patron_id", "type", "checkout_date", "due_date", "return_date",
	"fine_amount", "status", "renewal_count", "parent_id", "notes", colCreatedAt, colUpdatedAt)

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.CopyID, &t.PatronID, &t.Type, &t.CheckoutDate, &t.DueDate, &t.ReturnDate,
		&t.FineAmount, &t.Status, &t.RenewalCount, &t.ParentID, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func transactionRecord(t models.Transaction) goqu.Record {
	return goqu.Record{
		"copy_id":       t.CopyID,
		"patron_id":     t.PatronID,
		"type":          string(t.Type),
		"checkout_date": t.CheckoutDate,
		"due_date":      t.DueDate,
		"return_date":   t.ReturnDate,
		"fine_amount":   t.FineAmount,
		"status":        string(t.Status),
		"renewal_count": t.RenewalCount,
		"parent_id":     t.ParentID,
		"notes":         t.Notes,
	}
}

func activeCheckout() goqu.Ex {
	return goqu.Ex{
		"status": string(models.TransactionStatusActive),
		"type":   string(models.TransactionTypeCheckout),
	}
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (models.Transaction, error) {
	return q.oneTransaction(ctx, "get transaction", selectFrom(tableTransactions, transactionColumns).Where(byID(id)))
}

func (q *Queries) GetActiveTransactionByCopy(ctx context.Context, copyID int64) (models.Transaction, error) {
	stmt := selectFrom(tableTransactions, transactionColumns).
		Where(activeCheckout(), goqu.Ex{"copy_id": copyID})
	return q.oneTransaction(ctx, "get active transaction", stmt)
}

func (q *Queries) oneTransaction(ctx context.Context, op string, stmt *goqu.SelectDataset) (models.Transaction, error) {
	txns, err := queryRows(ctx, q, op, stmt.Limit(1), scanTransaction)
	if err != nil {
		return models.Transaction{}, err
	}
	if len(txns) == 0 {
		return models.Transaction{}, store.ErrNotFound
	}
	return txns[0], nil
}

func (q *Queries) CountActiveTransactionsByPatron(ctx context.Context, patronID int64) (int, error) {
	stmt := dialect.From(tableTransactions).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(activeCheckout(), goqu.Ex{"patron_id": patronID})
	var count int
	err := q.queryRow(ctx, "count active transactions", stmt, &count)
	return count, err
}

func (q *Queries) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]models.Transaction, error) {
	where := goqu.Ex{}
	if filter.CopyID != nil {
		where["copy_id"] = *filter.CopyID
	}
	if filter.PatronID != nil {
		where["patron_id"] = *filter.PatronID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}
	if filter.Type != nil {
		where["type"] = string(*filter.Type)
	}

	stmt := whereAll(selectFrom(tableTransactions, transactionColumns), where).Order(goqu.C(colID).Asc())
	if filter.DueBefore != nil {
		stmt = stmt.Where(goqu.C("due_date").Lt(*filter.DueBefore))
	}
	return queryRows(ctx, q, "list transactions", stmt, scanTransaction)
}

func (q *Queries) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	stmt := dialect.Insert(tableTransactions).Prepared(true).
		Rows(transactionRecord(t)).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create transaction", stmt, &t.ID, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (q *Queries) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	record := transactionRecord(t)
	record[colUpdatedAt] = goqu.L("now()")
	return q.execOne(ctx, "update transaction", dialect.Update(tableTransactions).Prepared(true).Set(record).Where(byID(t.ID)))
}
