package queries

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

var fineColumns = columns(colID, "transaction_id", "patron_id", "amount", "is_paid", "paid_date", "waived", "waive_reason", colCreatedAt, colUpdatedAt)

func scanFine(row pgx.Row) (models.Fine, error) {
	var f models.Fine
	err := row.Scan(&f.ID, &f.TransactionID, &f.PatronID, &f.Amount, &f.IsPaid, &f.PaidDate, &f.Waived, &f.WaiveReason, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func fineRecord(f models.Fine) goqu.Record {
	return goqu.Record{
		"transaction_id": f.TransactionID,
		"patron_id":      f.PatronID,
		"amount":         f.Amount,
		"is_paid":        f.IsPaid,
		"paid_date":      f.PaidDate,
		"waived":         f.Waived,
		"waive_reason":   f.WaiveReason,
	}
}

func (q *Queries) GetFine(ctx context.Context, id int64) (models.Fine, error) {
	var f models.Fine
	err := q.queryRow(ctx, "get fine", selectFrom(tableFines, fineColumns).Where(byID(id)),
		&f.ID, &f.TransactionID, &f.PatronID, &f.Amount, &f.IsPaid, &f.PaidDate, &f.Waived, &f.WaiveReason, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (q *Queries) ListFines(ctx context.Context, filter store.FineFilter) ([]models.Fine, error) {
	where := goqu.Ex{}
	if filter.PatronID != nil {
		where["patron_id"] = *filter.PatronID
	}
	if filter.UnpaidOnly {
		where["is_paid"] = false
		where["waived"] = false
	}
	stmt := whereAll(selectFrom(tableFines, fineColumns), where).Order(goqu.C(colID).Asc())
	return queryRows(ctx, q, "list fines", stmt, scanFine)
}

func (q *Queries) CreateFine(ctx context.Context, f models.Fine) (models.Fine, error) {
	stmt := dialect.Insert(tableFines).Prepared(true).
		Rows(fineRecord(f)).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create fine", stmt, &f.ID, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func (q *Queries) UpdateFine(ctx context.Context, f models.Fine) error {
	record := fineRecord(f)
	record[colUpdatedAt] = goqu.L("now()")
	return q.execOne(ctx, "update fine", dialect.Update(tableFines).Prepared(true).Set(record).Where(byID(f.ID)))
}
