package queries

import (
	"context"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
)

var copyColumns = columns(colID, "library_item_id", "owning_branch_id", "current_branch_id", "status", "condition",
	"checked_out_by", "due_date", "held_for_reservation_id", "held_for_patron_id", colCreatedAt, colUpdatedAt)

func scanCopy(row pgx.Row) (models.ItemCopy, error) {
	var c models.ItemCopy
	err := row.Scan(&c.ID, &c.LibraryItemID, &c.OwningBranchID, &c.CurrentBranchID, &c.Status, &c.Condition,
		&c.CheckedOutBy, &c.DueDate, &c.HeldForReservationID, &c.HeldForPatronID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func copyRecord(c models.ItemCopy) goqu.Record {
	return goqu.Record{
		"library_item_id":         c.LibraryItemID,
		"owning_branch_id":        c.OwningBranchID,
		"current_branch_id":       c.CurrentBranchID,
		"status":                  string(c.Status),
		"condition":               string(c.Condition),
		"checked_out_by":          c.CheckedOutBy,
		"due_date":                c.DueDate,
		"held_for_reservation_id": c.HeldForReservationID,
		"held_for_patron_id":      c.HeldForPatronID,
	}
}

func (q *Queries) GetCopy(ctx context.Context, id int64) (models.ItemCopy, error) {
	var c models.ItemCopy
	err := q.queryRow(ctx, "get copy", selectFrom(tableCopies, copyColumns).Where(byID(id)),
		&c.ID, &c.LibraryItemID, &c.OwningBranchID, &c.CurrentBranchID, &c.Status, &c.Condition,
		&c.CheckedOutBy, &c.DueDate, &c.HeldForReservationID, &c.HeldForPatronID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) ListCopies(ctx context.Context) ([]models.ItemCopy, error) {
	return queryRows(ctx, q, "list copies", selectFrom(tableCopies, copyColumns).Order(goqu.C(colID).Asc()), scanCopy)
}

func (q *Queries) ListCopiesByItem(ctx context.Context, itemID int64) ([]models.ItemCopy, error) {
	stmt := selectFrom(tableCopies, copyColumns).
		Where(goqu.Ex{"library_item_id": itemID}).
		Order(goqu.C(colID).Asc())
	return queryRows(ctx, q, "list copies by item", stmt, scanCopy)
}

// CountCopiesByBranch counts copies owned by or sitting at the branch
func (q *Queries) CountCopiesByBranch(ctx context.Context, branchID int64) (int, error) {
	stmt := dialect.From(tableCopies).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.Or(
			goqu.C("owning_branch_id").Eq(branchID),
			goqu.C("current_branch_id").Eq(branchID),
		))
	var count int
	err := q.queryRow(ctx, "count copies by branch", stmt, &count)
	return count, err
}

func (q *Queries) CreateCopy(ctx context.Context, c models.ItemCopy) (models.ItemCopy, error) {
	stmt := dialect.Insert(tableCopies).Prepared(true).
		Rows(copyRecord(c)).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create copy", stmt, &c.ID, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) UpdateCopy(ctx context.Context, c models.ItemCopy) error {
	record := copyRecord(c)
	record[colUpdatedAt] = goqu.L("now()")
	stmt := dialect.Update(tableCopies).Prepared(true).Set(record).Where(byID(c.ID))
	return q.execOne(ctx, "update copy", stmt)
}

func (q *Queries) DeleteCopy(ctx context.Context, id int64) (bool, error) {
	n, err := q.exec(ctx, "delete copy", dialect.Delete(tableCopies).Prepared(true).Where(byID(id)))
	return n > 0, err
}

// LockCopy takes the row lock on a copy until the transaction ends
func (q *Queries) LockCopy(ctx context.Context, copyID int64) error {
	stmt := dialect.From(tableCopies).Prepared(true).
		Select(goqu.C(colID)).
		Where(byID(copyID)).
		ForUpdate(exp.Wait)
	var id int64
	return q.queryRow(ctx, "lock copy", stmt, &id)
}

// LockItemQueue takes a transaction scoped advisory lock for an item's reservation queue
func (q *Queries) LockItemQueue(ctx context.Context, itemID int64) error {
	stmt := dialect.Select(goqu.Func("pg_advisory_xact_lock",
		goqu.Func("hashtextextended", goqu.L("?::text", queueLockKey(itemID)), 0),
	)).Prepared(true)
	_, err := q.exec(ctx, "lock item queue", stmt)
	return err
}

func queueLockKey(itemID int64) string {
	return "circulation:item_queue:" + strconv.FormatInt(itemID, 10)
}
