package queries

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
)

var branchColumns = columns(colID, "name", "is_main", colCreatedAt, colUpdatedAt)

func scanBranch(row pgx.Row) (models.Branch, error) {
	var b models.Branch
	err := row.Scan(&b.ID, &b.Name, &b.IsMain, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) GetBranch(ctx context.Context, id int64) (models.Branch, error) {
	var b models.Branch
	err := q.queryRow(ctx, "get branch", selectFrom(tableBranches, branchColumns).Where(byID(id)),
		&b.ID, &b.Name, &b.IsMain, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) ListBranches(ctx context.Context) ([]models.Branch, error) {
	return queryRows(ctx, q, "list branches", selectFrom(tableBranches, branchColumns).Order(goqu.C(colID).Asc()), scanBranch)
}

func (q *Queries) CreateBranch(ctx context.Context, b models.Branch) (models.Branch, error) {
	stmt := dialect.Insert(tableBranches).Prepared(true).
		Rows(goqu.Record{"name": b.Name, "is_main": b.IsMain}).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create branch", stmt, &b.ID, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) UpdateBranch(ctx context.Context, b models.Branch) error {
	stmt := dialect.Update(tableBranches).Prepared(true).
		Set(goqu.Record{"name": b.Name, "is_main": b.IsMain, colUpdatedAt: goqu.L("now()")}).
		Where(byID(b.ID))
	return q.execOne(ctx, "update branch", stmt)
}

func (q *Queries) DeleteBranch(ctx context.Context, id int64) (bool, error) {
	n, err := q.exec(ctx, "delete branch", dialect.Delete(tableBranches).Prepared(true).Where(byID(id)))
	return n > 0, err
}
