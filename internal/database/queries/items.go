package queries

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var itemColumns = columns(colID, "title", "category", "publication_year", "description", "is_new_release", "details", colCreatedAt, colUpdatedAt)

func scanItem(row pgx.Row) (models.LibraryItem, error) {
	var (
		item    models.LibraryItem
		details []byte
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Category, &item.PublicationYear, &item.Description,
		&item.IsNewRelease, &details, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return models.LibraryItem{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &item.Details); err != nil {
			return models.LibraryItem{}, fmt.Errorf("failed to decode details of item %d: %w", item.ID, err)
		}
	}
	return item, nil
}

func encodeDetails(d models.ItemDetails) (goqu.Expression, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item details: %w", err)
	}
	return goqu.L("?::jsonb", string(raw)), nil
}

func (q *Queries) GetItem(ctx context.Context, id int64) (models.LibraryItem, error) {
	items, err := queryRows(ctx, q, "get item", selectFrom(tableItems, itemColumns).Where(byID(id)), scanItem)
	if err != nil {
		return models.LibraryItem{}, err
	}
	if len(items) == 0 {
		return models.LibraryItem{}, store.ErrNotFound
	}
	return items[0], nil
}

func (q *Queries) ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error) {
	stmt := selectFrom(tableItems, itemColumns).Order(goqu.C(colID).Asc())
	if category != nil {
		stmt = stmt.Where(goqu.Ex{"category": string(*category)})
	}
	return queryRows(ctx, q, "list items", stmt, scanItem)
}

func (q *Queries) CreateItem(ctx context.Context, item models.LibraryItem) (models.LibraryItem, error) {
	details, err := encodeDetails(item.Details)
	if err != nil {
		return models.LibraryItem{}, err
	}
	stmt := dialect.Insert(tableItems).Prepared(true).
		Rows(goqu.Record{
			"title":            item.Title,
			"category":         string(item.Category),
			"publication_year": item.PublicationYear,
			"description":      item.Description,
			"is_new_release":   item.IsNewRelease,
			"details":          details,
		}).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err = q.queryRow(ctx, "create item", stmt, &item.ID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

// UpdateItem never writes the category; a changed category matches no row
func (q *Queries) UpdateItem(ctx context.Context, item models.LibraryItem) error {
	details, err := encodeDetails(item.Details)
	if err != nil {
		return err
	}
	stmt := dialect.Update(tableItems).Prepared(true).
		Set(goqu.Record{
			"title":            item.Title,
			"publication_year": item.PublicationYear,
			"description":      item.Description,
			"is_new_release":   item.IsNewRelease,
			"details":          details,
			colUpdatedAt:       goqu.L("now()"),
		}).
		Where(goqu.Ex{colID: item.ID, "category": string(item.Category)})
	return q.execOne(ctx, "update item", stmt)
}
