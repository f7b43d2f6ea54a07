package queries

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/ngenohkevin/circulation/internal/models"
	"github.com/ngenohkevin/circulation/internal/store"
)

var reservationColumns = columns(colID, "library_item_id", "patron_id", "status", "queue_position", "expiry_date",
	"copy_id", "fulfilled_at", colCreatedAt, colUpdatedAt)

func scanReservation(row pgx.Row) (models.Reservation, error) {
	var r models.Reservation
	err := row.Scan(&r.ID, &r.LibraryItemID, &r.PatronID, &r.Status, &r.QueuePosition, &r.ExpiryDate,
		&r.CopyID, &r.FulfilledAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func reservationRecord(r models.Reservation) goqu.Record {
	return goqu.Record{
		"library_item_id": r.LibraryItemID,
		"patron_id":       r.PatronID,
		"status":          string(r.Status),
		"queue_position":  r.QueuePosition,
		"expiry_date":     r.ExpiryDate,
		"copy_id":         r.CopyID,
		"fulfilled_at":    r.FulfilledAt,
	}
}

func (q *Queries) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	var r models.Reservation
	err := q.queryRow(ctx, "get reservation", selectFrom(tableReservations, reservationColumns).Where(byID(id)),
		&r.ID, &r.LibraryItemID, &r.PatronID, &r.Status, &r.QueuePosition, &r.ExpiryDate,
		&r.CopyID, &r.FulfilledAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// ListReservations orders by queue position, then creation time, then id
func (q *Queries) ListReservations(ctx context.Context, filter store.ReservationFilter) ([]models.Reservation, error) {
	where := goqu.Ex{}
	if filter.LibraryItemID != nil {
		where["library_item_id"] = *filter.LibraryItemID
	}
	if filter.PatronID != nil {
		where["patron_id"] = *filter.PatronID
	}
	if filter.Status != nil {
		where["status"] = string(*filter.Status)
	}

	stmt := whereAll(selectFrom(tableReservations, reservationColumns), where).
		Order(goqu.C("queue_position").Asc(), goqu.C(colCreatedAt).Asc(), goqu.C(colID).Asc())
	if filter.ExpiredBefore != nil {
		stmt = stmt.Where(goqu.C("expiry_date").Lt(*filter.ExpiredBefore))
	}
	return queryRows(ctx, q, "list reservations", stmt, scanReservation)
}

func (q *Queries) CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error) {
	stmt := dialect.Insert(tableReservations).Prepared(true).
		Rows(reservationRecord(r)).
		Returning(colID, colCreatedAt, colUpdatedAt)
	err := q.queryRow(ctx, "create reservation", stmt, &r.ID, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *Queries) UpdateReservation(ctx context.Context, r models.Reservation) error {
	record := reservationRecord(r)
	record[colUpdatedAt] = goqu.L("now()")
	return q.execOne(ctx, "update reservation", dialect.Update(tableReservations).Prepared(true).Set(record).Where(byID(r.ID)))
}
