// Package store defines the persistence collaborator the circulation engine runs against.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ngenohkevin/circulation/internal/models"
)

// ErrNotFound is returned by getters when no record matches.
var ErrNotFound = errors.New("record not found")

// ReservationFilter narrows ListReservations.
type ReservationFilter struct {
	LibraryItemID *int64
	PatronID      *int64
	Status        *models.ReservationStatus
	ExpiredBefore *time.Time
}

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	CopyID    *int64
	PatronID  *int64
	Status    *models.TransactionStatus
	Type      *models.TransactionType
	DueBefore *time.Time
}

// FineFilter narrows ListFines.
type FineFilter struct {
	PatronID   *int64
	UnpaidOnly bool
}

// Querier is the set of record operations available both outside and inside a transaction.
type Querier interface {
	// Branches
	GetBranch(ctx context.Context, id int64) (models.Branch, error)
	ListBranches(ctx context.Context) ([]models.Branch, error)
	CreateBranch(ctx context.Context, b models.Branch) (models.Branch, error)
	UpdateBranch(ctx context.Context, b models.Branch) error
	DeleteBranch(ctx context.Context, id int64) (bool, error)

	// Catalog items
	GetItem(ctx context.Context, id int64) (models.LibraryItem, error)
	ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error)
	CreateItem(ctx context.Context, item models.LibraryItem) (models.LibraryItem, error)
	UpdateItem(ctx context.Context, item models.LibraryItem) error

	// Copies
	GetCopy(ctx context.Context, id int64) (models.ItemCopy, error)
	ListCopies(ctx context.Context) ([]models.ItemCopy, error)
	ListCopiesByItem(ctx context.Context, itemID int64) ([]models.ItemCopy, error)
	CountCopiesByBranch(ctx context.Context, branchID int64) (int, error)
	CreateCopy(ctx context.Context, c models.ItemCopy) (models.ItemCopy, error)
	UpdateCopy(ctx context.Context, c models.ItemCopy) error
	DeleteCopy(ctx context.Context, id int64) (bool, error)

	// Patrons
	GetPatron(ctx context.Context, id int64) (models.Patron, error)
	ListPatrons(ctx context.Context) ([]models.Patron, error)
	CreatePatron(ctx context.Context, p models.Patron) (models.Patron, error)
	UpdatePatron(ctx context.Context, p models.Patron) error

	// Transactions
	GetTransaction(ctx context.Context, id int64) (models.Transaction, error)
	GetActiveTransactionByCopy(ctx context.Context, copyID int64) (models.Transaction, error)
	CountActiveTransactionsByPatron(ctx context.Context, patronID int64) (int, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	UpdateTransaction(ctx context.Context, t models.Transaction) error

	// Reservations; ListReservations orders by queue position, then creation time, then id
	GetReservation(ctx context.Context, id int64) (models.Reservation, error)
	ListReservations(ctx context.Context, filter ReservationFilter) ([]models.Reservation, error)
	CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error)
	UpdateReservation(ctx context.Context, r models.Reservation) error

	// Fines
	GetFine(ctx context.Context, id int64) (models.Fine, error)
	ListFines(ctx context.Context, filter FineFilter) ([]models.Fine, error)
	CreateFine(ctx context.Context, f models.Fine) (models.Fine, error)
	UpdateFine(ctx context.Context, f models.Fine) error

	// LockCopy serializes writers of one copy until the enclosing transaction ends.
	LockCopy(ctx context.Context, copyID int64) error
	// LockItemQueue serializes writers of one item's reservation queue until the enclosing transaction ends.
	LockItemQueue(ctx context.Context, itemID int64) error
	// LockPatron serializes writers of one patron's balance and checkouts until the enclosing transaction ends.
	// Callers lock item queues and copies before patrons.
	LockPatron(ctx context.Context, patronID int64) error
}

// Store is a Querier that can run a function atomically.
// Every write made through the Querier handed to fn commits together, or none do.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
	Ping(ctx context.Context) error
}
