package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ngenohkevin/circulation/internal/models"
)

type memoryState struct {
	seq          int64
	branches     map[int64]models.Branch
	items        map[int64]models.LibraryItem
	copies       map[int64]models.ItemCopy
	patrons      map[int64]models.Patron
	transactions map[int64]models.Transaction
	reservations map[int64]models.Reservation
	fines        map[int64]models.Fine
}

func newMemoryState() memoryState {
	return memoryState{
		branches:     map[int64]models.Branch{},
		items:        map[int64]models.LibraryItem{},
		copies:       map[int64]models.ItemCopy{},
		patrons:      map[int64]models.Patron{},
		transactions: map[int64]models.Transaction{},
		reservations: map[int64]models.Reservation{},
		fines:        map[int64]models.Fine{},
	}
}

func (s memoryState) clone() memoryState {
	c := memoryState{
		seq:          s.seq,
		branches:     make(map[int64]models.Branch, len(s.branches)),
		items:        make(map[int64]models.LibraryItem, len(s.items)),
		copies:       make(map[int64]models.ItemCopy, len(s.copies)),
		patrons:      make(map[int64]models.Patron, len(s.patrons)),
		transactions: make(map[int64]models.Transaction, len(s.transactions)),
		reservations: make(map[int64]models.Reservation, len(s.reservations)),
		fines:        make(map[int64]models.Fine, len(s.fines)),
	}
	for k, v := range s.branches {
		c.branches[k] = v
	}
	for k, v := range s.items {
		c.items[k] = cloneItem(v)
	}
	for k, v := range s.copies {
		c.copies[k] = cloneCopy(v)
	}
	for k, v := range s.patrons {
		c.patrons[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = cloneTransaction(v)
	}
	for k, v := range s.reservations {
		c.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.fines {
		c.fines[k] = cloneFine(v)
	}
	return c
}

func (s *memoryState) nextID() int64 {
	s.seq++
	return s.seq
}

func cloneInt64(p *int64) *int64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneItem(i models.LibraryItem) models.LibraryItem {
	d := i.Details
	if d.Book != nil {
		v := *d.Book
		d.Book = &v
	}
	if d.Video != nil {
		v := *d.Video
		d.Video = &v
	}
	if d.Audiobook != nil {
		v := *d.Audiobook
		d.Audiobook = &v
	}
	if d.Magazine != nil {
		v := *d.Magazine
		d.Magazine = &v
	}
	if d.Recording != nil {
		v := *d.Recording
		d.Recording = &v
	}
	if d.Periodical != nil {
		v := *d.Periodical
		d.Periodical = &v
	}
	i.Details = d
	return i
}

func cloneCopy(c models.ItemCopy) models.ItemCopy {
	c.CheckedOutBy = cloneInt64(c.CheckedOutBy)
	c.DueDate = cloneTime(c.DueDate)
	c.HeldForReservationID = cloneInt64(c.HeldForReservationID)
	c.HeldForPatronID = cloneInt64(c.HeldForPatronID)
	return c
}

func cloneTransaction(t models.Transaction) models.Transaction {
	t.ReturnDate = cloneTime(t.ReturnDate)
	t.ParentID = cloneInt64(t.ParentID)
	return t
}

func cloneReservation(r models.Reservation) models.Reservation {
	r.CopyID = cloneInt64(r.CopyID)
	r.FulfilledAt = cloneTime(r.FulfilledAt)
	return r
}

func cloneFine(f models.Fine) models.Fine {
	f.PaidDate = cloneTime(f.PaidDate)
	return f
}

// MemoryStore is an in-process Store. InTx runs against a private copy of the
// state and swaps it in only when the function succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
	memQuerier
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for created_at/updated_at stamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.nowFn = now
	}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.memQuerier = memQuerier{store: s}
	return s
}

// InTx runs fn with exclusive access to the store. fn must only use the Querier it is given.
func (s *MemoryStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txState := s.state.clone()
	tx := &memQuerier{store: s, tx: &txState}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = txState
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// memQuerier implements Querier either directly on the store (tx == nil, taking
// the store lock per call) or on a transaction's private state.
type memQuerier struct {
	store *MemoryStore
	tx    *memoryState
}

func (q *memQuerier) read() (*memoryState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.RLock()
	return &q.store.state, q.store.mu.RUnlock
}

func (q *memQuerier) write() (*memoryState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return &q.store.state, q.store.mu.Unlock
}

func (q *memQuerier) now() time.Time {
	return q.store.nowFn()
}

// LockCopy is a no-op: InTx already holds the store-wide write lock.
func (q *memQuerier) LockCopy(ctx context.Context, copyID int64) error {
	return ctx.Err()
}

// LockItemQueue is a no-op: InTx already holds the store-wide write lock.
func (q *memQuerier) LockItemQueue(ctx context.Context, itemID int64) error {
	return ctx.Err()
}

func (q *memQuerier) LockPatron(ctx context.Context, patronID int64) error {
	return ctx.Err()
}

// Branches

func (q *memQuerier) GetBranch(ctx context.Context, id int64) (models.Branch, error) {
	st, done := q.read()
	defer done()
	b, ok := st.branches[id]
	if !ok {
		return models.Branch{}, ErrNotFound
	}
	return b, nil
}

func (q *memQuerier) ListBranches(ctx context.Context) ([]models.Branch, error) {
	st, done := q.read()
	defer done()
	out := make([]models.Branch, 0, len(st.branches))
	for _, b := range st.branches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateBranch(ctx context.Context, b models.Branch) (models.Branch, error) {
	st, done := q.write()
	defer done()
	b.ID = st.nextID()
	b.CreatedAt = q.now()
	b.UpdatedAt = b.CreatedAt
	st.branches[b.ID] = b
	return b, nil
}

func (q *memQuerier) UpdateBranch(ctx context.Context, b models.Branch) error {
	st, done := q.write()
	defer done()
	if _, ok := st.branches[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = q.now()
	st.branches[b.ID] = b
	return nil
}

func (q *memQuerier) DeleteBranch(ctx context.Context, id int64) (bool, error) {
	st, done := q.write()
	defer done()
	if _, ok := st.branches[id]; !ok {
		return false, nil
	}
	delete(st.branches, id)
	return true, nil
}

// Catalog items

func (q *memQuerier) GetItem(ctx context.Context, id int64) (models.LibraryItem, error) {
	st, done := q.read()
	defer done()
	item, ok := st.items[id]
	if !ok {
		return models.LibraryItem{}, ErrNotFound
	}
	return cloneItem(item), nil
}

func (q *memQuerier) ListItems(ctx context.Context, category *models.ItemCategory) ([]models.LibraryItem, error) {
	st, done := q.read()
	defer done()
	out := make([]models.LibraryItem, 0, len(st.items))
	for _, item := range st.items {
		if category != nil && item.Category != *category {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateItem(ctx context.Context, item models.LibraryItem) (models.LibraryItem, error) {
	st, done := q.write()
	defer done()
	item.ID = st.nextID()
	item.CreatedAt = q.now()
	item.UpdatedAt = item.CreatedAt
	st.items[item.ID] = cloneItem(item)
	return item, nil
}

func (q *memQuerier) UpdateItem(ctx context.Context, item models.LibraryItem) error {
	st, done := q.write()
	defer done()
	existing, ok := st.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Category != item.Category {
		return fmt.Errorf("category of item %d is immutable", item.ID)
	}
	item.UpdatedAt = q.now()
	st.items[item.ID] = cloneItem(item)
	return nil
}

// Copies

func (q *memQuerier) GetCopy(ctx context.Context, id int64) (models.ItemCopy, error) {
	st, done := q.read()
	defer done()
	c, ok := st.copies[id]
	if !ok {
		return models.ItemCopy{}, ErrNotFound
	}
	return cloneCopy(c), nil
}

func (q *memQuerier) ListCopies(ctx context.Context) ([]models.ItemCopy, error) {
	st, done := q.read()
	defer done()
	out := make([]models.ItemCopy, 0, len(st.copies))
	for _, c := range st.copies {
		out = append(out, cloneCopy(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) ListCopiesByItem(ctx context.Context, itemID int64) ([]models.ItemCopy, error) {
	st, done := q.read()
	defer done()
	var out []models.ItemCopy
	for _, c := range st.copies {
		if c.LibraryItemID == itemID {
			out = append(out, cloneCopy(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CountCopiesByBranch(ctx context.Context, branchID int64) (int, error) {
	st, done := q.read()
	defer done()
	count := 0
	for _, c := range st.copies {
		if c.OwningBranchID == branchID || c.CurrentBranchID == branchID {
			count++
		}
	}
	return count, nil
}

func (q *memQuerier) CreateCopy(ctx context.Context, c models.ItemCopy) (models.ItemCopy, error) {
	st, done := q.write()
	defer done()
	c.ID = st.nextID()
	c.CreatedAt = q.now()
	c.UpdatedAt = c.CreatedAt
	st.copies[c.ID] = cloneCopy(c)
	return c, nil
}

func (q *memQuerier) UpdateCopy(ctx context.Context, c models.ItemCopy) error {
	st, done := q.write()
	defer done()
	if _, ok := st.copies[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = q.now()
	st.copies[c.ID] = cloneCopy(c)
	return nil
}

func (q *memQuerier) DeleteCopy(ctx context.Context, id int64) (bool, error) {
	st, done := q.write()
	defer done()
	if _, ok := st.copies[id]; !ok {
		return false, nil
	}
	delete(st.copies, id)
	return true, nil
}

// Patrons

func (q *memQuerier) GetPatron(ctx context.Context, id int64) (models.Patron, error) {
	st, done := q.read()
	defer done()
	p, ok := st.patrons[id]
	if !ok {
		return models.Patron{}, ErrNotFound
	}
	return p, nil
}

func (q *memQuerier) ListPatrons(ctx context.Context) ([]models.Patron, error) {
	st, done := q.read()
	defer done()
	out := make([]models.Patron, 0, len(st.patrons))
	for _, p := range st.patrons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreatePatron(ctx context.Context, p models.Patron) (models.Patron, error) {
	st, done := q.write()
	defer done()
	p.ID = st.nextID()
	p.CreatedAt = q.now()
	p.UpdatedAt = p.CreatedAt
	st.patrons[p.ID] = p
	return p, nil
}

func (q *memQuerier) UpdatePatron(ctx context.Context, p models.Patron) error {
	st, done := q.write()
	defer done()
	if _, ok := st.patrons[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = q.now()
	st.patrons[p.ID] = p
	return nil
}

// Transactions

func (q *memQuerier) GetTransaction(ctx context.Context, id int64) (models.Transaction, error) {
	st, done := q.read()
	defer done()
	t, ok := st.transactions[id]
	if !ok {
		return models.Transaction{}, ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (q *memQuerier) GetActiveTransactionByCopy(ctx context.Context, copyID int64) (models.Transaction, error) {
	st, done := q.read()
	defer done()
	for _, t := range st.transactions {
		if t.CopyID == copyID && t.Type == models.TransactionTypeCheckout && t.IsActive() {
			return cloneTransaction(t), nil
		}
	}
	return models.Transaction{}, ErrNotFound
}

func (q *memQuerier) CountActiveTransactionsByPatron(ctx context.Context, patronID int64) (int, error) {
	st, done := q.read()
	defer done()
	count := 0
	for _, t := range st.transactions {
		if t.PatronID == patronID && t.Type == models.TransactionTypeCheckout && t.IsActive() {
			count++
		}
	}
	return count, nil
}

func (q *memQuerier) ListTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	st, done := q.read()
	defer done()
	var out []models.Transaction
	for _, t := range st.transactions {
		if filter.CopyID != nil && t.CopyID != *filter.CopyID {
			continue
		}
		if filter.PatronID != nil && t.PatronID != *filter.PatronID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.DueBefore != nil && !t.DueDate.Before(*filter.DueBefore) {
			continue
		}
		out = append(out, cloneTransaction(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	st, done := q.write()
	defer done()
	if t.Type == models.TransactionTypeCheckout && t.IsActive() {
		for _, existing := range st.transactions {
			if existing.CopyID == t.CopyID && existing.Type == models.TransactionTypeCheckout && existing.IsActive() {
				return models.Transaction{}, fmt.Errorf("copy %d already has active transaction %d", t.CopyID, existing.ID)
			}
		}
	}
	t.ID = st.nextID()
	t.CreatedAt = q.now()
	t.UpdatedAt = t.CreatedAt
	st.transactions[t.ID] = cloneTransaction(t)
	return t, nil
}

func (q *memQuerier) UpdateTransaction(ctx context.Context, t models.Transaction) error {
	st, done := q.write()
	defer done()
	if _, ok := st.transactions[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = q.now()
	st.transactions[t.ID] = cloneTransaction(t)
	return nil
}

// Reservations

func (q *memQuerier) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	st, done := q.read()
	defer done()
	r, ok := st.reservations[id]
	if !ok {
		return models.Reservation{}, ErrNotFound
	}
	return cloneReservation(r), nil
}

func (q *memQuerier) ListReservations(ctx context.Context, filter ReservationFilter) ([]models.Reservation, error) {
	st, done := q.read()
	defer done()
	var out []models.Reservation
	for _, r := range st.reservations {
		if filter.LibraryItemID != nil && r.LibraryItemID != *filter.LibraryItemID {
			continue
		}
		if filter.PatronID != nil && r.PatronID != *filter.PatronID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ExpiredBefore != nil && !r.ExpiryDate.Before(*filter.ExpiredBefore) {
			continue
		}
		out = append(out, cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuePosition != out[j].QueuePosition {
			return out[i].QueuePosition < out[j].QueuePosition
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQuerier) CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error) {
	st, done := q.write()
	defer done()
	if err := st.checkQueuePosition(r); err != nil {
		return models.Reservation{}, err
	}
	r.ID = st.nextID()
	r.CreatedAt = q.now()
	r.UpdatedAt = r.CreatedAt
	st.reservations[r.ID] = cloneReservation(r)
	return r, nil
}

func (q *memQuerier) UpdateReservation(ctx context.Context, r models.Reservation) error {
	st, done := q.write()
	defer done()
	if _, ok := st.reservations[r.ID]; !ok {
		return ErrNotFound
	}
	if err := st.checkQueuePosition(r); err != nil {
		return err
	}
	r.UpdatedAt = q.now()
	st.reservations[r.ID] = cloneReservation(r)
	return nil
}

// checkQueuePosition mirrors the partial unique index on Pending queue positions
func (st *memoryState) checkQueuePosition(r models.Reservation) error {
	if r.Status != models.ReservationStatusPending {
		return nil
	}
	for _, existing := range st.reservations {
		if existing.ID != r.ID && existing.Status == models.ReservationStatusPending &&
			existing.LibraryItemID == r.LibraryItemID && existing.QueuePosition == r.QueuePosition {
			return fmt.Errorf("item %d already has reservation %d at position %d", r.LibraryItemID, existing.ID, r.QueuePosition)
		}
	}
	return nil
}

// Fines

func (q *memQuerier) GetFine(ctx context.Context, id int64) (models.Fine, error) {
	st, done := q.read()
	defer done()
	f, ok := st.fines[id]
	if !ok {
		return models.Fine{}, ErrNotFound
	}
	return cloneFine(f), nil
}

func (q *memQuerier) ListFines(ctx context.Context, filter FineFilter) ([]models.Fine, error) {
	st, done := q.read()
	defer done()
	var out []models.Fine
	for _, f := range st.fines {
		if filter.PatronID != nil && f.PatronID != *filter.PatronID {
			continue
		}
		if filter.UnpaidOnly && !f.Outstanding() {
			continue
		}
		out = append(out, cloneFine(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (q *memQuerier) CreateFine(ctx context.Context, f models.Fine) (models.Fine, error) {
	st, done := q.write()
	defer done()
	f.ID = st.nextID()
	f.CreatedAt = q.now()
	f.UpdatedAt = f.CreatedAt
	st.fines[f.ID] = cloneFine(f)
	return f, nil
}

func (q *memQuerier) UpdateFine(ctx context.Context, f models.Fine) error {
	st, done := q.write()
	defer done()
	if _, ok := st.fines[f.ID]; !ok {
		return ErrNotFound
	}
	f.UpdatedAt = q.now()
	st.fines[f.ID] = cloneFine(f)
	return nil
}
