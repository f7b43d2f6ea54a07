package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	circerrors "github.com/ngenohkevin/circulation/internal/errors"
	"github.com/ngenohkevin/circulation/internal/lock"
	"github.com/ngenohkevin/circulation/internal/store"
)

// Clock returns the current time.
type Clock func() time.Time

type serviceOptions struct {
	now    Clock
	logger *slog.Logger
}

// Option configures a circulation service.
type Option func(*serviceOptions)

// WithClock sets the time source. Tests use it to pin "now".
func WithClock(now Clock) Option {
	return func(o *serviceOptions) {
		o.now = now
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// runLocked takes the keyed locks, then runs fn in one store transaction.
func runLocked(ctx context.Context, st store.Store, locker lock.Locker, keys []string, fn func(q store.Querier) error) error {
	unlock, err := lock.LockAll(ctx, locker, keys...)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return circerrors.Busy(keys[0], err)
		}
		return fmt.Errorf("failed to acquire locks: %w", err)
	}
	defer unlock()

	return st.InTx(ctx, fn)
}

// notFound converts store.ErrNotFound into the domain error for entity/id.
func notFound(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return circerrors.NotFound(entity, id)
	}
	return fmt.Errorf("failed to get %s %d: %w", entity, id, err)
}

func ptr[T any](v T) *T {
	return &v
}
