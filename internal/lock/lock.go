// Package lock provides keyed mutual exclusion for circulation writes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired before the context ends.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Locker hands out exclusive locks by key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// CopyKey is the lock key guarding the copy state machine of one copy.
func CopyKey(copyID int64) string {
	return fmt.Sprintf("copy:%d", copyID)
}

// ItemQueueKey is the lock key guarding the reservation queue of one item.
func ItemQueueKey(itemID int64) string {
	return fmt.Sprintf("item:%d", itemID)
}

// PatronKey is the lock key guarding a patron's balance and checkout count.
func PatronKey(patronID int64) string {
	return fmt.Sprintf("patron:%d", patronID)
}

// BranchesKey is the lock key guarding which branch is main.
func BranchesKey() string {
	return "branches"
}

// LockAll acquires every key in a stable order so that two callers locking
// overlapping sets cannot deadlock. The returned func releases all of them.
func LockAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	unlocks := make([]func(), 0, len(sorted))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	var last string
	for i, key := range sorted {
		if i > 0 && key == last {
			continue
		}
		last = key
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker serializes holders of the same key within one process.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	maxWait time.Duration
}

// LocalOption configures a LocalLocker.
type LocalOption func(*LocalLocker)

// WithLocalMaxWait bounds how long Lock waits for a contended key.
// Zero leaves the caller's context as the only bound.
func WithLocalMaxWait(d time.Duration) LocalOption {
	return func(l *LocalLocker) {
		l.maxWait = d
	}
}

// NewLocalLocker returns an in-process Locker.
func NewLocalLocker(opts ...LocalOption) *LocalLocker {
	l := &LocalLocker{entries: make(map[string]*localEntry)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until key is free, maxWait elapses, or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(key, entry)
		})
	}, nil
}

func (l *LocalLocker) release(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
