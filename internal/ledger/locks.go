package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// accountLocks hands out one lock per account. A lock is a buffered channel so
// that waiting for it can be abandoned when the request context ends.
type accountLocks struct {
	mapMu   sync.Mutex // protects muMap itself
	muMap   map[string]chan struct{}
	timeout time.Duration
}

func newAccountLocks(timeout time.Duration) *accountLocks {
	return &accountLocks{
		muMap:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *accountLocks) getAccountLock(accountID string) chan struct{} {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = make(chan struct{}, 1)
	}
	return l.muMap[accountID]
}

// acquire blocks until the account lock is held, ctx ends, or the configured
// timeout passes. The returned func releases the lock and must be called once.
func (l *accountLocks) acquire(ctx context.Context, accountID string) (func(), error) {
	lock := l.getAccountLock(accountID)

	waitCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	select {
	case lock <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-lock }) }, nil
	case <-waitCtx.Done():
		// The caller's own cancellation is not contention.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("account %s busy for %s: %w", accountID, l.timeout, ErrConcurrencyConflict)
		}
		return nil, waitCtx.Err()
	}
}
