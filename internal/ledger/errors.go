package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheikh-saqib/trading-ledger/internal/storage"
)

var (
	// ErrValidation is the caller's fault: bad quantity, symbol or amount.
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrNoSuchPosition      = errors.New("no such position")
	ErrNoSuchAccount       = errors.New("no such account")
	ErrNoSuchTrade         = errors.New("no such trade")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrInvariantViolation means a planned mutation broke a ledger invariant.
	// It is a bug, never a user error; nothing is committed when it is raised.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrStorage wraps infrastructure failures of the backing store.
	ErrStorage = errors.New("storage unavailable")

	ErrBoundsExceeded = fmt.Errorf("%w: cash balance bound exceeded", ErrValidation)
	ErrLimitPrice     = fmt.Errorf("%w: execution price beyond limit", ErrValidation)
)

// Kind tags an error with how the caller should treat it.
type Kind int

const (
	KindNone       Kind = iota
	KindValidation      // bad input, do not retry
	KindBusiness        // rule rejected the operation (funds, shares), do not retry
	KindNotFound        // unknown account, position or trade
	KindRetryable       // oracle or storage fault, or contention; safe to retry
	KindInternal        // invariant violation or anything unclassified
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	case KindNotFound:
		return "not_found"
	case KindRetryable:
		return "retryable"
	default:
		return "internal"
	}
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientShares):
		return KindBusiness
	case errors.Is(err, ErrNoSuchAccount), errors.Is(err, ErrNoSuchPosition), errors.Is(err, ErrNoSuchTrade):
		return KindNotFound
	case errors.Is(err, ErrPriceUnavailable), errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrStorage):
		return KindRetryable
	default:
		return KindInternal
	}
}

// IsRetryable reports whether repeating the same request may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindRetryable
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr maps storage sentinels onto the ledger taxonomy.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrAccountNotFound):
		return fmt.Errorf("%s: %w", op, ErrNoSuchAccount)
	case errors.Is(err, storage.ErrTradeNotFound):
		return fmt.Errorf("%s: %w", op, ErrNoSuchTrade)
	case errors.Is(err, storage.ErrVersionConflict):
		return fmt.Errorf("%s: %w", op, ErrConcurrencyConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	case isLedgerErr(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
	}
}

func isLedgerErr(err error) bool {
	for _, target := range []error{
		ErrValidation, ErrInsufficientFunds, ErrInsufficientShares, ErrNoSuchPosition,
		ErrNoSuchAccount, ErrNoSuchTrade, ErrPriceUnavailable, ErrConcurrencyConflict,
		ErrInvariantViolation, ErrStorage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
