// Package storage holds what every LedgerStore implementation shares.
package storage

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrTradeNotFound   = errors.New("trade not found")
	// ErrVersionConflict means the account changed between read and commit.
	ErrVersionConflict = errors.New("account version conflict")
)
