package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for the ledger package.
// Use errors.Is to check: errors.Is(err, ledger.ErrPersistence)
var (
	ErrCorruptLedger = errors.New("ledger: corrupt ledger file")
	ErrPersistence   = errors.New("ledger: write failed")
	ErrInvalidEvent  = errors.New("ledger: invalid study event")
)

// CorruptLedgerError reports a ledger file that exists but cannot be
// decoded or holds an invalid event. History is never truncated to recover.
type CorruptLedgerError struct {
	Path string
	Err  error
}

func (e *CorruptLedgerError) Error() string {
	return fmt.Sprintf("ledger: corrupt ledger %s: %v", e.Path, e.Err)
}

func (e *CorruptLedgerError) Unwrap() error { return e.Err }

func (e *CorruptLedgerError) Is(target error) bool { return target == ErrCorruptLedger }

// PersistenceError reports that an event could not be written. The event
// was not recorded; the caller decides whether to retry or warn the user.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: write %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
