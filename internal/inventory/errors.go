package inventory

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("inventory record not found")

	// ErrOptimisticLockConflict indicates the row version moved between read
	// and write. Retriable.
	ErrOptimisticLockConflict = errors.New("optimistic lock conflict")

	// ErrNegativeStockBlocked indicates a mutation would drive on-hand
	// negative without an explicit override.
	ErrNegativeStockBlocked = errors.New("negative stock blocked")

	// ErrRetriesExhausted indicates the bounded CAS retry loop lost every
	// attempt.
	ErrRetriesExhausted = errors.New("adjustment retries exhausted")
)
