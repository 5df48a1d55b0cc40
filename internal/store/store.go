// Package store defines the persistence interface for the trading ledger.
// Implementations include PostgreSQL and SQLite (durable sources of truth),
// Redis (read-through cache) and in-memory (for testing).
//
// The store is a durable read/write boundary only: it never validates
// business rules. Balance and holding checks belong to the callers, which
// run them inside Atomically.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/model"
)

// Ledger is the set of reads and writes available both on the store and
// inside an atomic unit of work.
type Ledger interface {
	// GetUser retrieves a user by ID. Inside Atomically the read is
	// isolated from concurrent units on the same user.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// ListTransactions returns every transaction of a user, newest first.
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)

	// AppendTransaction appends an immutable record and returns its ID.
	AppendTransaction(ctx context.Context, t *model.Transaction) (string, error)

	// UpdateCash overwrites a user's cash balance.
	UpdateCash(ctx context.Context, userID string, cash decimal.Decimal) error
}

// Store is the persistence interface.
type Store interface {
	Ledger

	// --- Accounts ---

	// CreateUser persists a new user. Fails with ErrUsernameTaken.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUserByUsername retrieves a user by unique username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdatePasswordHash replaces a user's credential.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// --- Units of work ---

	// Atomically runs fn as a single all-or-nothing unit isolated from
	// concurrent units on the same user. If fn returns an error nothing it
	// wrote is kept. A conflicting concurrent commit surfaces as
	// ErrConcurrentModification.
	Atomically(ctx context.Context, userID string, fn func(Ledger) error) error

	Close() error
}

// NetShares sums the signed shares of symbol in a transaction list.
func NetShares(txns []model.Transaction, symbol string) int64 {
	var net int64
	for _, t := range txns {
		if t.Symbol == symbol {
			net += t.Shares
		}
	}
	return net
}
