// Package apperrors defines the error taxonomy shared by the trading core,
// the ledger store and the account service. Callers test for a category
// with errors.Is; the wrapping message carries the human-readable reason.
package apperrors

import (
	"errors"
	"fmt"
)

// Trading rejections. None of these leave partial state behind.
var (
	// ErrInvalidSymbol indicates a ticker that is malformed or that the
	// quote provider cannot resolve.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidQuantity indicates a share count that is not a positive integer.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInvalidAmount indicates a cash amount that is not a positive decimal.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds indicates a buy whose total cost exceeds the cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNoSuchPosition indicates a sell of a symbol the user does not hold.
	ErrNoSuchPosition = errors.New("no such position")

	// ErrInsufficientShares indicates a sell of more shares than currently held.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrQuoteUnavailable indicates the quote provider could not price a symbol.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrConcurrentModification indicates the store aborted the unit of work
	// because of a conflicting concurrent transaction. Safe to retry.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Lookup errors.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Account errors.
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrWeakPassword       = errors.New("password must be at least 6 characters long and contain at least 1 letter, 1 number and 1 special character")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrPasswordMismatch   = errors.New("passwords must match")
	ErrUnauthorized       = errors.New("unauthorized")
)

var domain = []error{
	ErrInvalidSymbol,
	ErrInvalidQuantity,
	ErrInvalidAmount,
	ErrInsufficientFunds,
	ErrNoSuchPosition,
	ErrInsufficientShares,
	ErrQuoteUnavailable,
	ErrConcurrentModification,
	ErrUserNotFound,
	ErrSymbolNotFound,
	ErrUsernameTaken,
	ErrWeakPassword,
	ErrMissingCredentials,
	ErrInvalidCredentials,
	ErrPasswordMismatch,
	ErrUnauthorized,
}

// IsDomain reports whether err belongs to the taxonomy above. Anything else
// is an unexpected internal failure.
func IsDomain(err error) bool {
	for _, target := range domain {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Reject wraps a sentinel with a human-readable reason.
func Reject(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
