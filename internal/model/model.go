// Package model defines the core domain types shared across the trading ledger.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the direction of a ledger transaction.
type Kind string

const (
	KindBuy     Kind = "BUY"
	KindSell    Kind = "SELL"
	KindDeposit Kind = "DEPOSIT" // confirmations only, never stored
)

// User is a registered account holding a cash balance.
type User struct {
	ID           string          `json:"id" db:"id"`
	Username     string          `json:"username" db:"username"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Cash         decimal.Decimal `json:"cash" db:"cash"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// Transaction is an immutable record of a buy or sell.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Symbol    string          `json:"symbol" db:"symbol"`
	Shares    int64           `json:"shares" db:"shares"` // signed: +buy, -sell
	Price     decimal.Decimal `json:"price" db:"price"`   // unit price at execution
	Kind      Kind            `json:"kind" db:"kind"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Total is the signed cash value of the transaction (shares × price).
func (t Transaction) Total() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Shares))
}

// Quote is a current price for a ticker as returned by a quote provider.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

// Position is a user's net holding in one symbol. Derived from the ledger
// on every read, never persisted.
type Position struct {
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Shares           int64           `json:"shares"`
	AvgCost          decimal.Decimal `json:"avg_cost"`
	Price            decimal.Decimal `json:"price"`
	Value            decimal.Decimal `json:"value"`             // price × shares
	UnrealizedReturn decimal.Decimal `json:"unrealized_return"` // (price - avgCost) × shares
	ReturnPct        decimal.Decimal `json:"return_pct"`        // fraction of value
	Weight           decimal.Decimal `json:"weight"`            // fraction of grand total
	RealizedReturn   decimal.Decimal `json:"realized_return"`
}

// Portfolio is a fully priced snapshot of a user's holdings and cash.
type Portfolio struct {
	UserID         string          `json:"user_id"`
	Positions      []Position      `json:"positions"`
	Cash           decimal.Decimal `json:"cash"`
	CashWeight     decimal.Decimal `json:"cash_weight"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	TotalReturn    decimal.Decimal `json:"total_return"`
	TotalReturnPct decimal.Decimal `json:"total_return_pct"`
	RealizedReturn decimal.Decimal `json:"realized_return"`
	PricedAt       time.Time       `json:"priced_at"`
}

// Confirmation is returned by every committed engine operation.
type Confirmation struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Kind          Kind            `json:"kind"`
	Symbol        string          `json:"symbol,omitempty"`
	Name          string          `json:"name,omitempty"`
	Shares        int64           `json:"shares,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Total         decimal.Decimal `json:"total"`
	Cash          decimal.Decimal `json:"cash"` // balance after the operation
}
