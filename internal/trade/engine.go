// Package trade is the transaction engine: it validates buys, sells and
// deposits against current quotes, cash and holdings, and commits each one
// as a single atomic unit in the ledger store.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/metrics"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
)

// Engine executes trading operations. Per-user serialization comes from
// store.Atomically; the engine itself is stateless.
type Engine struct {
	store  store.Store
	quotes quote.Provider
	wsHub  *WSHub // optional trade tape
	now    func() time.Time
}

// NewEngine creates a transaction engine.
// Pass nil for hub if the trade tape is not needed.
func NewEngine(st store.Store, quotes quote.Provider, hub *WSHub) *Engine {
	return &Engine{
		store:  st,
		quotes: quotes,
		wsHub:  hub,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Buy purchases shares of symbol at the current quote.
func (e *Engine) Buy(ctx context.Context, userID, symbol string, shares int64) (*model.Confirmation, error) {
	start := time.Now()
	if shares <= 0 {
		return nil, e.reject(model.KindBuy, userID, apperrors.Reject(apperrors.ErrInvalidQuantity,
			"shares must be a positive integer, got %d", shares))
	}
	sym, err := quote.NormalizeSymbol(symbol)
	if err != nil {
		return nil, e.reject(model.KindBuy, userID, err)
	}
	q, err := quote.Resolve(ctx, e.quotes, sym, apperrors.ErrInvalidSymbol)
	if err != nil {
		return nil, e.reject(model.KindBuy, userID, err)
	}

	total := q.Price.Mul(decimal.NewFromInt(shares))
	txn := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    sym,
		Shares:    shares,
		Price:     q.Price,
		Kind:      model.KindBuy,
		Timestamp: e.now(),
	}

	var cash decimal.Decimal
	err = e.store.Atomically(ctx, userID, func(l store.Ledger) error {
		u, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if total.GreaterThan(u.Cash) {
			return apperrors.Reject(apperrors.ErrInsufficientFunds,
				"%d %s at %s costs %s, cash is %s", shares, sym, q.Price, total, u.Cash)
		}
		if _, err := l.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		cash = u.Cash.Sub(total)
		return l.UpdateCash(ctx, userID, cash)
	})
	if err != nil {
		return nil, e.reject(model.KindBuy, userID, err)
	}

	conf := &model.Confirmation{
		TransactionID: txn.ID,
		Kind:          model.KindBuy,
		Symbol:        sym,
		Name:          q.Name,
		Shares:        shares,
		Price:         q.Price,
		Total:         total,
		Cash:          cash,
	}
	e.executed(userID, txn, conf, start)
	return conf, nil
}

// Sell sells shares of symbol at the current quote. The holding is checked
// before the quote is fetched and again inside the atomic unit.
func (e *Engine) Sell(ctx context.Context, userID, symbol string, shares int64) (*model.Confirmation, error) {
	start := time.Now()
	if shares <= 0 {
		return nil, e.reject(model.KindSell, userID, apperrors.Reject(apperrors.ErrInvalidQuantity,
			"shares must be a positive integer, got %d", shares))
	}
	sym, err := quote.NormalizeSymbol(symbol)
	if err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}
	txns, err := e.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}
	if err := checkHolding(txns, sym, shares); err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}

	q, err := quote.Resolve(ctx, e.quotes, sym, apperrors.ErrQuoteUnavailable)
	if err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}

	total := q.Price.Mul(decimal.NewFromInt(shares))
	txn := &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    sym,
		Shares:    -shares,
		Price:     q.Price,
		Kind:      model.KindSell,
		Timestamp: e.now(),
	}

	var cash decimal.Decimal
	err = e.store.Atomically(ctx, userID, func(l store.Ledger) error {
		u, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		txns, err := l.ListTransactions(ctx, userID)
		if err != nil {
			return err
		}
		if err := checkHolding(txns, sym, shares); err != nil {
			return err
		}
		if _, err := l.AppendTransaction(ctx, txn); err != nil {
			return err
		}
		cash = u.Cash.Add(total)
		return l.UpdateCash(ctx, userID, cash)
	})
	if err != nil {
		return nil, e.reject(model.KindSell, userID, err)
	}

	conf := &model.Confirmation{
		TransactionID: txn.ID,
		Kind:          model.KindSell,
		Symbol:        sym,
		Name:          q.Name,
		Shares:        shares,
		Price:         q.Price,
		Total:         total,
		Cash:          cash,
	}
	e.executed(userID, txn, conf, start)
	return conf, nil
}

// Deposit adds amount to the user's cash. No transaction is recorded.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Confirmation, error) {
	if !amount.IsPositive() {
		return nil, e.reject(model.KindDeposit, userID, apperrors.Reject(apperrors.ErrInvalidAmount,
			"amount must be positive, got %s", amount))
	}

	var cash decimal.Decimal
	err := e.store.Atomically(ctx, userID, func(l store.Ledger) error {
		u, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		cash = u.Cash.Add(amount)
		return l.UpdateCash(ctx, userID, cash)
	})
	if err != nil {
		return nil, e.reject(model.KindDeposit, userID, err)
	}

	metrics.DepositsTotal.Inc()
	slog.Info("deposit",
		"user", userID,
		"amount", amount.String(),
		"cash", cash.String(),
	)
	return &model.Confirmation{
		Kind:  model.KindDeposit,
		Price: decimal.Zero,
		Total: amount,
		Cash:  cash,
	}, nil
}

// History returns the user's transactions, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]model.Transaction, error) {
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	txns, err := e.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	return txns, nil
}

func checkHolding(txns []model.Transaction, symbol string, shares int64) error {
	held := store.NetShares(txns, symbol)
	if held <= 0 {
		return apperrors.Reject(apperrors.ErrNoSuchPosition, "no %s shares held", symbol)
	}
	if shares > held {
		return apperrors.Reject(apperrors.ErrInsufficientShares,
			"cannot sell %d %s, holding %d", shares, symbol, held)
	}
	return nil
}

func (e *Engine) executed(userID string, txn *model.Transaction, conf *model.Confirmation, start time.Time) {
	kind := string(txn.Kind)
	metrics.TradesTotal.WithLabelValues(kind).Inc()
	metrics.TradeLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.SharesTraded.WithLabelValues(txn.Symbol, kind).Add(float64(conf.Shares))

	slog.Info("trade executed",
		"trade_id", txn.ID,
		"user", userID,
		"kind", kind,
		"symbol", txn.Symbol,
		"shares", conf.Shares,
		"price", conf.Price.String(),
		"total", conf.Total.String(),
		"cash", conf.Cash.String(),
	)

	if e.wsHub != nil {
		e.wsHub.Broadcast(TapeMessage{
			Type:      "trade_executed",
			Symbol:    txn.Symbol,
			Kind:      kind,
			Shares:    conf.Shares,
			Price:     conf.Price.String(),
			Timestamp: txn.Timestamp,
		})
	}
}

// reject records a failed operation and returns err unchanged.
func (e *Engine) reject(kind model.Kind, userID string, err error) error {
	reason := rejectReason(err)
	metrics.TradeRejections.WithLabelValues(string(kind), reason).Inc()
	if reason == "internal" {
		slog.Error("trade failed", "kind", kind, "user", userID, "err", err)
	} else {
		slog.Debug("trade rejected", "kind", kind, "user", userID, "reason", reason, "err", err)
	}
	return err
}

var reasons = []struct {
	err   error
	label string
}{
	{apperrors.ErrInvalidQuantity, "invalid_quantity"},
	{apperrors.ErrInvalidAmount, "invalid_amount"},
	{apperrors.ErrInvalidSymbol, "invalid_symbol"},
	{apperrors.ErrInsufficientFunds, "insufficient_funds"},
	{apperrors.ErrNoSuchPosition, "no_such_position"},
	{apperrors.ErrInsufficientShares, "insufficient_shares"},
	{apperrors.ErrQuoteUnavailable, "quote_unavailable"},
	{apperrors.ErrConcurrentModification, "concurrent_modification"},
	{apperrors.ErrUserNotFound, "user_not_found"},
}

func rejectReason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "internal"
}
