// Package portfolio values a user's holdings: it derives positions from the
// transaction log and prices them with current quotes.
package portfolio

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/metrics"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
)

// maxQuoteFetches bounds concurrent quote lookups per valuation.
const maxQuoteFetches = 8

// Valuator computes portfolio snapshots. It never writes.
type Valuator struct {
	store  store.Store
	quotes quote.Provider
	method CostBasis
	now    func() time.Time
}

// NewValuator creates a portfolio valuator using the given cost-basis method.
func NewValuator(st store.Store, quotes quote.Provider, method CostBasis) *Valuator {
	if method == "" {
		method = CostBasisNetted
	}
	return &Valuator{
		store:  st,
		quotes: quotes,
		method: method,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Method returns the configured cost-basis method.
func (v *Valuator) Method() CostBasis {
	return v.method
}

// GetPortfolio prices every open position of userID. Any quote failure
// aborts the whole view with ErrQuoteUnavailable.
func (v *Valuator) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	start := time.Now()
	defer func() { metrics.ValuationDuration.Observe(time.Since(start).Seconds()) }()

	// Cash and log are read in one unit so a concurrent trade cannot land
	// between them.
	var (
		cash decimal.Decimal
		txns []model.Transaction
	)
	err := v.store.Atomically(ctx, userID, func(l store.Ledger) error {
		u, err := l.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		cash = u.Cash
		txns, err = l.ListTransactions(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var open []Holding
	realized := decimal.Zero
	for _, h := range Aggregate(txns, v.method) {
		realized = realized.Add(h.RealizedReturn)
		if h.Shares > 0 {
			open = append(open, h)
		}
	}

	quotes := make([]model.Quote, len(open))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxQuoteFetches)
	for i, h := range open {
		g.Go(func() error {
			q, err := quote.Resolve(gctx, v.quotes, h.Symbol, apperrors.ErrQuoteUnavailable)
			if err != nil {
				return err
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("portfolio valuation aborted", "user", userID, "err", err)
		return nil, err
	}

	p := Value(cash, open, quotes)
	p.UserID = userID
	p.RealizedReturn = realized
	p.PricedAt = v.now()
	return p, nil
}

// Value builds a portfolio from open holdings and their quotes (same order).
// Percentages are fractions; a zero denominator yields zero.
func Value(cash decimal.Decimal, open []Holding, quotes []model.Quote) *model.Portfolio {
	positions := make([]model.Position, len(open))
	totalValue := decimal.Zero
	totalReturn := decimal.Zero
	for i, h := range open {
		q := quotes[i]
		n := decimal.NewFromInt(h.Shares)
		value := q.Price.Mul(n)
		unrealized := q.Price.Sub(h.AvgCost).Mul(n)
		positions[i] = model.Position{
			Symbol:           h.Symbol,
			Name:             q.Name,
			Shares:           h.Shares,
			AvgCost:          h.AvgCost,
			Price:            q.Price,
			Value:            value,
			UnrealizedReturn: unrealized,
			ReturnPct:        ratio(unrealized, value),
			RealizedReturn:   h.RealizedReturn,
		}
		totalValue = totalValue.Add(value)
		totalReturn = totalReturn.Add(unrealized)
	}

	grand := totalValue.Add(cash)
	for i := range positions {
		positions[i].Weight = ratio(positions[i].Value, grand)
	}

	return &model.Portfolio{
		Positions:      positions,
		Cash:           cash,
		CashWeight:     ratio(cash, grand),
		GrandTotal:     grand,
		TotalReturn:    totalReturn,
		TotalReturnPct: ratio(totalReturn, grand),
	}
}

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}
