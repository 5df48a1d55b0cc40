package portfolio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/model"
)

// CostBasis selects how a position's average cost is derived from its
// transactions.
type CostBasis string

const (
	// CostBasisNetted divides Σ(signed shares × price) by Σ signed shares
	// over the symbol's whole history. Sells at a gain lower the reported
	// cost. No realized return is tracked. This is the default.
	CostBasisNetted CostBasis = "netted"

	// CostBasisAverage keeps a running weighted average of buys. Sells
	// remove shares at the current average and book the difference as
	// realized return; the average resets once the position is closed.
	CostBasisAverage CostBasis = "average"
)

// ParseCostBasis parses a method name; empty means CostBasisNetted.
func ParseCostBasis(s string) (CostBasis, error) {
	switch CostBasis(strings.ToLower(strings.TrimSpace(s))) {
	case "", CostBasisNetted:
		return CostBasisNetted, nil
	case CostBasisAverage:
		return CostBasisAverage, nil
	default:
		return "", fmt.Errorf("unknown cost basis %q (want average or netted)", s)
	}
}

// Holding is the aggregate of one symbol's transactions.
type Holding struct {
	Symbol         string
	Shares         int64
	AvgCost        decimal.Decimal
	RealizedReturn decimal.Decimal
}

type accumulator struct {
	shares   int64
	cost     decimal.Decimal // open cost under average, Σ signed total under netted
	realized decimal.Decimal
}

// Aggregate folds txns, newest first as the store lists them, into
// per-symbol holdings sorted by symbol. Symbols whose net shares are not
// positive are kept so their realized return still counts; callers drop
// them from positions.
func Aggregate(txns []model.Transaction, method CostBasis) []Holding {
	accs := make(map[string]*accumulator)
	for i := len(txns) - 1; i >= 0; i-- {
		t := txns[i]
		a, ok := accs[t.Symbol]
		if !ok {
			a = &accumulator{}
			accs[t.Symbol] = a
		}
		if method == CostBasisNetted {
			a.shares += t.Shares
			a.cost = a.cost.Add(t.Total())
			continue
		}
		applyAverage(a, t)
	}

	holdings := make([]Holding, 0, len(accs))
	for sym, a := range accs {
		h := Holding{Symbol: sym, Shares: a.shares, RealizedReturn: a.realized}
		if a.shares > 0 {
			h.AvgCost = a.cost.Div(decimal.NewFromInt(a.shares))
		}
		holdings = append(holdings, h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings
}

func applyAverage(a *accumulator, t model.Transaction) {
	if t.Shares > 0 {
		a.shares += t.Shares
		a.cost = a.cost.Add(t.Total())
		return
	}
	sold := -t.Shares
	if a.shares <= 0 {
		a.shares -= sold
		return
	}
	if sold > a.shares {
		sold = a.shares
	}
	n := decimal.NewFromInt(sold)
	avg := a.cost.Div(decimal.NewFromInt(a.shares))
	a.realized = a.realized.Add(t.Price.Sub(avg).Mul(n))
	a.shares -= sold
	if a.shares == 0 {
		a.cost = decimal.Zero
	} else {
		a.cost = a.cost.Sub(avg.Mul(n))
	}
	// excess beyond the holding (never produced by the engine)
	a.shares -= (-t.Shares) - sold
}
