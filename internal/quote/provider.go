// Package quote resolves ticker symbols to current prices. The trading core
// treats a provider as a black box that returns a quote or reports the
// symbol as unknown.
package quote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/metrics"
	"github.com/papertrade/papertrade/internal/model"
)

// Provider looks up the current quote for a symbol. An unknown symbol is
// reported as apperrors.ErrSymbolNotFound; anything else is a transport
// or upstream failure.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (model.Quote, error)
}

// symbolRegex matches exchange tickers: AAPL, BRK.B, RDS-A, 7203.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)

// NormalizeSymbol trims and upper-cases a ticker and checks its charset.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", apperrors.Reject(apperrors.ErrInvalidSymbol, "must provide symbol")
	}
	if !symbolRegex.MatchString(s) {
		return "", apperrors.Reject(apperrors.ErrInvalidSymbol, "malformed symbol %q", symbol)
	}
	return s, nil
}

// Instrumented wraps a provider and counts lookups by outcome.
func Instrumented(p Provider) Provider {
	return instrumented{next: p}
}

type instrumented struct {
	next Provider
}

func (i instrumented) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	q, err := i.next.Lookup(ctx, symbol)
	switch {
	case err == nil:
		metrics.QuoteLookups.WithLabelValues("ok").Inc()
	case errors.Is(err, apperrors.ErrSymbolNotFound):
		metrics.QuoteLookups.WithLabelValues("not_found").Inc()
	default:
		metrics.QuoteLookups.WithLabelValues("error").Inc()
	}
	return q, err
}

// Resolve looks symbol up and maps failures onto the trading taxonomy: an
// unknown symbol becomes onMissing, any other failure ErrQuoteUnavailable.
func Resolve(ctx context.Context, p Provider, symbol string, onMissing error) (model.Quote, error) {
	q, err := p.Lookup(ctx, symbol)
	if errors.Is(err, apperrors.ErrSymbolNotFound) {
		return model.Quote{}, apperrors.Reject(onMissing, "unknown symbol %s", symbol)
	}
	if err != nil {
		return model.Quote{}, fmt.Errorf("%w: %s: %v", apperrors.ErrQuoteUnavailable, symbol, err)
	}
	if !q.Price.IsPositive() {
		return model.Quote{}, apperrors.Reject(apperrors.ErrQuoteUnavailable, "no price for %s", symbol)
	}
	return q, nil
}
