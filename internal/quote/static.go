package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
)

// StaticProvider serves quotes from an in-memory table. Used for tests and
// offline development; prices can be moved with Set.
type StaticProvider struct {
	mu     sync.RWMutex
	quotes map[string]model.Quote
	fail   error
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{quotes: make(map[string]model.Quote)}
}

// ParseStatic builds a provider from "AAPL=150,MSFT=300.5".
func ParseStatic(list string) (*StaticProvider, error) {
	p := NewStaticProvider()
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sym, price, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("static quote %q: want SYMBOL=PRICE", item)
		}
		dp, err := decimal.NewFromString(strings.TrimSpace(price))
		if err != nil {
			return nil, fmt.Errorf("static quote %q: %w", item, err)
		}
		p.Set(strings.TrimSpace(sym), dp)
	}
	return p, nil
}

// Set sets the price of symbol, keeping any name already known.
func (p *StaticProvider) Set(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbol = strings.ToUpper(symbol)
	q, ok := p.quotes[symbol]
	if !ok {
		q = model.Quote{Symbol: symbol, Name: symbol}
	}
	q.Price = price
	p.quotes[symbol] = q
}

// SetQuote stores a full quote.
func (p *StaticProvider) SetQuote(q model.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[strings.ToUpper(q.Symbol)] = q
}

// Fail makes every following lookup return err; nil restores service.
func (p *StaticProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Lookup implements Provider.
func (p *StaticProvider) Lookup(_ context.Context, symbol string) (model.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.fail != nil {
		return model.Quote{}, p.fail
	}
	q, ok := p.quotes[strings.ToUpper(symbol)]
	if !ok {
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	return q, nil
}
