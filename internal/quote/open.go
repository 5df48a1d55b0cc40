package quote

import (
	"log/slog"
	"time"
)

// Options selects a quote provider.
type Options struct {
	Static  string // "AAPL=150,MSFT=300"; takes precedence
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Open returns the configured provider wrapped with lookup metrics.
func Open(opts Options) (Provider, error) {
	if opts.Static != "" {
		p, err := ParseStatic(opts.Static)
		if err != nil {
			return nil, err
		}
		slog.Warn("using static quotes", "quotes", opts.Static)
		return Instrumented(p), nil
	}
	return Instrumented(NewHTTPClient(opts.BaseURL, opts.APIKey, opts.Timeout)), nil
}
