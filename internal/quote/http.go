package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
)

// JSON paths read from the quote endpoint response.
const (
	pathName      = "$.companyName"
	pathSymbol    = "$.symbol"
	pathPrice     = "$.latestPrice"
	pathMarketCap = "$.marketCap"
)

// maxQuoteBody caps how much of an upstream response is read.
const maxQuoteBody = 64 << 10

// HTTPClient fetches quotes from an IEX-style REST endpoint:
//
//	GET {baseURL}/stock/{symbol}/quote?token={token}
//
// returning {"companyName": ..., "symbol": ..., "latestPrice": ..., "marketCap": ...}.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a quote client with the given request timeout.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup implements Provider.
func (c *HTTPClient) Lookup(ctx context.Context, symbol string) (model.Quote, error) {
	addr := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return model.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, fmt.Errorf("quote %s: upstream status %s", symbol, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxQuoteBody+1))
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if len(data) > maxQuoteBody {
		return model.Quote{}, fmt.Errorf("quote %s: upstream body exceeds %d bytes", symbol, maxQuoteBody)
	}
	var jobj any
	if err := json.Unmarshal(data, &jobj); err != nil || jobj == nil {
		// The upstream answers unknown tickers with an empty or non-JSON body.
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}

	price, ok := decimalAt(jobj, pathPrice)
	if !ok {
		return model.Quote{}, fmt.Errorf("quote %s: %w", symbol, apperrors.ErrSymbolNotFound)
	}
	q := model.Quote{
		Symbol: symbol,
		Name:   symbol,
		Price:  price,
	}
	if s, ok := stringAt(jobj, pathSymbol); ok && s != "" {
		q.Symbol = s
	}
	if s, ok := stringAt(jobj, pathName); ok && s != "" {
		q.Name = s
	}
	if mc, ok := decimalAt(jobj, pathMarketCap); ok {
		q.MarketCap = mc
	}
	return q, nil
}

func stringAt(jobj any, path string) (string, bool) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return "", false
	}
	s, ok := jval.(string)
	return s, ok
}

func decimalAt(jobj any, path string) (decimal.Decimal, bool) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, false
	}
	switch v := jval.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		// some upstreams send numbers as strings
		dv, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
		return dv, err == nil
	default:
		return decimal.Zero, false
	}
}
