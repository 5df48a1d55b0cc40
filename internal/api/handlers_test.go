package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/papertrade/internal/account"
	"github.com/papertrade/papertrade/internal/api"
	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
	"github.com/papertrade/papertrade/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	router http.Handler
	quotes *quote.StaticProvider
	store  store.Store
}

// newTestEnv wires the router over an in-memory store and static quotes.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	quotes := quote.NewStaticProvider()
	quotes.SetQuote(model.Quote{Symbol: "AAPL", Name: "Apple Inc.", Price: d(150), MarketCap: decimal.NewFromInt(2430000000000)})
	quotes.Set("MSFT", d(300))

	accounts := account.NewService(st, account.Options{
		Secret:       []byte("test"),
		StartingCash: decimal.NewFromInt(10000),
		BcryptCost:   bcrypt.MinCost,
	})
	router := api.NewRouter(api.Deps{
		Engine:      trade.NewEngine(st, quotes, nil),
		Valuator:    portfolio.NewValuator(st, quotes, portfolio.CostBasisAverage),
		Accounts:    accounts,
		Quotes:      quotes,
		CORSOrigins: []string{"http://localhost:3000"},
	})
	return &testEnv{router: router, quotes: quotes, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns a session token.
func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": username, "password": "s3cret!", "confirmation": "s3cret!",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, "POST", "/api/v1/login", "", map[string]string{"username": username, "password": "s3cret!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

// --- Accounts ---

func TestRegister(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "alice", "password": "s3cret!", "confirmation": "different1!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorOf(t, w), "match")

	w = e.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "alice", "password": "weak", "confirmation": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "alice", "password": "s3cret!", "confirmation": "s3cret!",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var prof api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prof))
	assert.Equal(t, "alice", prof.Username)
	assert.Equal(t, "$10,000.00", prof.CashUSD)
	assert.NotContains(t, w.Body.String(), "password")

	w = e.do(t, "POST", "/api/v1/register", "", map[string]string{
		"username": "alice", "password": "s3cret!", "confirmation": "s3cret!",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, "POST", "/api/v1/register", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.signup(t, "bob")

	w := e.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "bob", "password": "wrong1!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/v1/portfolio", "/api/v1/history", "/api/v1/profile", "/api/v1/quote/AAPL"} {
		w := e.do(t, "GET", path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := e.do(t, "GET", "/api/v1/portfolio", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProfileAndChangePassword(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "carol")

	w := e.do(t, "GET", "/api/v1/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prof api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prof))
	assert.Equal(t, "carol", prof.Username)
	assert.True(t, prof.Cash.Equal(d(10000)))

	w = e.do(t, "PUT", "/api/v1/password", token, map[string]string{"password": "n3wpass!", "confirmation": "other1!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "PUT", "/api/v1/password", token, map[string]string{"password": "n3wpass!", "confirmation": "n3wpass!"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, "POST", "/api/v1/login", "", map[string]string{"username": "carol", "password": "n3wpass!"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Trading ---

func TestBuyThenPortfolio(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "dave")

	w := e.do(t, "POST", "/api/v1/buy", token, `{"symbol":"aapl","shares":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conf api.ConfirmationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conf))
	assert.Equal(t, model.KindBuy, conf.Kind)
	assert.Equal(t, "AAPL", conf.Symbol)
	assert.True(t, conf.Cash.Equal(d(8500)))
	assert.Equal(t, "$1,500.00", conf.TotalUSD)
	assert.Equal(t, "$8,500.00", conf.CashUSD)

	e.quotes.Set("AAPL", d(200))

	w = e.do(t, "GET", "/api/v1/portfolio", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p api.PortfolioResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	require.Len(t, p.Positions, 1)
	assert.True(t, p.Positions[0].Value.Equal(d(2000)))
	assert.True(t, p.Positions[0].UnrealizedReturn.Equal(d(500)))
	assert.True(t, p.Positions[0].ReturnPct.Equal(d(0.25)))
	assert.True(t, p.GrandTotal.Equal(d(10500)))
	assert.Equal(t, portfolio.CostBasisAverage, p.CostBasis)
	assert.Equal(t, "$10,500.00", p.GrandTotalUSD)
}

func TestEmptyPortfolio(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "erin")

	w := e.do(t, "GET", "/api/v1/portfolio", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"positions":[]`)
}

func TestTradeRejections(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "frank")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"fractional shares", "/api/v1/buy", `{"symbol":"AAPL","shares":1.5}`, http.StatusBadRequest},
		{"missing shares", "/api/v1/buy", `{"symbol":"AAPL"}`, http.StatusBadRequest},
		{"zero shares", "/api/v1/buy", `{"symbol":"AAPL","shares":0}`, http.StatusBadRequest},
		{"unknown symbol", "/api/v1/buy", `{"symbol":"ZZZZ","shares":1}`, http.StatusBadRequest},
		{"insufficient funds", "/api/v1/buy", `{"symbol":"AAPL","shares":1000}`, http.StatusUnprocessableEntity},
		{"no position", "/api/v1/sell", `{"symbol":"MSFT","shares":1}`, http.StatusUnprocessableEntity},
		{"bad deposit", "/api/v1/deposit", `{"amount":-5}`, http.StatusBadRequest},
		{"non-numeric deposit", "/api/v1/deposit", `{"amount":"lots"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, "POST", tt.path, token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := e.do(t, "GET", "/api/v1/profile", token, nil)
	var prof api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prof))
	assert.True(t, prof.Cash.Equal(d(10000)), "rejections must not move cash")
}

func TestSellAndHistory(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "gina")

	require.Equal(t, http.StatusOK, e.do(t, "POST", "/api/v1/buy", token, `{"symbol":"MSFT","shares":"3"}`).Code)

	w := e.do(t, "POST", "/api/v1/sell", token, `{"symbol":"MSFT","shares":4}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, "POST", "/api/v1/sell", token, `{"symbol":"MSFT","shares":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, "GET", "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var txns []model.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txns))
	require.Len(t, txns, 2)
	assert.Equal(t, model.KindSell, txns[0].Kind)
	assert.Equal(t, int64(-2), txns[0].Shares)
	assert.Equal(t, model.KindBuy, txns[1].Kind)
}

func TestDeposit(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "hank")

	w := e.do(t, "POST", "/api/v1/deposit", token, `{"amount":"250.25"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conf api.ConfirmationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conf))
	assert.Equal(t, model.KindDeposit, conf.Kind)
	assert.Equal(t, "$10,250.25", conf.CashUSD)
}

func TestQuote(t *testing.T) {
	e := newTestEnv(t)
	token := e.signup(t, "ivy")

	w := e.do(t, "GET", "/api/v1/quote/aapl", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var q api.QuoteResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, "$150.00", q.PriceUSD)
	assert.Equal(t, "2.43T", q.MarketCapHuman)

	w = e.do(t, "GET", "/api/v1/quote/ZZZZ", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.quotes.Fail(errors.New("upstream down"))
	w = e.do(t, "GET", "/api/v1/quote/AAPL", token, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = e.do(t, "GET", "/api/v1/portfolio", token, nil)
	assert.Equal(t, http.StatusOK, w.Code, "no positions means nothing to quote")
}

func TestNoCacheHeaders(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.Reject(apperrors.ErrInvalidQuantity, "x"), http.StatusBadRequest},
		{apperrors.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{apperrors.ErrConcurrentModification, http.StatusConflict},
		{apperrors.ErrQuoteUnavailable, http.StatusBadGateway},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{apperrors.ErrUserNotFound, http.StatusNotFound},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, api.StatusFor(tt.err), tt.err.Error())
	}

	w := httptest.NewRecorder()
	api.RespondError(w, httptest.NewRequest("GET", "/", nil), errors.New("pq: secret detail"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", errorOf(t, w))
}
