package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/account"
	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/format"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/trade"
)

const maxBodyBytes = 1 << 16

// Handler serves the /api/v1 endpoints.
type Handler struct {
	engine   *trade.Engine
	valuator *portfolio.Valuator
	accounts *account.Service
	quotes   quote.Provider
}

// --- Request/Response types ---

// CredentialsRequest is the JSON body for POST /register and POST /login.
type CredentialsRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation,omitempty"`
}

// TradeRequest is the JSON body for POST /buy and POST /sell.
type TradeRequest struct {
	Symbol string      `json:"symbol"`
	Shares json.Number `json:"shares"`
}

// DepositRequest is the JSON body for POST /deposit.
type DepositRequest struct {
	Amount json.Number `json:"amount"`
}

// PasswordRequest is the JSON body for PUT /password.
type PasswordRequest struct {
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// TokenResponse is returned from POST /login.
type TokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// ProfileResponse is returned from GET /profile and POST /register.
type ProfileResponse struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Cash      decimal.Decimal `json:"cash"`
	CashUSD   string          `json:"cash_usd"`
	CreatedAt time.Time       `json:"created_at"`
}

// QuoteResponse is returned from GET /quote/{symbol}.
type QuoteResponse struct {
	model.Quote
	PriceUSD       string `json:"price_usd"`
	MarketCapHuman string `json:"market_cap_human"`
}

// ConfirmationResponse is returned from POST /buy, /sell and /deposit.
type ConfirmationResponse struct {
	*model.Confirmation
	TotalUSD string `json:"total_usd"`
	CashUSD  string `json:"cash_usd"`
}

// PortfolioResponse is returned from GET /portfolio.
type PortfolioResponse struct {
	*model.Portfolio
	CostBasis     portfolio.CostBasis `json:"cost_basis"`
	GrandTotalUSD string              `json:"grand_total_usd"`
}

// --- HTTP Handlers ---

// Register handles POST /api/v1/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := account.ConfirmPassword(req.Password, req.Confirmation); err != nil {
		RespondError(w, r, err)
		return
	}
	u, err := h.accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, profile(u))
}

// Login handles POST /api/v1/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	userID, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	token, err := h.accounts.IssueToken(userID)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, TokenResponse{Token: token, UserID: userID})
}

// Quote handles GET /api/v1/quote/{symbol}
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	sym, err := quote.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	q, err := quote.Resolve(r.Context(), h.quotes, sym, apperrors.ErrInvalidSymbol)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, QuoteResponse{
		Quote:          q,
		PriceUSD:       format.USD(q.Price),
		MarketCapHuman: format.Human(q.MarketCap),
	})
}

// Buy handles POST /api/v1/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decode(w, r, &req) {
		return
	}
	shares, err := parseShares(req.Shares)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	conf, err := h.engine.Buy(r.Context(), UserID(r.Context()), req.Symbol, shares)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, confirmation(conf))
}

// Sell handles POST /api/v1/sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if !decode(w, r, &req) {
		return
	}
	shares, err := parseShares(req.Shares)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	conf, err := h.engine.Sell(r.Context(), UserID(r.Context()), req.Symbol, shares)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, confirmation(conf))
}

// Deposit handles POST /api/v1/deposit
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		RespondError(w, r, apperrors.Reject(apperrors.ErrInvalidAmount, "amount %q is not a number", req.Amount))
		return
	}
	conf, err := h.engine.Deposit(r.Context(), UserID(r.Context()), amount)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, confirmation(conf))
}

// Portfolio handles GET /api/v1/portfolio
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.valuator.GetPortfolio(r.Context(), UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	if p.Positions == nil {
		p.Positions = []model.Position{}
	}
	RespondJSON(w, http.StatusOK, PortfolioResponse{
		Portfolio:     p,
		CostBasis:     h.valuator.Method(),
		GrandTotalUSD: format.USD(p.GrandTotal),
	})
}

// History handles GET /api/v1/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	txns, err := h.engine.History(r.Context(), UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, txns)
}

// Profile handles GET /api/v1/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.accounts.Profile(r.Context(), UserID(r.Context()))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, profile(u))
}

// ChangePassword handles PUT /api/v1/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := account.ConfirmPassword(req.Password, req.Confirmation); err != nil {
		RespondError(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), UserID(r.Context()), req.Password); err != nil {
		RespondError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

// --- helpers ---

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		RespondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// parseShares accepts whole numbers only, given as a JSON number or string.
func parseShares(n json.Number) (int64, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, apperrors.Reject(apperrors.ErrInvalidQuantity, "shares is required")
	}
	v, err := n.Int64()
	if err != nil {
		return 0, apperrors.Reject(apperrors.ErrInvalidQuantity, "shares must be a whole number, got %s", s)
	}
	return v, nil
}

func confirmation(c *model.Confirmation) ConfirmationResponse {
	return ConfirmationResponse{
		Confirmation: c,
		TotalUSD:     format.USD(c.Total),
		CashUSD:      format.USD(c.Cash),
	}
}

func profile(u *model.User) ProfileResponse {
	return ProfileResponse{
		ID:        u.ID,
		Username:  u.Username,
		Cash:      u.Cash,
		CashUSD:   format.USD(u.Cash),
		CreatedAt: u.CreatedAt,
	}
}
