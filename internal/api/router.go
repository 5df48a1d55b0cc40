// Package api exposes the trading ledger over JSON/HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/papertrade/papertrade/internal/account"
	"github.com/papertrade/papertrade/internal/metrics"
	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/trade"
)

// Deps are the services the router serves.
type Deps struct {
	Engine         *trade.Engine
	Valuator       *portfolio.Valuator
	Accounts       *account.Service
	Quotes         quote.Provider
	Hub            *trade.WSHub // optional
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps Deps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	h := &Handler{
		engine:   deps.Engine,
		valuator: deps.Valuator,
		accounts: deps.Accounts,
		quotes:   deps.Quotes,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(NewCORS(deps.CORSOrigins).Handler)
	r.Use(NoCache)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "papertrade"})
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Hub != nil {
			// Trade tape; long-lived, so outside the request timeout.
			r.Get("/ws", deps.Hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(deps.RequestTimeout))

			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser(deps.Accounts))

				r.Get("/quote/{symbol}", h.Quote)
				r.Post("/buy", h.Buy)
				r.Post("/sell", h.Sell)
				r.Post("/deposit", h.Deposit)
				r.Get("/portfolio", h.Portfolio)
				r.Get("/history", h.History)
				r.Get("/profile", h.Profile)
				r.Put("/password", h.ChangePassword)
			})
		})
	})

	return r
}
