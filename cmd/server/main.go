package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/papertrade/papertrade/internal/account"
	"github.com/papertrade/papertrade/internal/api"
	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
	"github.com/papertrade/papertrade/internal/trade"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireSecret()
	}
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("store initialization failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	quotes, err := quote.Open(cfg.Quotes)
	if err != nil {
		slog.Error("quote provider initialization failed", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub(cfg.CORS.AllowedOrigins...)
	go wsHub.Run(ctx)

	// --- Services ---
	engine := trade.NewEngine(st, quotes, wsHub)
	valuator := portfolio.NewValuator(st, quotes, cfg.Trading.CostBasis)
	accounts := account.NewService(st, account.Options{
		Secret:       cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
		StartingCash: cfg.Trading.StartingCash,
	})

	router := api.NewRouter(api.Deps{
		Engine:      engine,
		Valuator:    valuator,
		Accounts:    accounts,
		Quotes:      quotes,
		Hub:         wsHub,
		CORSOrigins: cfg.CORS.AllowedOrigins,
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("papertrade listening",
			"addr", cfg.Server.Addr,
			"cost_basis", string(cfg.Trading.CostBasis),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down papertrade...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("papertrade stopped")
}
