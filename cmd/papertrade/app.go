package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/papertrade/papertrade/internal/account"
	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/portfolio"
	"github.com/papertrade/papertrade/internal/quote"
	"github.com/papertrade/papertrade/internal/store"
	"github.com/papertrade/papertrade/internal/trade"
)

// app holds the services every subcommand works with.
type app struct {
	store    store.Store
	quotes   quote.Provider
	engine   *trade.Engine
	valuator *portfolio.Valuator
	accounts *account.Service
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Keep the terminal quiet unless a level was asked for.
	level := cfg.Log.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	quotes, err := quote.Open(cfg.Quotes)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &app{
		store:    st,
		quotes:   quotes,
		engine:   trade.NewEngine(st, quotes, nil),
		valuator: portfolio.NewValuator(st, quotes, cfg.Trading.CostBasis),
		accounts: account.NewService(st, account.Options{
			Secret:       cfg.Auth.JWTSecret,
			TokenTTL:     cfg.Auth.TokenTTL,
			StartingCash: cfg.Trading.StartingCash,
		}),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// userID resolves the -user flag.
func (a *app) userID(ctx context.Context) (string, error) {
	if *username == "" {
		return "", errors.New("no user: pass -user or set PAPERTRADE_USER")
	}
	u, err := a.store.GetUserByUsername(ctx, *username)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
}
