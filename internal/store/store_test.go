package store_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
	"github.com/papertrade/papertrade/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// backends returns every store implementation available in this environment.
func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	b := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			return store.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) store.Store {
			st, err := store.OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		b["postgres"] = func(t *testing.T) store.Store {
			st, err := store.OpenPostgres(context.Background(), url)
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		}
	}
	return b
}

func seedUser(t *testing.T, st store.Store, cash float64) *model.User {
	t.Helper()
	u := &model.User{
		ID:           uuid.New().String(),
		Username:     "user-" + uuid.New().String()[:8],
		PasswordHash: "hash",
		Cash:         d(cash),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.CreateUser(context.Background(), u))
	return u
}

func newTxn(userID, symbol string, shares int64, price float64) *model.Transaction {
	kind := model.KindBuy
	if shares < 0 {
		kind = model.KindSell
	}
	return &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Symbol:    symbol,
		Shares:    shares,
		Price:     d(price),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

func TestStore_Users(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			u := seedUser(t, st, 10000)

			got, err := st.GetUser(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, u.Username, got.Username)
			assert.Equal(t, "hash", got.PasswordHash)
			assert.True(t, got.Cash.Equal(d(10000)), "cash = %s", got.Cash)

			byName, err := st.GetUserByUsername(ctx, u.Username)
			require.NoError(t, err)
			assert.Equal(t, u.ID, byName.ID)

			dup := *u
			dup.ID = uuid.New().String()
			assert.ErrorIs(t, st.CreateUser(ctx, &dup), apperrors.ErrUsernameTaken)

			require.NoError(t, st.UpdatePasswordHash(ctx, u.ID, "new-hash"))
			got, err = st.GetUser(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "new-hash", got.PasswordHash)

			_, err = st.GetUser(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			_, err = st.GetUserByUsername(ctx, "missing")
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	}
}

func TestStore_TransactionsNewestFirst(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			u := seedUser(t, st, 10000)
			other := seedUser(t, st, 10000)

			first := newTxn(u.ID, "AAPL", 10, 150.25)
			second := newTxn(u.ID, "MSFT", 5, 300)
			third := newTxn(u.ID, "AAPL", -4, 160.5)
			for _, txn := range []*model.Transaction{first, second, third} {
				id, err := st.AppendTransaction(ctx, txn)
				require.NoError(t, err)
				assert.Equal(t, txn.ID, id)
			}
			_, err := st.AppendTransaction(ctx, newTxn(other.ID, "AAPL", 1, 1))
			require.NoError(t, err)

			txns, err := st.ListTransactions(ctx, u.ID)
			require.NoError(t, err)
			require.Len(t, txns, 3)
			assert.Equal(t, third.ID, txns[0].ID)
			assert.Equal(t, second.ID, txns[1].ID)
			assert.Equal(t, first.ID, txns[2].ID)

			assert.Equal(t, int64(-4), txns[0].Shares)
			assert.Equal(t, model.KindSell, txns[0].Kind)
			assert.True(t, txns[0].Price.Equal(d(160.5)))
			assert.Equal(t, int64(6), store.NetShares(txns, "AAPL"))
		})
	}
}

func TestStore_AtomicallyCommits(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			u := seedUser(t, st, 1000)

			err := st.Atomically(ctx, u.ID, func(l store.Ledger) error {
				if _, err := l.AppendTransaction(ctx, newTxn(u.ID, "AAPL", 2, 100)); err != nil {
					return err
				}
				if err := l.UpdateCash(ctx, u.ID, d(800)); err != nil {
					return err
				}
				// The unit sees its own writes.
				got, err := l.GetUser(ctx, u.ID)
				if err != nil {
					return err
				}
				assert.True(t, got.Cash.Equal(d(800)))
				txns, err := l.ListTransactions(ctx, u.ID)
				if err != nil {
					return err
				}
				assert.Len(t, txns, 1)
				return nil
			})
			require.NoError(t, err)

			got, err := st.GetUser(ctx, u.ID)
			require.NoError(t, err)
			assert.True(t, got.Cash.Equal(d(800)), "cash = %s", got.Cash)
			txns, err := st.ListTransactions(ctx, u.ID)
			require.NoError(t, err)
			assert.Len(t, txns, 1)
		})
	}
}

func TestStore_AtomicallyRollsBack(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			u := seedUser(t, st, 1000)
			boom := errors.New("boom")

			err := st.Atomically(ctx, u.ID, func(l store.Ledger) error {
				if _, err := l.AppendTransaction(ctx, newTxn(u.ID, "AAPL", 2, 100)); err != nil {
					return err
				}
				if err := l.UpdateCash(ctx, u.ID, d(800)); err != nil {
					return err
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			got, err := st.GetUser(ctx, u.ID)
			require.NoError(t, err)
			assert.True(t, got.Cash.Equal(d(1000)), "cash = %s", got.Cash)
			txns, err := st.ListTransactions(ctx, u.ID)
			require.NoError(t, err)
			assert.Empty(t, txns)
		})
	}
}

func TestStore_AtomicallyUnknownUser(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			called := false
			err := st.Atomically(context.Background(), "nobody", func(store.Ledger) error {
				called = true
				return nil
			})
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			// The memory store only notices at commit.
			if name != "memory" {
				assert.False(t, called)
			}
		})
	}
}

// TestStore_AtomicallyIsolatesReadCheckWrite runs many debit units in
// parallel; each reads the balance, checks it and writes it back. Lost
// updates would let the balance go negative or overspend.
func TestStore_AtomicallyIsolatesReadCheckWrite(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(t)
			u := seedUser(t, st, 500)

			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := st.Atomically(ctx, u.ID, func(l store.Ledger) error {
						cur, err := l.GetUser(ctx, u.ID)
						if err != nil {
							return err
						}
						if cur.Cash.LessThan(d(100)) {
							return apperrors.ErrInsufficientFunds
						}
						if _, err := l.AppendTransaction(ctx, newTxn(u.ID, "AAPL", 1, 100)); err != nil {
							return err
						}
						return l.UpdateCash(ctx, u.ID, cur.Cash.Sub(d(100)))
					})
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
						return
					}
					if !errors.Is(err, apperrors.ErrInsufficientFunds) && !errors.Is(err, apperrors.ErrConcurrentModification) {
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 5, succeeded)
			got, err := st.GetUser(ctx, u.ID)
			require.NoError(t, err)
			assert.True(t, got.Cash.IsZero(), "cash = %s", got.Cash)
			txns, err := st.ListTransactions(ctx, u.ID)
			require.NoError(t, err)
			assert.Len(t, txns, 5)
		})
	}
}
