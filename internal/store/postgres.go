package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
)

// PostgreSQL error codes that mean a concurrent unit of work won.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pgLedger
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgLedger: pgLedger{q: pool}, pool: pool}
}

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, db, goose.DialectPostgres, "migrations/postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStore(pool), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, cash, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)`,
		u.ID, u.Username, u.PasswordHash, u.Cash.String(), u.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("create user %s: %w", u.Username, apperrors.ErrUsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, cash::TEXT, created_at
		 FROM users WHERE username = $1`, username)
	return scanUser(row, username)
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password %s: %w", userID, apperrors.ErrUserNotFound)
	}
	return nil
}

// Atomically locks the user row FOR UPDATE for the duration of fn, so
// concurrent units on the same user queue behind each other and always
// read the committed cash balance.
func (s *PostgresStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock user %s: %w", userID, apperrors.ErrUserNotFound)
	}
	if err != nil {
		return classifyPg(fmt.Errorf("lock user %s: %w", userID, err))
	}

	if err := fn(&pgLedger{q: tx}); err != nil {
		return classifyPg(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// classifyPg maps lock/serialization conflicts to ErrConcurrentModification.
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %v", apperrors.ErrConcurrentModification, err)
		}
	}
	return err
}

// pgLedger implements Ledger over a pool or an open transaction.
type pgLedger struct {
	q pgQuerier
}

func (l *pgLedger) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := l.q.QueryRow(ctx,
		`SELECT id, username, password_hash, cash::TEXT, created_at
		 FROM users WHERE id = $1`, id)
	return scanUser(row, id)
}

func (l *pgLedger) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := l.q.Query(ctx,
		`SELECT id, user_id, symbol, shares, price::TEXT, kind, timestamp
		 FROM transactions WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", userID, err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (l *pgLedger) AppendTransaction(ctx context.Context, t *model.Transaction) (string, error) {
	_, err := l.q.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, shares, price, kind, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7)`,
		t.ID, t.UserID, t.Symbol, t.Shares, t.Price.String(), string(t.Kind), t.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}
	return t.ID, nil
}

func (l *pgLedger) UpdateCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	tag, err := l.q.Exec(ctx, `UPDATE users SET cash = $2::NUMERIC WHERE id = $1`, userID, cash.String())
	if err != nil {
		return fmt.Errorf("update cash %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update cash %s: %w", userID, apperrors.ErrUserNotFound)
	}
	return nil
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, key string) (*model.User, error) {
	var u model.User
	var cash string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &cash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) || isNoRows(err) {
		return nil, fmt.Errorf("get user %s: %w", key, apperrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", key, err)
	}
	if u.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("get user %s: cash %q: %w", key, cash, err)
	}
	return &u, nil
}

// pgxRows reads rows into Transaction slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTransactions(rows pgxRows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var price, kind string

		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &price, &kind, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("scan transaction %s: price %q: %w", t.ID, price, err)
		}
		t.Price = p
		t.Kind = model.Kind(kind)
		t.Timestamp = t.Timestamp.UTC()

		txns = append(txns, t)
	}
	return txns, rows.Err()
}
