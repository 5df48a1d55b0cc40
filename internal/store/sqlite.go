package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
)

// SQLiteStore implements Store on a single SQLite file. Decimals are
// stored as TEXT and timestamps as RFC 3339 text.
//
// The pool is capped at one connection: SQLite has a single writer, and
// queueing in database/sql is cheaper than spinning on SQLITE_BUSY.
type SQLiteStore struct {
	sqlLedger
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	// An in-memory database lives as long as its connection.
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "migrations/sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlLedger: sqlLedger{q: db}, db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, cash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.Cash.String(), formatTime(u.CreatedAt),
	)
	if sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("create user %s: %w", u.Username, apperrors.ErrUsernameTaken)
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, cash, created_at FROM users WHERE username = ?`, username)
	return scanSQLiteUser(row, username)
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update password %s: %w", userID, apperrors.ErrUserNotFound)
	}
	return nil
}

// Atomically runs fn inside a BEGIN IMMEDIATE transaction, which takes
// the database write lock up front.
func (s *SQLiteStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQLite(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if isNoRows(err) {
		return fmt.Errorf("lock user %s: %w", userID, apperrors.ErrUserNotFound)
	}
	if err != nil {
		return classifySQLite(fmt.Errorf("lock user %s: %w", userID, err))
	}

	if err := fn(&sqlLedger{q: tx}); err != nil {
		return classifySQLite(err)
	}

	if err := tx.Commit(); err != nil {
		return classifySQLite(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func sqliteCode(err error) int {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code()
	}
	return 0
}

// classifySQLite maps lock contention to ErrConcurrentModification.
func classifySQLite(err error) error {
	switch sqliteCode(err) & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", apperrors.ErrConcurrentModification, err)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// sqlQuerier is satisfied by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlLedger implements Ledger over a database handle or an open transaction.
type sqlLedger struct {
	q sqlQuerier
}

func (l *sqlLedger) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := l.q.QueryRowContext(ctx,
		`SELECT id, username, password_hash, cash, created_at FROM users WHERE id = ?`, id)
	return scanSQLiteUser(row, id)
}

func (l *sqlLedger) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := l.q.QueryContext(ctx,
		`SELECT id, user_id, symbol, shares, price, kind, timestamp
		 FROM transactions WHERE user_id = ? ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s: %w", userID, err)
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var price, kind, ts string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &price, &kind, &ts); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("scan transaction %s: price %q: %w", t.ID, price, err)
		}
		if t.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("scan transaction %s: %w", t.ID, err)
		}
		t.Kind = model.Kind(kind)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (l *sqlLedger) AppendTransaction(ctx context.Context, t *model.Transaction) (string, error) {
	_, err := l.q.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, symbol, shares, price, kind, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Symbol, t.Shares, t.Price.String(), string(t.Kind), formatTime(t.Timestamp),
	)
	if err != nil {
		return "", fmt.Errorf("append transaction: %w", err)
	}
	return t.ID, nil
}

func (l *sqlLedger) UpdateCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	res, err := l.q.ExecContext(ctx, `UPDATE users SET cash = ? WHERE id = ?`, cash.String(), userID)
	if err != nil {
		return fmt.Errorf("update cash %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update cash %s: %w", userID, apperrors.ErrUserNotFound)
	}
	return nil
}

func scanSQLiteUser(row *sql.Row, key string) (*model.User, error) {
	var u model.User
	var cash, created string
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &cash, &created)
	if isNoRows(err) {
		return nil, fmt.Errorf("get user %s: %w", key, apperrors.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", key, err)
	}
	if u.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("get user %s: cash %q: %w", key, cash, err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("get user %s: %w", key, err)
	}
	return &u, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
