package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/apperrors"
	"github.com/papertrade/papertrade/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]*model.User
	ledger []model.Transaction // append order

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-user unit-of-work locks
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*model.User),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("create user %s: %w", u.Username, apperrors.ErrUsernameTaken)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserLocked(id)
}

func (s *MemoryStore) getUserLocked(id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user %s: %w", id, apperrors.ErrUserNotFound)
	}
	copy := *u
	return &copy, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			copy := *u
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("get user %s: %w", username, apperrors.ErrUserNotFound)
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("update password %s: %w", userID, apperrors.ErrUserNotFound)
	}
	u.PasswordHash = hash
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(userID), nil
}

func (s *MemoryStore) listLocked(userID string) []model.Transaction {
	var result []model.Transaction
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID == userID {
			result = append(result, s.ledger[i])
		}
	}
	return result
}

func (s *MemoryStore) AppendTransaction(_ context.Context, t *model.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return "", fmt.Errorf("append transaction: %w", apperrors.ErrUserNotFound)
	}
	s.ledger = append(s.ledger, *t)
	return t.ID, nil
}

func (s *MemoryStore) UpdateCash(_ context.Context, userID string, cash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("update cash %s: %w", userID, apperrors.ErrUserNotFound)
	}
	u.Cash = cash
	return nil
}

// Atomically serializes units of work per user and stages their writes;
// staged writes are applied only when fn succeeds.
func (s *MemoryStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{store: s, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("commit %s: %w", userID, apperrors.ErrUserNotFound)
	}
	s.ledger = append(s.ledger, tx.appended...)
	if tx.cash != nil {
		s.users[userID].Cash = *tx.cash
	}
	return nil
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) Close() error { return nil }

// memoryTx is the Ledger handed to a unit of work. Reads see the unit's
// own staged writes on top of the committed state.
type memoryTx struct {
	store    *MemoryStore
	userID   string
	appended []model.Transaction
	cash     *decimal.Decimal
}

func (tx *memoryTx) GetUser(_ context.Context, id string) (*model.User, error) {
	tx.store.mu.RLock()
	u, err := tx.store.getUserLocked(id)
	tx.store.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if id == tx.userID && tx.cash != nil {
		u.Cash = *tx.cash
	}
	return u, nil
}

func (tx *memoryTx) ListTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	tx.store.mu.RLock()
	committed := tx.store.listLocked(userID)
	tx.store.mu.RUnlock()

	var staged []model.Transaction
	for i := len(tx.appended) - 1; i >= 0; i-- {
		if tx.appended[i].UserID == userID {
			staged = append(staged, tx.appended[i])
		}
	}
	return append(staged, committed...), nil
}

func (tx *memoryTx) AppendTransaction(_ context.Context, t *model.Transaction) (string, error) {
	if t.UserID != tx.userID {
		return "", fmt.Errorf("append transaction for %s inside unit of %s", t.UserID, tx.userID)
	}
	tx.appended = append(tx.appended, *t)
	return t.ID, nil
}

func (tx *memoryTx) UpdateCash(_ context.Context, userID string, cash decimal.Decimal) error {
	if userID != tx.userID {
		return fmt.Errorf("update cash for %s inside unit of %s", userID, tx.userID)
	}
	tx.cash = &cash
	return nil
}
