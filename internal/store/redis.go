package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL or SQLite) with a Redis
// read-through cache. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
//
// Units of work always run against the primary so their reads are the
// locked, committed state.
//
// Every invalidation bumps a per-user generation. A miss remembers the
// generation it started under and only fills the cache if no invalidation
// happened while it read the primary, so a slow reader can never put back
// a row older than the latest commit.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	gen, genErr := s.generation(ctx, u.ID)
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	if genErr == nil {
		s.cacheUser(ctx, gen, u)
	}
	return nil
}

func (s *CachedStore) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	if err := s.primary.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedStore) AppendTransaction(ctx context.Context, t *model.Transaction) (string, error) {
	id, err := s.primary.AppendTransaction(ctx, t)
	if err != nil {
		return "", err
	}
	s.invalidate(ctx, t.UserID)
	return id, nil
}

func (s *CachedStore) UpdateCash(ctx context.Context, userID string, cash decimal.Decimal) error {
	if err := s.primary.UpdateCash(ctx, userID, cash); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *CachedStore) Atomically(ctx context.Context, userID string, fn func(Ledger) error) error {
	err := s.primary.Atomically(ctx, userID, fn)
	// Invalidate even on failure: a failed commit may still have been
	// preceded by a concurrent success.
	s.invalidate(ctx, userID)
	return err
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u cachedUser
		if json.Unmarshal(data, &u) == nil {
			return u.user(), nil
		}
	}

	// Cache miss: read from primary.
	gen, genErr := s.generation(ctx, id)
	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		s.cacheUser(ctx, gen, u)
	}
	return u, nil
}

func (s *CachedStore) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	data, err := s.rdb.Get(ctx, transactionsKey(userID)).Bytes()
	if err == nil {
		var txns []model.Transaction
		if json.Unmarshal(data, &txns) == nil {
			return txns, nil
		}
	}

	// Cache miss.
	gen, genErr := s.generation(ctx, userID)
	txns, err := s.primary.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genErr == nil {
		if data, err := json.Marshal(txns); err == nil {
			s.fill(ctx, userID, gen, transactionsKey(userID), data)
		}
	}
	return txns, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

// Close closes the primary store and the Redis client.
func (s *CachedStore) Close() error {
	return errors.Join(s.primary.Close(), s.rdb.Close())
}

// --- Cache helpers ---

// cachedUser carries the credential hash, which model.User hides from JSON.
type cachedUser struct {
	model.User
	PasswordHash string `json:"password_hash"`
}

func (c cachedUser) user() *model.User {
	u := c.User
	u.PasswordHash = c.PasswordHash
	return &u
}

func (s *CachedStore) cacheUser(ctx context.Context, gen string, u *model.User) {
	if data, err := json.Marshal(cachedUser{User: *u, PasswordHash: u.PasswordHash}); err == nil {
		s.fill(ctx, u.ID, gen, userKey(u.ID), data)
	}
}

// fillScript sets KEYS[2] only while the generation at KEYS[1] still equals
// ARGV[1]. A missing generation reads as "0".
var fillScript = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// generation returns the user's current cache generation.
func (s *CachedStore) generation(ctx context.Context, userID string) (string, error) {
	gen, err := s.rdb.Get(ctx, generationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// fill caches data under key unless the user was invalidated after gen was read.
func (s *CachedStore) fill(ctx context.Context, userID, gen, key string, data []byte) {
	keys := []string{generationKey(userID), key}
	if err := fillScript.Run(ctx, s.rdb, keys, gen, data, s.ttl.Milliseconds()).Err(); err != nil {
		slog.Debug("cache fill skipped", "key", key, "err", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, userID string) {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(userID))
		p.Del(ctx, userKey(userID), transactionsKey(userID))
		return nil
	})
	if err != nil {
		slog.Warn("cache invalidation failed", "user", userID, "err", err)
	}
}

// Keys share a hash tag so the fill script touches a single cluster slot.
func userKey(id string) string          { return fmt.Sprintf("user:{%s}", id) }
func transactionsKey(uid string) string { return fmt.Sprintf("transactions:{%s}", uid) }
func generationKey(uid string) string   { return fmt.Sprintf("generation:{%s}", uid) }
