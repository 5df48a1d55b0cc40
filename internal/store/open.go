package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects and configures a store backend.
type Options struct {
	DatabaseURL string // PostgreSQL; takes precedence
	SQLitePath  string // used when DatabaseURL is empty
	RedisURL    string // optional cache in front of a durable store
	CacheTTL    time.Duration
}

// Open returns PostgreSQL when DatabaseURL is set, otherwise SQLite when
// SQLitePath is set, otherwise an in-memory store. A Redis cache wraps the
// durable stores when RedisURL is set.
func Open(ctx context.Context, opts Options) (Store, error) {
	var st Store
	switch {
	case opts.DatabaseURL != "":
		pg, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case opts.SQLitePath != "":
		lite, err := OpenSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		st = lite
		slog.Info("opened SQLite database", "path", opts.SQLitePath)
	default:
		slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
		return NewMemoryStore(), nil
	}

	if opts.RedisURL == "" {
		return st, nil
	}
	opt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		st.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	slog.Info("Redis cache enabled", "ttl", ttl.String())
	return NewCachedStore(st, rdb, ttl), nil
}
