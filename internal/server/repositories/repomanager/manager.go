// Package repomanager owns the storage handles of the server. A
// RepositoryManager vends repositories bound to either the pool or a
// transaction, applies migrations and closes everything on shutdown.
package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/migrations"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

type RepositoryManager interface {
	// DB is the pool transactions are started on.
	DB() *sql.DB
	RunMigrations(ctx context.Context) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Ping(ctx context.Context) error
	Close() error
}

// migrateUp is a seam for tests.
var migrateUp = migrations.Up

// redisKeyPrefix namespaces refresh token keys in a shared Redis.
const redisKeyPrefix = "gophauth:"

// Open connects to the configured storage, runs migrations and returns the
// manager. With TokenStore=redis the refresh tokens live in Redis while users
// stay in SQL.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger) (RepositoryManager, error) {
	var (
		m   RepositoryManager
		err error
	)

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		m, err = OpenPostgres(ctx, cfg.DatabaseDSN)
	case config.StorageSQLite:
		m, err = OpenSQLite(ctx, cfg.SQLitePath)
	default:
		err = fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info(ctx, "storage ready", "driver", cfg.StorageDriver)

	if cfg.TokenStore == config.TokenStoreRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = m.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info(ctx, "refresh tokens stored in redis", "addr", cfg.RedisAddr)
		m = WithRedisTokens(m, rdb, redisKeyPrefix)
	}

	return m, nil
}

// RedisTokensManager delegates to a SQL manager but keeps refresh tokens in
// Redis.
type RedisTokensManager struct {
	RepositoryManager
	rdb    *redis.Client
	prefix string
}

func WithRedisTokens(m RepositoryManager, rdb *redis.Client, prefix string) *RedisTokensManager {
	return &RedisTokensManager{RepositoryManager: m, rdb: rdb, prefix: prefix}
}

// RefreshTokens ignores db: Redis operations do not join SQL transactions.
func (m *RedisTokensManager) RefreshTokens(_ dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewRedisRepository(m.rdb, m.prefix)
}

func (m *RedisTokensManager) Ping(ctx context.Context) error {
	if err := m.RepositoryManager.Ping(ctx); err != nil {
		return err
	}
	return m.rdb.Ping(ctx).Err()
}

func (m *RedisTokensManager) Close() error {
	return errors.Join(m.rdb.Close(), m.RepositoryManager.Close())
}
