package services

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	svc    *AuthService
	tokens *TokenIssuer
	rm     repomanager.RepositoryManager
	clock  *testClock
	logs   *syncBuffer
}

func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageDriver = config.StorageSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "auth.db")
	cfg.AccessTokenSecret = "access-secret"
	cfg.CookieSecret = "cookie-secret"
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	logs := &syncBuffer{}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	rm, err := repomanager.Open(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rm.Close() })

	clock := &testClock{t: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}

	signer := auth.NewTokenSigner([]byte(cfg.AccessTokenSecret), cfg.Issuer, cfg.AccessTokenValidityDuration).WithClock(clock.now)
	tokens := NewTokenIssuer(rm, signer, cfg, log)
	tokens.now = clock.now

	hasher := auth.NewArgon2Hasher(auth.Argon2Params{Memory: 64, Time: 1, Threads: 1})
	svc, err := NewAuthService(rm, hasher, tokens, cfg, log)
	require.NoError(t, err)
	svc.now = clock.now

	return &testEnv{svc: svc, tokens: tokens, rm: rm, clock: clock, logs: logs}
}
