package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poyrazK/authbroker/internal/adapters/repository"
	"github.com/poyrazK/authbroker/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		StoreBackend:   config.BackendSQLite,
		SQLitePath:     filepath.Join(t.TempDir(), "nested", "authids.db"),
		IDFormat:       "token",
		VerifyCache:    config.CacheNone,
		VerifyCacheTTL: time.Minute,
		LogLevel:       "error",
	}
}

func TestBuild_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	rt, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close()) }()

	_, ok := rt.Repo.(*repository.SQLiteRepository)
	assert.True(t, ok, "expected the sqlite store")

	ctx := context.Background()
	rec, err := rt.Service.Issue(ctx, nil, nil)
	require.NoError(t, err)
	valid, err := rt.Service.Verify(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestBuild_UnknownFormat(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.IDFormat = "snowflake"
	_, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}))
	assert.Error(t, err)
}

func TestOpenStore_PostgresRequiresURL(t *testing.T) {
	cfg := &config.Config{StoreBackend: config.BackendPostgres}
	_, err := OpenStore(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuild_TieredCacheFollowsPeers(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := sqliteConfig(t)
	cfg.VerifyCache = config.CacheTiered
	cfg.RedisAddr = mr.Addr()

	rt, err := Build(context.Background(), cfg, NewLogger(cfg, &bytes.Buffer{}))
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	rec, err := rt.Service.Issue(ctx, nil, nil)
	require.NoError(t, err)
	valid, err := rt.Service.Verify(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, valid)

	checks := rt.Service.HealthCheck(ctx)
	assert.NoError(t, checks["storage"])
	assert.NoError(t, checks["cache"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&config.Config{LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
