package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "owner", cfg.Ledger.Owner)
	assert.Equal(t, "hash", cfg.Ledger.TokenMode)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "tracechain.db", cfg.Store.SQLitePath)
	assert.Equal(t, "memory", cfg.Blob.Driver)
	assert.Equal(t, "./blobdata", cfg.Blob.FSRoot)
	assert.Equal(t, "us-east-1", cfg.Blob.S3.Region)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 50, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, 100, cfg.Server.RateLimitBurst)
	assert.Equal(t, "prometheus", cfg.Metrics.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Trace.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
ledger:
  owner: 0xOWNER
  token_mode: random
store:
  driver: sqlite
  sqlite_path: /var/lib/tracechain/ledger.db
blob:
  driver: s3
  s3:
    bucket: passports
    endpoint: http://minio:9000
    path_style: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0xOWNER", cfg.Ledger.Owner)
	assert.Equal(t, "random", cfg.Ledger.TokenMode)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/tracechain/ledger.db", cfg.Store.SQLitePath)
	assert.Equal(t, "passports", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "us-east-1", cfg.Blob.S3.Region)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 9090\n"), 0o644))
	t.Setenv("TRACECHAIN_SERVER_PORT", "7070")
	t.Setenv("TRACECHAIN_STORE_DRIVER", "postgres")
	t.Setenv("TRACECHAIN_STORE_POSTGRES_DSN", "postgres://db/ledger")
	t.Setenv("TRACECHAIN_TRACE_PATH", "/tmp/ledger-trace.jsonl")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ledger-trace.jsonl", cfg.Trace.Path)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://db/ledger", cfg.Store.PostgresDSN)
}

func TestLoadFileExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  backend: expvar\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "expvar", cfg.Metrics.Backend)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"TRACECHAIN_STORE_DRIVER":      "etcd",
		"TRACECHAIN_LEDGER_TOKEN_MODE": "uuid",
		"TRACECHAIN_BLOB_DRIVER":       "gcs",
		"TRACECHAIN_METRICS_BACKEND":   "statsd",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateDriverRequirements(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	pg := *cfg
	pg.Store.Driver = "postgres"
	assert.ErrorContains(t, pg.Validate(), "postgres_dsn")

	s3 := *cfg
	s3.Blob.Driver = "s3"
	assert.ErrorContains(t, s3.Validate(), "bucket")

	noOwner := *cfg
	noOwner.Ledger.Owner = ""
	assert.Error(t, noOwner.Validate())
}

func TestInitLogger(t *testing.T) {
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zapcore.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}

func TestValidateNormalizesCase(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRACECHAIN_STORE_DRIVER", " SQLite ")
	t.Setenv("TRACECHAIN_METRICS_BACKEND", "Expvar")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "expvar", cfg.Metrics.Backend)
}
