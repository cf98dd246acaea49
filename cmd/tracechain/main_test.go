package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracechain/internal/config"
	"tracechain/internal/core"
	"tracechain/pkg/domain"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "scenario", "lot", "roles"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "tracechain", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracechain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestScenarioRunPrintsTrace(t *testing.T) {
	cfgPath := writeConfig(t, "log:\n  level: error\n")
	scenarioPath := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
name: cli
steps:
  - {op: register, caller: owner, args: {lot: L1, name: Peas}}
  - {op: exists, args: {lot: L1}}
`), 0o644))

	out, err := execute(t, "--config", cfgPath, "scenario", "run", scenarioPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"scenario": "cli"`)
	assert.Contains(t, out, `"result": true`)
}

func TestScenarioRunFailsOnMismatch(t *testing.T) {
	cfgPath := writeConfig(t, "log:\n  level: error\n")
	scenarioPath := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(scenarioPath, []byte(`
name: mismatch
steps:
  - {op: register, caller: owner, args: {lot: ""}}
`), 0o644))

	out, err := execute(t, "--config", cfgPath, "scenario", "run", scenarioPath)
	require.Error(t, err)
	assert.Contains(t, out, "expected OK, got INVALID_KEY")
}

func TestLotShowReadsSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	c, err := config.LoadFile(writeConfig(t, "store:\n  driver: sqlite\n  sqlite_path: "+dbPath+"\nmetrics:\n  backend: none\n"))
	require.NoError(t, err)

	ctx := context.Background()
	env, err := initLedger(ctx, c)
	require.NoError(t, err)
	_, err = env.Service.AssignRole(ctx, "owner", "lars", domain.RoleLogistics)
	require.NoError(t, err)
	_, _, err = env.Service.Register(ctx, "owner", "LOT-Q", "Quince", "Portugal", "Organic")
	require.NoError(t, err)
	_, err = env.Service.CaptureObservation(ctx, "lars", "LOT-Q", 4, "cold room")
	require.NoError(t, err)
	require.NoError(t, env.Close())

	cfgPath := writeConfig(t, "store:\n  driver: sqlite\n  sqlite_path: "+dbPath+"\nlog:\n  level: error\n")

	out, err := execute(t, "--config", cfgPath, "lot", "show", "LOT-Q")
	require.NoError(t, err)
	assert.Contains(t, out, `"lot": "LOT-Q"`)
	assert.Contains(t, out, `"count": 1`)

	out, err = execute(t, "--config", cfgPath, "lot", "list")
	require.NoError(t, err)
	assert.Equal(t, "LOT-Q\n", out)

	out, err = execute(t, "--config", cfgPath, "roles", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "lars")
	assert.Contains(t, out, "logistics")

	_, err = execute(t, "--config", cfgPath, "lot", "show", "LOT-NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownLot)
}

func TestInitLedgerMetricsBackends(t *testing.T) {
	for _, backend := range []string{"prometheus", "expvar"} {
		t.Run(backend, func(t *testing.T) {
			c, err := config.LoadFile(writeConfig(t, "metrics:\n  backend: "+backend+"\n"))
			require.NoError(t, err)

			env, err := initLedger(context.Background(), c)
			require.NoError(t, err)
			defer env.Close()
			require.NotNil(t, env.Metrics)

			_, _, err = env.Service.Register(context.Background(), "owner", "L1", "n", "o", "")
			require.NoError(t, err)
			assert.Len(t, env.Ring.Recent(0), 1)

			rec := httptest.NewRecorder()
			env.Metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "tracechain_ledger")
		})
	}
}

func TestInitLedgerPublishesPassportToFilesystem(t *testing.T) {
	root := t.TempDir()
	c, err := config.LoadFile(writeConfig(t, "blob:\n  driver: fs\n  fs_root: "+root+"\nmetrics:\n  backend: none\n"))
	require.NoError(t, err)

	ctx := context.Background()
	env, err := initLedger(ctx, c)
	require.NoError(t, err)
	defer env.Close()
	assert.Nil(t, env.Metrics)

	_, _, err = env.Service.Register(ctx, "owner", "LOT-F", "Figs", "Turkey", "")
	require.NoError(t, err)
	receipt, err := env.Service.PublishPassport(ctx, "LOT-F")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(receipt.Blob.Key)))
	assert.NoError(t, err)
}

func TestInitLedgerWritesTraceFile(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.jsonl")
	c, err := config.LoadFile(writeConfig(t, "trace:\n  path: "+tracePath+"\nmetrics:\n  backend: none\n"))
	require.NoError(t, err)

	ctx := context.Background()
	env, err := initLedger(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, env.Tracer)

	_, _, err = env.Service.Register(ctx, "owner", "LOT-T", "Tea", "Assam", "")
	require.NoError(t, err)
	assert.False(t, env.Service.Exists(ctx, "LOT-NOPE"))
	require.NoError(t, env.Close())

	entries := env.Tracer.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "register", entries[0].Operation)
	assert.Equal(t, "exists", entries[1].Operation)

	raw, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)
	var first core.JSONTraceEntry
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "register", first.Operation)
	assert.Equal(t, "success", first.Status)
}

func TestLotPassportsListsArchive(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	cfgPath := writeConfig(t, "store:\n  driver: sqlite\n  sqlite_path: "+dbPath+"\nblob:\n  driver: fs\n  fs_root: "+root+"\nmetrics:\n  backend: none\nlog:\n  level: error\n")

	c, err := config.LoadFile(cfgPath)
	require.NoError(t, err)
	ctx := context.Background()
	env, err := initLedger(ctx, c)
	require.NoError(t, err)
	_, _, err = env.Service.Register(ctx, "owner", "LOT-P", "Plums", "Serbia", "")
	require.NoError(t, err)
	receipt, err := env.Service.PublishPassport(ctx, "LOT-P")
	require.NoError(t, err)
	require.NoError(t, env.Close())

	out, err := execute(t, "--config", cfgPath, "lot", "passports", "LOT-P")
	require.NoError(t, err)
	assert.Contains(t, out, receipt.Blob.Key)

	id := strings.TrimSuffix(strings.TrimPrefix(receipt.Blob.Key, "passports/LOT-P/"), ".json")
	out, err = execute(t, "--config", cfgPath, "lot", "passports", "LOT-P", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"lot": "LOT-P"`)
}
