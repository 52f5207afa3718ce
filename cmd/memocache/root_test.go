package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/memocache/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// counting returns a shell command that appends to a file on every run.
func counting(t *testing.T, output string) (string, func() int) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs")
	script := "echo run >> " + path + "; printf '" + output + "'"
	return script, func() int {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return 0
		}
		require.NoError(t, err)
		return strings.Count(string(b), "run")
	}
}

func TestGetMemoizesCommand(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())
	script, runs := counting(t, "42")

	for i := 0; i < 2; i++ {
		out, err := run(t, "get", "--group", "prices", "--single", "--expire", "60", "price-EUR", "--", "sh", "-c", script)
		require.NoError(t, err)
		assert.Equal(t, "42", out)
	}
	assert.Equal(t, 1, runs())
	assert.True(t, mr.Exists("prices:price-EUR"))
	assert.Equal(t, time.Minute, mr.TTL("prices:price-EUR"))
}

func TestGetAggregateAndFlushGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())
	script, runs := counting(t, "v")

	get := func() {
		_, err := run(t, "get", "--tenant", "1", "--network", "eu", "k", "--", "sh", "-c", script)
		require.NoError(t, err)
	}
	get()
	get()
	assert.Equal(t, 1, runs())
	assert.True(t, mr.Exists("memocache_eu:memocache_eu"))

	cfg := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("tenant:\n  multi: true\n  network: eu\n"), 0o600))
	_, err := run(t, "--config", cfg, "flush-group")
	require.NoError(t, err)
	assert.False(t, mr.Exists("memocache_eu:memocache_eu"))

	get()
	assert.Equal(t, 2, runs())
}

func TestGetCommandFailureIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())

	_, err := run(t, "get", "k", "--", "sh", "-c", "exit 3")
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestGetUsage(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())

	_, err := run(t, "get", "k")
	assert.Error(t, err)
	_, err = run(t, "get", "k", "extra", "--", "true")
	assert.Error(t, err)
}

func TestFlush(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())
	require.NoError(t, mr.Set("foo:bar", "x"))

	_, err := run(t, "flush")
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())

	mr.Close()
	_, err = run(t, "flush")
	assert.ErrorIs(t, err, errFlushFailed)
}

func TestBadConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("backend: memcached\n"), 0o600))
	_, err := run(t, "--config", cfg, "flush")
	assert.Error(t, err)
}

func TestInProcessBackends(t *testing.T) {
	for _, backend := range []string{"ristretto", "bigcache"} {
		t.Run(backend, func(t *testing.T) {
			cfg := filepath.Join(t.TempDir(), "cfg.yaml")
			require.NoError(t, os.WriteFile(cfg, []byte("backend: "+backend+"\ncodec: cbor\n"), 0o600))
			out, err := run(t, "--config", cfg, "get", "k", "--", "echo", "hi")
			require.NoError(t, err)
			assert.Equal(t, "hi\n", out)
		})
	}
}

func TestSQLiteBackendSharedAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "cfg.yaml")
	body := "backend: sqlite\natomic_aggregates: true\nsqlite:\n  path: " + filepath.Join(dir, "memo.db") + "\n"
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	script, runs := counting(t, "cached")

	for i := 0; i < 2; i++ {
		out, err := run(t, "--config", cfg, "get", "k", "--", "sh", "-c", script)
		require.NoError(t, err)
		assert.Equal(t, "cached", out)
	}
	assert.Equal(t, 1, runs())

	_, err := run(t, "--config", cfg, "flush")
	require.NoError(t, err)
	_, err = run(t, "--config", cfg, "get", "k", "--", "sh", "-c", script)
	require.NoError(t, err)
	assert.Equal(t, 2, runs())
}

func TestConfigExpireZeroNeverExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("expire: 0\n"), 0o600))

	_, err := run(t, "--config", cfg, "get", "--single", "k", "--", "echo", "hi")
	require.NoError(t, err)
	assert.True(t, mr.Exists("memocache:k"))
	assert.Equal(t, time.Duration(0), mr.TTL("memocache:k"), "expire: 0 must match --expire 0")

	_, err = run(t, "get", "--single", "--expire", "0", "k2", "--", "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("memocache:k2"))
}

func TestConfigNameDerivesGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv(config.EnvRedisAddr, mr.Addr())
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("name: Shop Plugin\n"), 0o600))

	_, err := run(t, "--config", cfg, "get", "k", "--", "echo", "hi")
	require.NoError(t, err)
	assert.True(t, mr.Exists("shop-plugin:shop-plugin"))
}
