package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.True(t, cfg.Simulated())
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 60*time.Second, cfg.Poll.Timeout)
}

func TestLoad_YAML(t *testing.T) {
	p := writeFile(t, "mintline.yaml", `
log:
  level: debug
  format: json
backend:
  url: https://backend.example/functions/v1
  call_timeout: 15s
signer:
  mode: remote
  url: http://localhost:7777
poll:
  interval: 500ms
  timeout: 30s
store:
  driver: redis
  redis:
    addr: localhost:6379
    ttl: 24h
`)

	cfg, err := load(p, noEnv)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, logging.FormatJSON, cfg.Log.Format)
	assert.Equal(t, "https://backend.example/functions/v1", cfg.Backend.URL)
	assert.Equal(t, 15*time.Second, cfg.Backend.CallTimeout)
	assert.Equal(t, 5.0, cfg.Backend.RateLimit, "unset keys keep defaults")
	assert.Equal(t, SignerRemote, cfg.Signer.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, DriverRedis, cfg.Store.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Store.Redis.TTL)
	assert.False(t, cfg.Simulated())
}

func TestLoad_JSON(t *testing.T) {
	p := writeFile(t, "mintline.json", `{"server": {"addr": ":9090"}, "backend": {"burst": 3}}`)

	cfg, err := load(p, noEnv)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Backend.Burst)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeFile(t, "mintline.yaml", "backend:\n  url: https://from-file\n")

	cfg, err := load(p, envMap(map[string]string{
		"MINTLINE_BACKEND_URL":        "https://from-env",
		"MINTLINE_BACKEND_API_KEY":    "secret",
		"MINTLINE_BACKEND_RATE_LIMIT": "2.5",
		"MINTLINE_POLL_TIMEOUT":       "2m",
		"MINTLINE_STORE_REDIS_DB":     "4",
		"MINTLINE_STORE_DRIVER":       "memory",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://from-env", cfg.Backend.URL)
	assert.Equal(t, "secret", cfg.Backend.APIKey)
	assert.Equal(t, 2.5, cfg.Backend.RateLimit)
	assert.Equal(t, 2*time.Minute, cfg.Poll.Timeout)
	assert.Equal(t, 4, cfg.Store.Redis.DB)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "backend:\n  urll: x\n", "urll"},
		{"bad duration", "poll:\n  interval: soon\n", "interval"},
		{"bad yaml", "log: [", "parse"},
		{"remote without url", "signer:\n  mode: remote\n", "signer.url"},
		{"redis without addr", "store:\n  driver: redis\n", "store.redis.addr"},
		{"unknown driver", "store:\n  driver: etcd\n", "store.driver"},
		{"timeout below interval", "poll:\n  interval: 10s\n  timeout: 5s\n", "poll.timeout"},
		{"bad level", "log:\n  level: loud\n", "loud"},
		{"command without command", "signer:\n  mode: command\n", "signer.command"},
		{"short encryption key", "store:\n  encryption_key: abcd\n", "store.encryption_key"},
		{"fallback without key", "store:\n  fallback_keys: [" + testKey + "]\n", "requires store.encryption_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(writeFile(t, "c.yaml", tt.content), noEnv)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_CommandSignerAndEncryption(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		"MINTLINE_SIGNER_MODE":          "command",
		"MINTLINE_SIGNER_COMMAND":       "stellar",
		"MINTLINE_SIGNER_ARGS":          "tx,sign,--sign-with-key,issuer",
		"MINTLINE_SIGNER_TIMEOUT":       "30s",
		"MINTLINE_STORE_ENCRYPTION_KEY": testKey,
		"MINTLINE_STORE_FALLBACK_KEYS":  testKey,
	}))
	require.NoError(t, err)
	assert.Equal(t, SignerCommand, cfg.Signer.Mode)
	assert.Equal(t, "stellar", cfg.Signer.Command)
	assert.Equal(t, []string{"tx", "sign", "--sign-with-key", "issuer"}, cfg.Signer.Args)
	assert.Equal(t, 30*time.Second, cfg.Signer.Timeout)
	assert.Equal(t, testKey, cfg.Store.EncryptionKey)
	assert.Equal(t, []string{testKey}, cfg.Store.FallbackKeys)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	assert.Error(t, err)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Network.Passphrase = ""
	cfg.Backend.RateLimit = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
	assert.Contains(t, err.Error(), "network.passphrase")
	assert.Contains(t, err.Error(), "backend.rate_limit")
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "MINTLINE_STORE_REDIS_LOCK_TTL", EnvName("store.redis.lock_ttl"))
}
