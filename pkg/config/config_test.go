package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "p256", cfg.Curve)
	assert.Equal(t, TransportTCP, cfg.Issuer.Transport)
	assert.Equal(t, 3*time.Second, cfg.Issuer.Timeout)
	assert.Equal(t, 8, cfg.Tokens.MaxSeedAttempts)

	// Defaults alone lack commitments.
	assert.Error(t, cfg.Validate())

	cfg.Commitments.G = TestCommitmentG
	cfg.Commitments.H = TestCommitmentH
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "client.yaml", `
curve: secp256k1
issuer:
  transport: http
  addr: "http://localhost:8080/issue"
  timeout: 10s
  rate_limit: 2.5
tokens:
  batch_size: 30
  allow_unverified: true
storage:
  backend: badger
  dir: /tmp/tokens
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "secp256k1", cfg.Curve)
	assert.Equal(t, TransportHTTP, cfg.Issuer.Transport)
	assert.Equal(t, 10*time.Second, cfg.Issuer.Timeout)
	assert.Equal(t, 2.5, cfg.Issuer.RateLimit)
	assert.Equal(t, 1, cfg.Issuer.Burst, "unset fields keep their defaults")
	assert.Equal(t, 30, cfg.Tokens.BatchSize)
	assert.Equal(t, 8, cfg.Tokens.MaxSeedAttempts)
	assert.Equal(t, StorageBadger, cfg.Storage.Backend)

	grp, err := cfg.Group()
	require.NoError(t, err)
	assert.Equal(t, curve.Secp256k1, grp.ID())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.yaml", "issuer: [not, a, map"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Commitments.G = TestCommitmentG
		cfg.Commitments.H = TestCommitmentH
		return cfg
	}

	cases := map[string]func(c *Config){
		"curve":              func(c *Config) { c.Curve = "ed25519" },
		"transport":          func(c *Config) { c.Issuer.Transport = "udp" },
		"addr":               func(c *Config) { c.Issuer.Addr = "" },
		"http without url":   func(c *Config) { c.Issuer.Transport = TransportHTTP },
		"half commitments":   func(c *Config) { c.Commitments.H = "" },
		"file and inline":    func(c *Config) { c.Commitments.File = "c.json" },
		"batch size":         func(c *Config) { c.Tokens.BatchSize = 0 },
		"seed attempts":      func(c *Config) { c.Tokens.MaxSeedAttempts = -1 },
		"badger without dir": func(c *Config) { c.Storage.Backend = StorageBadger },
		"backend":            func(c *Config) { c.Storage.Backend = "redis" },
		"log level":          func(c *Config) { c.Log.Level = "loud" },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
		"negative rate":      func(c *Config) { c.Issuer.RateLimit = -1 },
	}

	require.NoError(t, valid().Validate())
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadCommitments(t *testing.T) {
	t.Run("Inline", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Commitments.G = TestCommitmentG
		cfg.Commitments.H = TestCommitmentH

		c, err := cfg.LoadCommitments()
		require.NoError(t, err)
		assert.True(t, c.IsComplete())
		assert.Equal(t, TestCommitmentG, curve.EncodePointBase64(c.G, false))
	})

	t.Run("File", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Commitments.File = writeFile(t, "commitments.json",
			`{"G":"`+TestCommitmentG+`","H":"`+TestCommitmentH+`"}`)

		c, err := cfg.LoadCommitments()
		require.NoError(t, err)
		assert.Equal(t, TestCommitmentH, curve.EncodePointBase64(c.H, false))
	})

	t.Run("None", func(t *testing.T) {
		c, err := DefaultConfig().LoadCommitments()
		require.NoError(t, err)
		assert.False(t, c.IsComplete())
	})

	t.Run("InlineMalformed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Commitments.G = TestCommitmentG
		cfg.Commitments.H = "bm90IGEgcG9pbnQ="
		_, err := cfg.LoadCommitments()
		assert.ErrorIs(t, err, curve.ErrInvalidPoint)
		assert.ErrorContains(t, err, "commitments.h")

		cfg.Commitments.H = ""
		_, err = cfg.LoadCommitments()
		assert.ErrorContains(t, err, "commitments.h")
	})

	t.Run("WrongCurve", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Curve = "secp256k1"
		cfg.Commitments.G = TestCommitmentG
		cfg.Commitments.H = TestCommitmentH
		_, err := cfg.LoadCommitments()
		assert.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "alert", true)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"alert":true`)
}
