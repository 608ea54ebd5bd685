package amp

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
key: ${AMP_TEST_KEY}
api_path: /api/core/v2/
timeout: 750ms
session_ttl: 30m
agents:
  https://a.test: 1
  https://b.test: 2.5
circuit_breaker:
  failure_threshold: 3
  recovery_timeout: 10s
metrics: false
builtin_events: [AmpSession]
history_limit: 10
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("AMP_TEST_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "amp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Key)
	assert.Equal(t, "/api/core/v2/", cfg.APIPath)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, map[string]float64{"https://a.test": 1, "https://b.test": 2.5}, cfg.Agents)
	require.NotNil(t, cfg.Breaker)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.RecoveryTimeout)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, &ClientError{Type: ErrorTypeConfig})

	_, err = ParseConfig([]byte("timeout: [not, a, duration]"))
	assert.ErrorIs(t, err, &ClientError{Type: ErrorTypeConfig})
}

func TestConfigOptions(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)
	cfg.Key = "k"

	client := New(cfg.Options()...)

	require.True(t, client.IsValid(), "%v", client.ValidationError())
	assert.Equal(t, 750*time.Millisecond, client.timeout)
	assert.Equal(t, 30*time.Minute, client.sessionTTL)
	assert.Equal(t, 2, client.Agents().Len())
	require.NotNil(t, client.breaker)
	assert.Equal(t, 3, client.breaker.FailureThreshold)
	assert.Equal(t, []string{SessionStartEvent}, client.enabledEvents)
	assert.Equal(t, 10, client.history)
}

func TestNilConfigOptions(t *testing.T) {
	var cfg *Config
	assert.Nil(t, cfg.Options())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvKey:        "env-key",
		EnvDomain:     "https://env.test",
		EnvTimeout:    "300",
		EnvSessionTTL: "1h",
		EnvAgents:     "https://a.test=1, https://b.test",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	cfg := &Config{Key: "file-key", APIPath: "/file/"}
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "env-key", cfg.Key)
	assert.Equal(t, "https://env.test", cfg.Domain)
	assert.Equal(t, "/file/", cfg.APIPath)
	assert.Equal(t, 300*time.Millisecond, cfg.Timeout)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, map[string]float64{"https://a.test": 1, "https://b.test": 1}, cfg.Agents)
}

func TestApplyEnvInvalid(t *testing.T) {
	lookup := func(name string) (string, bool) {
		switch name {
		case EnvTimeout:
			return "soon", true
		case EnvAgents:
			return "https://a.test=heavy", true
		}
		return "", false
	}

	err := (&Config{}).ApplyEnv(lookup)

	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvTimeout)
	assert.Contains(t, err.Error(), EnvAgents)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvKey, "k")
	t.Setenv(EnvUserID, "u-1")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.Key)
	assert.Equal(t, "u-1", cfg.UserID)
}

func TestParseAgents(t *testing.T) {
	agents, err := ParseAgents(" https://a.test=0.5 ,,https://b.test=2")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"https://a.test": 0.5, "https://b.test": 2}, agents)
}
