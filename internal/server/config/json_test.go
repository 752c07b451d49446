package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"http_addr":             "www.example:8081",
		"grpc_addr":             "www.example:9000",
		"database_dsn":          "chat.db",
		"secret_key":            "my_secret_key",
		"internal_api_key":      "internal",
		"amqp_exchange":         "events",
		"notification_throttle": "1m",
		"s3_bucket":             "audit",
		"moderation_threshold":  0.5,
		"min_length":            10,
		"provider_timeout":      "250ms",
		"provider_order":        "random",
		"moderate_unlocked":     false,
		"handle_whitelist":      []string{"helpdesk"},
		"ollama_model":          "mistral",
		"openai_url":            "http://llm.local",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:8081", cfg.HTTPAddr)
		assert.Equal(t, "www.example:9000", cfg.GRPCAddr)
		assert.Equal(t, "chat.db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, "internal", cfg.InternalAPIKey)
		assert.Equal(t, "events", cfg.AMQPExchange)
		assert.Equal(t, time.Minute, cfg.NotificationThrottle)
		assert.Equal(t, "audit", cfg.S3Bucket)
		assert.Equal(t, 0.5, cfg.ModerationThreshold)
		assert.Equal(t, 10, cfg.MinLength)
		assert.Equal(t, 250*time.Millisecond, cfg.ProviderTimeout)
		assert.Equal(t, ProviderOrderRandom, cfg.ProviderOrder)
		assert.False(t, cfg.ModerateUnlocked)
		assert.Equal(t, []string{"helpdesk"}, cfg.HandleWhitelist)
		assert.Equal(t, "mistral", cfg.OllamaModel)
		assert.Equal(t, "http://llm.local", cfg.OpenAIURL)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"log_level": "warn"})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, ":50051", cfg.GRPCAddr)
		assert.True(t, cfg.ModerateUnlocked)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{GRPCAddr: "defaults:1234", MinLength: 3}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.GRPCAddr)
		assert.Equal(t, 3, cfg.MinLength)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
