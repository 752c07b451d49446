package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{"cmd",
				"-a", ":8081", "-g", "127.0.0.1:9090", "-d", "db", "-s", "secret", "-k", "ik",
				"-r", "redis://r", "-q", "amqp://q", "-b", "bucket", "-e", "http://endpoint",
				"-t", "0.8", "-m", "40", "-pt", "2s", "-po", "random", "-mu=false",
				"-w", "mods, help", "-l", "debug",
			},
			expected: &Config{
				HTTPAddr:            ":8081",
				GRPCAddr:            "127.0.0.1:9090",
				DatabaseDSN:         "db",
				SecretKey:           "secret",
				InternalAPIKey:      "ik",
				RedisURL:            "redis://r",
				AMQPURL:             "amqp://q",
				S3Bucket:            "bucket",
				S3BaseEndpoint:      "http://endpoint",
				ModerationThreshold: 0.8,
				MinLength:           40,
				ProviderTimeout:     2 * time.Second,
				ProviderOrder:       "random",
				ModerateUnlocked:    false,
				HandleWhitelist:     []string{"mods", "help"},
				LogLevel:            "debug",
			},
		},
		{
			name: "unknown flags are filtered out",
			args: []string{"cmd", "-c", "cfg.json", "-x", "1", "-g", ":1"},
			expected: &Config{
				GRPCAddr: ":1",
			},
		},
		{
			name:        "bad value panics",
			args:        []string{"cmd", "-m", "many"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
