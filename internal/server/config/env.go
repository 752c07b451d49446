package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with CHAT_* environment variables. A .env file in
// the working directory is loaded first when present; variables already set
// in the process environment take precedence over it.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	envString("CHAT_HTTP_ADDR", &config.HTTPAddr)
	envString("CHAT_GRPC_ADDR", &config.GRPCAddr)
	envString("CHAT_DATABASE_DSN", &config.DatabaseDSN)
	envString("CHAT_SECRET_KEY", &config.SecretKey)
	envString("CHAT_INTERNAL_API_KEY", &config.InternalAPIKey)
	envString("CHAT_LOG_LEVEL", &config.LogLevel)

	envString("CHAT_REDIS_URL", &config.RedisURL)
	envString("CHAT_AMQP_URL", &config.AMQPURL)
	envString("CHAT_AMQP_EXCHANGE", &config.AMQPExchange)
	envDuration("CHAT_NOTIFICATION_THROTTLE", &config.NotificationThrottle)

	envString("CHAT_S3_ROOT_USER", &config.S3RootUser)
	envString("CHAT_S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("CHAT_S3_BUCKET", &config.S3Bucket)
	envString("CHAT_S3_REGION", &config.S3Region)
	envString("CHAT_S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	if v, ok := os.LookupEnv("CHAT_MODERATION_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			config.ModerationThreshold = f
		}
	}
	if v, ok := os.LookupEnv("CHAT_MIN_LENGTH"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			config.MinLength = n
		}
	}
	envDuration("CHAT_PROVIDER_TIMEOUT", &config.ProviderTimeout)
	envString("CHAT_PROVIDER_ORDER", &config.ProviderOrder)
	if v, ok := os.LookupEnv("CHAT_MODERATE_UNLOCKED"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			config.ModerateUnlocked = b
		}
	}
	if v, ok := os.LookupEnv("CHAT_HANDLE_WHITELIST"); ok {
		config.HandleWhitelist = splitList(v)
	}

	envString("CHAT_OLLAMA_URL", &config.OllamaURL)
	envString("CHAT_OLLAMA_MODEL", &config.OllamaModel)
	envString("CHAT_OPENAI_URL", &config.OpenAIURL)
	envString("CHAT_OPENAI_API_KEY", &config.OpenAIAPIKey)
	envString("CHAT_OPENAI_MODEL", &config.OpenAIModel)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}
