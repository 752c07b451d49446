package config

import (
	"encoding/json"
	"os"

	"github.com/leroytan/the-website-sub000/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Pointer fields
// distinguish "absent" from the zero value so a partial file only overrides
// what it names. Durations accept "5s" style strings or integer nanoseconds.
type JsonConfig struct {
	HTTPAddr       *string `json:"http_addr"`
	GRPCAddr       *string `json:"grpc_addr"`
	DatabaseDSN    *string `json:"database_dsn"`
	SecretKey      *string `json:"secret_key"`
	InternalAPIKey *string `json:"internal_api_key"`
	LogLevel       *string `json:"log_level"`

	RedisURL             *string         `json:"redis_url"`
	AMQPURL              *string         `json:"amqp_url"`
	AMQPExchange         *string         `json:"amqp_exchange"`
	NotificationThrottle *timex.Duration `json:"notification_throttle"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`

	ModerationThreshold *float64        `json:"moderation_threshold"`
	MinLength           *int            `json:"min_length"`
	ProviderTimeout     *timex.Duration `json:"provider_timeout"`
	ProviderOrder       *string         `json:"provider_order"`
	ModerateUnlocked    *bool           `json:"moderate_unlocked"`
	HandleWhitelist     []string        `json:"handle_whitelist"`

	OllamaURL    *string `json:"ollama_url"`
	OllamaModel  *string `json:"ollama_model"`
	OpenAIURL    *string `json:"openai_url"`
	OpenAIAPIKey *string `json:"openai_api_key"`
	OpenAIModel  *string `json:"openai_model"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag. Without the flag nothing is loaded. An unreadable file
// or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := jsonConfigFlag()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.InternalAPIKey, c.InternalAPIKey)
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.RedisURL, c.RedisURL)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPExchange, c.AMQPExchange)
	if c.NotificationThrottle != nil {
		config.NotificationThrottle = c.NotificationThrottle.Duration
	}

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.ModerationThreshold != nil {
		config.ModerationThreshold = *c.ModerationThreshold
	}
	if c.MinLength != nil {
		config.MinLength = *c.MinLength
	}
	if c.ProviderTimeout != nil {
		config.ProviderTimeout = c.ProviderTimeout.Duration
	}
	setString(&config.ProviderOrder, c.ProviderOrder)
	if c.ModerateUnlocked != nil {
		config.ModerateUnlocked = *c.ModerateUnlocked
	}
	if c.HandleWhitelist != nil {
		config.HandleWhitelist = c.HandleWhitelist
	}

	setString(&config.OllamaURL, c.OllamaURL)
	setString(&config.OllamaModel, c.OllamaModel)
	setString(&config.OpenAIURL, c.OpenAIURL)
	setString(&config.OpenAIAPIKey, c.OpenAIAPIKey)
	setString(&config.OpenAIModel, c.OpenAIModel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
