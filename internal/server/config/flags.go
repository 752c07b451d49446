package config

import (
	"flag"
	"os"
	"strings"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (websocket, health, metrics)
//	-g string    gRPC bind address
//	-d string    PostgreSQL DSN
//	-s string    JWT HMAC secret key
//	-k string    internal API key for Unlock
//	-r string    Redis URL
//	-q string    AMQP URL
//	-b string    S3 audit bucket (empty disables the archive)
//	-e string    S3 base endpoint
//	-t float     moderation threshold
//	-m int       minimum length before LLM escalation
//	-pt duration per-provider timeout
//	-po string   provider order: priority | random
//	-mu bool     moderate messages in unlocked chats
//	-w string    comma separated handle whitelist
//	-l string    log level
//
// os.Args is filtered with filterArgs first so flags owned by other
// components (such as -c) never collide.
func parseFlags(config *Config) {
	args := filterArgs(os.Args[1:], []string{
		"-a", "-g", "-d", "-s", "-k", "-r", "-q", "-b", "-e",
		"-t", "-m", "-pt", "-po", "-mu", "-w", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to serve websocket and metrics")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to serve gRPC")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.InternalAPIKey, "k", config.InternalAPIKey, "internal API key")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.AMQPURL, "q", config.AMQPURL, "AMQP URL")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 audit bucket")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.Float64Var(&config.ModerationThreshold, "t", config.ModerationThreshold, "moderation threshold")
	fs.IntVar(&config.MinLength, "m", config.MinLength, "minimum length before LLM escalation")
	fs.DurationVar(&config.ProviderTimeout, "pt", config.ProviderTimeout, "per-provider timeout")
	fs.StringVar(&config.ProviderOrder, "po", config.ProviderOrder, "provider order (priority|random)")
	fs.BoolVar(&config.ModerateUnlocked, "mu", config.ModerateUnlocked, "moderate messages in unlocked chats")
	whitelist := fs.String("w", strings.Join(config.HandleWhitelist, ","), "comma separated handle whitelist")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.HandleWhitelist = splitList(*whitelist)
}
