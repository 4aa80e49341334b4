package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/RishiKendai/winnow/internal/configs/env"
	"github.com/RishiKendai/winnow/internal/winnow"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration

	// Tokenizer Service
	TokenizerBaseURL string
	TokenizerAPIKey  string

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Concurrency
	MaxConcurrentCompute int

	// Computation
	ComputationTimeout time.Duration

	// Winnowing
	KgramLength              int
	KgramsInWindow           int
	KeepTokenData            bool
	MaxFingerprintFileCount  int
	MaxFingerprintPercentage float64
	IgnoredHashes            []winnow.Hash

	// Reporting
	FlagThreshold float64
	MinSimilarity float64

	// Logging
	LogLevel  string
	LogFormat string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "winnow:stream")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "winnow:group")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "winnow:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_DURATION", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour

	// Tokenizer Service
	cfg.TokenizerBaseURL = env.GetEnv("TOKENIZER_BASE_URL", "")
	cfg.TokenizerAPIKey = env.GetEnv("TOKENIZER_API_KEY", "")

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "winnow")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Concurrency
	cfg.MaxConcurrentCompute = env.GetEnvInt("MAX_CONCURRENT_COMPUTE", 5)

	// Computation
	timeoutMinutes := env.GetEnvInt("COMPUTATION_TIMEOUT_MINUTES", 30)
	cfg.ComputationTimeout = time.Duration(timeoutMinutes) * time.Minute

	// Winnowing
	defaults := winnow.DefaultOptions()
	cfg.KgramLength = env.GetEnvInt("KGRAM_LENGTH", defaults.KgramLength)
	cfg.KgramsInWindow = env.GetEnvInt("KGRAMS_IN_WINDOW", defaults.KgramsInWindow)
	cfg.KeepTokenData = env.GetEnvBool("KEEP_TOKEN_DATA", false)
	cfg.MaxFingerprintFileCount = env.GetEnvInt("MAX_FINGERPRINT_FILE_COUNT", 0)
	cfg.MaxFingerprintPercentage = env.GetEnvFloat("MAX_FINGERPRINT_PERCENTAGE", 0)

	hashes, err := ParseHashes(env.GetEnv("IGNORED_HASHES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid IGNORED_HASHES: %w", err)
	}
	cfg.IgnoredHashes = hashes

	// Reporting
	cfg.FlagThreshold = env.GetEnvFloat("FLAG_THRESHOLD", 0.75)
	cfg.MinSimilarity = env.GetEnvFloat("MIN_SIMILARITY", 0)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")
	cfg.LogFormat = env.GetEnv("LOG_FORMAT", "json")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

// ParseHashes parses a comma-separated list of decimal fingerprint hashes.
func ParseHashes(s string) ([]winnow.Hash, error) {
	var out []winnow.Hash
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("hash %q: %w", field, err)
		}
		out = append(out, winnow.Hash(v))
	}
	return out, nil
}

// WinnowOptions returns the index options described by the configuration.
func (c *Config) WinnowOptions() winnow.Options {
	return winnow.Options{
		KgramLength:              c.KgramLength,
		KgramsInWindow:           c.KgramsInWindow,
		KeepTokenData:            c.KeepTokenData,
		MaxFingerprintFileCount:  c.MaxFingerprintFileCount,
		MaxFingerprintPercentage: c.MaxFingerprintPercentage,
	}
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.TokenizerBaseURL == "" {
		return fmt.Errorf("TOKENIZER_BASE_URL is required")
	}
	if c.TokenizerAPIKey == "" {
		return fmt.Errorf("TOKENIZER_API_KEY is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentCompute <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_COMPUTE must be greater than 0")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_DURATION must be greater than 0")
	}
	if c.KgramLength <= 0 || c.KgramsInWindow <= 0 {
		return fmt.Errorf("%w: KGRAM_LENGTH and KGRAMS_IN_WINDOW must be greater than 0", winnow.ErrInvalidConfig)
	}
	if c.MaxFingerprintPercentage < 0 || c.MaxFingerprintPercentage > 1 {
		return fmt.Errorf("MAX_FINGERPRINT_PERCENTAGE must be between 0 and 1")
	}
	if c.FlagThreshold < 0 || c.FlagThreshold > 1 {
		return fmt.Errorf("FLAG_THRESHOLD must be between 0 and 1")
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("MIN_SIMILARITY must be between 0 and 1")
	}
	return nil
}
