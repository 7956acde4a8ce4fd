package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. FromEnv keeps main lean; every
// tunable of the vote policy lives here rather than as package constants.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	// AdminJWTSigningKey verifies externally issued administrator tokens.
	// Issuance happens outside this service.
	AdminJWTSigningKey string

	Vote     VoteConfig
	Throttle ThrottleConfig
}

// VoteConfig holds the anti-abuse policy knobs for vote intake.
type VoteConfig struct {
	// RateWindow is the trailing window W for recent-vote counting.
	RateWindow time.Duration
	// SoftThreshold is the recent-vote count at which a submission is still
	// accepted but flagged for operator review.
	SoftThreshold int
	// HardMultiplier sets the block threshold at SoftThreshold*HardMultiplier.
	// The upstream policy fixed this at 2; it stays configurable rather than
	// baked in.
	HardMultiplier int
}

// HardThreshold is the recent-vote count at which submissions are rejected.
func (c VoteConfig) HardThreshold() int {
	return c.SoftThreshold * c.HardMultiplier
}

// ThrottleConfig bounds raw request volume per client address ahead of the
// vote-policy limiter.
type ThrottleConfig struct {
	Enabled           bool
	RequestsPerWindow int
	Window            time.Duration
}

// RedisConfig holds connection settings for the request-throttle bucket store.
// An empty URL disables Redis and falls back to the in-memory buckets.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the audit outbox worker. Empty brokers
// disable Kafka publishing; audit rows stay queued in the outbox table.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with dev defaults.
func FromEnv() Config {
	return Config{
		Addr:               envString("DEMANDSTAGE_ADDR", ":8080"),
		DatabaseURL:        envString("DATABASE_URL", ""),
		AdminJWTSigningKey: envString("ADMIN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(envString("KAFKA_BROKERS", "")),
			Topic:   envString("KAFKA_AUDIT_TOPIC", "demandstage.audit"),
		},
		Vote: VoteConfig{
			RateWindow:     envDuration("VOTE_RATE_WINDOW", 2*time.Minute),
			SoftThreshold:  envInt("VOTE_RATE_SOFT_THRESHOLD", 5),
			HardMultiplier: envInt("VOTE_RATE_HARD_MULTIPLIER", 2),
		},
		Throttle: ThrottleConfig{
			Enabled:           envString("REQUEST_THROTTLE_DISABLED", "") != "true",
			RequestsPerWindow: envInt("REQUEST_THROTTLE_LIMIT", 60),
			Window:            envDuration("REQUEST_THROTTLE_WINDOW", time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
