// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production deploys
// override via env.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the server binary.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	Engine     Engine
	Publisher  Publisher
	Search     Search
	Extraction Extraction
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
}

// Postgres captures SQL database configuration. Empty DSN means the server
// runs on in-memory stores (development, unit tests).
type Postgres struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Redis captures cache configuration. Empty URL disables the profile cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures event bus configuration. Empty brokers disable event
// publishing and the extraction worker.
type Kafka struct {
	Brokers       []string
	ConsumerGroup string
	TopicMessages string
	TopicProfiles string
}

// Engine holds the preference engine policy constants. These are tuning
// knobs, not product requirements; defaults follow the values validated in
// early usage.
type Engine struct {
	// DecayHalfLife controls exponential confidence decay for set-valued
	// dimensions: a signal's effective confidence halves every half-life.
	DecayHalfLife time.Duration
	// ConfidenceFloor is the minimum decayed confidence for a set-valued
	// signal to contribute to the resolved state.
	ConfidenceFloor float64
	// FlipMargin scales the prior belief's confidence when deciding whether
	// a newer exclusive-value signal may replace it. A new signal must carry
	// confidence >= prior decayed confidence * FlipMargin.
	FlipMargin float64
}

// PublisherMode selects when profiles are recomputed.
type PublisherMode string

const (
	// PublisherModeLazy recomputes on read when the cached profile is stale.
	PublisherModeLazy PublisherMode = "lazy"
	// PublisherModeEager recomputes immediately on every invalidation.
	PublisherModeEager PublisherMode = "eager"
)

// Publisher configures the profile publisher.
type Publisher struct {
	Mode           PublisherMode
	RecomputeTries int
	RetryBackoff   time.Duration
	CacheTTL       time.Duration
}

// Search configures the external restaurant search collaborator.
type Search struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Extraction configures the message analysis worker. Empty LLMBaseURL
// disables the LLM analyzer and the worker runs on keywords alone.
type Extraction struct {
	LLMBaseURL string
	Timeout    time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envString("DINEMATE_ADDR", ":8080"),
			JWTSigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envString("JWT_ISSUER", "dinemate"),
			JWTAudience:   envString("JWT_AUDIENCE", "dinemate-api"),
			TokenTTL:      envDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Postgres: Postgres{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:       envList("KAFKA_BROKERS"),
			ConsumerGroup: envString("KAFKA_CONSUMER_GROUP", "dinemate-extraction"),
			TopicMessages: envString("KAFKA_TOPIC_MESSAGES", "dinemate.message.created"),
			TopicProfiles: envString("KAFKA_TOPIC_PROFILES", "dinemate.profile.changed"),
		},
		Engine: Engine{
			DecayHalfLife:   envDuration("ENGINE_DECAY_HALF_LIFE", 14*24*time.Hour),
			ConfidenceFloor: envFloat("ENGINE_CONFIDENCE_FLOOR", 0.4),
			FlipMargin:      envFloat("ENGINE_FLIP_MARGIN", 0.75),
		},
		Publisher: Publisher{
			Mode:           PublisherMode(envString("PUBLISHER_MODE", string(PublisherModeLazy))),
			RecomputeTries: envInt("PUBLISHER_RECOMPUTE_TRIES", 3),
			RetryBackoff:   envDuration("PUBLISHER_RETRY_BACKOFF", 100*time.Millisecond),
			CacheTTL:       envDuration("PUBLISHER_CACHE_TTL", 10*time.Minute),
		},
		Search: Search{
			BaseURL: envString("FOURSQUARE_BASE_URL", "https://api.foursquare.com/v3"),
			APIKey:  os.Getenv("FOURSQUARE_API_KEY"),
			Timeout: envDuration("FOURSQUARE_TIMEOUT", 10*time.Second),
		},
		Extraction: Extraction{
			LLMBaseURL: os.Getenv("LLM_BASE_URL"),
			Timeout:    envDuration("LLM_TIMEOUT", 15*time.Second),
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
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
