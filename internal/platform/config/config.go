package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "medishare/pkg/platform/strings"
)

// Config captures everything the fan-out service needs at startup. Values
// come from the environment so main stays lean.
type Config struct {
	Addr string

	// PostgresDSN selects the durable stores. Empty means in-memory stores,
	// which is how local development and most tests run.
	PostgresDSN string

	// RedisURL enables the directory cache. Empty disables caching and the
	// resolver hits the directory service directly.
	RedisURL string

	// KafkaBrokers enables the document-finalized consumer. Empty disables
	// it; fan-out can still be triggered through the HTTP finalize endpoint.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	// SweepInterval paces the background retry sweep.
	SweepInterval time.Duration
	// NotificationMaxAge is how long an entry may sit QUEUED before the
	// sweep re-attempts delivery.
	NotificationMaxAge time.Duration

	// FanOutWorkers bounds per-document recipient concurrency.
	FanOutWorkers int
	// RecipientTimeout bounds each recipient's grant+enqueue sequence.
	RecipientTimeout time.Duration

	DirectoryCacheTTL time.Duration

	JWTSigningKey string
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	return Config{
		Addr:               getString("MEDISHARE_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("MEDISHARE_POSTGRES_DSN"),
		RedisURL:           os.Getenv("MEDISHARE_REDIS_URL"),
		KafkaBrokers:       pstrings.DedupeAndTrim(strings.Split(os.Getenv("MEDISHARE_KAFKA_BROKERS"), ",")),
		KafkaTopic:         getString("MEDISHARE_KAFKA_TOPIC", "documents.finalized"),
		KafkaGroup:         getString("MEDISHARE_KAFKA_GROUP", "medishare-fanout"),
		SweepInterval:      getDuration("MEDISHARE_SWEEP_INTERVAL", 30*time.Second),
		NotificationMaxAge: getDuration("MEDISHARE_NOTIFICATION_MAX_AGE", 5*time.Minute),
		FanOutWorkers:      getInt("MEDISHARE_FANOUT_WORKERS", 8),
		RecipientTimeout:   getDuration("MEDISHARE_RECIPIENT_TIMEOUT", 3*time.Second),
		DirectoryCacheTTL:  getDuration("MEDISHARE_DIRECTORY_CACHE_TTL", 5*time.Minute),
		// Default for development - must be overridden in production.
		JWTSigningKey: getString("MEDISHARE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
