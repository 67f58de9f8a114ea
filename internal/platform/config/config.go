package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Domain parameters (fee tiers,
// daily caps, schedule ceilings) live with their services; only wiring
// concerns belong here.
type Config struct {
	Addr string

	// PostgresURL selects the SQL substrate when set; empty means the
	// in-memory substrate (single-node deployments and tests).
	PostgresURL string

	// RedisURL enables the compliance read-through cache when set.
	RedisURL string
	Redis    RedisConfig

	// KafkaBrokers enables the event-log fan-out worker when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig carries go-redis tuning knobs.
type RedisConfig struct {
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:        getenv("BRAZA_ADDR", ":8080"),
		PostgresURL: os.Getenv("BRAZA_POSTGRES_URL"),
		RedisURL:    os.Getenv("BRAZA_REDIS_URL"),
		KafkaTopic:  getenv("BRAZA_KAFKA_TOPIC", "braza.ledger.events"),
		Redis: RedisConfig{
			PoolSize:     getenvInt("BRAZA_REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("BRAZA_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("BRAZA_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitComma(brokers)
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
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

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
