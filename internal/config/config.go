package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PGDSN string

	RedisAddr     string
	RedisPassword string
	QuoteCacheTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	RoutingEndpoint string
	RoutingAPIKey   string

	NotifyWebhook string
	NotifyKey     string

	Currency string

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		QuoteCacheTTL:   10 * time.Minute,
		KafkaTopic:      "contract-events",
		Currency:        "vnd",
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.QuoteCacheTTL, "QUOTE_CACHE_TTL", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.RoutingEndpoint = strings.TrimSpace(os.Getenv("ROUTING_ENDPOINT"))
	cfg.RoutingAPIKey = os.Getenv("ROUTING_API_KEY")

	cfg.NotifyWebhook = strings.TrimSpace(os.Getenv("NOTIFY_WEBHOOK"))
	cfg.NotifyKey = os.Getenv("NOTIFY_KEY")

	setStringFromEnv(&cfg.Currency, "CURRENCY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.QuoteCacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("QUOTE_CACHE_TTL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// SweeperConfig tunes the deposit-expiry sweep process.
type SweeperConfig struct {
	Interval   time.Duration
	BatchLimit int

	PGDSN string

	KafkaBrokers []string
	KafkaTopic   string

	MetricsAddr string
	LogLevel    string
}

func defaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    time.Minute,
		BatchLimit:  100,
		KafkaTopic:  "contract-events",
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

func LoadSweeperConfig() (SweeperConfig, error) {
	cfg := defaultSweeperConfig()
	var errs []error

	setDurationFromEnv(&cfg.Interval, "SWEEP_INTERVAL", &errs)
	setIntFromEnv(&cfg.BatchLimit, "SWEEP_BATCH_LIMIT", &errs)

	cfg.PGDSN = os.Getenv("PG_DSN")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_BATCH_LIMIT must be > 0"))
	}
	if cfg.Interval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
